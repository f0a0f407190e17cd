package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "   ", ""},
		{"plain text", "Total sales ₹5000", "Total sales ₹5000"},
		{"allowed tags kept", "<b>Total</b> sales", "<b>Total</b> sales"},
		{"strong canonicalized", "<strong>Total</strong>", "<b>Total</b>"},
		{"markdown bold", "**Total** sales", "<b>Total</b> sales"},
		{"markdown code", "run `ortho kit`", "run <code>ortho kit</code>"},
		{"markdown header", "## Report", "<b>Report</b>"},
		{"markdown bullets", "- one\n- two", "• one\n• two"},
		{"paragraphs become lines", "<p>Hello</p><p>World</p>", "Hello\nWorld"},
		{"list items", "<ul><li>a</li><li>b</li></ul>", "• a\n• b"},
		{"headers become bold", "<h2>Report</h2>", "<b>Report</b>"},
		{"unknown tags unwrapped", "<unknown>text</unknown>", "text"},
		{"stray angle brackets escaped", "a < b & c", "a &lt; b &amp; c"},
		{"unsafe link unwrapped", `<a href="javascript:alert(1)">x</a>`, "x"},
		{"safe link kept", `<a href="https://example.com">site</a>`, `<a href="https://example.com">site</a>`},
		{"br becomes newline", "one<br>two", "one\ntwo"},
		{"spoiler span", `<span class="tg-spoiler">secret</span>`, "<tg-spoiler>secret</tg-spoiler>"},
		{"blank runs collapsed", "<p>a</p>\n\n\n\n<p>b</p>", "a\n\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeHTML(tt.in))
		})
	}
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Hi there", StripHTML("<b>Hi</b> there"))
	assert.Equal(t, "a < b", StripHTML("a &lt; b"))
	assert.Equal(t, "line one\nline two", StripHTML("line one<br>line two"))
}
