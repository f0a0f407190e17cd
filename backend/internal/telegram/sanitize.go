package telegram

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Tags Telegram's HTML parse mode accepts, mapped to their canonical form
var allowedTags = map[string]string{
	"b":          "b",
	"strong":     "b",
	"i":          "i",
	"em":         "i",
	"u":          "u",
	"ins":        "u",
	"s":          "s",
	"strike":     "s",
	"del":        "s",
	"code":       "code",
	"pre":        "pre",
	"a":          "a",
	"blockquote": "blockquote",
	"tg-spoiler": "tg-spoiler",
}

var (
	mdBold   = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	mdCode   = regexp.MustCompile("`([^`\n]+)`")
	mdHeader = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	mdBullet = regexp.MustCompile(`(?m)^\s*[*-]\s+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

// SanitizeHTML rewrites model output into the HTML subset Telegram accepts.
// Unknown tags are unwrapped, block tags become line breaks, text is escaped,
// and stray Markdown emphasis is converted.
func SanitizeHTML(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = markdownToHTML(text)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return html.EscapeString(text)
	}

	var sb strings.Builder
	for _, n := range doc.Find("body").Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderNode(&sb, c)
		}
	}
	out := blankRun.ReplaceAllString(sb.String(), "\n\n")
	return strings.TrimSpace(out)
}

// StripHTML returns the plain text of a Telegram HTML message
func StripHTML(text string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(strings.ReplaceAll(text, "<br>", "\n")))
	if err != nil {
		return text
	}
	return strings.TrimSpace(doc.Text())
}

func markdownToHTML(text string) string {
	text = mdHeader.ReplaceAllString(text, "<b>$1</b>")
	text = mdBold.ReplaceAllString(text, "<b>$1</b>")
	text = mdCode.ReplaceAllString(text, "<code>$1</code>")
	text = mdBullet.ReplaceAllString(text, "• ")
	return text
}

func renderNode(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(html.EscapeString(n.Data))
		return
	case html.ElementNode:
	default:
		return
	}

	tag := strings.ToLower(n.Data)
	switch tag {
	case "br":
		sb.WriteString("\n")
		return
	case "script", "style", "head":
		return
	case "li":
		sb.WriteString("• ")
		renderChildren(sb, n)
		sb.WriteString("\n")
		return
	case "p", "div", "ul", "ol", "table", "tr":
		renderChildren(sb, n)
		sb.WriteString("\n")
		return
	case "h1", "h2", "h3", "h4", "h5", "h6":
		sb.WriteString("<b>")
		renderChildren(sb, n)
		sb.WriteString("</b>\n")
		return
	case "td", "th":
		renderChildren(sb, n)
		sb.WriteString(" ")
		return
	case "span":
		if attr(n, "class") == "tg-spoiler" {
			sb.WriteString("<tg-spoiler>")
			renderChildren(sb, n)
			sb.WriteString("</tg-spoiler>")
			return
		}
	}

	canonical, ok := allowedTags[tag]
	if !ok {
		renderChildren(sb, n)
		return
	}

	if canonical == "a" {
		href := attr(n, "href")
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") && !strings.HasPrefix(href, "tg://") {
			renderChildren(sb, n)
			return
		}
		sb.WriteString(`<a href="` + html.EscapeString(href) + `">`)
		renderChildren(sb, n)
		sb.WriteString("</a>")
		return
	}

	sb.WriteString("<" + canonical + ">")
	renderChildren(sb, n)
	sb.WriteString("</" + canonical + ">")
}

func renderChildren(sb *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderNode(sb, c)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
