package adapter

import "strings"

// ExtractCodeBlock returns the body of the first fenced block in text, or the
// trimmed text when there is no fence. A language tag after the opening fence
// (json, cypher, ...) is dropped.
func ExtractCodeBlock(text string) string {
	s := strings.TrimSpace(text)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]

	// Drop the language tag line
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		tag := strings.TrimSpace(body[:nl])
		if tag == "" || !strings.ContainsAny(tag, " {([:") {
			body = body[nl+1:]
		}
	}

	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// ExtractJSONObject returns the outermost {...} span of text after fence stripping
func ExtractJSONObject(text string) string {
	s := ExtractCodeBlock(text)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
