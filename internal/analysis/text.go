package analysis

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var reHTMLTag = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)

// Entities are decoded in this order; &amp; must stay last so that "&amp;lt;"
// becomes "&lt;" and not "<".
var htmlEntities = [...][2]string{
	{"&nbsp;", " "},
	{"&lt;", "<"},
	{"&gt;", ">"},
	{"&quot;", `"`},
	{"&#39;", "'"},
	{"&amp;", "&"},
}

// envelopeFields are the JSON keys checked, in order, for card markup.
var envelopeFields = []string{"html", "text"}

// ExtractText turns stored card content into plain text. Content may be a
// JSON envelope ({"html": "...", "media": [...]}), an HTML fragment, or plain
// text. Whitespace is always collapsed to single spaces.
func ExtractText(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}

	isMarkup := false
	if body, ok := unwrapEnvelope(content); ok {
		content = body
		isMarkup = true
	}
	if isMarkup || reHTMLTag.MatchString(content) {
		content = decodeEntities(stripTags(content))
	}

	return collapseWhitespace(content)
}

func unwrapEnvelope(content string) (string, bool) {
	if content[0] != '{' || !gjson.Valid(content) {
		return "", false
	}
	for _, field := range envelopeFields {
		if v := gjson.Get(content, field); v.Exists() && v.Type == gjson.String {
			return v.String(), true
		}
	}
	return "", false
}

// stripTags removes everything between '<' and '>' in a single pass. Each tag
// is replaced by a space so adjacent block elements do not glue words together.
func stripTags(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '<':
			inTag = true
		case c == '>' && inTag:
			inTag = false
			b.WriteByte(' ')
		case !inTag:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func decodeEntities(s string) string {
	for _, e := range htmlEntities {
		s = strings.ReplaceAll(s, e[0], e[1])
	}
	return s
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
