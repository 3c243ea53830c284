package util

import (
	"html"
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"
)

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "table": true,
}

// PlainText returns the text of an HTML fragment. Block elements become line
// breaks; runs of blank lines collapse to one.
func PlainText(fragment string) string {
	z := xhtml.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			return collapseBlankLines(b.String())
		case xhtml.TextToken:
			b.Write(z.Text())
		case xhtml.StartTagToken, xhtml.EndTagToken, xhtml.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockElements[string(name)] {
				b.WriteByte('\n')
			}
		}
	}
}

var blankLines = regexp.MustCompile(`[ \t]*\n[ \t\n]*\n[ \t\n]*`)

func collapseBlankLines(s string) string {
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Highlight HTML-escapes value and wraps every case-insensitive occurrence of
// a query token in <em>. Tokens are also matched in their URL-encoded form so
// speaker slugs highlight too.
func Highlight(value, query string) string {
	tokens := strings.Fields(query)
	escaped := html.EscapeString(value)
	if value == "" || len(tokens) == 0 {
		return escaped
	}

	patterns := make([]string, 0, len(tokens)*2)
	for _, token := range tokens {
		patterns = append(patterns, regexp.QuoteMeta(html.EscapeString(token)))
		if encoded := EncodeURIComponent(token); encoded != token {
			patterns = append(patterns, regexp.QuoteMeta(encoded))
		}
	}
	re := regexp.MustCompile(`(?i)(` + strings.Join(patterns, "|") + `)`)
	return re.ReplaceAllString(escaped, "<em>$1</em>")
}

// Snippet trims text to about limit runes around the first match of query.
func Snippet(text, query string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	start := 0
	if tokens := strings.Fields(query); len(tokens) > 0 {
		if i := strings.Index(strings.ToLower(text), strings.ToLower(tokens[0])); i >= 0 {
			start = len([]rune(text[:i])) - limit/4
			if start < 0 {
				start = 0
			}
		}
	}
	end := start + limit
	if end > len(runes) {
		end = len(runes)
		start = end - limit
	}
	out := string(runes[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}
