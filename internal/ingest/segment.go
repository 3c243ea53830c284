// Package ingest turns an edited Markdown transcript into a minimal set of
// section writes that keep existing section IDs stable.
package ingest

import (
	"regexp"
	"strings"
)

// Marker is a speaker heading such as "### 唐鳳:" found in the body.
type Marker struct {
	Line int
	Name string
}

// Block is one paragraph of raw Markdown.
type Block struct {
	Markdown  string
	FromQuote bool
	StartLine int
}

type Segmentation struct {
	Markers []Marker
	Blocks  []Block
}

var speakerMarker = regexp.MustCompile(`^#{1,6}\s*([^#].*?)\s*[:：]\s*$`)

// SplitTitle separates the "# Title" line from the body. Without a title line
// the fallback is used as the display name and the whole text is the body.
func SplitTitle(markdown, fallback string) (displayName, body string) {
	text := normalizeNewlines(markdown)
	text = strings.TrimPrefix(text, "\ufeff")
	first, rest, found := strings.Cut(text, "\n")
	if strings.HasPrefix(first, "# ") {
		title := strings.TrimSpace(strings.TrimPrefix(first, "# "))
		if title == "" {
			title = fallback
		}
		if !found {
			rest = ""
		}
		return title, rest
	}
	return fallback, text
}

// Segment splits a transcript body into paragraphs and speaker markers.
// Marker lines are blanked so they never become paragraph content.
func Segment(body string) Segmentation {
	lines := strings.Split(normalizeNewlines(body), "\n")

	var seg Segmentation
	var (
		current   []string
		start     int
		allQuoted bool
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		seg.Blocks = append(seg.Blocks, Block{
			Markdown:  strings.Join(current, "\n"),
			FromQuote: allQuoted,
			StartLine: start,
		})
		current = nil
	}

	for i, raw := range lines {
		line, quoted := unquote(raw)
		if m := speakerMarker.FindStringSubmatch(line); m != nil {
			seg.Markers = append(seg.Markers, Marker{Line: i, Name: m[1]})
			line = ""
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if len(current) == 0 {
			start = i
			allQuoted = true
		}
		allQuoted = allQuoted && quoted
		current = append(current, line)
	}
	flush()
	return seg
}

func unquote(line string) (string, bool) {
	if !strings.HasPrefix(line, ">") {
		return line, false
	}
	line = strings.TrimPrefix(line, ">")
	return strings.TrimPrefix(line, " "), true
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
