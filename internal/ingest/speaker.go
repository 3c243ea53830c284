package ingest

import (
	"strings"

	"sayit/api/internal/util"
)

// Aliases maps a speaker display name to the slug base used for it. It keeps
// people who share a display name apart.
type Aliases map[string]string

func DefaultAliases() Aliases {
	return Aliases{"唐鳳": "唐鳳-3"}
}

// Paragraph is a block with its resolved speaker. Speaker is the slug, empty
// when the paragraph is unattributed.
type Paragraph struct {
	Markdown    string
	FromQuote   bool
	Speaker     string
	SpeakerName string
}

// Attribute assigns each block the nearest speaker marker at or before its
// first line. Quoted blocks are narration and never carry a speaker.
func Attribute(seg Segmentation, aliases Aliases) []Paragraph {
	paragraphs := make([]Paragraph, 0, len(seg.Blocks))
	next := 0
	var current *Marker
	for _, block := range seg.Blocks {
		for next < len(seg.Markers) && seg.Markers[next].Line <= block.StartLine {
			current = &seg.Markers[next]
			next++
		}
		p := Paragraph{Markdown: block.Markdown, FromQuote: block.FromQuote}
		if !block.FromQuote && current != nil {
			p.SpeakerName = speakerName(current.Name)
			p.Speaker = SpeakerSlug(current.Name, aliases)
		}
		paragraphs = append(paragraphs, p)
	}
	return paragraphs
}

// SpeakerSlug turns a display name into the route pathname of the speaker.
// An empty name has no slug.
func SpeakerSlug(name string, aliases Aliases) string {
	name = speakerName(name)
	if name == "" {
		return ""
	}
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	// Slugs must line up with links produced by the web front end.
	return util.EncodeURIComponent(name)
}

func speakerName(name string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(name), ":："))
}
