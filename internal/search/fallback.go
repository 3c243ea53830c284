package search

import (
	"context"
	"strings"

	"sayit/api/internal/store"
	"sayit/api/internal/util"
)

// SQLSource is the part of the store the SQL fallback reads.
type SQLSource interface {
	SearchSections(ctx context.Context, text string, limit, offset int) ([]store.SectionDetail, int, error)
	SearchSpeakers(ctx context.Context, text string, limit int) ([]store.Speaker, error)
}

// SQLFallback answers searches with substring matches in the database.
type SQLFallback struct {
	src SQLSource
}

func NewSQLFallback(src SQLSource) *SQLFallback {
	return &SQLFallback{src: src}
}

// Healthy always returns true; without the database nothing works anyway.
func (f *SQLFallback) Healthy() bool {
	return true
}

func (f *SQLFallback) Search(q Query) (Response, error) {
	return f.SearchContext(context.Background(), q)
}

func (f *SQLFallback) SearchContext(ctx context.Context, q Query) (Response, error) {
	q = q.Normalized()
	out := Response{Query: strings.TrimSpace(q.Text), Speakers: []SpeakerHit{}, Sections: []SectionHit{}}
	if out.Query == "" {
		return out, nil
	}

	speakers, err := f.src.SearchSpeakers(ctx, out.Query, q.SpeakerLimit)
	if err != nil {
		return Response{}, err
	}
	for _, sp := range speakers {
		out.Speakers = append(out.Speakers, SpeakerHit{
			RoutePathname: sp.RoutePathname,
			Name:          sp.Name,
			PhotoURL:      sp.PhotoURL,
			Snippet:       util.Highlight(sp.Name, out.Query),
		})
	}

	sections, total, err := f.src.SearchSections(ctx, out.Query, q.SectionLimit, q.Offset)
	if err != nil {
		return Response{}, err
	}
	out.Total = total
	for _, d := range sections {
		text := util.Snippet(util.PlainText(d.Content), out.Query, 96)
		out.Sections = append(out.Sections, SectionHit{
			SectionID:   d.ID,
			Filename:    d.Filename,
			Speaker:     d.Speaker,
			SpeakerName: d.SpeakerName,
			DisplayName: firstNonBlank(d.DisplayName, d.Filename),
			Snippet:     util.Highlight(text, out.Query),
		})
	}
	return out, nil
}
