package search

import (
	"sayit/api/internal/store"
	"sayit/api/internal/util"
)

const (
	DefaultSpeakerLimit = 5
	DefaultSectionLimit = 20
	MaxSpeakerLimit     = 10
	MaxSectionLimit     = 50
)

// SpeakerHit is a speaker matching a query.
type SpeakerHit struct {
	RoutePathname string `json:"route_pathname"`
	Name          string `json:"name"`
	PhotoURL      string `json:"photoURL,omitempty"`
	Snippet       string `json:"snippet"`
}

// SectionHit is a transcript section matching a query.
type SectionHit struct {
	SectionID   int64  `json:"section_id"`
	Filename    string `json:"filename"`
	Speaker     string `json:"section_speaker,omitempty"`
	SpeakerName string `json:"speaker_name,omitempty"`
	DisplayName string `json:"display_name"`
	Snippet     string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text         string
	SpeakerLimit int
	SectionLimit int
	Offset       int
}

// Normalized clamps the limits to their defaults and maximums.
func (q Query) Normalized() Query {
	q.SpeakerLimit = clamp(q.SpeakerLimit, DefaultSpeakerLimit, MaxSpeakerLimit)
	q.SectionLimit = clamp(q.SectionLimit, DefaultSectionLimit, MaxSectionLimit)
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

func clamp(v, fallback, max int) int {
	if v <= 0 {
		return fallback
	}
	if v > max {
		return max
	}
	return v
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Query    string       `json:"query"`
	Speakers []SpeakerHit `json:"speakers"`
	Sections []SectionHit `json:"sections"`
	Total    int          `json:"total"`
}

// Searcher can execute a search.
type Searcher interface {
	Search(q Query) (Response, error)
	Healthy() bool
}

// SectionRecord is the data indexed for a section.
type SectionRecord struct {
	ID          int64  `json:"id"`
	Filename    string `json:"filename"`
	Speaker     string `json:"speaker"`
	SpeakerName string `json:"speakerName"`
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
}

// SpeakerRecord is the data indexed for a speaker.
type SpeakerRecord struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL"`
}

// Indexer can push sections and speakers into a search index.
type Indexer interface {
	IndexSections(records []SectionRecord) error
	DeleteSections(ids []int64) error
	IndexSpeakers(records []SpeakerRecord) error
	DeleteSpeakers(slugs []string) error
}

// Index is a search backend that can also be written to.
type Index interface {
	Searcher
	Indexer
}

func SectionRecordFrom(d store.SectionDetail) SectionRecord {
	return SectionRecord{
		ID:          d.ID,
		Filename:    d.Filename,
		Speaker:     d.Speaker,
		SpeakerName: d.SpeakerName,
		DisplayName: d.DisplayName,
		Text:        util.PlainText(d.Content),
	}
}

func SpeakerRecordFrom(s store.Speaker) SpeakerRecord {
	return SpeakerRecord{
		ID:       speakerDocID(s.RoutePathname),
		Slug:     s.RoutePathname,
		Name:     s.Name,
		PhotoURL: s.PhotoURL,
	}
}
