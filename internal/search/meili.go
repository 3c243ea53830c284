package search

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"
)

const (
	idxSections = "sayit_sections"
	idxSpeakers = "sayit_speakers"
)

// Meili implements Index via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	logger  zerolog.Logger
}

// NewMeili creates a Meilisearch client and configures indexes. An
// unreachable server is not an error: the client reports unhealthy until a
// background check sees it come up.
func NewMeili(url, apiKey string, logger zerolog.Logger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "meilisearch").Logger(),
	}

	if _, err := client.Health(); err != nil {
		m.logger.Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxSections,
			filterable: []string{"filename", "speaker"},
			searchable: []string{"text", "speakerName", "displayName"},
		},
		{
			uid:        idxSpeakers,
			filterable: []string{"slug"},
			searchable: []string{"name", "slug"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: "id",
		}); err != nil {
			m.logger.Debug().Err(err).Str("index", idx.uid).Msg("create index (may already exist)")
		}

		index := m.client.Index(idx.uid)
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			m.logger.Warn().Err(err).Str("index", idx.uid).Msg("update filterable attributes")
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			m.logger.Warn().Err(err).Str("index", idx.uid).Msg("update searchable attributes")
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info().Msg("meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries speakers and sections in one multi-search.
func (m *Meili) Search(q Query) (Response, error) {
	if !m.healthy.Load() {
		return Response{}, fmt.Errorf("meilisearch unhealthy")
	}
	q = q.Normalized()

	highlight := func(uid string, limit, offset int) *meili.SearchRequest {
		return &meili.SearchRequest{
			IndexUID:              uid,
			Query:                 q.Text,
			Limit:                 int64(limit),
			Offset:                int64(offset),
			AttributesToHighlight: []string{"*"},
			AttributesToCrop:      []string{"text"},
			CropLength:            48,
			HighlightPreTag:       "<em>",
			HighlightPostTag:      "</em>",
		}
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{
			highlight(idxSpeakers, q.SpeakerLimit, 0),
			highlight(idxSections, q.SectionLimit, q.Offset),
		},
	})
	if err != nil {
		m.healthy.Store(false)
		return Response{}, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	out := Response{Query: q.Text, Speakers: []SpeakerHit{}, Sections: []SectionHit{}}
	for _, sr := range resp.Results {
		switch sr.IndexUID {
		case idxSpeakers:
			for _, hit := range sr.Hits {
				out.Speakers = append(out.Speakers, hitToSpeaker(hit))
			}
		case idxSections:
			out.Total = int(sr.EstimatedTotalHits)
			for _, hit := range sr.Hits {
				out.Sections = append(out.Sections, hitToSection(hit))
			}
		}
	}
	return out, nil
}

func hitToSpeaker(hit meili.Hit) SpeakerHit {
	return SpeakerHit{
		RoutePathname: decodeString(hit, "slug"),
		Name:          decodeString(hit, "name"),
		PhotoURL:      decodeString(hit, "photoURL"),
		Snippet:       firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name")),
	}
}

func hitToSection(hit meili.Hit) SectionHit {
	return SectionHit{
		SectionID:   decodeInt64(hit, "id"),
		Filename:    decodeString(hit, "filename"),
		Speaker:     decodeString(hit, "speaker"),
		SpeakerName: decodeString(hit, "speakerName"),
		DisplayName: firstNonBlank(decodeString(hit, "displayName"), decodeString(hit, "filename")),
		Snippet:     firstNonBlank(decodeFormattedString(hit, "text"), decodeString(hit, "text")),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeInt64(hit meili.Hit, key string) int64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	s, _ := formatted[key].(string)
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// speakerDocID makes a slug safe as a document id; slugs are percent-encoded
// and Meilisearch ids only allow alphanumerics, dashes and underscores.
func speakerDocID(slug string) string {
	return hex.EncodeToString([]byte(slug))
}

func (m *Meili) IndexSections(records []SectionRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxSections).AddDocuments(records, nil)
	return err
}

func (m *Meili) DeleteSections(ids []int64) error {
	for _, id := range ids {
		if _, err := m.client.Index(idxSections).DeleteDocument(strconv.FormatInt(id, 10), nil); err != nil {
			return fmt.Errorf("delete section %d: %w", id, err)
		}
	}
	return nil
}

func (m *Meili) IndexSpeakers(records []SpeakerRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxSpeakers).AddDocuments(records, nil)
	return err
}

func (m *Meili) DeleteSpeakers(slugs []string) error {
	for _, slug := range slugs {
		if _, err := m.client.Index(idxSpeakers).DeleteDocument(speakerDocID(slug), nil); err != nil {
			return fmt.Errorf("delete speaker %s: %w", slug, err)
		}
	}
	return nil
}
