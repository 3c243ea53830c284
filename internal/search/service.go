package search

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"sayit/api/internal/store"
)

// ReindexSource lists everything that belongs in the index.
type ReindexSource interface {
	AllSectionDetails(ctx context.Context) ([]store.SectionDetail, error)
	ListSpeakers(ctx context.Context) ([]store.Speaker, error)
}

// Service tries the search index first and falls back to SQL. Index writes
// are fire-and-forget but run one at a time in submission order, so a later
// edit of a speech never lands before an earlier one. Wait blocks until the
// queue is empty.
type Service struct {
	index    Index
	fallback *SQLFallback
	logger   zerolog.Logger
	pending  sync.WaitGroup

	mu       sync.Mutex
	queue    []indexJob
	draining bool
}

type indexJob struct {
	what string
	fn   func() error
}

// NewService creates a search service. index may be nil when no search engine
// is configured.
func NewService(index Index, fallback *SQLFallback, logger zerolog.Logger) *Service {
	return &Service{index: index, fallback: fallback, logger: logger.With().Str("component", "search").Logger()}
}

func (s *Service) indexUsable() bool {
	return s.index != nil && s.index.Healthy()
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	empty := Response{Query: strings.TrimSpace(q.Text), Speakers: []SpeakerHit{}, Sections: []SectionHit{}}
	if empty.Query == "" {
		return empty
	}
	q.Text = empty.Query

	if s.indexUsable() {
		resp, err := s.index.Search(q)
		if err == nil {
			return resp
		}
		s.logger.Warn().Err(err).Msg("search index failed, falling back to sql")
	}

	resp, err := s.fallback.SearchContext(ctx, q)
	if err != nil {
		s.logger.Error().Err(err).Str("query", q.Text).Msg("sql search failed")
		return empty
	}
	return resp
}

func (s *Service) async(what string, fn func() error) {
	if !s.indexUsable() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Add(1)
	s.queue = append(s.queue, indexJob{what: what, fn: fn})
	if !s.draining {
		s.draining = true
		go s.drain()
	}
}

// drain runs queued jobs until the queue is empty, then exits.
func (s *Service) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		job := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if err := job.fn(); err != nil {
			s.logger.Warn().Err(err).Msg(job.what)
		}
		s.pending.Done()
	}
}

// IndexSpeech pushes the current sections of a speech and their speakers.
func (s *Service) IndexSpeech(sections []store.SectionDetail, speakers []store.Speaker) {
	records := make([]SectionRecord, len(sections))
	for i, d := range sections {
		records[i] = SectionRecordFrom(d)
	}
	speakerRecords := make([]SpeakerRecord, len(speakers))
	for i, sp := range speakers {
		speakerRecords[i] = SpeakerRecordFrom(sp)
	}
	s.async("index speech", func() error {
		if err := s.index.IndexSections(records); err != nil {
			return err
		}
		return s.index.IndexSpeakers(speakerRecords)
	})
}

// Forget removes deleted sections and pruned speakers from the index.
func (s *Service) Forget(sectionIDs []int64, speakerSlugs []string) {
	if len(sectionIDs) == 0 && len(speakerSlugs) == 0 {
		return
	}
	s.async("remove from index", func() error {
		if err := s.index.DeleteSections(sectionIDs); err != nil {
			return err
		}
		return s.index.DeleteSpeakers(speakerSlugs)
	})
}

// ReindexAll rebuilds the index from the database.
func (s *Service) ReindexAll(ctx context.Context, src ReindexSource) {
	if !s.indexUsable() {
		return
	}
	sections, err := src.AllSectionDetails(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("reindex load sections")
		return
	}
	speakers, err := src.ListSpeakers(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("reindex load speakers")
		return
	}
	s.IndexSpeech(sections, speakers)
	s.logger.Info().Int("sections", len(sections)).Int("speakers", len(speakers)).Msg("reindex queued")
}

// Wait blocks until queued index writes finish.
func (s *Service) Wait() {
	s.pending.Wait()
}
