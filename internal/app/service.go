package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"sayit/api/internal/auth"
	"sayit/api/internal/cache"
	"sayit/api/internal/export"
	"sayit/api/internal/ingest"
	"sayit/api/internal/search"
	"sayit/api/internal/store"
	"sayit/api/internal/util"
)

const (
	variantJSON         = "json"
	jsonContentType     = "application/json; charset=utf-8"
	speakerSectionLimit = 200
	defaultHistoryLimit = 50
	defaultAuthor       = "sayit"
)

// DataStore is the persistence the service runs on.
type DataStore interface {
	ingest.Store
	export.DataStore
	Ping(ctx context.Context) error
	CreateSpeech(ctx context.Context, filename, displayName string) error
	ListSpeeches(ctx context.Context) ([]store.SpeechSummary, error)
	ListSpeakers(ctx context.Context) ([]store.Speaker, error)
	GetSpeaker(ctx context.Context, slug string) (store.Speaker, error)
	SpeakerSections(ctx context.Context, slug string, limit int) ([]store.SectionDetail, error)
	DeleteSpeechBatch(ctx context.Context, filename string) (store.Batch, []int64, error)
}

// Archive keeps transcript revisions.
type Archive interface {
	Commit(filename, markdown, author, message string) (store.CommitInfo, bool, error)
	History(filename string, limit int) ([]store.CommitInfo, error)
	ContentAt(filename, hash string) (string, store.CommitInfo, error)
	Remove(filename string) error
}

// Deps wires a Service. Archive and Verifier are optional.
type Deps struct {
	Store    DataStore
	Cache    *cache.Service
	Search   *search.Service
	Archive  Archive
	Exporter *export.Service
	Verifier *auth.Verifier
	Aliases  ingest.Aliases
	Logger   zerolog.Logger
}

type Service struct {
	store      DataStore
	reconciler *ingest.Reconciler
	cache      *cache.Service
	search     *search.Service
	archive    Archive
	exporter   *export.Service
	verifier   *auth.Verifier
	logger     zerolog.Logger
}

func NewService(deps Deps) *Service {
	logger := deps.Logger.With().Str("component", "app").Logger()
	if deps.Cache == nil {
		deps.Cache = cache.NewService(deps.Logger)
	}
	if deps.Exporter == nil {
		deps.Exporter = export.NewService(deps.Store)
	}
	opts := []ingest.Option{ingest.WithNotifier(deps.Cache)}
	if deps.Aliases != nil {
		opts = append(opts, ingest.WithAliases(deps.Aliases))
	}
	return &Service{
		store:      deps.Store,
		reconciler: ingest.NewReconciler(deps.Store, deps.Logger, opts...),
		cache:      deps.Cache,
		search:     deps.Search,
		archive:    deps.Archive,
		exporter:   deps.Exporter,
		verifier:   deps.Verifier,
		logger:     logger,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Authorize checks an editor token. Without a verifier every token passes.
func (s *Service) Authorize(token string) error {
	if s.verifier == nil {
		return nil
	}
	return s.verifier.Verify(token)
}

func normalizeFilename(raw string) (string, error) {
	filename := util.TransformFilename(raw)
	if filename == "" {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "filename is required", nil)
	}
	return filename, nil
}

// ReconcileOutcome is a reconcile result plus the archived revision, if a
// new one was recorded.
type ReconcileOutcome struct {
	ingest.Result
	Revision *store.CommitInfo `json:"revision,omitempty"`
}

// Reconcile replaces the sections of a speech with the paragraphs of
// markdown. Search indexing and archiving happen after the write and never
// fail the call.
func (s *Service) Reconcile(ctx context.Context, rawFilename, markdown, author string) (ReconcileOutcome, error) {
	filename, err := normalizeFilename(rawFilename)
	if err != nil {
		return ReconcileOutcome{}, err
	}
	if strings.TrimSpace(markdown) == "" {
		return ReconcileOutcome{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "markdown is required", nil)
	}

	result, err := s.reconciler.Reconcile(ctx, filename, markdown)
	if err != nil {
		return ReconcileOutcome{}, err
	}
	outcome := ReconcileOutcome{Result: result}

	s.reindex(ctx, filename, result.DeletedIDs, result.Pruned)

	if s.archive != nil {
		if strings.TrimSpace(author) == "" {
			author = defaultAuthor
		}
		message := fmt.Sprintf("Reconcile %s: +%d ~%d -%d", filename, result.Inserted, result.Updated, result.Deleted)
		info, changed, err := s.archive.Commit(filename, markdown, author, message)
		if err != nil {
			s.logger.Warn().Err(err).Str("filename", filename).Msg("archive transcript failed")
		} else if changed {
			outcome.Revision = &info
		}
	}
	return outcome, nil
}

func (s *Service) reindex(ctx context.Context, filename string, deletedIDs []int64, pruned []string) {
	if s.search == nil {
		return
	}
	s.search.Forget(deletedIDs, pruned)

	details, err := s.store.SpeechSections(ctx, filename)
	if err != nil {
		s.logger.Warn().Err(err).Str("filename", filename).Msg("load sections for indexing")
		return
	}
	seen := make(map[string]struct{})
	speakers := make([]store.Speaker, 0)
	for _, d := range details {
		if d.Speaker == "" {
			continue
		}
		if _, ok := seen[d.Speaker]; ok {
			continue
		}
		seen[d.Speaker] = struct{}{}
		speaker, err := s.store.GetSpeaker(ctx, d.Speaker)
		if err != nil {
			speaker = store.Speaker{RoutePathname: d.Speaker, Name: d.SpeakerName}
		}
		speakers = append(speakers, speaker)
	}
	s.search.IndexSpeech(details, speakers)
}

// CreateSpeech registers a speech, taking its display name from the first
// line of markdown.
func (s *Service) CreateSpeech(ctx context.Context, rawFilename, markdown string) (store.Speech, error) {
	filename, err := normalizeFilename(rawFilename)
	if err != nil {
		return store.Speech{}, err
	}
	displayName, _ := ingest.SplitTitle(markdown, filename)
	if err := s.store.CreateSpeech(ctx, filename, displayName); err != nil {
		return store.Speech{}, err
	}
	s.invalidate(ctx, []string{cache.KeySpeechIndex})
	return store.Speech{Filename: filename, DisplayName: displayName}, nil
}

type DeleteOutcome struct {
	Filename string   `json:"filename"`
	Sections int      `json:"sections"`
	Pruned   []string `json:"prunedSpeakers"`
}

// DeleteSpeech removes a speech with its sections, relations and archive.
func (s *Service) DeleteSpeech(ctx context.Context, rawFilename string) (DeleteOutcome, error) {
	filename, err := normalizeFilename(rawFilename)
	if err != nil {
		return DeleteOutcome{}, err
	}
	batch, ids, err := s.store.DeleteSpeechBatch(ctx, filename)
	if err != nil {
		return DeleteOutcome{}, err
	}
	if len(ids) == 0 {
		if _, err := s.store.GetSpeech(ctx, filename); err != nil {
			return DeleteOutcome{}, err
		}
	}

	applied, err := s.store.ApplyBatch(ctx, batch)
	if err != nil {
		return DeleteOutcome{}, fmt.Errorf("delete speech: %w", err)
	}
	pruned := applied.Pruned
	if pruned == nil {
		pruned = []string{}
	}

	keys := []string{cache.SpeechKey(filename), cache.KeySpeechIndex, cache.KeySpeakerIndex}
	for _, op := range batch {
		if rel, ok := op.(store.RemoveRelation); ok {
			keys = append(keys, cache.SpeakerKey(rel.Speaker))
		}
	}
	for _, id := range ids {
		keys = append(keys, cache.SectionKey(id))
	}
	s.invalidate(ctx, keys)

	if s.search != nil {
		s.search.Forget(ids, pruned)
	}
	if s.archive != nil {
		if err := s.archive.Remove(filename); err != nil {
			s.logger.Warn().Err(err).Str("filename", filename).Msg("remove archive failed")
		}
	}

	s.logger.Info().Str("filename", filename).Int("sections", len(ids)).Strs("pruned", pruned).Msg("speech deleted")
	return DeleteOutcome{Filename: filename, Sections: len(ids), Pruned: pruned}, nil
}

func (s *Service) invalidate(ctx context.Context, keys []string) {
	if err := s.cache.Invalidate(ctx, keys); err != nil {
		s.logger.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}

func (s *Service) cachedJSON(ctx context.Context, key string, load func(context.Context) (any, error)) (cache.Entry, error) {
	return s.cache.Fetch(ctx, key, variantJSON, func(ctx context.Context) (cache.Entry, error) {
		payload, err := load(ctx)
		if err != nil {
			return cache.Entry{}, err
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return cache.Entry{}, fmt.Errorf("encode %s: %w", key, err)
		}
		return cache.Entry{ContentType: jsonContentType, Body: body}, nil
	})
}

func (s *Service) SpeechIndex(ctx context.Context) (cache.Entry, error) {
	return s.cachedJSON(ctx, cache.KeySpeechIndex, func(ctx context.Context) (any, error) {
		return s.store.ListSpeeches(ctx)
	})
}

func (s *Service) SpeakerIndex(ctx context.Context) (cache.Entry, error) {
	return s.cachedJSON(ctx, cache.KeySpeakerIndex, func(ctx context.Context) (any, error) {
		return s.store.ListSpeakers(ctx)
	})
}

type SpeechView struct {
	Speech   store.Speech          `json:"speech"`
	Sections []store.SectionDetail `json:"sections"`
}

// Speech returns a speech with its sections in reading order.
func (s *Service) Speech(ctx context.Context, filename string) (cache.Entry, error) {
	return s.cachedJSON(ctx, cache.SpeechKey(filename), func(ctx context.Context) (any, error) {
		speech, err := s.store.GetSpeech(ctx, filename)
		if err != nil {
			return nil, err
		}
		details, err := s.store.SpeechSections(ctx, filename)
		if err != nil {
			return nil, err
		}
		return SpeechView{Speech: speech, Sections: export.OrderDetails(details)}, nil
	})
}

func (s *Service) Section(ctx context.Context, id int64) (cache.Entry, error) {
	return s.cachedJSON(ctx, cache.SectionKey(id), func(ctx context.Context) (any, error) {
		return s.store.GetSection(ctx, id)
	})
}

type SpeakerView struct {
	Speaker  store.Speaker         `json:"speaker"`
	Sections []store.SectionDetail `json:"sections"`
}

func (s *Service) Speaker(ctx context.Context, slug string) (cache.Entry, error) {
	return s.cachedJSON(ctx, cache.SpeakerKey(slug), func(ctx context.Context) (any, error) {
		speaker, err := s.store.GetSpeaker(ctx, slug)
		if err != nil {
			return nil, err
		}
		sections, err := s.store.SpeakerSections(ctx, slug, speakerSectionLimit)
		if err != nil {
			return nil, err
		}
		return SpeakerView{Speaker: speaker, Sections: sections}, nil
	})
}

// Document exports a speech or a single section. Keys made of digits
// address sections.
func (s *Service) Document(ctx context.Context, key string, format export.Format) (cache.Entry, error) {
	cacheKey := cache.SpeechKey(key)
	if id, ok := util.ParseSectionID(key); ok {
		cacheKey = cache.SectionKey(id)
	}
	entry, err := s.cache.Fetch(ctx, cacheKey, string(format), func(ctx context.Context) (cache.Entry, error) {
		res, err := s.exporter.Export(ctx, export.Request{Key: key, Format: format})
		if err != nil {
			return cache.Entry{}, err
		}
		return cache.Entry{ContentType: res.MimeType, Body: res.Data}, nil
	})
	if err != nil {
		return cache.Entry{}, err
	}
	return entry, nil
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Query: q.Text, Speakers: []search.SpeakerHit{}, Sections: []search.SectionHit{}}
	}
	return s.search.Search(ctx, q)
}

func (s *Service) History(ctx context.Context, filename string, limit int) ([]store.CommitInfo, error) {
	if s.archive == nil {
		return nil, domainError(http.StatusNotFound, "ARCHIVE_DISABLED", "Revision archive is not configured", nil)
	}
	if _, err := s.store.GetSpeech(ctx, filename); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.archive.History(filename, limit)
}

type Revision struct {
	Commit   store.CommitInfo `json:"commit"`
	Markdown string           `json:"markdown"`
}

func (s *Service) Revision(_ context.Context, filename, hash string) (Revision, error) {
	if s.archive == nil {
		return Revision{}, domainError(http.StatusNotFound, "ARCHIVE_DISABLED", "Revision archive is not configured", nil)
	}
	markdown, info, err := s.archive.ContentAt(filename, hash)
	if err != nil {
		s.logger.Debug().Err(err).Str("filename", filename).Str("hash", hash).Msg("revision lookup failed")
		return Revision{}, domainError(http.StatusNotFound, "NOT_FOUND", "Revision not found", nil)
	}
	return Revision{Commit: info, Markdown: markdown}, nil
}
