package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"sayit/api/internal/store"
)

// Store is the persistence a Reconciler reads from and writes to.
type Store interface {
	LoadSections(ctx context.Context, filename string) ([]store.Section, error)
	LoadRelations(ctx context.Context, filename string) ([]string, error)
	MaxTopLevelSectionID(ctx context.Context) (int64, error)
	// SectionIDsBetween returns the IDs in [lo, hi] owned by any speech.
	SectionIDsBetween(ctx context.Context, lo, hi int64) ([]int64, error)
	ApplyBatch(ctx context.Context, batch store.Batch) (store.BatchResult, error)
}

// Notifier drops cached representations. Errors are logged, never returned
// to the caller of Reconcile.
type Notifier interface {
	Invalidate(ctx context.Context, keys []string) error
}

type Reconciler struct {
	store    Store
	renderer Renderer
	notifier Notifier
	aliases  Aliases
	logger   zerolog.Logger
}

type Option func(*Reconciler)

func WithRenderer(renderer Renderer) Option {
	return func(r *Reconciler) { r.renderer = renderer }
}

func WithNotifier(notifier Notifier) Option {
	return func(r *Reconciler) { r.notifier = notifier }
}

func WithAliases(aliases Aliases) Option {
	return func(r *Reconciler) { r.aliases = aliases }
}

func NewReconciler(st Store, logger zerolog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    st,
		renderer: NewGoldmarkRenderer(),
		aliases:  DefaultAliases(),
		logger:   logger.With().Str("component", "reconciler").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type Result struct {
	Success     bool            `json:"success"`
	Filename    string          `json:"filename"`
	DisplayName string          `json:"displayName"`
	Inserted    int             `json:"insertedCount"`
	Updated     int             `json:"updatedCount"`
	Deleted     int             `json:"deletedCount"`
	Sections    []store.Section `json:"sections"`
	DeletedIDs  []int64         `json:"deletedIds"`
	Pruned      []string        `json:"prunedSpeakers"`
	Stage       Stage           `json:"stage"`
}

// Reconcile replaces the sections of a speech with the paragraphs of
// markdown, keeping the IDs of paragraphs that survived the edit.
func (r *Reconciler) Reconcile(ctx context.Context, filename, markdown string) (Result, error) {
	started := time.Now()

	var (
		old       []store.Section
		relations []string
		globalMax int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		old, err = r.store.LoadSections(gctx, filename)
		return err
	})
	g.Go(func() error {
		var err error
		relations, err = r.store.LoadRelations(gctx, filename)
		return err
	})
	g.Go(func() error {
		var err error
		globalMax, err = r.store.MaxTopLevelSectionID(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, &ReconcileError{Reason: ReasonPersistenceFailure, Stage: StageReceived, Err: err}
	}

	lookup := func(lo, hi int64) ([]int64, error) {
		return r.store.SectionIDsBetween(ctx, lo, hi)
	}
	plan, final, err := r.prepare(filename, markdown, old, relations, globalMax, lookup)
	if err != nil {
		return Result{}, err
	}

	applied, err := r.store.ApplyBatch(ctx, plan.Batch)
	if err != nil {
		return Result{}, &ReconcileError{Reason: ReasonPersistenceFailure, Stage: StagePlanned, Err: err}
	}

	result := Result{
		Success:     true,
		Filename:    filename,
		DisplayName: plan.DisplayName,
		Inserted:    plan.Inserted,
		Updated:     plan.Updated,
		Deleted:     plan.Deleted,
		Sections:    final,
		DeletedIDs:  plan.DeletedIDs,
		Pruned:      applied.Pruned,
		Stage:       StagePersisted,
	}
	if result.DeletedIDs == nil {
		result.DeletedIDs = []int64{}
	}
	if result.Pruned == nil {
		result.Pruned = []string{}
	}

	if r.notifier != nil {
		if err := r.notifier.Invalidate(ctx, plan.Invalidate); err != nil {
			r.logger.Warn().Err(err).Str("filename", filename).Strs("keys", plan.Invalidate).Msg("cache invalidation failed")
		}
	}
	result.Stage = StageCacheInvalidated

	r.logger.Info().
		Str("filename", filename).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("deleted", result.Deleted).
		Strs("pruned", result.Pruned).
		Dur("elapsed", time.Since(started)).
		Msg("speech reconciled")
	return result, nil
}

// prepare computes the final section list and the batch that writes it from
// the stored state and the new text. Its only read is lookup, used by the
// allocator to skip IDs owned by other speeches.
func (r *Reconciler) prepare(filename, markdown string, old []store.Section, relations []string, globalMax int64, lookup TakenLookup) (Plan, []store.Section, error) {
	displayName, body := SplitTitle(markdown, filename)
	seg := Segment(body)
	paragraphs := Attribute(seg, r.aliases)

	rendered, err := Normalize(r.renderer, paragraphs)
	if err != nil {
		return Plan{}, nil, &ReconcileError{Reason: ReasonRenderFailure, Stage: StageAttributed, Err: err}
	}

	ordered, ordering := Reorder(old)
	if ordering == OrderedBestEffort {
		r.logger.Warn().Str("filename", filename).Int("sections", len(old)).Msg("stored section links are inconsistent, using best-effort order")
	}

	keys := make([]Key, len(rendered))
	names := map[string]string{}
	for i, p := range rendered {
		keys[i] = p.key()
		if p.Speaker != "" {
			if _, ok := names[p.Speaker]; !ok {
				names[p.Speaker] = p.SpeakerName
			}
		}
	}
	edits := Diff(ordered, keys)

	used := make([]int64, len(ordered))
	for i, s := range ordered {
		used[i] = s.ID
	}
	alloc := NewAllocator(used, globalMax, WithTakenLookup(lookup))
	final, err := assignIDs(filename, rendered, edits, alloc)
	if err != nil {
		return Plan{}, nil, allocationError(StageDiffed, err)
	}
	Relink(final)
	topLevel := map[int64]bool{}
	for _, s := range final {
		if alloc.IsTopLevel(s.ID) {
			topLevel[s.ID] = true
		}
	}

	plan := BuildPlan(PlanInput{
		Filename:     filename,
		DisplayName:  displayName,
		Old:          ordered,
		OldRelations: relations,
		Final:        final,
		SpeakerNames: names,
		TopLevel:     topLevel,
	})
	return plan, final, nil
}

// assignIDs builds the final section list in new-text order. Matched
// paragraphs keep their old ID; each run of insertions is allocated after the
// ID placed just before it, or from the global sequence when nothing precedes
// it.
func assignIDs(filename string, rendered []Rendered, edits []Edit, alloc *Allocator) ([]store.Section, error) {
	final := make([]store.Section, len(rendered))
	for i, p := range rendered {
		final[i] = store.Section{Filename: filename, Speaker: p.Speaker, Content: p.Content}
	}

	var (
		anchor int64
		run    []int
	)
	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		var (
			ids []int64
			err error
		)
		if anchor > 0 {
			ids, err = alloc.Anchored(anchor, len(run))
		} else {
			ids, err = alloc.Sequential(len(run))
		}
		if err != nil {
			return err
		}
		for k, ni := range run {
			final[ni].ID = ids[k]
		}
		run = run[:0]
		return nil
	}

	for _, e := range edits {
		switch e := e.(type) {
		case Matched:
			if err := flush(); err != nil {
				return nil, err
			}
			final[e.NewIndex].ID = e.OldID
			anchor = e.OldID
		case Inserted:
			run = append(run, e.NewIndex)
		case Deleted:
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return final, nil
}
