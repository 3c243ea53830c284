package cache

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Entry is one cached representation.
type Entry struct {
	ContentType string
	Body        []byte
}

// Tier is one place cached representations live.
type Tier interface {
	Get(ctx context.Context, key, variant string) (Entry, bool, error)
	Put(ctx context.Context, key, variant string, entry Entry) error
	Invalidate(ctx context.Context, keys []string) error
}

// documentVariants are large rendered exports kept in the object tier.
// Everything else lives in the edge tier.
var documentVariants = map[string]bool{
	"an":   true,
	"md":   true,
	"html": true,
	"pdf":  true,
}

// Service routes reads and writes to the configured tiers. Both tiers are
// optional; with neither configured it caches nothing.
type Service struct {
	edge    Tier
	objects Tier
	logger  zerolog.Logger
}

type Option func(*Service)

func WithEdge(tier Tier) Option {
	return func(s *Service) { s.edge = tier }
}

func WithObjects(tier Tier) Option {
	return func(s *Service) { s.objects = tier }
}

func NewService(logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{logger: logger.With().Str("component", "cache").Logger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) tierFor(variant string) Tier {
	if documentVariants[variant] && s.objects != nil {
		return s.objects
	}
	return s.edge
}

// Fetch returns the cached entry for key/variant, building and storing it on
// a miss. Cache errors are logged and treated as misses.
func (s *Service) Fetch(ctx context.Context, key, variant string, build func(context.Context) (Entry, error)) (Entry, error) {
	tier := s.tierFor(variant)
	if tier == nil {
		return build(ctx)
	}

	entry, ok, err := tier.Get(ctx, key, variant)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Str("variant", variant).Msg("cache read failed")
	} else if ok {
		return entry, nil
	}

	entry, err = build(ctx)
	if err != nil {
		return Entry{}, err
	}
	if err := tier.Put(ctx, key, variant, entry); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Str("variant", variant).Msg("cache write failed")
	}
	return entry, nil
}

// Invalidate drops keys from every tier. All tiers are tried; their errors
// are joined.
func (s *Service) Invalidate(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	var errs []error
	for _, tier := range []Tier{s.edge, s.objects} {
		if tier == nil {
			continue
		}
		if err := tier.Invalidate(ctx, keys); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Debug().Strs("keys", keys).Msg("cache invalidated")
	return nil
}
