package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"sayit/api/internal/app"
	"sayit/api/internal/auth"
	"sayit/api/internal/cache"
	"sayit/api/internal/config"
	"sayit/api/internal/export"
	"sayit/api/internal/gitrepo"
	"sayit/api/internal/ingest"
	"sayit/api/internal/search"
	"sayit/api/internal/store"
)

// runtime holds the wired service and everything that must be closed with it.
type runtime struct {
	service *app.Service
	store   *store.SQLStore
	search  *search.Service
	closers []func() error
}

// buildRuntime opens the database, applies migrations and wires the optional
// cache tiers, search index and archive the configuration enables.
func buildRuntime(ctx context.Context, c *config.Config, log zerolog.Logger) (*runtime, error) {
	rt := &runtime{}

	if store.DialectFor(c.Database.URL) == store.SQLite {
		if err := ensureSQLiteDir(c.Database.URL); err != nil {
			return nil, err
		}
	}
	db, dialect, err := store.Open(ctx, c.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.closers = append(rt.closers, db.Close)

	if err := store.ApplyMigrations(ctx, db, dialect, c.Database.MigrationsDir); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	rt.store = store.NewSQLStore(db, dialect)

	var cacheOpts []cache.Option
	if strings.TrimSpace(c.Redis.URL) != "" {
		edge, err := cache.NewEdgeCache(c.Redis.URL, c.Cache.TTL)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.closers = append(rt.closers, edge.Close)
		cacheOpts = append(cacheOpts, cache.WithEdge(edge))
		log.Info().Msg("edge cache enabled")
	}
	if strings.TrimSpace(c.MinIO.Endpoint) != "" {
		objects, err := cache.NewObjectCache(ctx, cache.ObjectConfig{
			Endpoint:  c.MinIO.Endpoint,
			AccessKey: c.MinIO.AccessKey,
			SecretKey: c.MinIO.SecretKey,
			Bucket:    c.MinIO.Bucket,
			UseSSL:    c.MinIO.UseSSL,
		})
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("object storage connection failed: %w", err)
		}
		cacheOpts = append(cacheOpts, cache.WithObjects(objects))
		log.Info().Str("bucket", c.MinIO.Bucket).Msg("document cache enabled")
	}

	var index search.Index
	if strings.TrimSpace(c.Meili.URL) != "" {
		meili := search.NewMeili(c.Meili.URL, c.Meili.MasterKey, log)
		rt.closers = append(rt.closers, func() error {
			meili.Close()
			return nil
		})
		index = meili
	}
	rt.search = search.NewService(index, search.NewSQLFallback(rt.store), log)
	rt.closers = append(rt.closers, func() error {
		rt.search.Wait()
		return nil
	})

	var archive app.Archive
	if strings.TrimSpace(c.Repos.Dir) != "" {
		if err := os.MkdirAll(c.Repos.Dir, 0o755); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to create repos dir: %w", err)
		}
		archive = gitrepo.New(c.Repos.Dir)
	}

	aliases := ingest.Aliases(c.Speakers.AliasMap())
	if len(aliases) == 0 {
		aliases = ingest.DefaultAliases()
	}

	rt.service = app.NewService(app.Deps{
		Store:    rt.store,
		Cache:    cache.NewService(log, cacheOpts...),
		Search:   rt.search,
		Archive:  archive,
		Exporter: export.NewService(rt.store, export.WithPDFPrinter(export.ChromePDF)),
		Verifier: auth.NewVerifier(c.Auth.TokenHashes),
		Aliases:  aliases,
		Logger:   log,
	})
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func ensureSQLiteDir(databaseURL string) error {
	path := strings.TrimPrefix(strings.TrimPrefix(databaseURL, "sqlite:"), "//")
	if path == "" || path == ":memory:" || strings.HasPrefix(databaseURL, "file:") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create database dir: %w", err)
	}
	return nil
}
