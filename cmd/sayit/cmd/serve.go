package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sayit/api/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the sayit HTTP API.

Redis, MinIO, Meilisearch and the revision archive are used when configured;
without them the server runs on the database alone.

Examples:
  # Start with defaults (:8787, ./data/sayit.db)
  sayit serve

  # Use Postgres and a shared cache
  SAYIT_DATABASE_URL=postgres://localhost/sayit SAYIT_REDIS_URL=redis://localhost:6379/0 sayit serve`,
	RunE: runServe,
}

var serveReindex bool

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("addr", "a", "", "address to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveReindex, "reindex", false,
		"rebuild the search index from the database on startup")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	addr := cfg.Addr
	if flag, _ := cmd.Flags().GetString("addr"); flag != "" {
		addr = flag
	}

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	if serveReindex {
		rt.search.ReindexAll(ctx, rt.store)
	}

	httpServer := app.NewHTTPServer(rt.service, cfg.CORS.Origin, logger)
	server := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("version", appVersion).Msg("sayit api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-sigCh:
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
