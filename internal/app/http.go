package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"sayit/api/internal/auth"
	"sayit/api/internal/cache"
	"sayit/api/internal/export"
	"sayit/api/internal/search"
	"sayit/api/internal/util"
)

const maxBodyBytes = 8 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     zerolog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger zerolog.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger.With().Str("component", "http").Logger()}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: strings.Split(s.corsOrigin, ","),
		AllowedMethods: []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}).Handler)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)

	r.Get("/api/speeches", s.handleSpeechIndex)
	r.Get("/api/speeches/{filename}", s.handleSpeech)
	r.Get("/api/speeches/{filename}/history", s.handleHistory)
	r.Get("/api/speeches/{filename}/history/{hash}", s.handleRevision)
	r.Get("/api/speeches/{filename}/export.{format}", s.handleExport)
	r.Get("/api/sections/{id}", s.handleSection)
	r.Get("/api/speakers", s.handleSpeakerIndex)
	r.Get("/api/speakers/{slug}", s.handleSpeaker)
	r.Get("/api/search", s.handleSearch)
	r.Get("/api/an/{key}", s.handleDocument(export.FormatAN))
	r.Get("/api/md/{key}", s.handleDocument(export.FormatMD))

	r.Group(func(r chi.Router) {
		r.Use(s.requireEditor)
		r.Post("/api/speeches", s.handleCreateSpeech)
		r.Put("/api/speeches/{filename}", s.handleReconcile)
		r.Delete("/api/speeches/{filename}", s.handleDeleteSpeech)
	})

	return r
}

// requestID keeps a caller supplied X-Request-ID or assigns a UUID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(middleware.RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *HTTPServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.logger.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(started)).
				Msg("http request")
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *HTTPServer) requireEditor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if err := s.service.Authorize(token); err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSpeechIndex(w http.ResponseWriter, r *http.Request) {
	s.serveEntry(w, r, func(ctx context.Context) (cache.Entry, error) {
		return s.service.SpeechIndex(ctx)
	})
}

func (s *HTTPServer) handleSpeech(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	s.serveEntry(w, r, func(ctx context.Context) (cache.Entry, error) {
		return s.service.Speech(ctx, filename)
	})
}

func (s *HTTPServer) handleSection(w http.ResponseWriter, r *http.Request) {
	id, ok := util.ParseSectionID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "section id must be a positive integer", nil)
		return
	}
	s.serveEntry(w, r, func(ctx context.Context) (cache.Entry, error) {
		return s.service.Section(ctx, id)
	})
}

func (s *HTTPServer) handleSpeakerIndex(w http.ResponseWriter, r *http.Request) {
	s.serveEntry(w, r, func(ctx context.Context) (cache.Entry, error) {
		return s.service.SpeakerIndex(ctx)
	})
}

func (s *HTTPServer) handleSpeaker(w http.ResponseWriter, r *http.Request) {
	// Slugs are stored encoded, the way the front end links to them.
	slug := util.EncodeURIComponent(pathParam(r, "slug"))
	s.serveEntry(w, r, func(ctx context.Context) (cache.Entry, error) {
		return s.service.Speaker(ctx, slug)
	})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := search.Query{Text: query.Get("q")}
	var err error
	if q.SpeakerLimit, err = intParam(query, "speakerLimit"); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	if q.SectionLimit, err = intParam(query, "limit"); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	if q.Offset, err = intParam(query, "offset"); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), q.Normalized()))
}

// handleDocument serves /api/an/{key}.an and /api/md/{key}.md.
func (s *HTTPServer) handleDocument(format export.Format) http.HandlerFunc {
	suffix := "." + string(format)
	return func(w http.ResponseWriter, r *http.Request) {
		key := pathParam(r, "key")
		if !strings.HasSuffix(key, suffix) || len(key) == len(suffix) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		key = strings.TrimSuffix(key, suffix)
		s.serveEntry(w, r, func(ctx context.Context) (cache.Entry, error) {
			return s.service.Document(ctx, key, format)
		})
	}
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		s.fail(w, err)
		return
	}
	filename := pathParam(r, "filename")
	entry, err := s.service.Document(r.Context(), filename, format)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(filename+"."+string(format))))
	writeEntry(w, r, entry)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query(), "limit")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	filename := pathParam(r, "filename")
	items, err := s.service.History(r.Context(), filename, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"filename": filename, "items": items})
}

func (s *HTTPServer) handleRevision(w http.ResponseWriter, r *http.Request) {
	rev, err := s.service.Revision(r.Context(), pathParam(r, "filename"), chi.URLParam(r, "hash"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

type uploadBody struct {
	Filename string `json:"filename"`
	Markdown string `json:"markdown"`
	Author   string `json:"author"`
}

func (s *HTTPServer) handleCreateSpeech(w http.ResponseWriter, r *http.Request) {
	var body uploadBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.Markdown) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Missing or invalid markdown field", nil)
		return
	}
	speech, err := s.service.CreateSpeech(r.Context(), body.Filename, body.Markdown)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, speech)
}

// handleReconcile accepts either a JSON upload body or raw Markdown.
func (s *HTTPServer) handleReconcile(w http.ResponseWriter, r *http.Request) {
	body := uploadBody{Filename: pathParam(r, "filename")}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		body.Filename = pathParam(r, "filename")
	} else {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read body", nil)
			return
		}
		body.Markdown = string(raw)
		body.Author = r.Header.Get("X-Author")
	}

	outcome, err := s.service.Reconcile(r.Context(), body.Filename, body.Markdown, body.Author)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *HTTPServer) handleDeleteSpeech(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.service.DeleteSpeech(r.Context(), pathParam(r, "filename"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *HTTPServer) serveEntry(w http.ResponseWriter, r *http.Request, load func(context.Context) (cache.Entry, error)) {
	entry, err := load(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeEntry(w, r, entry)
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("code", code).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func writeEntry(w http.ResponseWriter, r *http.Request, entry cache.Entry) {
	w.Header().Set("Content-Type", entry.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Body)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(entry.Body)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", jsonContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// pathParam returns a decoded URL parameter. chi matches on RawPath when the
// request carried one, leaving parameters escaped.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return raw
	}
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func intParam(values url.Values, name string) (int, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
