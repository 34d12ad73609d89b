// Package server provides an HTTP API for uploading images.
//
// Endpoints:
//
//	POST /uploads        upload the raw request body; returns the public URL
//	GET  /uploads        list recent upload records
//	GET  /uploads/{id}   retrieve one upload record
//	GET  /healthz        liveness probe
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tomasbasham/imgup/internal/history"
	"github.com/tomasbasham/imgup/internal/upload"
)

// DefaultMaxBodyBytes bounds the size of an uploaded image.
const DefaultMaxBodyBytes = 32 << 20

// Uploader is satisfied by *upload.Client.
type Uploader interface {
	Upload(ctx context.Context, req upload.Request) (*upload.Result, error)
}

// Server holds the dependencies shared across HTTP handlers.
type Server struct {
	uploader Uploader
	history  *history.Store
	log      *zap.Logger
	router   chi.Router

	// maxBodyBytes limits POST /uploads bodies; larger requests get 413.
	maxBodyBytes int64
}

// Options configures a Server.
type Options struct {
	MaxBodyBytes int64
	Logger       *zap.Logger
}

// New creates a Server wired to the given uploader and history store.
func New(uploader Uploader, store *history.Store, opts Options) *Server {
	s := &Server{
		uploader:     uploader,
		history:      store,
		log:          opts.Logger,
		maxBodyBytes: opts.MaxBodyBytes,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/uploads", s.handleCreateUpload)
	r.Get("/uploads", s.handleListUploads)
	r.Get("/uploads/{id}", s.handleGetUpload)

	s.router = r
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown failed: %w", err)
		}
		return nil
	}
}

// createUploadResponse is returned from POST /uploads. The field name matches
// the line printed by the one-shot command.
type createUploadResponse struct {
	ImageURL string `json:"imageUrl"`
	ID       string `json:"id"`
}

func (s *Server) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "request body is empty")
		return
	}

	rec := s.history.Create("http:" + r.RemoteAddr)
	_ = s.history.MarkRunning(rec.ID)

	res, err := s.uploader.Upload(r.Context(), upload.Request{
		Data:      data,
		Extension: r.URL.Query().Get("ext"),
	})
	if err != nil {
		_ = s.history.MarkFailed(rec.ID, err)
		if errors.Is(err, upload.ErrUnknownContentType) {
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}
		s.log.Error("upload failed", zap.String("id", rec.ID), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	_ = s.history.MarkComplete(rec.ID, res.URL, res.ObjectKey)

	writeJSON(w, http.StatusCreated, createUploadResponse{ImageURL: res.URL, ID: rec.ID})
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.history.Recent(limit))
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.history.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("upload %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
