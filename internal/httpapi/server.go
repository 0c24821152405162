// Package httpapi exposes the public surface: job submission, status polling
// and the tokenized archive download.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/snapsize/internal/artifact"
	"github.com/you/snapsize/internal/domain"
	"github.com/you/snapsize/internal/limit"
	"github.com/you/snapsize/internal/orchestrator"
	"github.com/you/snapsize/internal/store"
)

const archiveFilename = "print_set.zip"

type Server struct {
	Orch           *orchestrator.Orchestrator
	Jobs           *store.JobStore
	Artifacts      artifact.Store
	MaxUploadBytes int64
	Log            *zap.Logger
}

func (s Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.Log))
	r.Use(cors)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Post("/enqueue", s.handleEnqueue)
	r.Get("/status/{jobID}", s.handleStatus)
	r.Get("/download/{jobID}", s.handleDownload)

	return r
}

func (s Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	// Declared length already over the ceiling: reject before reading a byte.
	if r.ContentLength > s.MaxUploadBytes {
		writeErr(w, http.StatusRequestEntityTooLarge,
			fmt.Errorf("body exceeds %d byte limit", s.MaxUploadBytes))
		return
	}
	body, overflow, err := limit.ReadAll(r.Body, s.MaxUploadBytes)
	if err != nil {
		writeErr(w, http.StatusBadRequest, errors.Wrap(err, "read body"))
		return
	}
	if overflow {
		writeErr(w, http.StatusRequestEntityTooLarge,
			fmt.Errorf("body exceeds %d byte limit", s.MaxUploadBytes))
		return
	}

	id, err := s.Orch.Submit(r.Context(), body, requestOrigin(r))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "job_id": id})
}

func (s Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	raw, err := s.Jobs.GetRaw(r.Context(), chi.URLParam(r, "jobID"))
	if errors.Is(err, domain.ErrNotFound) {
		writeErr(w, http.StatusNotFound, fmt.Errorf("job not found"))
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	// Stored bytes verbatim: terminal records stay byte-identical per poll.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	job, err := s.Jobs.Get(ctx, chi.URLParam(r, "jobID"))
	if errors.Is(err, domain.ErrNotFound) {
		writeErr(w, http.StatusNotFound, fmt.Errorf("job not found"))
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	// An unfinished or artifact-less job is never downloadable.
	if job.DownloadToken == "" || job.R2Key == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("job not found"))
		return
	}

	token := r.URL.Query().Get("token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(job.DownloadToken)) != 1 {
		writeErr(w, http.StatusUnauthorized, fmt.Errorf("invalid download token"))
		return
	}

	obj, err := s.Artifacts.Get(ctx, job.R2Key)
	if errors.Is(err, domain.ErrNotFound) {
		writeErr(w, http.StatusNotFound, fmt.Errorf("archive not found"))
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archiveFilename))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.Copy(w, obj)
}

// requestOrigin reconstructs the caller-facing origin; a configured canonical
// base URL takes precedence inside the orchestrator.
func requestOrigin(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	return scheme + "://" + r.Host
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
