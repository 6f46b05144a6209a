package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"video-transcript-go/internal/exporter"
	"video-transcript-go/internal/jobs"
	"video-transcript-go/internal/logger"
	"video-transcript-go/internal/pipeline"
	"video-transcript-go/internal/types"
)

var thumbnailName = regexp.MustCompile(`^[A-Za-z0-9._-]+_thumb\.(jpg|png)$`)

// Orchestrator is what the handlers need from the pipeline.
type Orchestrator interface {
	Submit(ctx context.Context, url string) (string, error)
	Regenerate(ctx context.Context, transcript string, segments []types.Segment, title string) (types.Structured, error)
}

type healthChecker interface {
	Healthy(ctx context.Context) bool
}

type server struct {
	store        jobs.Store
	orch         Orchestrator
	llm          healthChecker
	thumbnailDir string
	log          *logger.Logger
}

// exportSlack is write time allowed on top of the LLM bound for encoding and
// sending the response.
const exportSlack = 30 * time.Second

// newHTTPServer sizes WriteTimeout so a synchronous regenerate that stays
// within llmTimeout still gets its response written.
func newHTTPServer(addr string, h http.Handler, llmTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: max(writeTimeout(llmTimeout, exportSlack), 60*time.Second),
		IdleTimeout:  120 * time.Second,
	}
}

func writeTimeout(llmTimeout, slack time.Duration) time.Duration {
	return llmTimeout + slack
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	mux.HandleFunc("GET /api/job/{id}", s.handleJob)
	mux.HandleFunc("POST /api/regenerate-chapters", s.handleRegenerate)
	mux.HandleFunc("POST /api/export", s.handleExport)
	mux.HandleFunc("GET /api/thumbnail/{filename}", s.handleThumbnail)
	return s.withCORS(s.withLogging(mux))
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ok := s.llm.Healthy(ctx)
	resp := map[string]any{"status": "ok", "llm": true, "message": "LLM backend is reachable"}
	if !ok {
		resp = map[string]any{"status": "degraded", "llm": false, "message": "LLM backend is not reachable"}
	}
	writeJSON(w, http.StatusOK, resp)
}

type transcribeRequest struct {
	URL string `json:"url"`
}

func (s *server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := s.orch.Submit(r.Context(), req.URL)
	if errors.Is(err, pipeline.ErrEmptyURL) {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}
	if err != nil {
		s.log.WithRequest(r).WithError(err).Error("submit failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

func (s *server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		s.log.WithRequest(r).WithError(err).Error("job lookup failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type regenerateRequest struct {
	Transcript string          `json:"transcript"`
	Segments   []types.Segment `json:"segments"`
	Title      string          `json:"title"`
}

func (s *server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	out, err := s.orch.Regenerate(r.Context(), req.Transcript, req.Segments, req.Title)
	if err != nil {
		s.log.WithRequest(r).WithError(err).Warn("regenerate failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exporter.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.ThumbnailPath = s.resolveThumbnail(req.ThumbnailPath)

	doc, err := exporter.Export(req)
	if errors.Is(err, exporter.ErrUnsupportedFormat) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.WithRequest(r).WithError(err).Error("export failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", doc.MediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, doc.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Content)
}

func (s *server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if !thumbnailName.MatchString(name) {
		writeError(w, http.StatusNotFound, "Thumbnail not found")
		return
	}
	path := filepath.Join(s.thumbnailDir, name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "Thumbnail not found")
		return
	}
	http.ServeFile(w, r, path)
}

// resolveThumbnail maps the thumbnail name a client got from a job result to
// a file in the thumbnail directory. Anything else is dropped.
func (s *server) resolveThumbnail(ref string) string {
	name := filepath.Base(ref)
	if ref == "" || !thumbnailName.MatchString(name) {
		return ""
	}
	return filepath.Join(s.thumbnailDir, name)
}

func (s *server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		entry := s.log.WithRequest(r).
			WithField("status", rec.status).
			WithField("duration_ms", time.Since(start).Milliseconds())
		// polling is noisy
		if r.Method == http.MethodGet && rec.status < 400 {
			entry.Debug("request handled")
			return
		}
		entry.Info("request handled")
	})
}

func (s *server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		h.Set("Access-Control-Expose-Headers", "Content-Disposition")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
