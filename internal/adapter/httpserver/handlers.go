package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/johnmichaelkuczynski/texteval/internal/chunk"
	"github.com/johnmichaelkuczynski/texteval/internal/config"
	"github.com/johnmichaelkuczynski/texteval/internal/domain"
	"github.com/johnmichaelkuczynski/texteval/internal/usecase"
	"github.com/johnmichaelkuczynski/texteval/pkg/textx"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg     config.Config
	Analyze *usecase.AnalyzeService
	Results usecase.ResultService
	// StoreCheck probes the configured result store for readiness; nil
	// when the store is in-process.
	StoreCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers wired.
func NewServer(cfg config.Config, analyze *usecase.AnalyzeService, results usecase.ResultService, storeCheck func(ctx context.Context) error) *Server {
	return &Server{Cfg: cfg, Analyze: analyze, Results: results, StoreCheck: storeCheck}
}

// ReadyzHandler reports readiness of external dependencies.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		ready := true
		if s.StoreCheck != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := s.StoreCheck(ctx); err != nil {
				checks["store"] = err.Error()
				ready = false
			} else {
				checks["store"] = "ok"
			}
		}
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"ready": ready, "checks": checks})
	}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

type chunkRequest struct {
	Text      string `json:"text" validate:"required"`
	ChunkSize int    `json:"chunkSize" validate:"omitempty,min=1"`
}

type chunkResponse struct {
	Chunks    []domain.Chunk `json:"chunks"`
	WordCount int            `json:"wordCount"`
	Needed    bool           `json:"needed"`
}

// ChunkHandler splits a text into selectable chunks.
func (s *Server) ChunkHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chunkRequest
		if !s.decode(w, r, &req) {
			return
		}
		text := textx.SanitizeText(req.Text)
		if text == "" {
			writeError(w, r, fmt.Errorf("%w: text must not be empty", domain.ErrInvalidArgument), nil)
			return
		}
		size := req.ChunkSize
		if size <= 0 {
			size = s.Cfg.ChunkSize
		}
		chunks := chunk.Text(text, size)
		writeJSON(w, http.StatusOK, chunkResponse{
			Chunks:    chunks,
			WordCount: textx.WordCount(text),
			Needed:    chunk.Needed(text, size),
		})
	}
}

type analyzeRequest struct {
	Text           string         `json:"text" validate:"required"`
	BackgroundInfo string         `json:"backgroundInfo"`
	Mode           string         `json:"mode" validate:"required"`
	LLMProvider    string         `json:"llmProvider" validate:"required"`
	Chunks         []domain.Chunk `json:"chunks"`
	Critique       string         `json:"critique"`
}

func (a analyzeRequest) toDomain() domain.AnalysisRequest {
	return domain.AnalysisRequest{
		Text:           textx.SanitizeText(a.Text),
		BackgroundInfo: strings.TrimSpace(a.BackgroundInfo),
		Mode:           domain.Mode(a.Mode),
		Provider:       domain.Provider(a.LLMProvider),
		Chunks:         a.Chunks,
		Critique:       strings.TrimSpace(a.Critique),
	}
}

// AnalyzeHandler runs an analysis. Clients that accept text/event-stream
// get the live progress-event stream; everyone else blocks for the final
// result as JSON.
func (s *Server) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if !s.decode(w, r, &req) {
			return
		}
		dreq := req.toDomain()

		if wantsEventStream(r) {
			s.analyzeSSE(w, r, dreq)
			return
		}
		res, err := s.Analyze.Analyze(r.Context(), dreq, nil)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// analyzeSSE streams the progress-event union over server-sent events. The
// stream always terminates with a complete or error event.
func (s *Server) analyzeSSE(w http.ResponseWriter, r *http.Request, req domain.AnalysisRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: streaming unsupported by connection", domain.ErrInternal), nil)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(ev domain.ProgressEvent) {
		b, err := json.Marshal(ev)
		if err != nil {
			return
		}
		_, _ = fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	}

	if _, err := s.Analyze.Analyze(r.Context(), req, send); err != nil {
		// Validation errors never reach the orchestrator's own error
		// event; surface them on the stream so the client sees a cause.
		if r.Context().Err() == nil {
			send(domain.ProgressEvent{Type: domain.EventError, Phase: "error", Error: err.Error()})
		}
	}
}

// ResultHandler returns a stored result as JSON.
func (s *Server) ResultHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		res, err := s.Results.Fetch(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// ExportHandler returns a stored result as a plain-text report download.
func (s *Server) ExportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		res, err := s.Results.Fetch(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "analysis-"+res.ID+".txt"))
		_, _ = w.Write([]byte(usecase.FormatResultAsText(res)))
	}
}

// decode reads a JSON body into v, enforcing the body size limit and
// validator tags. It writes the error response itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.Cfg.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid JSON body: %v", domain.ErrInvalidArgument, err), nil)
		return false
	}
	if err := getValidator().Struct(v); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
		return false
	}
	return true
}
