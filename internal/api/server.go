// Package api serves the read side of the gateway: reconstructed threads,
// stored artifacts and usage reports.
package api

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/threadlog-gateway/internal/analysis"
	"github.com/tjfontaine/threadlog-gateway/internal/domain"
	"github.com/tjfontaine/threadlog-gateway/internal/server"
	"github.com/tjfontaine/threadlog-gateway/internal/storage"
	"github.com/tjfontaine/threadlog-gateway/internal/threads"
	"github.com/tjfontaine/threadlog-gateway/internal/tokens"
)

// Prefix is where the API is mounted.
const Prefix = "/api"

// ThreadSource reconstructs threads on demand.
type ThreadSource interface {
	GetThreads(ctx context.Context) (*threads.ThreadList, error)
	GetThread(ctx context.Context, threadID string) (*threads.Thread, error)
}

type Server struct {
	router    *chi.Mux
	startTime time.Time
	threads   ThreadSource
	store     storage.Reader
	counter   tokens.Counter
	logger    *slog.Logger
}

// Option configures the API server.
type Option func(*Server)

// WithTokenCounter sets the counter used by the usage report.
func WithTokenCounter(counter tokens.Counter) Option {
	return func(s *Server) {
		s.counter = counter
	}
}

// WithLogger sets the API logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(source ThreadSource, store storage.Reader, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		startTime: time.Now(),
		threads:   source,
		store:     store,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/threads", s.handleListThreads)
	s.router.Get("/threads/{thread_id}", s.handleThreadDetail)
	s.router.Get("/artifacts/{file_id}", s.handleArtifact)
	s.router.Get("/usage", s.handleUsage)
	s.router.Get("/stats", s.handleStats)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	list, err := s.threads.GetThreads(r.Context())
	if err != nil {
		s.fail(w, r, "Failed to fetch threads", err)
		return
	}
	server.AddLogField(r.Context(), "threads", strconv.Itoa(len(list.Threads)))
	server.WriteJSON(w, http.StatusOK, list)
}

func (s *Server) handleThreadDetail(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "thread_id")
	server.AddLogField(r.Context(), "thread_id", threadID)

	thread, err := s.threads.GetThread(r.Context(), threadID)
	if errors.Is(err, threads.ErrThreadNotFound) {
		server.WriteError(w, "Thread not found", domain.ErrNotFound(threadID))
		return
	}
	if err != nil {
		s.fail(w, r, "Failed to fetch thread", err)
		return
	}
	server.WriteJSON(w, http.StatusOK, thread)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "file_id")
	server.AddLogField(r.Context(), "file_id", fileID)

	artifact, err := s.store.GetArtifact(r.Context(), fileID)
	if errors.Is(err, storage.ErrNotFound) {
		server.WriteError(w, "Artifact not found", domain.ErrNotFound(fileID))
		return
	}
	if err != nil {
		s.fail(w, r, "Failed to fetch artifact", err)
		return
	}

	data, err := base64.StdEncoding.DecodeString(artifact.Payload)
	if err != nil {
		s.fail(w, r, "Failed to decode artifact", err)
		return
	}

	contentType := artifact.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListLogs(r.Context())
	if err != nil {
		s.fail(w, r, "Failed to fetch usage", err)
		return
	}

	var threadList []threads.Thread
	if s.counter != nil {
		list, err := s.threads.GetThreads(r.Context())
		if err != nil {
			s.fail(w, r, "Failed to fetch usage", err)
			return
		}
		threadList = list.Threads
	}

	server.WriteJSON(w, http.StatusOK, analysis.Analyze(records, threadList, s.counter))
}

type StatsResponse struct {
	Uptime       string      `json:"uptime"`
	GoVersion    string      `json:"go_version"`
	NumGoroutine int         `json:"num_goroutine"`
	Memory       MemoryStats `json:"memory"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	server.WriteJSON(w, http.StatusOK, StatsResponse{
		Uptime:       time.Since(s.startTime).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	server.AddError(r.Context(), err)
	s.logger.Error(message,
		slog.String("request_id", server.GetRequestID(r.Context())),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	server.WriteError(w, message, domain.ErrServer(err.Error()))
}
