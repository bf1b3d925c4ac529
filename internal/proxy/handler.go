// Package proxy implements the logging pass-through to the upstream
// Assistants API. Every forwarded call leaves a request record and either a
// response or an error record in the store.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
	"github.com/tjfontaine/threadlog-gateway/internal/server"
	"github.com/tjfontaine/threadlog-gateway/internal/storage"
	"github.com/tjfontaine/threadlog-gateway/internal/upstream"
)

const (
	// Route is where the proxy is mounted.
	Route = "/openai-proxy"

	proxyErrorMessage     = "Proxy server error"
	defaultPersistTimeout = 5 * time.Second
	maxEnvelopeBytes      = 10 << 20
)

// Envelope is the client request: the upstream path, method and body to
// forward.
type Envelope struct {
	Path   string          `json:"path"`
	Method string          `json:"method"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// Forwarder sends a call upstream.
type Forwarder interface {
	Do(ctx context.Context, method, path string, body []byte) (*upstream.Response, error)
}

// Handler serves the proxy route.
type Handler struct {
	upstream       Forwarder
	store          storage.Writer
	collector      *Collector
	logger         *slog.Logger
	persistTimeout time.Duration
}

// Option configures the handler.
type Option func(*Handler)

// WithCollector enables run-step collection for completed runs.
func WithCollector(c *Collector) Option {
	return func(h *Handler) {
		h.collector = c
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithPersistTimeout bounds each best-effort store write.
func WithPersistTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.persistTimeout = d
	}
}

// NewHandler creates a proxy handler forwarding through fwd and recording
// into store.
func NewHandler(fwd Forwarder, store storage.Writer, opts ...Option) *Handler {
	h := &Handler{
		upstream:       fwd,
		store:          store,
		logger:         slog.Default(),
		persistTimeout: defaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeBytes))
	if err != nil {
		h.fail(w, r, &domain.LogRecord{}, time.Now(), fmt.Errorf("failed to read request: %w", err))
		return
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.fail(w, r, &domain.LogRecord{}, time.Now(), fmt.Errorf("invalid proxy request: %w", err))
		return
	}
	env.Method = strings.ToUpper(env.Method)
	if env.Method == "" {
		env.Method = http.MethodPost
	}

	server.AddLogField(ctx, "upstream_method", env.Method)
	server.AddLogField(ctx, "upstream_path", env.Path)

	base := domain.LogRecord{
		Path:      env.Path,
		Method:    env.Method,
		UserAgent: r.UserAgent(),
		IP:        clientIP(r),
	}

	if env.Path == "" || !strings.HasPrefix(env.Path, "/") {
		h.fail(w, r, &base, time.Now(), errors.New("path must start with /"))
		return
	}

	body := requestBody(env.Body)

	reqRec := base
	reqRec.Kind = domain.LogKindRequest
	reqRec.Body = string(body)
	h.record(ctx, &reqRec)

	start := time.Now()
	resp, err := h.upstream.Do(ctx, env.Method, env.Path, body)
	if err != nil {
		h.fail(w, r, &base, start, err)
		return
	}
	if !gjson.ValidBytes(resp.Body) {
		h.fail(w, r, &base, start, fmt.Errorf("upstream returned non-JSON body (status %d)", resp.StatusCode))
		return
	}

	elapsed := time.Since(start).Milliseconds()
	respRec := base
	respRec.Kind = domain.LogKindResponse
	respRec.ResponseData = string(resp.Body)
	respRec.ResponseTime = &elapsed
	respRec.Status = resp.StatusCode
	respRec.ResponseSize = len(resp.Body)
	h.record(ctx, &respRec)

	server.AddLogField(ctx, "upstream_status", fmt.Sprint(resp.StatusCode))

	for name, values := range resp.Header {
		if strings.HasPrefix(strings.ToLower(name), "x-ratelimit-") {
			w.Header()[name] = values
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)

	if h.collector != nil && resp.OK() {
		h.collector.Observe(ctx, env.Path, resp.Body)
	}
}

// Wait blocks until in-flight run-step collections finish.
func (h *Handler) Wait() {
	if h.collector != nil {
		h.collector.Wait()
	}
}

// fail records an error entry and answers 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, base *domain.LogRecord, start time.Time, err error) {
	elapsed := time.Since(start).Milliseconds()
	errRec := *base
	errRec.Kind = domain.LogKindError
	errRec.Error = err.Error()
	errRec.ResponseTime = &elapsed
	if errRec.UserAgent == "" {
		errRec.UserAgent = r.UserAgent()
	}
	if errRec.IP == "" {
		errRec.IP = clientIP(r)
	}
	h.record(r.Context(), &errRec)

	server.AddError(r.Context(), err)
	h.logger.Error("proxy call failed",
		slog.String("request_id", server.GetRequestID(r.Context())),
		slog.String("path", base.Path),
		slog.String("method", base.Method),
		slog.String("error", err.Error()),
	)

	server.WriteError(w, proxyErrorMessage, domain.ErrServer(err.Error()))
}

// requestBody re-encodes the envelope body compactly for upstream. Absent
// and null bodies send nothing.
func requestBody(body json.RawMessage) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return trimmed
	}
	return buf.Bytes()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
