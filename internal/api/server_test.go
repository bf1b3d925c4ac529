package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tjfontaine/threadlog-gateway/internal/analysis"
	"github.com/tjfontaine/threadlog-gateway/internal/domain"
	"github.com/tjfontaine/threadlog-gateway/internal/server"
	"github.com/tjfontaine/threadlog-gateway/internal/storage"
	"github.com/tjfontaine/threadlog-gateway/internal/storage/memory"
	"github.com/tjfontaine/threadlog-gateway/internal/threads"
	"github.com/tjfontaine/threadlog-gateway/internal/tokens"
)

type brokenLogs struct {
	storage.Reader
}

func (b brokenLogs) ListLogs(ctx context.Context) ([]domain.LogRecord, error) {
	return nil, errors.New("collection unavailable")
}

func seed(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	records := []domain.LogRecord{
		{
			Kind:      domain.LogKindRequest,
			Method:    http.MethodPost,
			Path:      "/threads/thread_abc/messages",
			Body:      `{"role":"user","content":"Plot y = x^2"}`,
			Timestamp: "2024-05-01T10:00:00Z",
		},
		{
			Kind:         domain.LogKindResponse,
			Method:       http.MethodGet,
			Path:         "/threads/thread_abc/messages",
			ResponseData: `{"data":[{"role":"assistant","content":[{"type":"text","text":{"value":"Here it is"}}]}]}`,
			Timestamp:    "2024-05-01T10:00:05Z",
		},
	}
	for i := range records {
		if err := store.AppendLog(ctx, &records[i]); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
	}
	if err := store.PutArtifact(ctx, &domain.ArtifactRecord{FileID: "file-img1", ContentType: "image/png", Payload: "UE5HREFUQQ==", Size: 7}); err != nil {
		t.Fatalf("PutArtifact: %v", err)
	}
	return store
}

func newTestServer(t *testing.T, reader storage.Reader, opts ...Option) *Server {
	t.Helper()
	return NewServer(threads.NewService(reader, nil), reader, opts...)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListThreads(t *testing.T) {
	srv := newTestServer(t, seed(t))

	rec := get(t, srv, "/threads")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var list threads.ThreadList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Threads) != 1 || list.Threads[0].ThreadID != "thread_abc" {
		t.Fatalf("threads = %+v", list.Threads)
	}
	msgs := list.Threads[0].Messages
	if len(msgs) != 2 || msgs[0].Role != threads.RoleUser || msgs[1].Content != "Here it is" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestListThreads_Empty(t *testing.T) {
	srv := newTestServer(t, memory.New())

	rec := get(t, srv, "/threads")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "{\"threads\":[]}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestListThreads_LogsUnavailable(t *testing.T) {
	srv := newTestServer(t, brokenLogs{Reader: memory.New()})

	rec := get(t, srv, "/threads")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	var body server.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "Failed to fetch threads" || body.Details == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestThreadDetail(t *testing.T) {
	srv := newTestServer(t, seed(t))

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantError  string
		wantDetail string
	}{
		{"found", "/threads/thread_abc", http.StatusOK, "", ""},
		{"missing", "/threads/thread_nope", http.StatusNotFound, "Thread not found", "thread_nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, srv, tt.path)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantError == "" {
				return
			}
			var body server.ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tt.wantError || body.Details != tt.wantDetail {
				t.Errorf("body = %+v, want error %q details %q", body, tt.wantError, tt.wantDetail)
			}
		})
	}
}

func TestArtifact(t *testing.T) {
	srv := newTestServer(t, seed(t))

	rec := get(t, srv, "/artifacts/file-img1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Body.String(); got != "PNGDATA" {
		t.Errorf("body = %q, want decoded bytes", got)
	}

	missing := get(t, srv, "/artifacts/file-missing")
	if missing.Code != http.StatusNotFound {
		t.Errorf("missing artifact status = %d, want 404", missing.Code)
	}
	var body server.ErrorBody
	if err := json.Unmarshal(missing.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "Artifact not found" || body.Details != "file-missing" {
		t.Errorf("missing artifact body = %+v", body)
	}
}

func TestUsage(t *testing.T) {
	srv := newTestServer(t, seed(t), WithTokenCounter(tokens.NewEstimator()))

	rec := get(t, srv, "/usage")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var report analysis.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.TotalRecords != 2 || report.Requests != 1 || report.Responses != 1 {
		t.Errorf("counts = %+v", report)
	}
	if len(report.Threads) != 1 || report.Threads[0].TotalTokens == 0 {
		t.Errorf("thread usage = %+v", report.Threads)
	}
}

func TestUsage_LogsUnavailable(t *testing.T) {
	srv := newTestServer(t, brokenLogs{Reader: memory.New()})

	if rec := get(t, srv, "/usage"); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStats(t *testing.T) {
	srv := newTestServer(t, memory.New())

	rec := get(t, srv, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.GoVersion == "" || stats.NumGoroutine == 0 {
		t.Errorf("stats = %+v", stats)
	}
}
