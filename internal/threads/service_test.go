package threads

import (
	"context"
	"errors"
	"testing"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
	"github.com/tjfontaine/threadlog-gateway/internal/storage"
	"github.com/tjfontaine/threadlog-gateway/internal/storage/memory"
)

// failingReader wraps a reader and fails the selected collections.
type failingReader struct {
	storage.Reader
	logsErr      error
	stepsErr     error
	artifactsErr error
}

func (f *failingReader) ListLogs(ctx context.Context) ([]domain.LogRecord, error) {
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	return f.Reader.ListLogs(ctx)
}

func (f *failingReader) ListRunSteps(ctx context.Context) ([]domain.RunStepRecord, error) {
	if f.stepsErr != nil {
		return nil, f.stepsErr
	}
	return f.Reader.ListRunSteps(ctx)
}

func (f *failingReader) ListArtifacts(ctx context.Context) ([]domain.ArtifactRecord, error) {
	if f.artifactsErr != nil {
		return nil, f.artifactsErr
	}
	return f.Reader.ListArtifacts(ctx)
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	user := userRecord("T1", "2024-05-01T10:00:00Z", `{"role":"user","content":"hi"}`)
	reply := assistantRecord("T1", "2024-05-01T10:00:01Z", `{"data":[{"role":"assistant","content":[{"type":"text","text":{"value":"hello"}}],
		"tool_responses":[{"tool_call_id":"c","type":"code_interpreter","code_interpreter":{"outputs":[{"type":"image","image":{"file_id":"f1"}}]}}]}]}`)
	for _, rec := range []*domain.LogRecord{&user, &reply} {
		if err := store.AppendLog(ctx, rec); err != nil {
			t.Fatalf("AppendLog() error = %v", err)
		}
	}
	if err := store.AppendRunStep(ctx, &domain.RunStepRecord{ThreadID: "T2", RunID: "r", CodeInput: "print(1)", Timestamp: "2024-05-01T09:00:00Z"}); err != nil {
		t.Fatalf("AppendRunStep() error = %v", err)
	}
	if err := store.PutArtifact(ctx, &domain.ArtifactRecord{FileID: "f1", ContentType: "image/png", Payload: "AA==", Size: 1}); err != nil {
		t.Fatalf("PutArtifact() error = %v", err)
	}
	return store
}

func TestService_GetThreads(t *testing.T) {
	svc := NewService(seededStore(t), nil)

	list, err := svc.GetThreads(context.Background())
	if err != nil {
		t.Fatalf("GetThreads() error = %v", err)
	}
	if len(list.Threads) != 2 {
		t.Fatalf("GetThreads() returned %d threads, want 2", len(list.Threads))
	}
	if list.Threads[0].ThreadID != "T1" || list.Threads[1].ThreadID != "T2" {
		t.Errorf("thread order = %q, %q", list.Threads[0].ThreadID, list.Threads[1].ThreadID)
	}
	msgs := list.Threads[0].Messages
	if len(msgs) != 3 {
		t.Fatalf("T1 has %d messages, want 3", len(msgs))
	}
	if msgs[2].ImageData == nil {
		t.Error("image output should resolve against the artifact store")
	}
}

func TestService_GetThreadsEmptyStore(t *testing.T) {
	list, err := NewService(memory.New(), nil).GetThreads(context.Background())
	if err != nil {
		t.Fatalf("GetThreads() error = %v", err)
	}
	if list.Threads == nil || len(list.Threads) != 0 {
		t.Errorf("Threads = %#v, want empty non-nil slice", list.Threads)
	}
}

func TestService_LogsUnavailable(t *testing.T) {
	cause := errors.New("disk on fire")
	svc := NewService(&failingReader{Reader: seededStore(t), logsErr: cause}, nil)

	_, err := svc.GetThreads(context.Background())
	if !errors.Is(err, ErrLogsUnavailable) {
		t.Errorf("GetThreads() error = %v, want ErrLogsUnavailable", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("GetThreads() error = %v, want wrapped cause", err)
	}
}

func TestService_EnrichmentFailuresDegrade(t *testing.T) {
	svc := NewService(&failingReader{
		Reader:       seededStore(t),
		stepsErr:     errors.New("steps down"),
		artifactsErr: errors.New("images down"),
	}, nil)

	list, err := svc.GetThreads(context.Background())
	if err != nil {
		t.Fatalf("GetThreads() error = %v", err)
	}
	if len(list.Threads) != 1 || list.Threads[0].ThreadID != "T1" {
		t.Fatalf("GetThreads() = %+v, want only T1", list.Threads)
	}
	msgs := list.Threads[0].Messages
	if msgs[len(msgs)-1].ImageData != nil {
		t.Error("image should be unresolved when artifacts are unavailable")
	}
}

func TestService_GetThread(t *testing.T) {
	svc := NewService(seededStore(t), nil)

	thread, err := svc.GetThread(context.Background(), "T2")
	if err != nil {
		t.Fatalf("GetThread() error = %v", err)
	}
	if thread.ThreadID != "T2" || len(thread.Messages) != 1 {
		t.Errorf("GetThread() = %+v", thread)
	}

	if _, err := svc.GetThread(context.Background(), "nope"); !errors.Is(err, ErrThreadNotFound) {
		t.Errorf("GetThread(nope) error = %v, want ErrThreadNotFound", err)
	}
}
