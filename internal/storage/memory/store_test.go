package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
	"github.com/tjfontaine/threadlog-gateway/internal/storage"
)

func TestMemoryStore_AppendLog(t *testing.T) {
	store := New()

	rec := &domain.LogRecord{
		Kind:   domain.LogKindRequest,
		Path:   "/threads/thread_1/messages",
		Method: "POST",
		Body:   `{"role":"user","content":"hi"}`,
	}

	if err := store.AppendLog(context.Background(), rec); err != nil {
		t.Fatalf("AppendLog() error = %v", err)
	}
	if rec.ID == "" {
		t.Error("AppendLog() did not assign an ID")
	}
	if rec.Timestamp == "" {
		t.Error("AppendLog() did not assign a timestamp")
	}

	logs, err := store.ListLogs(context.Background())
	if err != nil {
		t.Fatalf("ListLogs() error = %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("ListLogs() count = %d, want 1", len(logs))
	}
	if logs[0].Body != rec.Body {
		t.Errorf("Body = %q, want %q", logs[0].Body, rec.Body)
	}
}

func TestMemoryStore_ListLogsPreservesOrder(t *testing.T) {
	store := New()

	for _, path := range []string{"/a", "/b", "/c"} {
		if err := store.AppendLog(context.Background(), &domain.LogRecord{Path: path}); err != nil {
			t.Fatalf("AppendLog() error = %v", err)
		}
	}

	logs, _ := store.ListLogs(context.Background())
	for i, want := range []string{"/a", "/b", "/c"} {
		if logs[i].Path != want {
			t.Errorf("logs[%d].Path = %q, want %q", i, logs[i].Path, want)
		}
	}

	// Mutating the returned slice must not affect the store.
	logs[0].Path = "/mutated"
	again, _ := store.ListLogs(context.Background())
	if again[0].Path != "/a" {
		t.Errorf("store was mutated through ListLogs result: %q", again[0].Path)
	}
}

func TestMemoryStore_AppendRunStepNormalizes(t *testing.T) {
	store := New()

	if err := store.AppendRunStep(context.Background(), &domain.RunStepRecord{StepID: "step_1"}); err != nil {
		t.Fatalf("AppendRunStep() error = %v", err)
	}

	steps, err := store.ListRunSteps(context.Background())
	if err != nil {
		t.Fatalf("ListRunSteps() error = %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("ListRunSteps() count = %d, want 1", len(steps))
	}
	if steps[0].ThreadID != domain.UnknownCorrelationID || steps[0].RunID != domain.UnknownCorrelationID {
		t.Errorf("step correlation = %q/%q, want unknown/unknown", steps[0].ThreadID, steps[0].RunID)
	}
}

func TestMemoryStore_RecordsAreNotShared(t *testing.T) {
	store := New()
	ctx := context.Background()

	elapsed := int64(250)
	rec := &domain.LogRecord{Kind: domain.LogKindResponse, Path: "/threads/thread_1/messages", ResponseTime: &elapsed}
	if err := store.AppendLog(ctx, rec); err != nil {
		t.Fatalf("AppendLog() error = %v", err)
	}
	elapsed = 1

	logs, _ := store.ListLogs(ctx)
	*logs[0].ResponseTime = 999

	again, _ := store.ListLogs(ctx)
	if got := *again[0].ResponseTime; got != 250 {
		t.Errorf("stored ResponseTime = %d, want 250", got)
	}

	step := &domain.RunStepRecord{
		StepID:      "step_1",
		CodeOutputs: []domain.CodeOutput{{Type: domain.OutputTypeLogs, Logs: "ok"}},
	}
	if err := store.AppendRunStep(ctx, step); err != nil {
		t.Fatalf("AppendRunStep() error = %v", err)
	}
	step.CodeOutputs[0].Logs = "changed by caller"

	steps, _ := store.ListRunSteps(ctx)
	steps[0].CodeOutputs[0].Logs = "changed by reader"

	storedSteps, _ := store.ListRunSteps(ctx)
	if got := storedSteps[0].CodeOutputs[0].Logs; got != "ok" {
		t.Errorf("stored CodeOutputs[0].Logs = %q, want ok", got)
	}
}

func TestMemoryStore_Artifacts(t *testing.T) {
	store := New()

	first := &domain.ArtifactRecord{FileID: "file_1", ContentType: "image/png", Payload: "aGk=", Size: 2}
	if err := store.PutArtifact(context.Background(), first); err != nil {
		t.Fatalf("PutArtifact() error = %v", err)
	}

	// A second write for the same id is ignored.
	dup := &domain.ArtifactRecord{FileID: "file_1", ContentType: "image/jpeg"}
	if err := store.PutArtifact(context.Background(), dup); err != nil {
		t.Fatalf("PutArtifact() error = %v", err)
	}

	got, err := store.GetArtifact(context.Background(), "file_1")
	if err != nil {
		t.Fatalf("GetArtifact() error = %v", err)
	}
	if got.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", got.ContentType)
	}

	if _, err := store.GetArtifact(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetArtifact(missing) error = %v, want ErrNotFound", err)
	}

	all, _ := store.ListArtifacts(context.Background())
	if len(all) != 1 {
		t.Errorf("ListArtifacts() count = %d, want 1", len(all))
	}
}
