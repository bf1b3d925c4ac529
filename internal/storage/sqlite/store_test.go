package sqlite

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
	"github.com/tjfontaine/threadlog-gateway/internal/storage"
)

func TestSQLiteStore_AppendAndListLogs(t *testing.T) {
	// Use in-memory SQLite with shared cache for testing
	store, err := New("file:logs1?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	elapsed := int64(120)
	large := `{"data":[{"role":"assistant","content":[{"type":"text","text":{"value":"` +
		strings.Repeat("lorem ipsum ", 100) + `"}}]}]}`

	records := []*domain.LogRecord{
		{Kind: domain.LogKindRequest, Path: "/threads/thread_1/messages", Method: "POST", Body: `{"role":"user","content":"hi"}`},
		{Kind: domain.LogKindResponse, Path: "/threads/thread_1/messages", Method: "GET", ResponseData: large, ResponseTime: &elapsed, Status: 200},
		{Kind: domain.LogKindError, Path: "/threads/thread_1/runs", Method: "POST", Error: "boom"},
	}
	for _, rec := range records {
		if err := store.AppendLog(context.Background(), rec); err != nil {
			t.Fatalf("AppendLog() error = %v", err)
		}
	}

	logs, err := store.ListLogs(context.Background())
	if err != nil {
		t.Fatalf("ListLogs() error = %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("ListLogs() count = %d, want 3", len(logs))
	}

	if logs[0].Body != records[0].Body {
		t.Errorf("Body = %q, want %q", logs[0].Body, records[0].Body)
	}
	if logs[1].ResponseData != large {
		t.Error("compressed ResponseData did not round trip")
	}
	if logs[1].ResponseTime == nil || *logs[1].ResponseTime != 120 {
		t.Errorf("ResponseTime = %v, want 120", logs[1].ResponseTime)
	}
	if logs[0].ResponseTime != nil {
		t.Errorf("ResponseTime = %v, want nil", *logs[0].ResponseTime)
	}
	if logs[2].Kind != domain.LogKindError || logs[2].Error != "boom" {
		t.Errorf("error record = %+v", logs[2])
	}
}

func TestSQLiteStore_UncompressedRowsStayReadable(t *testing.T) {
	store, err := New("file:logs2?mode=memory&cache=shared", WithCompression(false))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	body := strings.Repeat("x", 1024)
	if err := store.AppendLog(context.Background(), &domain.LogRecord{Body: body}); err != nil {
		t.Fatalf("AppendLog() error = %v", err)
	}

	store.codec.enabled = true
	if err := store.AppendLog(context.Background(), &domain.LogRecord{Body: body}); err != nil {
		t.Fatalf("AppendLog() error = %v", err)
	}

	logs, err := store.ListLogs(context.Background())
	if err != nil {
		t.Fatalf("ListLogs() error = %v", err)
	}
	for i, rec := range logs {
		if rec.Body != body {
			t.Errorf("logs[%d].Body length = %d, want %d", i, len(rec.Body), len(body))
		}
	}
}

func TestSQLiteStore_UndecodableLogRowsDoNotFailRead(t *testing.T) {
	store, err := New("file:logs3?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	good := &domain.LogRecord{Kind: domain.LogKindRequest, Path: "/threads/thread_1/messages", Method: "POST", Body: `{"content":"hi"}`}
	if err := store.AppendLog(ctx, good); err != nil {
		t.Fatalf("AppendLog() error = %v", err)
	}

	insert := `INSERT INTO api_logs (id, kind, path, method, body, response_data) VALUES (?, 'request', '/threads/thread_1/messages', 'POST', ?, ?)`
	if _, err := store.db.Exec(insert, "legacy", []byte(`{"content":"x"}`), nil); err != nil {
		t.Fatalf("insert unmarked row: %v", err)
	}
	if _, err := store.db.Exec(insert, "corrupt", nil, []byte{markerZstd, 0xde, 0xad, 0xbe, 0xef}); err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}

	logs, err := store.ListLogs(ctx)
	if err != nil {
		t.Fatalf("ListLogs() error = %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("ListLogs() count = %d, want 3", len(logs))
	}
	if logs[0].ID != good.ID || logs[0].Body != good.Body {
		t.Errorf("good record = %+v", logs[0])
	}
	if logs[1].ID != "legacy" || logs[1].Body != `{"content":"x"}` {
		t.Errorf("unmarked record Body = %q, want raw payload", logs[1].Body)
	}
	if logs[2].ID != "corrupt" || logs[2].ResponseData != "" {
		t.Errorf("corrupt record ResponseData = %q, want empty", logs[2].ResponseData)
	}
}

func TestSQLiteStore_UndecodableRunStepsAreSkipped(t *testing.T) {
	store, err := New("file:steps2?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	insert := `INSERT INTO run_steps (step_id, run_id, thread_id, document) VALUES (?, 'run_1', 'thread_1', ?)`
	if _, err := store.db.Exec(insert, "bad_json", store.codec.encode("{not json")); err != nil {
		t.Fatalf("insert bad document: %v", err)
	}
	if _, err := store.db.Exec(insert, "bad_frame", []byte{markerZstd, 0x00, 0x01}); err != nil {
		t.Fatalf("insert corrupt frame: %v", err)
	}
	if err := store.AppendRunStep(ctx, &domain.RunStepRecord{StepID: "step_ok", RunID: "run_1", ThreadID: "thread_1", CodeInput: "print(1)"}); err != nil {
		t.Fatalf("AppendRunStep() error = %v", err)
	}

	steps, err := store.ListRunSteps(ctx)
	if err != nil {
		t.Fatalf("ListRunSteps() error = %v", err)
	}
	if len(steps) != 1 || steps[0].StepID != "step_ok" {
		t.Fatalf("ListRunSteps() = %+v, want only step_ok", steps)
	}
}

func TestSQLiteStore_RunSteps(t *testing.T) {
	store, err := New("file:steps1?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	step := &domain.RunStepRecord{
		StepID:    "step_1",
		ToolType:  domain.ToolTypeCodeInterpreter,
		CodeInput: "print(1)",
		CodeOutputs: []domain.CodeOutput{
			{Type: domain.OutputTypeLogs, Logs: "1\n"},
			{Type: domain.OutputTypeImage, ImageFileID: "file_1"},
		},
	}
	if err := store.AppendRunStep(context.Background(), step); err != nil {
		t.Fatalf("AppendRunStep() error = %v", err)
	}

	steps, err := store.ListRunSteps(context.Background())
	if err != nil {
		t.Fatalf("ListRunSteps() error = %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("ListRunSteps() count = %d, want 1", len(steps))
	}

	got := steps[0]
	if got.ThreadID != domain.UnknownCorrelationID {
		t.Errorf("ThreadID = %q, want unknown", got.ThreadID)
	}
	if got.CodeInput != "print(1)" || len(got.CodeOutputs) != 2 {
		t.Errorf("run step payload = %+v", got)
	}
	if got.CodeOutputs[1].ImageFileID != "file_1" {
		t.Errorf("ImageFileID = %q, want file_1", got.CodeOutputs[1].ImageFileID)
	}
}

func TestSQLiteStore_Artifacts(t *testing.T) {
	store, err := New("file:artifacts1?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	artifact := &domain.ArtifactRecord{FileID: "file_1", ContentType: "image/png", Payload: "iVBORw0KGgo=", Size: 8}
	if err := store.PutArtifact(context.Background(), artifact); err != nil {
		t.Fatalf("PutArtifact() error = %v", err)
	}
	if err := store.PutArtifact(context.Background(), &domain.ArtifactRecord{FileID: "file_1", ContentType: "image/jpeg"}); err != nil {
		t.Fatalf("PutArtifact() duplicate error = %v", err)
	}

	got, err := store.GetArtifact(context.Background(), "file_1")
	if err != nil {
		t.Fatalf("GetArtifact() error = %v", err)
	}
	if got.ContentType != "image/png" || got.Payload != artifact.Payload || got.Size != 8 {
		t.Errorf("GetArtifact() = %+v", got)
	}

	if _, err := store.GetArtifact(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetArtifact(missing) error = %v, want ErrNotFound", err)
	}

	all, err := store.ListArtifacts(context.Background())
	if err != nil {
		t.Fatalf("ListArtifacts() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("ListArtifacts() count = %d, want 1", len(all))
	}
}

func TestPayloadCodec(t *testing.T) {
	codec, err := newPayloadCodec()
	if err != nil {
		t.Fatalf("newPayloadCodec() error = %v", err)
	}
	defer codec.close()

	tests := []struct {
		name       string
		payload    string
		wantMarker byte
	}{
		{"short payload stays raw", `{"a":1}`, markerRaw},
		{"large payload is compressed", strings.Repeat("abc", 200), markerZstd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := codec.encode(tt.payload)
			if encoded[0] != tt.wantMarker {
				t.Errorf("marker = 0x%02x, want 0x%02x", encoded[0], tt.wantMarker)
			}
			decoded, err := codec.decode(encoded)
			if err != nil {
				t.Fatalf("decode() error = %v", err)
			}
			if decoded != tt.payload {
				t.Errorf("decode() = %q, want %q", decoded, tt.payload)
			}
		})
	}

	if codec.encode("") != nil {
		t.Error("encode(\"\") should be nil")
	}
	if _, err := codec.decode([]byte{0x7f, 'x'}); !errors.Is(err, errUnmarked) {
		t.Errorf("decode() with unknown marker error = %v, want errUnmarked", err)
	}
}
