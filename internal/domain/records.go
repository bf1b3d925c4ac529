package domain

import (
	"slices"
	"time"
)

// LogKind distinguishes the three entries the proxy writes per upstream call.
// Older records may carry other free-form kinds; they are kept but never
// classified as thread messages.
type LogKind string

const (
	LogKindRequest  LogKind = "request"
	LogKindResponse LogKind = "response"
	LogKindError    LogKind = "error"
)

// LogRecord is one entry of the api_logs collection. It is written once by the
// proxy and never mutated.
type LogRecord struct {
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp"`
	Kind      LogKind `json:"type"`
	Path      string  `json:"path"`
	Method    string  `json:"method"`

	// Body is the raw outbound payload; present on request records only.
	Body string `json:"body,omitempty"`
	// ResponseData is the raw upstream payload; present on response records only.
	ResponseData string `json:"responseData,omitempty"`

	// ResponseTime is the elapsed milliseconds for the call, when measured.
	ResponseTime *int64 `json:"responseTime,omitempty"`

	Status       int    `json:"status,omitempty"`
	ResponseSize int    `json:"responseSize,omitempty"`
	UserAgent    string `json:"userAgent,omitempty"`
	IP           string `json:"ip,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Tool types reported by the upstream run-step API.
const (
	ToolTypeCodeInterpreter = "code_interpreter"
	ToolTypeCode            = "code"
	ToolTypeFunction        = "function"
	ToolTypeFileSearch      = "file_search"
)

// Output types of a code interpreter call.
const (
	OutputTypeLogs  = "logs"
	OutputTypeImage = "image"
	OutputTypeError = "error"
)

// Clone returns a copy of r that shares no memory with it.
func (r LogRecord) Clone() LogRecord {
	if r.ResponseTime != nil {
		ms := *r.ResponseTime
		r.ResponseTime = &ms
	}
	return r
}

// UnknownCorrelationID replaces a missing thread or run id on a run step.
const UnknownCorrelationID = "unknown"

// CodeOutput is one typed output of a code interpreter invocation.
type CodeOutput struct {
	Type        string `json:"type"`
	Logs        string `json:"logs,omitempty"`
	ImageFileID string `json:"imageFileId,omitempty"`
	Error       string `json:"error,omitempty"`
}

// SearchResult is one hit of a file search invocation.
type SearchResult struct {
	FileID   string  `json:"fileId,omitempty"`
	FileName string  `json:"fileName,omitempty"`
	Score    float64 `json:"score,omitempty"`
}

// RunStepRecord is one tool invocation observed inside a completed run,
// fetched out of band after the run finished.
type RunStepRecord struct {
	StepID          string `json:"stepId"`
	RunID           string `json:"runId"`
	ThreadID        string `json:"threadId"`
	ToolCallID      string `json:"toolCallId,omitempty"`
	ToolType        string `json:"toolType"`
	StepStatus      string `json:"stepStatus,omitempty"`
	StepCreatedAt   string `json:"stepCreatedAt,omitempty"`
	StepCompletedAt string `json:"stepCompletedAt,omitempty"`
	Timestamp       string `json:"timestamp"`

	CodeInput   string       `json:"codeInput,omitempty"`
	CodeOutputs []CodeOutput `json:"codeOutputs,omitempty"`

	FunctionName   string `json:"functionName,omitempty"`
	FunctionArgs   string `json:"functionArgs,omitempty"`
	FunctionOutput string `json:"functionOutput,omitempty"`

	SearchQuery   string         `json:"searchQuery,omitempty"`
	SearchResults []SearchResult `json:"searchResults,omitempty"`
}

// Normalize fills the correlation keys that grouping relies on, so a step is
// never dropped for a missing key.
func (r *RunStepRecord) Normalize() {
	if r.ThreadID == "" {
		r.ThreadID = UnknownCorrelationID
	}
	if r.RunID == "" {
		r.RunID = UnknownCorrelationID
	}
}

// Clone returns a copy of r that shares no memory with it.
func (r RunStepRecord) Clone() RunStepRecord {
	r.CodeOutputs = slices.Clone(r.CodeOutputs)
	r.SearchResults = slices.Clone(r.SearchResults)
	return r
}

// ArtifactRecord is a binary attachment (typically a generated image) keyed by
// the upstream file id.
type ArtifactRecord struct {
	FileID      string    `json:"fileId" db:"file_id"`
	ContentType string    `json:"contentType" db:"content_type"`
	Payload     string    `json:"payload" db:"payload"` // base64
	Size        int64     `json:"size" db:"size"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// Timestamp formats t the way the proxy stamps records.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
