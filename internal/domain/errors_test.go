package domain

import (
	"net/http"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{
			name:     "error with type and message",
			err:      &APIError{Type: ErrorTypeInvalidRequest, Message: "bad request"},
			expected: "invalid_request: bad request",
		},
		{
			name:     "error with details",
			err:      &APIError{Type: ErrorTypeUpstream, Message: "upstream returned status 502", Details: "bad gateway"},
			expected: "upstream: upstream returned status 502 (bad gateway)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected int
	}{
		{"invalid request", &APIError{Type: ErrorTypeInvalidRequest}, http.StatusBadRequest},
		{"authentication", &APIError{Type: ErrorTypeAuthentication}, http.StatusUnauthorized},
		{"not found", &APIError{Type: ErrorTypeNotFound}, http.StatusNotFound},
		{"rate limit", &APIError{Type: ErrorTypeRateLimit}, http.StatusTooManyRequests},
		{"upstream", &APIError{Type: ErrorTypeUpstream}, http.StatusBadGateway},
		{"server", &APIError{Type: ErrorTypeServer}, http.StatusInternalServerError},
		{"explicit status wins", &APIError{Type: ErrorTypeServer, StatusCode: http.StatusTeapot}, http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestErrorFromStatus(t *testing.T) {
	tests := []struct {
		status   int
		wantType ErrorType
	}{
		{http.StatusUnauthorized, ErrorTypeAuthentication},
		{http.StatusNotFound, ErrorTypeNotFound},
		{http.StatusTooManyRequests, ErrorTypeRateLimit},
		{http.StatusBadRequest, ErrorTypeInvalidRequest},
		{http.StatusInternalServerError, ErrorTypeUpstream},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := ErrorFromStatus(tt.status, []byte(`{"error":"x"}`))
			if err.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", err.Type, tt.wantType)
			}
			if err.HTTPStatusCode() != tt.status {
				t.Errorf("HTTPStatusCode() = %d, want %d", err.HTTPStatusCode(), tt.status)
			}
			if err.Details != `{"error":"x"}` {
				t.Errorf("Details = %q", err.Details)
			}
		})
	}
}

func TestRunStepRecord_Normalize(t *testing.T) {
	step := RunStepRecord{StepID: "step_1"}
	step.Normalize()

	if step.ThreadID != UnknownCorrelationID {
		t.Errorf("ThreadID = %q, want %q", step.ThreadID, UnknownCorrelationID)
	}
	if step.RunID != UnknownCorrelationID {
		t.Errorf("RunID = %q, want %q", step.RunID, UnknownCorrelationID)
	}

	kept := RunStepRecord{ThreadID: "thread_1", RunID: "run_1"}
	kept.Normalize()
	if kept.ThreadID != "thread_1" || kept.RunID != "run_1" {
		t.Errorf("Normalize() overwrote present keys: %+v", kept)
	}
}
