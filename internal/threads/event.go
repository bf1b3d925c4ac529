package threads

import (
	"encoding/json"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
)

// Event roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content types carried by an Event.
const (
	ContentText               = "text"
	ContentCodeInput          = "code_input"
	ContentCodeOutput         = "code_output"
	ContentFunctionCall       = "function_call"
	ContentFunctionResponse   = "function_response"
	ContentFileSearch         = "file_search"
	ContentFileSearchResponse = "file_search_response"
)

// Output types of a code_output event.
const (
	OutputLogs  = domain.OutputTypeLogs
	OutputImage = domain.OutputTypeImage
	OutputError = domain.OutputTypeError
)

// Message types record where an assistant event was found.
const (
	MessageTypeToolCall      = "tool_call"
	MessageTypeToolResponse  = "tool_response"
	MessageTypeLegacyContent = "legacy_content"
	MessageTypeRunStep       = "run_step"
)

// DefaultCodeLanguage is the language tag of every code interpreter input.
const DefaultCodeLanguage = "python"

// ImageData is a resolved artifact attached to an image output.
type ImageData struct {
	ContentType string `json:"contentType"`
	Payload     string `json:"payload"`
	Size        int64  `json:"size"`
}

// Event is one normalized message of a reconstructed thread.
type Event struct {
	Role         string `json:"role"`
	Content      string `json:"content"`
	ContentType  string `json:"contentType"`
	OutputType   string `json:"outputType,omitempty"`
	Timestamp    string `json:"timestamp"`
	ResponseTime *int64 `json:"responseTime,omitempty"`

	ToolCallID string `json:"toolCallId,omitempty"`
	RunID      string `json:"runId,omitempty"`
	StepID     string `json:"stepId,omitempty"`

	ImageID   string     `json:"imageId,omitempty"`
	ImageData *ImageData `json:"imageData,omitempty"`

	Legacy      bool   `json:"legacy,omitempty"`
	MessageType string `json:"messageType,omitempty"`

	Language       string `json:"language,omitempty"`
	FunctionName   string `json:"functionName,omitempty"`
	FunctionArgs   string `json:"functionArgs,omitempty"`
	FunctionOutput string `json:"functionOutput,omitempty"`
	SearchQuery    string `json:"searchQuery,omitempty"`
	FileCount      *int   `json:"fileCount,omitempty"`
}

// MarshalJSON always emits imageData on image outputs, as null when the
// artifact could not be resolved.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	if e.OutputType != OutputImage {
		return json.Marshal(plain(e))
	}
	return json.Marshal(struct {
		plain
		ImageData *ImageData `json:"imageData"`
	}{plain(e), e.ImageData})
}

// Thread is a reconstructed conversation. Messages are in timestamp order.
type Thread struct {
	ThreadID     string  `json:"threadId"`
	Messages     []Event `json:"messages"`
	SystemPrompt *string `json:"systemPrompt"`
}

// LastTimestamp returns the timestamp of the newest message.
func (t *Thread) LastTimestamp() string {
	if len(t.Messages) == 0 {
		return ""
	}
	return t.Messages[len(t.Messages)-1].Timestamp
}

// ThreadList is the read-side response body.
type ThreadList struct {
	Threads []Thread `json:"threads"`
}
