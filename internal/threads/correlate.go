package threads

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
)

const (
	threadsMarker  = "/threads/"
	runsMarker     = "/runs/"
	messagesMarker = "/messages"

	assistantRoleLiteral = `"role":"assistant"`
)

// RecordRole is what a log record contributes to a thread.
type RecordRole string

const (
	RecordUserMessage    RecordRole = "user_message"
	RecordAssistantFetch RecordRole = "assistant_fetch"
	RecordIrrelevant     RecordRole = "irrelevant"
)

// Classification is the correlation result for one log record.
type Classification struct {
	ThreadID string
	Role     RecordRole
}

// Relevant reports whether the record belongs to a thread.
func (c Classification) Relevant() bool {
	return c.ThreadID != ""
}

// Correlator derives thread and run identifiers from upstream URL paths,
// the only correlation key the proxy logs carry.
type Correlator struct{}

// ThreadID returns the path segment following /threads/.
func (Correlator) ThreadID(path string) (string, bool) {
	return segmentAfter(path, threadsMarker)
}

// RunID returns the path segment following /runs/.
func (Correlator) RunID(path string) (string, bool) {
	return segmentAfter(path, runsMarker)
}

func segmentAfter(path, marker string) (string, bool) {
	idx := strings.Index(path, marker)
	if idx < 0 {
		return "", false
	}
	rest := path[idx+len(marker):]
	if end := strings.IndexByte(rest, '/'); end >= 0 {
		rest = rest[:end]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}

// IsUserSentMessage reports whether rec is an outbound message creation.
func (Correlator) IsUserSentMessage(rec *domain.LogRecord) bool {
	return rec.Method == http.MethodPost &&
		strings.Contains(rec.Path, messagesMarker) &&
		rec.Body != "" &&
		rec.Kind == domain.LogKindRequest
}

// IsAssistantResponse reports whether rec is a message listing that holds at
// least one assistant message. Payloads that are not valid JSON fall back to a
// substring check so truncated records are still considered.
func (Correlator) IsAssistantResponse(rec *domain.LogRecord) bool {
	if rec.Method != http.MethodGet ||
		!strings.Contains(rec.Path, messagesMarker) ||
		rec.ResponseData == "" ||
		rec.Kind != domain.LogKindResponse {
		return false
	}

	if !gjson.Valid(rec.ResponseData) {
		return strings.Contains(rec.ResponseData, assistantRoleLiteral)
	}

	data := gjson.Get(rec.ResponseData, "data")
	if !data.IsArray() {
		return false
	}
	found := false
	data.ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("role").String() == RoleAssistant {
			found = true
			return false
		}
		return true
	})
	return found
}

// Classify correlates rec with a thread and decides its role.
func (c Correlator) Classify(rec *domain.LogRecord) Classification {
	threadID, ok := c.ThreadID(rec.Path)
	if !ok {
		return Classification{Role: RecordIrrelevant}
	}

	switch {
	case c.IsUserSentMessage(rec):
		return Classification{ThreadID: threadID, Role: RecordUserMessage}
	case c.IsAssistantResponse(rec):
		return Classification{ThreadID: threadID, Role: RecordAssistantFetch}
	default:
		return Classification{ThreadID: threadID, Role: RecordIrrelevant}
	}
}
