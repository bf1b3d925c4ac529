package threads

import (
	"github.com/tidwall/gjson"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
)

// Shape tags the decoded form of a log record.
type Shape string

const (
	ShapeUserMessage            Shape = "user_message"
	ShapeAssistantFetch         Shape = "assistant_fetch"
	ShapeAssistantFetchDegraded Shape = "assistant_fetch_degraded"
	ShapeIrrelevant             Shape = "irrelevant"
)

// RawRecord is a log record decoded just far enough to pick an extraction
// path. Payload holds the request body for user messages and the response
// data for assistant fetches.
type RawRecord struct {
	Shape        Shape
	ID           string
	Path         string
	ThreadID     string
	RunID        string
	Timestamp    string
	ResponseTime *int64
	Payload      string
}

// Decode classifies rec and tags it with its shape.
func (c Correlator) Decode(rec *domain.LogRecord) RawRecord {
	class := c.Classify(rec)
	raw := RawRecord{
		Shape:        ShapeIrrelevant,
		ID:           rec.ID,
		Path:         rec.Path,
		ThreadID:     class.ThreadID,
		Timestamp:    rec.Timestamp,
		ResponseTime: rec.ResponseTime,
	}
	raw.RunID, _ = c.RunID(rec.Path)

	switch class.Role {
	case RecordUserMessage:
		raw.Shape = ShapeUserMessage
		raw.Payload = rec.Body
	case RecordAssistantFetch:
		raw.Shape = ShapeAssistantFetch
		if !gjson.Valid(rec.ResponseData) {
			raw.Shape = ShapeAssistantFetchDegraded
		}
		raw.Payload = rec.ResponseData
	}
	return raw
}
