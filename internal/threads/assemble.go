package threads

import (
	"cmp"
	"log/slog"
	"slices"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
)

// timestampLayouts are tried in order when ordering events.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

var epoch = time.Unix(0, 0).UTC()

// ParseTimestamp parses a record timestamp. Unparsable values map to the
// Unix epoch so they sort first instead of being dropped.
func ParseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return epoch
}

// Assembler folds a snapshot of the record store into threads. It keeps no
// state between calls.
type Assembler struct {
	correlator Correlator
	logger     *slog.Logger
}

// NewAssembler creates an assembler.
func NewAssembler(logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{logger: logger}
}

// Assemble reconstructs every thread found in records and steps, newest
// thread first.
func (a *Assembler) Assemble(records []domain.LogRecord, steps []domain.RunStepRecord, artifacts []domain.ArtifactRecord) []Thread {
	resolver := NewArtifacts(artifacts)
	extractor := NewExtractor(resolver, a.logger)

	buckets := make(map[string][]Event)
	systemPrompts := make(map[string]string)

	for i := range records {
		rec := &records[i]
		threadID, ok := a.correlator.ThreadID(rec.Path)
		if !ok {
			continue
		}

		if prompt, ok := a.systemPrompt(rec); ok {
			systemPrompts[threadID] = prompt
		}

		if events := extractor.Extract(rec); len(events) > 0 {
			buckets[threadID] = append(buckets[threadID], events...)
		}
	}

	for threadID, events := range MergeRunSteps(steps, resolver) {
		buckets[threadID] = append(buckets[threadID], events...)
	}

	threads := make([]Thread, 0, len(buckets))
	lastSeen := make(map[string]time.Time, len(buckets))
	for threadID, events := range buckets {
		thread := Thread{ThreadID: threadID, Messages: sortEvents(events)}
		if prompt, ok := systemPrompts[threadID]; ok {
			thread.SystemPrompt = &prompt
		}
		lastSeen[threadID] = ParseTimestamp(thread.LastTimestamp())
		threads = append(threads, thread)
	}

	slices.SortFunc(threads, func(x, y Thread) int {
		if c := lastSeen[y.ThreadID].Compare(lastSeen[x.ThreadID]); c != 0 {
			return c
		}
		return cmp.Compare(x.ThreadID, y.ThreadID)
	})
	return threads
}

// systemPrompt reports the content of a system message creation.
func (a *Assembler) systemPrompt(rec *domain.LogRecord) (string, bool) {
	if !a.correlator.IsUserSentMessage(rec) || !gjson.Valid(rec.Body) {
		return "", false
	}
	if gjson.Get(rec.Body, "role").String() != "system" {
		return "", false
	}
	content := gjson.Get(rec.Body, "content")
	if !truthy(content) {
		return "", false
	}
	return stringOf(content), true
}

// sortEvents orders events by timestamp, keeping extraction order on ties.
func sortEvents(events []Event) []Event {
	type keyed struct {
		at    time.Time
		event Event
	}
	ordered := make([]keyed, len(events))
	for i, ev := range events {
		ordered[i] = keyed{at: ParseTimestamp(ev.Timestamp), event: ev}
	}
	slices.SortStableFunc(ordered, func(x, y keyed) int {
		return x.at.Compare(y.at)
	})

	sorted := make([]Event, len(ordered))
	for i, k := range ordered {
		sorted[i] = k.event
	}
	return sorted
}
