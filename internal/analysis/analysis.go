// Package analysis summarizes proxy traffic from the api_logs collection into
// a usage report.
package analysis

import (
	"cmp"
	"slices"
	"time"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
	"github.com/tjfontaine/threadlog-gateway/internal/threads"
	"github.com/tjfontaine/threadlog-gateway/internal/tokens"
)

// RecentLimit is how many of the latest records a report samples.
const RecentLimit = 5

// Report is the usage summary of a log snapshot.
type Report struct {
	GeneratedAt time.Time `json:"generatedAt"`

	TotalRecords int     `json:"totalInteractions"`
	Requests     int     `json:"requests"`
	Responses    int     `json:"responses"`
	Errors       int     `json:"errors"`
	SuccessRate  float64 `json:"successRate"`

	AverageResponseTime float64 `json:"averageResponseTime"`
	TotalResponseTime   int64   `json:"totalResponseTime"`

	Paths       []PathCount `json:"paths"`
	UserAgents  []string    `json:"userAgents"`
	IPAddresses []string    `json:"ipAddresses"`
	DateRange   *DateRange  `json:"dateRange,omitempty"`

	Recent []domain.LogRecord `json:"sampleInteractions"`

	Threads         []ThreadUsage `json:"threads"`
	TotalTokens     int           `json:"totalTokens"`
	TokensEstimated bool          `json:"tokensEstimated"`
}

// PathCount is the number of records seen for one upstream path.
type PathCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// DateRange spans the earliest and latest parsable record timestamps.
type DateRange struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// ThreadUsage is the token footprint of one reconstructed thread.
type ThreadUsage struct {
	ThreadID        string `json:"threadId"`
	Messages        int    `json:"messages"`
	UserTokens      int    `json:"userTokens"`
	AssistantTokens int    `json:"assistantTokens"`
	SystemTokens    int    `json:"systemTokens"`
	TotalTokens     int    `json:"totalTokens"`
}

// Option configures Analyze.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the report's generation time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Analyze builds a report from records and the threads reconstructed from
// them. counter may be nil, in which case token fields stay zero.
func Analyze(records []domain.LogRecord, threadList []threads.Thread, counter tokens.Counter, opts ...Option) Report {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	report := Report{
		GeneratedAt:  o.now().UTC(),
		TotalRecords: len(records),
		Paths:        []PathCount{},
		UserAgents:   []string{},
		IPAddresses:  []string{},
		Recent:       []domain.LogRecord{},
		Threads:      []ThreadUsage{},
	}

	pathCounts := make(map[string]int)
	seenAgents := make(map[string]bool)
	seenIPs := make(map[string]bool)
	timedResponses := 0

	for _, rec := range records {
		switch rec.Kind {
		case domain.LogKindRequest:
			report.Requests++
		case domain.LogKindResponse:
			report.Responses++
			if rec.ResponseTime != nil && *rec.ResponseTime > 0 {
				report.TotalResponseTime += *rec.ResponseTime
				timedResponses++
			}
		case domain.LogKindError:
			report.Errors++
		}

		pathCounts[rec.Path]++

		if rec.UserAgent != "" && !seenAgents[rec.UserAgent] {
			seenAgents[rec.UserAgent] = true
			report.UserAgents = append(report.UserAgents, rec.UserAgent)
		}
		if rec.IP != "" && !seenIPs[rec.IP] {
			seenIPs[rec.IP] = true
			report.IPAddresses = append(report.IPAddresses, rec.IP)
		}
	}

	if report.Requests > 0 {
		report.SuccessRate = float64(report.Responses) / float64(report.Requests) * 100
	}
	if timedResponses > 0 {
		report.AverageResponseTime = float64(report.TotalResponseTime) / float64(timedResponses)
	}

	for path, count := range pathCounts {
		report.Paths = append(report.Paths, PathCount{Path: path, Count: count})
	}
	slices.SortFunc(report.Paths, func(a, b PathCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})

	report.DateRange = dateRange(records)
	report.Recent = mostRecent(records, RecentLimit)

	if counter != nil {
		report.TokensEstimated = counter.Estimated()
		for _, th := range threadList {
			usage := threadUsage(th, counter)
			report.TotalTokens += usage.TotalTokens
			report.Threads = append(report.Threads, usage)
		}
	}

	return report
}

func dateRange(records []domain.LogRecord) *DateRange {
	var dr *DateRange
	for _, rec := range records {
		if rec.Timestamp == "" {
			continue
		}
		ts, ok := parseTimestamp(rec.Timestamp)
		if !ok {
			continue
		}
		if dr == nil {
			dr = &DateRange{Earliest: ts, Latest: ts}
			continue
		}
		if ts.Before(dr.Earliest) {
			dr.Earliest = ts
		}
		if ts.After(dr.Latest) {
			dr.Latest = ts
		}
	}
	return dr
}

// mostRecent returns up to n records, newest first. Unparsable timestamps
// sort as the oldest.
func mostRecent(records []domain.LogRecord, n int) []domain.LogRecord {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b domain.LogRecord) int {
		return threads.ParseTimestamp(b.Timestamp).Compare(threads.ParseTimestamp(a.Timestamp))
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	if sorted == nil {
		return []domain.LogRecord{}
	}
	return sorted
}

func parseTimestamp(s string) (time.Time, bool) {
	ts := threads.ParseTimestamp(s)
	if ts.Equal(time.Unix(0, 0)) {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

func threadUsage(th threads.Thread, counter tokens.Counter) ThreadUsage {
	usage := ThreadUsage{ThreadID: th.ThreadID, Messages: len(th.Messages)}
	for _, ev := range th.Messages {
		n := counter.Count(eventText(ev))
		switch ev.Role {
		case threads.RoleUser:
			usage.UserTokens += n
		default:
			usage.AssistantTokens += n
		}
	}
	if th.SystemPrompt != nil {
		usage.SystemTokens = counter.Count(*th.SystemPrompt)
	}
	usage.TotalTokens = usage.UserTokens + usage.AssistantTokens + usage.SystemTokens
	return usage
}

// eventText is the part of an event that would have passed through the model.
func eventText(ev threads.Event) string {
	switch ev.ContentType {
	case threads.ContentFunctionCall:
		return ev.FunctionName + ev.FunctionArgs
	case threads.ContentFunctionResponse:
		return ev.FunctionOutput
	case threads.ContentFileSearch:
		return ev.SearchQuery
	}
	if ev.OutputType == threads.OutputImage {
		return ""
	}
	return ev.Content
}
