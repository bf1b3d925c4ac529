package threads

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
)

// fallbackAssistantText recovers the first assistant text from a payload
// that is no longer valid JSON.
var fallbackAssistantText = regexp.MustCompile(`"role":"assistant".*?"text":\s*\{\s*"value":\s*"([^"]+)"`)

// ruleKey selects an extraction rule. The section doubles as the event's
// message type.
type ruleKey struct {
	section  string
	toolType string
}

// A rule turns the tool-specific substructure of an item into events. The
// caller stamps role, timestamps and correlation ids.
type rule func(x *Extractor, sub gjson.Result) []Event

var extractionRules = map[ruleKey]rule{
	{MessageTypeToolCall, domain.ToolTypeCodeInterpreter}: codeInputRule,
	{MessageTypeToolCall, domain.ToolTypeFunction}:        functionCallRule,
	{MessageTypeToolCall, domain.ToolTypeFileSearch}:      fileSearchRule,

	{MessageTypeToolResponse, domain.ToolTypeCodeInterpreter}: codeOutputsRule,
	{MessageTypeToolResponse, domain.ToolTypeFunction}:        functionResponseRule,
	{MessageTypeToolResponse, domain.ToolTypeFileSearch}:      fileSearchResultsRule,

	{MessageTypeLegacyContent, domain.ToolTypeCodeInterpreter}: legacyCodeRule,
	{MessageTypeLegacyContent, domain.ToolTypeFunction}:        functionCallRule,
	{MessageTypeLegacyContent, domain.ToolTypeFileSearch}:      legacyFileSearchRule,
}

// Extractor turns log records into normalized events. It never fails: a
// record it cannot make sense of yields no events.
type Extractor struct {
	correlator Correlator
	artifacts  *Artifacts
	logger     *slog.Logger
}

// NewExtractor creates an extractor resolving images against artifacts.
func NewExtractor(artifacts *Artifacts, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{artifacts: artifacts, logger: logger}
}

// Extract returns the events carried by rec.
func (x *Extractor) Extract(rec *domain.LogRecord) (events []Event) {
	defer func() {
		if r := recover(); r != nil {
			x.logger.Error("extraction failed",
				slog.String("log_id", rec.ID),
				slog.String("path", rec.Path),
				slog.Any("panic", r),
			)
			events = nil
		}
	}()
	return x.ExtractRaw(x.correlator.Decode(rec))
}

// ExtractRaw returns the events carried by an already decoded record.
func (x *Extractor) ExtractRaw(raw RawRecord) []Event {
	switch raw.Shape {
	case ShapeUserMessage:
		return x.userMessage(raw)
	case ShapeAssistantFetch:
		return x.assistantFetch(raw)
	case ShapeAssistantFetchDegraded:
		return x.degraded(raw)
	default:
		return nil
	}
}

func (x *Extractor) userMessage(raw RawRecord) []Event {
	if !gjson.Valid(raw.Payload) {
		return nil
	}
	content := gjson.Get(raw.Payload, "content")
	if !truthy(content) {
		return nil
	}
	return []Event{{
		Role:        RoleUser,
		Content:     stringOf(content),
		ContentType: ContentText,
		Timestamp:   raw.Timestamp,
	}}
}

func (x *Extractor) assistantFetch(raw RawRecord) []Event {
	base := Event{
		Role:         RoleAssistant,
		Timestamp:    raw.Timestamp,
		ResponseTime: raw.ResponseTime,
		RunID:        raw.RunID,
	}

	var events []Event
	eachElement(gjson.Get(raw.Payload, "data"), func(msg gjson.Result) {
		if msg.Get("role").String() != RoleAssistant {
			return
		}
		content := msg.Get("content")

		eachElement(content, func(item gjson.Result) {
			if item.Get("type").String() != ContentText {
				return
			}
			if value := item.Get("text.value"); truthy(value) {
				ev := base
				ev.Content = stringOf(value)
				ev.ContentType = ContentText
				events = append(events, ev)
			}
		})

		eachElement(msg.Get("tool_calls"), func(call gjson.Result) {
			events = x.apply(events, base, MessageTypeToolCall, call)
		})
		eachElement(msg.Get("tool_responses"), func(resp gjson.Result) {
			events = x.apply(events, base, MessageTypeToolResponse, resp)
		})
		eachElement(content, func(item gjson.Result) {
			events = x.apply(events, base, MessageTypeLegacyContent, item)
		})
	})
	return events
}

// apply dispatches item through the rule table and stamps the results.
func (x *Extractor) apply(events []Event, base Event, section string, item gjson.Result) []Event {
	toolType := item.Get("type").String()
	r, ok := extractionRules[ruleKey{section, toolType}]
	if !ok {
		return events
	}
	sub := item.Get(toolType)
	if !sub.IsObject() {
		return events
	}

	stamp := base
	stamp.MessageType = section
	switch section {
	case MessageTypeToolCall:
		stamp.ToolCallID = item.Get("id").String()
	case MessageTypeToolResponse:
		stamp.ToolCallID = item.Get("tool_call_id").String()
	case MessageTypeLegacyContent:
		stamp.Legacy = true
	}

	for _, ev := range r(x, sub) {
		ev.Role = stamp.Role
		ev.Timestamp = stamp.Timestamp
		ev.ResponseTime = stamp.ResponseTime
		ev.RunID = stamp.RunID
		ev.MessageType = stamp.MessageType
		ev.ToolCallID = stamp.ToolCallID
		ev.Legacy = stamp.Legacy
		events = append(events, ev)
	}
	return events
}

func (x *Extractor) degraded(raw RawRecord) []Event {
	match := fallbackAssistantText.FindStringSubmatch(raw.Payload)
	x.logger.Warn("degraded extraction",
		slog.String("log_id", raw.ID),
		slog.String("thread_id", raw.ThreadID),
		slog.String("path", raw.Path),
		slog.Bool("recovered", match != nil),
	)
	if match == nil {
		return nil
	}
	return []Event{{
		Role:         RoleAssistant,
		Content:      match[1],
		ContentType:  ContentText,
		Timestamp:    raw.Timestamp,
		ResponseTime: raw.ResponseTime,
		RunID:        raw.RunID,
	}}
}

func codeInputRule(_ *Extractor, sub gjson.Result) []Event {
	input := sub.Get("input")
	if !truthy(input) {
		return nil
	}
	return []Event{codeInputEvent(stringOf(input))}
}

func codeOutputsRule(x *Extractor, sub gjson.Result) []Event {
	var events []Event
	eachElement(sub.Get("outputs"), func(out gjson.Result) {
		ev, ok := codeOutputEvent(domain.CodeOutput{
			Type:        out.Get("type").String(),
			Logs:        out.Get("logs").String(),
			ImageFileID: out.Get("image.file_id").String(),
			Error:       out.Get("error").String(),
		}, x.artifacts)
		if ok {
			events = append(events, ev)
		}
	})
	return events
}

func legacyCodeRule(x *Extractor, sub gjson.Result) []Event {
	return append(codeInputRule(x, sub), codeOutputsRule(x, sub)...)
}

func functionCallRule(_ *Extractor, sub gjson.Result) []Event {
	return []Event{functionCallEvent(sub.Get("name").String(), sub.Get("arguments").String())}
}

func functionResponseRule(_ *Extractor, sub gjson.Result) []Event {
	name := sub.Get("name").String()
	return []Event{{
		Content:        fmt.Sprintf("[Function Response: %s]", name),
		ContentType:    ContentFunctionResponse,
		FunctionName:   name,
		FunctionOutput: sub.Get("output").String(),
	}}
}

func fileSearchRule(_ *Extractor, sub gjson.Result) []Event {
	return []Event{fileSearchEvent(sub.Get("query").String())}
}

func fileSearchResultsRule(_ *Extractor, sub gjson.Result) []Event {
	ev := fileSearchResultsEvent(sub)
	ev.ContentType = ContentFileSearchResponse
	return []Event{ev}
}

// Legacy content items only ever carried search results, reported under the
// file_search content type.
func legacyFileSearchRule(_ *Extractor, sub gjson.Result) []Event {
	ev := fileSearchResultsEvent(sub)
	ev.ContentType = ContentFileSearch
	return []Event{ev}
}

func fileSearchResultsEvent(sub gjson.Result) Event {
	count := 0
	if results := sub.Get("results"); results.IsArray() {
		count = len(results.Array())
	}
	return Event{
		Content:   fmt.Sprintf("[File Search Results: %d files found]", count),
		FileCount: &count,
	}
}

func codeInputEvent(input string) Event {
	return Event{
		Content:     input,
		ContentType: ContentCodeInput,
		Language:    DefaultCodeLanguage,
	}
}

// codeOutputEvent converts one code interpreter output. Unknown output types
// and image outputs without a file id produce nothing.
func codeOutputEvent(out domain.CodeOutput, artifacts *Artifacts) (Event, bool) {
	ev := Event{ContentType: ContentCodeOutput, OutputType: out.Type}
	switch out.Type {
	case OutputLogs:
		ev.Content = out.Logs
	case OutputImage:
		if out.ImageFileID == "" {
			return Event{}, false
		}
		ev.Content = fmt.Sprintf("[Generated Image: %s]", out.ImageFileID)
		ev.ImageID = out.ImageFileID
		ev.ImageData = artifacts.Resolve(out.ImageFileID)
	case OutputError:
		ev.Content = "Error: " + out.Error
	default:
		return Event{}, false
	}
	return ev, true
}

func functionCallEvent(name, args string) Event {
	return Event{
		Content:      fmt.Sprintf("[Function Call: %s]", name),
		ContentType:  ContentFunctionCall,
		FunctionName: name,
		FunctionArgs: args,
	}
}

func fileSearchEvent(query string) Event {
	display := query
	if display == "" {
		display = "query"
	}
	return Event{
		Content:     fmt.Sprintf("[File Search: %s]", display),
		ContentType: ContentFileSearch,
		SearchQuery: query,
	}
}

// eachElement calls fn for every element of an array result. Anything else
// is ignored.
func eachElement(r gjson.Result, fn func(gjson.Result)) {
	if !r.IsArray() {
		return
	}
	r.ForEach(func(_, v gjson.Result) bool {
		fn(v)
		return true
	})
}

// truthy mirrors how loosely typed payloads treat presence: null, false,
// zero and the empty string count as absent.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return r.Str != ""
	case gjson.Number:
		return r.Num != 0
	default:
		return true
	}
}

func stringOf(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.Str
	}
	return r.Raw
}
