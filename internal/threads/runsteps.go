package threads

import "github.com/tjfontaine/threadlog-gateway/internal/domain"

// MergeRunSteps converts run step records into events grouped by thread id.
// Steps without a thread id land in the "unknown" bucket. Events are not
// deduplicated against the ones extracted from message listings.
func MergeRunSteps(steps []domain.RunStepRecord, artifacts *Artifacts) map[string][]Event {
	grouped := make(map[string][]Event)
	for i := range steps {
		step := steps[i]
		step.Normalize()

		events := runStepEvents(&step, artifacts)
		if len(events) == 0 {
			continue
		}
		grouped[step.ThreadID] = append(grouped[step.ThreadID], events...)
	}
	return grouped
}

func runStepEvents(step *domain.RunStepRecord, artifacts *Artifacts) []Event {
	var events []Event
	if step.CodeInput != "" {
		events = append(events, codeInputEvent(step.CodeInput))
	}
	for _, out := range step.CodeOutputs {
		if ev, ok := codeOutputEvent(out, artifacts); ok {
			events = append(events, ev)
		}
	}
	if step.FunctionName != "" {
		ev := functionCallEvent(step.FunctionName, step.FunctionArgs)
		ev.FunctionOutput = step.FunctionOutput
		events = append(events, ev)
	}
	if step.SearchQuery != "" || step.ToolType == domain.ToolTypeFileSearch {
		events = append(events, fileSearchEvent(step.SearchQuery))
	}

	timestamp := runStepTimestamp(step)
	for i := range events {
		events[i].Role = RoleAssistant
		events[i].Timestamp = timestamp
		events[i].MessageType = MessageTypeRunStep
		events[i].RunID = step.RunID
		events[i].StepID = step.StepID
		events[i].ToolCallID = step.ToolCallID
	}
	return events
}

func runStepTimestamp(step *domain.RunStepRecord) string {
	switch {
	case step.Timestamp != "":
		return step.Timestamp
	case step.StepCompletedAt != "":
		return step.StepCompletedAt
	default:
		return step.StepCreatedAt
	}
}
