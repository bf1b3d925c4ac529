package upstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
)

// ListRunSteps fetches the steps of a run and flattens every tool call into
// a run step record. Steps that are not tool calls are skipped.
func (c *Client) ListRunSteps(ctx context.Context, threadID, runID string) ([]domain.RunStepRecord, error) {
	path := fmt.Sprintf("/threads/%s/runs/%s/steps", threadID, runID)
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, domain.ErrorFromStatus(resp.StatusCode, resp.Body)
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, fmt.Errorf("invalid run steps payload for run %s", runID)
	}

	var records []domain.RunStepRecord
	gjson.GetBytes(resp.Body, "data").ForEach(func(_, step gjson.Result) bool {
		if step.Get("step_details.type").String() != "tool_calls" {
			return true
		}
		step.Get("step_details.tool_calls").ForEach(func(_, call gjson.Result) bool {
			records = append(records, toolCallRecord(threadID, runID, step, call))
			return true
		})
		return true
	})
	return records, nil
}

func toolCallRecord(threadID, runID string, step, call gjson.Result) domain.RunStepRecord {
	rec := domain.RunStepRecord{
		StepID:          step.Get("id").String(),
		RunID:           firstNonEmpty(step.Get("run_id").String(), runID),
		ThreadID:        firstNonEmpty(step.Get("thread_id").String(), threadID),
		ToolCallID:      call.Get("id").String(),
		ToolType:        call.Get("type").String(),
		StepStatus:      step.Get("status").String(),
		StepCreatedAt:   unixTimestamp(step.Get("created_at")),
		StepCompletedAt: unixTimestamp(step.Get("completed_at")),
	}

	switch rec.ToolType {
	case domain.ToolTypeCodeInterpreter, domain.ToolTypeCode:
		rec.CodeInput = call.Get("code_interpreter.input").String()
		call.Get("code_interpreter.outputs").ForEach(func(_, out gjson.Result) bool {
			rec.CodeOutputs = append(rec.CodeOutputs, domain.CodeOutput{
				Type:        out.Get("type").String(),
				Logs:        out.Get("logs").String(),
				ImageFileID: out.Get("image.file_id").String(),
				Error:       out.Get("error").String(),
			})
			return true
		})
	case domain.ToolTypeFunction:
		rec.FunctionName = call.Get("function.name").String()
		rec.FunctionArgs = call.Get("function.arguments").String()
		rec.FunctionOutput = call.Get("function.output").String()
	case domain.ToolTypeFileSearch:
		rec.SearchQuery = call.Get("file_search.query").String()
		call.Get("file_search.results").ForEach(func(_, hit gjson.Result) bool {
			rec.SearchResults = append(rec.SearchResults, domain.SearchResult{
				FileID:   hit.Get("file_id").String(),
				FileName: hit.Get("file_name").String(),
				Score:    hit.Get("score").Float(),
			})
			return true
		})
	}

	rec.Normalize()
	return rec
}

func unixTimestamp(r gjson.Result) string {
	if r.Type != gjson.Number || r.Int() == 0 {
		return ""
	}
	return domain.Timestamp(time.Unix(r.Int(), 0))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
