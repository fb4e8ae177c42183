package toolcall

import (
	"fmt"
	"log/slog"

	"github.com/samsaffron/turnsched/internal/modelapi"
	"github.com/samsaffron/turnsched/internal/toolapi"
)

// Manager-level output limits. MaxOutputChars bounds what ever reaches
// the model. DefaultMaxCompactionChars is the default for the
// scheduler's MaxCompactionChars setting, which no code path applies.
const (
	DefaultMaxOutputChars     = 30000
	DefaultMaxCompactionChars = 4000
)

// Truncate caps s at max characters, appending a marker noting how much
// was cut so the model isn't left thinking the output simply ended.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := len(s) - max
	return s[:max] + fmt.Sprintf("\n... [truncated %d characters]", cut)
}

// ToFunctionResponseParts converts a finished ToolCall into the
// function-response parts that get appended to history and sent back
// to the model, following the response-conversion rules for whichever
// LLMContentKind the tool returned on success:
//   - a bare string becomes one function-response part
//   - a list of parts becomes a synthetic success response followed by
//     the tool's own parts
//   - a nested function response is flattened to text and wrapped
//   - inline/file data becomes a synthetic response noting the mime
//     type, followed by the raw data part
//
// Output is truncated to maxOutputChars first. Calling this when the
// call isn't terminal is a programming error and panics, since only a
// terminal call has an Outcome/Err to convert.
func ToFunctionResponseParts(tc *ToolCall, maxOutputChars int, logger *slog.Logger) []modelapi.Part {
	status, toolErr := tc.Snapshot()
	if !status.Terminal() {
		panic(fmt.Sprintf("toolcall %s: ToFunctionResponseParts called before terminal state (status=%s)", tc.CallID, status))
	}

	switch status {
	case StatusSuccess:
		return successParts(tc, maxOutputChars, logger)
	case StatusError:
		msg := "tool execution failed"
		if toolErr != nil {
			msg = toolErr.Error()
		}
		return []modelapi.Part{{
			Kind:          modelapi.PartFunctionResult,
			CallID:        tc.CallID,
			ToolName:      tc.ToolName,
			ResultContent: msg,
			ResultIsError: true,
		}}
	default: // StatusCancelled
		return []modelapi.Part{{
			Kind:          modelapi.PartFunctionResult,
			CallID:        tc.CallID,
			ToolName:      tc.ToolName,
			ResultContent: "cancelled before completion",
			ResultIsError: true,
		}}
	}
}

func successParts(tc *ToolCall, maxOutputChars int, logger *slog.Logger) []modelapi.Part {
	out := tc.Outcome
	result := func(content string) modelapi.Part {
		return modelapi.Part{
			Kind:          modelapi.PartFunctionResult,
			CallID:        tc.CallID,
			ToolName:      tc.ToolName,
			ResultContent: Truncate(content, maxOutputChars),
			ResultIsError: out.IsError,
		}
	}

	switch out.LLMContentKind {
	case toolapi.LLMContentParts:
		parts := []modelapi.Part{result("ok")}
		for _, p := range out.Parts {
			parts = append(parts, modelapi.Part{Kind: modelapi.PartText, Text: p.Text})
		}
		return parts

	case toolapi.LLMContentInlineData:
		mime := "application/octet-stream"
		if len(out.Parts) > 0 && out.Parts[0].MIMEType != "" {
			mime = out.Parts[0].MIMEType
		}
		parts := []modelapi.Part{result(fmt.Sprintf("returned %s content", mime))}
		for _, p := range out.Parts {
			parts = append(parts, modelapi.Part{Kind: modelapi.PartInlineData, MIMEType: p.MIMEType, Data: p.Data})
		}
		return parts

	case toolapi.LLMContentNestedResponse:
		if out.NestedBinaryDropped && logger != nil {
			logger.Warn("dropped binary part from nested function-response content", "call_id", tc.CallID, "tool", tc.ToolName)
		}
		return []modelapi.Part{result(out.NestedText)}

	default: // LLMContentString
		return []modelapi.Part{result(out.LLMContent)}
	}
}

// DedupeCalls drops any call whose CallID repeats an earlier one in the
// batch, keeping the first occurrence. A model occasionally emits the
// same call ID twice in one turn (a transport retry artifact); the
// scheduler must never execute or respond to a tool call ID more than
// once.
func DedupeCalls(calls []*ToolCall) []*ToolCall {
	seen := make(map[string]bool, len(calls))
	out := make([]*ToolCall, 0, len(calls))
	for _, c := range calls {
		if seen[c.CallID] {
			continue
		}
		seen[c.CallID] = true
		out = append(out, c)
	}
	return out
}
