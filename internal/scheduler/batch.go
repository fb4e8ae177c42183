package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/samsaffron/turnsched/internal/clock"
	"github.com/samsaffron/turnsched/internal/modelapi"
	"github.com/samsaffron/turnsched/internal/toolapi"
	"github.com/samsaffron/turnsched/internal/toolcall"
)

// memoryCallbackTimeout bounds how long a detached RefreshMemory
// callback may run after its originating turn was cancelled.
const memoryCallbackTimeout = 5 * time.Second

func detachedContext() (context.Context, context.CancelFunc) {
	return clock.Detach(memoryCallbackTimeout)
}

// executeBatch drives every call in one model turn from validating
// through a terminal state, running unrelated calls in parallel while
// reassembling their function-response parts in request order (index-
// tagged channel pattern). It reports whether any finishing tool
// completed, and whether every call in the batch ended cancelled — in
// which case the caller must not re-enter the model: the batch's
// error-responses are still appended to history, but the turn
// terminates instead of continuing. A call that isn't registered is
// resolved to a not-found error without ever leaving the validating
// state's successors.
func (s *Scheduler) executeBatch(ctx context.Context, calls []*toolcall.ToolCall) (finishing, allCancelled bool) {
	type indexed struct {
		i     int
		parts []modelapi.Part
	}
	results := make(chan indexed, len(calls))

	for i, call := range calls {
		go func(i int, call *toolcall.ToolCall) {
			s.runOne(ctx, call)
			results <- indexed{i: i, parts: toolcall.ToFunctionResponseParts(call, s.Config.MaxOutputChars, s.Logger)}
		}(i, call)
	}

	partsByIndex := make([][]modelapi.Part, len(calls))
	for range calls {
		r := <-results
		partsByIndex[r.i] = r.parts
	}

	msg := modelapi.Message{Role: modelapi.RoleUser}
	allCancelled = len(calls) > 0
	for i, call := range calls {
		msg.Parts = append(msg.Parts, partsByIndex[i]...)
		status, _ := call.Snapshot()
		if status != toolcall.StatusCancelled {
			allCancelled = false
		}
		if call.MarkResponseSubmitted() && s.Registry.IsFinishingTool(call.ToolName) {
			if status == toolcall.StatusSuccess {
				finishing = true
			}
		}
		if call.ToolName == "save_memory" {
			s.signalMemory(call)
		}
	}
	s.History.Append(msg)
	s.emit(Event{Kind: EventToolCallsUpdated, ToolCalls: calls})
	return finishing, allCancelled
}

// runOne drives a single call from validating through a terminal
// state: lookup, validation, confirmation gating, and execution. It
// recovers from a panicking tool so one misbehaving tool can't take
// the whole batch down. On a terminal failure it emits a user-facing
// EventInfo ("User cancelled the request.") or EventErrorItem line, per
// the error taxonomy that distinguishes a user-initiated cancel from
// any other failure.
func (s *Scheduler) runOne(ctx context.Context, call *toolcall.ToolCall) {
	defer func() {
		if r := recover(); r != nil {
			if call.MarkError(toolapi.NewError(toolapi.ErrExecution, "tool panicked")) == nil {
				s.emit(Event{Kind: EventErrorItem, Text: "tool panicked"})
			}
		}
	}()

	tool, ok := s.Registry.Get(call.ToolName)
	if !ok {
		msg := "unknown tool: " + call.ToolName
		if suggestions := s.Registry.SuggestClosest(call.ToolName, 3); len(suggestions) > 0 {
			msg += " (did you mean: " + strings.Join(suggestions, ", ") + "?)"
		}
		_ = call.Transition(toolcall.StatusScheduled)
		_ = call.Transition(toolcall.StatusExecuting)
		s.markError(call, toolapi.NewError(toolapi.ErrNotFound, msg))
		return
	}

	if err := tool.ValidateParams(call.Args); err != nil {
		_ = call.Transition(toolcall.StatusScheduled)
		_ = call.Transition(toolcall.StatusExecuting)
		s.markError(call, toolapi.NewError(toolapi.ErrValidation, err.Error()))
		return
	}

	details, err := tool.ShouldConfirm(ctx, call.Args)
	if err != nil {
		_ = call.Transition(toolcall.StatusScheduled)
		_ = call.Transition(toolcall.StatusExecuting)
		s.markError(call, toolapi.NewError(toolapi.ErrExecution, err.Error()))
		return
	}

	if details != nil {
		if terr := call.Transition(toolcall.StatusAwaitingApproval); terr != nil {
			return
		}
		details.ToolName = call.ToolName
		outcome, err := s.Approver.Resolve(ctx, details)
		if err != nil || outcome == toolapi.Cancel {
			s.markCancelled(call)
			return
		}
		s.saveCheckpoint(call, details)
	}

	if err := call.Transition(toolcall.StatusScheduled); err != nil {
		return
	}
	if err := call.Transition(toolcall.StatusExecuting); err != nil {
		return
	}
	if ctx.Err() != nil {
		s.markCancelled(call)
		return
	}

	var onLiveOutput func(string)
	if tool.CanStreamOutput() {
		onLiveOutput = func(chunk string) {
			call.SetLiveOutput(chunk)
			s.emit(Event{Kind: EventToolCallsUpdated, ToolCalls: []*toolcall.ToolCall{call}})
		}
	}

	out, err := tool.Execute(ctx, call.Args, onLiveOutput)
	if err != nil {
		if toolErr, ok := err.(*toolapi.Error); ok {
			s.markError(call, toolErr)
		} else {
			s.markError(call, toolapi.NewError(toolapi.ErrExecution, err.Error()))
		}
		return
	}
	_ = call.MarkSuccess(out)
}

// markCancelled transitions call to cancelled and emits the exact
// user-facing line the spec's error taxonomy requires for a
// user-initiated cancellation, distinct from any other failure.
func (s *Scheduler) markCancelled(call *toolcall.ToolCall) {
	if status, _ := call.Snapshot(); status.Terminal() {
		return
	}
	call.MarkCancelled()
	s.emit(Event{Kind: EventInfo, Text: "User cancelled the request."})
}

// markError transitions call to error and emits the failure as an
// EventErrorItem, the non-cancellation half of the error taxonomy.
func (s *Scheduler) markError(call *toolcall.ToolCall, toolErr *toolapi.Error) {
	if call.MarkError(toolErr) != nil {
		return
	}
	s.emit(Event{Kind: EventErrorItem, Text: toolErr.Error()})
}

// saveCheckpoint snapshots the conversation and a file's pre-edit
// content before an edit-confirming tool runs, so both can be rolled
// back together. A nil Checkpoints store, or a confirmation that isn't
// an edit, is a no-op.
func (s *Scheduler) saveCheckpoint(call *toolcall.ToolCall, details *toolapi.ConfirmationDetails) {
	if s.Checkpoints == nil || details.Kind != toolapi.ConfirmEdit {
		return
	}
	history := s.History.Comprehensive()
	if _, err := s.Checkpoints.Save(s.Clock.Now(), history, history, call.ToolName, call.Args, details.FilePath, details.OldText); err != nil {
		s.Logger.Warn("checkpoint save failed", "error", err, "call_id", call.CallID)
	}
}

// signalMemory notifies the memory collaborator at most once per call
// ID, fire-and-forget, on a context detached from the current turn so
// the refresh survives the turn being cancelled.
func (s *Scheduler) signalMemory(call *toolcall.ToolCall) {
	if s.Memory == nil {
		return
	}
	if s.memorySignalled[call.CallID] {
		return
	}
	s.memorySignalled[call.CallID] = true
	status, _ := call.Snapshot()
	if status != toolcall.StatusSuccess {
		return
	}
	callID, content := call.CallID, call.Outcome.LLMContent
	go func() {
		detached, cancel := detachedContext()
		defer cancel()
		s.Memory.RefreshMemory(detached, callID, content)
	}()
}
