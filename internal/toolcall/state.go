// Package toolcall implements the Tool Call Manager: the per-call
// state machine from validation through a terminal state, the
// approval-memory cache backing confirmation gating, and the
// conversion of a finished call into the function-response parts that
// re-enter history.
package toolcall

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/samsaffron/turnsched/internal/toolapi"
)

// Status is one state in the ToolCall lifecycle.
type Status string

const (
	StatusValidating      Status = "validating"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusScheduled       Status = "scheduled"
	StatusExecuting       Status = "executing"
	StatusSuccess         Status = "success"
	StatusError           Status = "error"
	StatusCancelled       Status = "cancelled"
)

// Terminal reports whether a status is one the state machine cannot
// leave.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusCancelled
}

var validTransitions = map[Status]map[Status]bool{
	StatusValidating:       {StatusAwaitingApproval: true, StatusScheduled: true, StatusError: true, StatusCancelled: true},
	StatusAwaitingApproval: {StatusScheduled: true, StatusCancelled: true},
	StatusScheduled:        {StatusExecuting: true, StatusCancelled: true},
	StatusExecuting:        {StatusSuccess: true, StatusError: true, StatusCancelled: true},
}

// ToolCall tracks one requested tool invocation from the moment the
// model asks for it through a terminal outcome. Once Status is
// terminal, every field is immutable except ResponseSubmitted, which
// may flip from false to true exactly once when the result is handed
// back to the model.
type ToolCall struct {
	mu sync.Mutex

	CallID   string
	ToolName string
	Args     json.RawMessage

	Status Status

	Confirmation *toolapi.ConfirmationDetails
	Outcome      toolapi.Output
	Err          *toolapi.Error

	// ResponseSubmitted is true once this call's result has been
	// converted into a function-response part and appended to history.
	// It can only be set once, even if the scheduler revisits this call
	// (e.g. while reassembling an out-of-order parallel batch).
	ResponseSubmitted bool

	// LiveOutput holds the most recent chunk a streaming tool reported
	// via its onLiveOutput callback. Historical chunks are not
	// retained; only the latest one is kept.
	LiveOutput string
}

// New creates a ToolCall in the validating state.
func New(callID, toolName string, args json.RawMessage) *ToolCall {
	return &ToolCall{CallID: callID, ToolName: toolName, Args: args, Status: StatusValidating}
}

// Transition moves the call to a new status, returning an error if the
// transition is not permitted or the call is already terminal.
func (tc *ToolCall) Transition(to Status) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.Status.Terminal() {
		return fmt.Errorf("toolcall %s: cannot transition out of terminal status %s", tc.CallID, tc.Status)
	}
	if !validTransitions[tc.Status][to] {
		return fmt.Errorf("toolcall %s: invalid transition %s -> %s", tc.CallID, tc.Status, to)
	}
	tc.Status = to
	return nil
}

// MarkSuccess transitions to StatusSuccess carrying the tool's output.
func (tc *ToolCall) MarkSuccess(out toolapi.Output) error {
	if err := tc.Transition(StatusSuccess); err != nil {
		return err
	}
	tc.mu.Lock()
	tc.Outcome = out
	tc.mu.Unlock()
	return nil
}

// MarkError transitions to StatusError carrying the failure.
func (tc *ToolCall) MarkError(err *toolapi.Error) error {
	if terr := tc.Transition(StatusError); terr != nil {
		return terr
	}
	tc.mu.Lock()
	tc.Err = err
	tc.mu.Unlock()
	return nil
}

// MarkCancelled transitions to StatusCancelled from any non-terminal
// state. Unlike other transitions this is permitted from every
// non-terminal status, since cancellation can observe the call at any
// suspension point.
func (tc *ToolCall) MarkCancelled() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.Status.Terminal() {
		return
	}
	tc.Status = StatusCancelled
}

// MarkResponseSubmitted sets the one-shot submitted flag. Returns false
// if it was already set, so a caller can tell whether this is the call
// that actually appended the response.
func (tc *ToolCall) MarkResponseSubmitted() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.ResponseSubmitted {
		return false
	}
	tc.ResponseSubmitted = true
	return true
}

// SetLiveOutput records the latest chunk reported by a streaming
// tool's onLiveOutput callback, overwriting whatever chunk preceded it.
func (tc *ToolCall) SetLiveOutput(chunk string) {
	tc.mu.Lock()
	tc.LiveOutput = chunk
	tc.mu.Unlock()
}

// Snapshot returns a copy of the call's current status and error for
// read-only inspection without holding the lock.
func (tc *ToolCall) Snapshot() (Status, *toolapi.Error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.Status, tc.Err
}
