package scheduler

import (
	"github.com/samsaffron/turnsched/internal/modelapi"
	"github.com/samsaffron/turnsched/internal/toolcall"
)

// EventKind discriminates the tagged variants of Event.
type EventKind string

const (
	// EventContent carries a chunk of assistant text as it becomes safe
	// to render (see textSplitter).
	EventContent EventKind = "content"
	// EventThought carries a chunk of the model's reasoning trace.
	EventThought EventKind = "thought"
	// EventUsageMetadata reports token accounting for a single turn.
	EventUsageMetadata EventKind = "usage_metadata"
	// EventChatCompressed reports that history was just compacted.
	EventChatCompressed EventKind = "chat_compressed"
	// EventToolCallsUpdated reports a change in the live state of the
	// in-flight batch: a new live-output chunk, or a call reaching a
	// terminal status.
	EventToolCallsUpdated EventKind = "tool_calls_updated"
	// EventInfo carries a user-facing informational line that isn't
	// assistant text (e.g. "User cancelled the request.").
	EventInfo EventKind = "info"
	// EventErrorItem carries a user-facing error line appended to
	// history after a non-cancellation failure.
	EventErrorItem EventKind = "error"
)

// Event is one update the scheduler pushes to a registered listener as
// Run executes, in the order the underlying stream or batch produced
// them.
type Event struct {
	Kind EventKind

	Text string // EventContent, EventInfo, EventErrorItem

	ThoughtSubject string // EventThought
	ThoughtBody    string // EventThought

	Usage modelapi.Usage // EventUsageMetadata

	OriginalTokenCount int // EventChatCompressed
	NewTokenCount      int // EventChatCompressed

	ToolCalls []*toolcall.ToolCall // EventToolCallsUpdated
}

// Listener receives every Event a Scheduler emits.
type Listener func(Event)

// OnUpdate registers listener as the scheduler's event-stream
// consumer. Only one listener is kept at a time; a later call replaces
// an earlier one, and passing nil detaches whatever was registered.
func (s *Scheduler) OnUpdate(listener Listener) {
	s.listener = listener
}

// emit forwards ev to the registered listener, if any. Listener panics
// are not recovered here: a listener is caller-supplied code running
// on the scheduler's own goroutine, same as any other synchronous
// callback in this codebase.
func (s *Scheduler) emit(ev Event) {
	if s.listener != nil {
		s.listener(ev)
	}
}
