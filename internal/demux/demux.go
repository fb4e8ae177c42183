// Package demux implements the Stream Demultiplexer: it turns a Model
// transport's raw event stream into the typed StreamEvent values the
// Turn Scheduler consumes, synthesizing tool-call IDs when a transport
// omits them and parsing the "**subject**"-prefixed thought convention
// into a structured subject/body pair.
package demux

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/samsaffron/turnsched/internal/modelapi"
)

// StreamEventKind discriminates the typed events the scheduler reacts
// to while draining a turn's model stream.
type StreamEventKind string

const (
	EventContent       StreamEventKind = "content"
	EventThought       StreamEventKind = "thought"
	EventFunctionCall  StreamEventKind = "function_call"
	EventUsageMetadata StreamEventKind = "usage_metadata"
	EventError         StreamEventKind = "error"
	EventUserCancelled StreamEventKind = "user_cancelled"
	EventDone          StreamEventKind = "done"
)

// StreamEvent is one typed event produced by demultiplexing a model
// stream, ready for the scheduler to dispatch on without re-parsing
// transport-specific shapes.
type StreamEvent struct {
	Kind StreamEventKind

	Text string // EventContent

	ThoughtSubject string // EventThought
	ThoughtBody    string // EventThought

	CallID    string // EventFunctionCall: always non-empty, synthesized if the transport omitted one
	ToolName  string // EventFunctionCall
	Arguments []byte // EventFunctionCall

	Usage modelapi.Usage // EventUsageMetadata

	Err             error // EventError
	ContextOverflow bool  // EventError
}

// Demultiplexer converts a modelapi.Stream into typed StreamEvents.
// It is stateless across the events it converts except for pending
// call-ID synthesis bookkeeping, so a fresh Demultiplexer should be
// created per turn.
type Demultiplexer struct {
	stream modelapi.Stream
	toolName string // name of the tool currently being synthesized an ID for, if arguments arrive split across raw events
}

// New wraps a raw model Stream for demultiplexing.
func New(stream modelapi.Stream) *Demultiplexer {
	return &Demultiplexer{stream: stream}
}

// Events returns the channel of typed events. The channel closes when
// the underlying raw stream closes; callers should check Err after it
// closes to distinguish clean completion from a transport failure.
func (d *Demultiplexer) Events() <-chan StreamEvent {
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		for raw := range d.stream.Events() {
			out <- d.convert(raw)
		}
	}()
	return out
}

// Err reports the terminal error of the underlying stream, if any.
func (d *Demultiplexer) Err() error { return d.stream.Err() }

// Close releases the underlying stream.
func (d *Demultiplexer) Close() error { return d.stream.Close() }

func (d *Demultiplexer) convert(raw modelapi.RawEvent) StreamEvent {
	switch raw.Kind {
	case modelapi.RawTextDelta:
		return StreamEvent{Kind: EventContent, Text: raw.TextDelta}

	case modelapi.RawThoughtDelta:
		subject, body := ParseThought(raw.TextDelta)
		return StreamEvent{Kind: EventThought, ThoughtSubject: subject, ThoughtBody: body}

	case modelapi.RawFunctionCall:
		callID := raw.CallID
		if callID == "" {
			callID = synthesizeCallID(raw.ToolName)
		}
		return StreamEvent{
			Kind:      EventFunctionCall,
			CallID:    callID,
			ToolName:  raw.ToolName,
			Arguments: raw.Arguments,
		}

	case modelapi.RawUsageMetadata:
		return StreamEvent{Kind: EventUsageMetadata, Usage: raw.Usage}

	case modelapi.RawError:
		return StreamEvent{Kind: EventError, Err: raw.Err, ContextOverflow: raw.ContextOverflow}

	case modelapi.RawDone:
		return StreamEvent{Kind: EventDone}

	default:
		return StreamEvent{Kind: EventError, Err: fmt.Errorf("demux: unknown raw event kind %q", raw.Kind)}
	}
}

// ParseThought splits a thought delta on the "**subject**" convention:
// a thought part that begins with a bold-wrapped subject line is split
// into (subject, remaining body); a thought with no such prefix returns
// an empty subject and the whole text as body. This convention is
// fragile by nature (it depends on the model consistently bolding a
// short subject at the start of each thought), which is why it is
// isolated here with its own tests rather than inlined into the general
// event-conversion path.
func ParseThought(text string) (subject, body string) {
	trimmed := strings.TrimLeft(text, " \t\n")
	if !strings.HasPrefix(trimmed, "**") {
		return "", text
	}
	rest := trimmed[2:]
	end := strings.Index(rest, "**")
	if end < 0 {
		return "", text
	}
	subject = strings.TrimSpace(rest[:end])
	body = strings.TrimLeft(rest[end+2:], " \t\n")
	if subject == "" {
		return "", text
	}
	return subject, body
}

// synthesizeCallID produces a call ID in the <toolName>-<millis>-<hex>
// shape used when a transport's function-call event arrives without
// one, mirroring the scheme the teacher engine falls back to.
func synthesizeCallID(toolName string) string {
	if toolName == "" {
		toolName = "tool"
	}
	var buf [3]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("%s-%d-%s", toolName, time.Now().UnixMilli(), hex.EncodeToString(buf[:]))
}
