// Package modelapi defines the wire-level contract between the Turn
// Scheduler and a model transport: requests, streamed events, and the
// Model interface itself. The transport's own networking, retries, and
// provider-specific wire formats live below this interface and are out
// of scope here — modelapi only names the shapes that cross it.
package modelapi

import (
	"context"
	"encoding/json"
)

// Role identifies who produced a Message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleModel  Role = "model"
)

// PartKind discriminates the tagged variants of Part. Only one of the
// corresponding fields on Part is populated per Kind.
type PartKind string

const (
	PartText           PartKind = "text"
	PartThought        PartKind = "thought"
	PartFunctionCall   PartKind = "function_call"
	PartFunctionResult PartKind = "function_result"
	// PartInlineData carries opaque binary content (an image, a file)
	// alongside a function response, per the "part with inlineData/
	// fileData" response-conversion shape.
	PartInlineData PartKind = "inline_data"
)

// Part is a single tagged-union fragment of a Message. Using an
// explicit Kind discriminant with typed payload fields (rather than a
// bag of optional strings) keeps callers from having to guess which
// fields are meaningful for a given part.
type Part struct {
	Kind PartKind

	Text string // PartText, PartThought (body after the "**subject**" prefix is stripped)

	ThoughtSubject string // PartThought only; parsed out of the "**subject**" convention

	CallID    string // PartFunctionCall, PartFunctionResult
	ToolName  string // PartFunctionCall, PartFunctionResult
	Arguments []byte // PartFunctionCall: raw JSON arguments

	ResultContent string // PartFunctionResult: text content returned to the model
	ResultIsError bool   // PartFunctionResult

	MIMEType string // PartInlineData
	Data     []byte // PartInlineData
}

// Message is one turn of conversation history: a role plus an ordered
// list of parts.
type Message struct {
	Role  Role
	Parts []Part
}

// ToolSpec describes one callable tool as advertised to the model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
	MCPServer   string // non-empty if this tool came from an MCP server
}

// ToolChoice constrains whether/which tool the model must call.
type ToolChoice struct {
	Mode string // "auto", "none", "required", "named"
	Name string // only when Mode == "named"
}

// Capabilities describes what a Model transport natively supports, so
// the scheduler's dispatch step can decide things like whether to
// inject a synthetic web-search tool rather than hardcoding per-model
// behavior.
type Capabilities struct {
	ToolCalls       bool
	NativeWebSearch bool
	Thoughts        bool
}

// Usage reports token accounting for a single model response.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	ThoughtsTokens  int
	CachedTokens    int
	TotalTokens     int
}

// Request is one call into the model transport: full message history,
// the tools currently on offer, and an optional constraint on tool use.
type Request struct {
	System     string
	Messages   []Message
	Tools      []ToolSpec
	ToolChoice *ToolChoice
}

// RawEventKind discriminates the low-level events a Model transport
// emits while streaming a response. These are lower-level than
// demux.StreamEvent: a transport emits RawEvents, and the Stream
// Demultiplexer turns them into the scheduler-facing StreamEvent type,
// parsing thought-part conventions and synthesizing call IDs along the
// way.
type RawEventKind string

const (
	RawTextDelta     RawEventKind = "text_delta"
	RawThoughtDelta  RawEventKind = "thought_delta"
	RawFunctionCall  RawEventKind = "function_call"
	RawUsageMetadata RawEventKind = "usage_metadata"
	RawError         RawEventKind = "error"
	RawDone          RawEventKind = "done"
)

// RawEvent is a single event emitted by a Model transport's stream.
type RawEvent struct {
	Kind RawEventKind

	TextDelta string // RawTextDelta, RawThoughtDelta

	CallID    string // RawFunctionCall; empty means the scheduler must synthesize one
	ToolName  string // RawFunctionCall
	Arguments []byte // RawFunctionCall

	Usage Usage // RawUsageMetadata

	Err error // RawError

	ContextOverflow bool // RawError: true if this error means "history too large", triggering reactive compaction
}

// Stream is the live, per-request event source a Model transport
// returns from SendStream. Implementations must close Events when the
// underlying connection ends, and Err reports any terminal transport
// error after Events closes.
type Stream interface {
	Events() <-chan RawEvent
	Close() error
	Err() error
}

// Model is the narrow interface the scheduler depends on for talking
// to a language model. Authentication, retries, and wire formats are
// the transport's concern, not the scheduler's.
type Model interface {
	Capabilities() Capabilities
	SendStream(ctx context.Context, req Request) (Stream, error)
	// CountTokens estimates the token size of messages, used by the
	// scheduler's compression threshold check. Implementations may
	// approximate rather than calling out to the provider.
	CountTokens(messages []Message) (int, error)
	// TokenLimit is the model's input context window, used as the
	// denominator for the compression threshold.
	TokenLimit() int
	// GenerateJSON issues a single non-streaming completion constrained
	// to return JSON matching schema, used by the scheduler's
	// next-speaker check and any other auxiliary classification that
	// needs a structured answer rather than free text.
	GenerateJSON(ctx context.Context, messages []Message, schema map[string]any) (json.RawMessage, error)
}
