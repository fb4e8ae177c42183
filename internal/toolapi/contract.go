// Package toolapi defines the contract every tool implementation must
// satisfy: parameter validation, a human-readable description, an
// optional confirmation gate, and execution itself. Concrete tools
// (reading files, running shell commands, editing text) are out of
// scope here — this package only names the shape the Tool Call Manager
// and Turn Scheduler depend on.
package toolapi

import (
	"context"
	"encoding/json"
)

// Kind categorizes a tool for permission grouping, mirroring the
// read/edit/search/execute/interactive split the teacher's tool system
// uses for its approval prompts.
type Kind string

const (
	KindRead        Kind = "read"
	KindEdit        Kind = "edit"
	KindSearch      Kind = "search"
	KindExecute     Kind = "execute"
	KindInteractive Kind = "interactive"
)

// ConfirmationKind discriminates the tagged variants of
// ConfirmationDetails. Exactly one of the corresponding fields on
// ConfirmationDetails is meaningful per Kind — a sum type expressed as
// a tagged struct rather than an untyped map, per the redesign note on
// string-discriminated variants.
type ConfirmationKind string

const (
	ConfirmEdit ConfirmationKind = "edit"
	ConfirmExec ConfirmationKind = "exec"
	ConfirmMCP  ConfirmationKind = "mcp"
	ConfirmInfo ConfirmationKind = "info"
)

// ConfirmationDetails is what a tool's ShouldConfirm returns to describe
// what it's about to do, so the Tool Call Manager can render an
// approval prompt and remember the user's answer at the right scope.
type ConfirmationDetails struct {
	Kind ConfirmationKind

	// ConfirmEdit
	FilePath string
	OldText  string
	NewText  string

	// ConfirmExec
	Command string

	// ConfirmMCP
	ServerName  string
	ToolName    string
	DisplayName string

	// ConfirmInfo
	Prompt string
	URLs   []string
}

// Outcome is the user's answer to a confirmation prompt.
type Outcome string

const (
	ProceedOnce          Outcome = "once"
	ProceedAlways        Outcome = "always"
	ProceedAlwaysAndSave Outcome = "always_save"
	Cancel               Outcome = "cancel"
)

// ErrorType classifies tool execution failures for scheduler-level
// retry/reporting decisions.
type ErrorType string

const (
	ErrValidation  ErrorType = "validation_error"
	ErrNotFound    ErrorType = "not_found"
	ErrExecution   ErrorType = "execution_error"
	ErrCancelled   ErrorType = "cancelled"
	ErrPermission  ErrorType = "permission_denied"
	ErrTimeout     ErrorType = "timeout"
)

// Error is a structured tool failure, carried through the scheduler as
// a typed value rather than re-parsed from a string.
type Error struct {
	Type    ErrorType
	Message string
}

func (e *Error) Error() string { return string(e.Type) + ": " + e.Message }

// NewError constructs a tool Error of the given type.
func NewError(t ErrorType, message string) *Error { return &Error{Type: t, Message: message} }

// LLMContentKind discriminates the four shapes a tool's successful
// Output.LLMContent can take, per the response-conversion rules the
// Tool Call Manager applies before a result re-enters history:
//   - a bare string (LLMContentString, the zero value)
//   - a list of parts, following a synthetic success response
//   - a single part already shaped as a nested function response, which
//     gets flattened rather than nested a second time
//   - a part carrying inline/file data, noted by mime type before the
//     raw part is forwarded
type LLMContentKind string

const (
	LLMContentString        LLMContentKind = ""
	LLMContentParts         LLMContentKind = "parts"
	LLMContentNestedResponse LLMContentKind = "nested_response"
	LLMContentInlineData    LLMContentKind = "inline_data"
)

// ContentPart is one part of a multi-part LLMContent value: either
// plain text, or opaque binary data tagged with its mime type.
type ContentPart struct {
	Text string

	MIMEType string
	Data     []byte
}

// Output is what a tool's Execute returns: the content sent back to
// the model and, optionally, a richer display form for a human-facing
// surface (diffs, images) that the model never sees.
type Output struct {
	// LLMContentKind selects which of the fields below is populated.
	// The zero value, LLMContentString, is the common case and keeps
	// Output{LLMContent: "..."} working unchanged for tools that only
	// ever return plain text.
	LLMContentKind LLMContentKind

	LLMContent string // LLMContentString

	// Parts holds the follow-on parts for LLMContentParts (the tool's
	// own multi-part content) and LLMContentInlineData (the raw
	// inline/file data parts), appended after a synthetic success
	// response.
	Parts []ContentPart

	// NestedText is the flattened text of a nested function-response's
	// content, for LLMContentNestedResponse. NestedBinaryDropped
	// records whether that nested content also carried a binary part,
	// which is dropped rather than re-nested (see DESIGN.md's Open
	// Question decision on nested functionResponse content).
	NestedText          string
	NestedBinaryDropped bool

	DisplayContent string
	IsError        bool
}

// Tool is the contract every tool implementation satisfies.
type Tool interface {
	// Name is the identifier the model uses to call this tool.
	Name() string
	// Describe returns the JSON schema and description advertised to
	// the model.
	Describe() (description string, schema map[string]any)
	// ValidateParams checks raw arguments before scheduling, so
	// malformed calls fail fast without ever reaching Execute.
	ValidateParams(args json.RawMessage) error
	// ShouldConfirm returns confirmation details if this invocation
	// needs user approval before executing, or nil if it can proceed
	// unconfirmed (e.g. a pure read with no side effects).
	ShouldConfirm(ctx context.Context, args json.RawMessage) (*ConfirmationDetails, error)
	// Execute runs the tool. If CanStreamOutput reports true, the
	// scheduler passes a non-nil onLiveOutput invoked with incremental
	// output chunks as they become available; tools that don't stream
	// receive nil and must tolerate it. Implementations must return
	// promptly after ctx is cancelled.
	Execute(ctx context.Context, args json.RawMessage, onLiveOutput func(chunk string)) (Output, error)
	// Kind reports this tool's permission category.
	Kind() Kind
	// IsOutputMarkdown reports whether a human-facing surface should
	// render this tool's DisplayContent/LLMContent as markdown.
	IsOutputMarkdown() bool
	// CanStreamOutput reports whether Execute invokes onLiveOutput.
	CanStreamOutput() bool
}

// Finishing is an optional interface a Tool can implement to signal
// that, once it completes, the turn loop should stop continuing even
// if the model would otherwise keep going.
type Finishing interface {
	IsFinishingTool() bool
}

// Modifiable is an optional interface for tools whose proposed change
// can be handed to an external editor before execution (the
// edit-corrector collaborator), letting the user adjust the tool's
// arguments rather than only approve or deny them.
type Modifiable interface {
	// ModifyInEditor returns possibly-revised arguments after the user
	// edits the proposed change, or the original args unchanged if the
	// user declined to edit.
	ModifyInEditor(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
}
