// Package scheduler implements the Turn Scheduler: the state machine
// that drives one turn of model streaming, the lifecycle of every tool
// call the model requests, the self-continuation loop that re-enters
// the model with tool results, and history-compression policy.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/samsaffron/turnsched/internal/checkpoint"
	"github.com/samsaffron/turnsched/internal/clock"
	"github.com/samsaffron/turnsched/internal/debuglog"
	"github.com/samsaffron/turnsched/internal/demux"
	"github.com/samsaffron/turnsched/internal/history"
	"github.com/samsaffron/turnsched/internal/modelapi"
	"github.com/samsaffron/turnsched/internal/registry"
	"github.com/samsaffron/turnsched/internal/toolapi"
	"github.com/samsaffron/turnsched/internal/toolcall"
)

// Config is the scheduler's own tunables. Everything provider- or
// transport-specific (auth, retries) lives below the Model interface,
// not here.
type Config struct {
	// MaxTurns bounds how many times the model may be re-entered in a
	// single Run call before the loop gives up and returns.
	MaxTurns int
	// CompressionThreshold triggers a compaction when curated-history
	// tokens reach this fraction of the model's context window.
	CompressionThreshold float64
	// MaxOutputChars bounds tool output before it reaches the model.
	// MaxCompactionChars is stored but not read: no separate cap is
	// applied to tool output folded into a compaction summary.
	MaxOutputChars     int
	MaxCompactionChars int
}

// DefaultConfig returns sane defaults: 100 turns, compress at 95% of
// the window, and the toolcall package's default output caps.
func DefaultConfig() Config {
	return Config{
		MaxTurns:             100,
		CompressionThreshold: 0.95,
		MaxOutputChars:       toolcall.DefaultMaxOutputChars,
		MaxCompactionChars:   toolcall.DefaultMaxCompactionChars,
	}
}

// MemoryCollaborator is signalled, fire-and-forget, whenever a
// save_memory tool call completes, per the spec's requirement that the
// scheduler refresh the session's memory collaborator at most once per
// call ID. It is intentionally a narrow interface: this package has no
// opinion on what memory storage looks like, only that something gets
// told a memory was saved.
type MemoryCollaborator interface {
	RefreshMemory(ctx context.Context, callID string, savedContent string)
}

// Approver resolves a tool's confirmation request to an outcome,
// implemented by toolcall.Manager in production and stubbed in tests.
// ctx is observed for cancellation while a prompt is outstanding: a
// cancel token firing during awaiting_approval must resolve to Cancel
// immediately rather than wait for a human who may never answer.
type Approver interface {
	Resolve(ctx context.Context, details *toolapi.ConfirmationDetails) (toolapi.Outcome, error)
}

// Summarizer produces the synthesized summary text used to seed a
// CompressionSnapshot. Kept as an interface so compaction can either
// call back into the same Model (asking it to summarize itself) or a
// cheaper dedicated summarization path.
type Summarizer interface {
	Summarize(ctx context.Context, messages []modelapi.Message) (string, error)
}

// Scheduler drives the agentic loop: stream the model, schedule and
// execute whatever tools it asks for, append results, and decide
// whether to continue, compress, or stop.
type Scheduler struct {
	Model      modelapi.Model
	Registry   *registry.Registry
	History    *history.History
	Approver   Approver
	Memory     MemoryCollaborator
	Summarizer Summarizer
	Config     Config
	Logger     *slog.Logger
	Clock      clock.Clock

	// Checkpoints, if set, receives a pre-execution snapshot of any
	// file an edit-confirming tool is about to overwrite, so the
	// content can be restored later. A nil Checkpoints disables
	// snapshotting entirely.
	Checkpoints *checkpoint.Store

	// Debug, if set, traces every request sent to the model and the
	// text/tool calls it returned, for post-mortem inspection. A nil
	// Debug disables tracing entirely.
	Debug *debuglog.Logger

	interjections chan string
	memorySignalled map[string]bool
	listener        Listener
}

// New constructs a Scheduler. Memory and Summarizer may be nil; a nil
// Memory means save_memory completions are not signalled anywhere, and
// a nil Summarizer disables compaction (tryCompress becomes a no-op).
func New(model modelapi.Model, reg *registry.Registry, hist *history.History, approver Approver, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Model:           model,
		Registry:        reg,
		History:         hist,
		Approver:        approver,
		Config:          cfg,
		Logger:          logger,
		Clock:           clock.Real,
		interjections:   make(chan string, 1),
		memorySignalled: make(map[string]bool),
	}
}

// Interject queues a user message to be spliced into history right
// after the current turn's tool results, before the next model
// re-entry — without waiting for the loop to fully finish. Only the
// most recent interjection is kept if Interject is called again before
// the pending one is drained.
func (s *Scheduler) Interject(text string) {
	for {
		select {
		case s.interjections <- text:
			return
		default:
			select {
			case <-s.interjections:
			default:
			}
		}
	}
}

func (s *Scheduler) drainInterjection() (string, bool) {
	select {
	case text := <-s.interjections:
		return text, true
	default:
		return "", false
	}
}

// Result is what Run returns once the loop stops: the final assistant
// text produced in the last turn, and why the loop stopped.
type Result struct {
	FinalText string
	StopCause StopCause
}

// StopCause explains why Run returned.
type StopCause string

const (
	StopModelFinished   StopCause = "model_finished"
	StopMaxTurns        StopCause = "max_turns_exhausted"
	StopCancelled       StopCause = "cancelled"
	StopFinishingTool   StopCause = "finishing_tool"
)

// Run executes the scheduler's algorithm for one user message. The
// message is appended to history as typed: slash commands, shell mode
// and @path references are neither dispatched nor expanded. Run then
// runs compress, model-stream, schedule-batch, drive-to-terminal,
// next-speaker check, and budget enforcement, looping until the model stops asking for tools, a finishing tool
// completes, MaxTurns is exhausted, or tok is cancelled.
func (s *Scheduler) Run(ctx context.Context, tok *clock.Token, userMessage string) (Result, error) {
	s.History.Append(modelapi.Message{
		Role:  modelapi.RoleUser,
		Parts: []modelapi.Part{{Kind: modelapi.PartText, Text: userMessage}},
	})

	reactiveCompactionDone := false
	var lastText string

	for turn := 0; turn < s.Config.MaxTurns; turn++ {
		if tok.Cancelled() {
			return Result{FinalText: lastText, StopCause: StopCancelled}, nil
		}

		if err := s.tryCompressAndNotify(ctx, false); err != nil {
			s.Logger.Warn("proactive compression failed", "error", err)
		}

		if specs := s.Registry.DrainPending(); len(specs) > 0 {
			s.Logger.Debug("picked up dynamically registered tools", "count", len(specs))
		}

		req := modelapi.Request{
			Messages: history.Curated(s.History.Comprehensive()),
			Tools:    s.Registry.Specs(),
		}

		text, calls, stop, err := s.streamOnce(tok.Context(), turn, req)
		if err != nil {
			if isContextOverflow(err) && !reactiveCompactionDone {
				reactiveCompactionDone = true
				s.Logger.Warn("reactive compaction triggered by context overflow", "error", err)
				if cErr := s.tryCompressAndNotify(ctx, true); cErr != nil {
					return Result{}, fmt.Errorf("reactive compression failed after overflow: %w", cErr)
				}
				turn-- // retry this same turn without consuming budget
				continue
			}
			return Result{}, fmt.Errorf("model stream failed: %w", err)
		}
		lastText = text

		if len(calls) == 0 {
			if s.checkNextSpeaker(tok.Context()) != "model" {
				return Result{FinalText: text, StopCause: StopModelFinished}, nil
			}
			s.History.Append(modelapi.Message{
				Role:  modelapi.RoleUser,
				Parts: []modelapi.Part{{Kind: modelapi.PartText, Text: "Please continue."}},
			})
			continue
		}

		finishing, allCancelled := s.executeBatch(tok.Context(), calls)
		if allCancelled {
			return Result{FinalText: text, StopCause: StopCancelled}, nil
		}

		if msg, ok := s.drainInterjection(); ok {
			s.History.Append(modelapi.Message{
				Role:  modelapi.RoleUser,
				Parts: []modelapi.Part{{Kind: modelapi.PartText, Text: msg}},
			})
		}

		if stop || finishing {
			return Result{FinalText: text, StopCause: StopFinishingTool}, nil
		}
	}

	return Result{FinalText: lastText, StopCause: StopMaxTurns}, nil
}

// streamOnce drains a single model response into assistant text plus
// any requested tool calls, appending the assistant turn to history as
// it completes.
func (s *Scheduler) streamOnce(ctx context.Context, turn int, req modelapi.Request) (text string, calls []*toolcall.ToolCall, modelRequestedStop bool, err error) {
	if s.Debug != nil {
		defer func() {
			var parts []modelapi.Part
			for _, c := range calls {
				parts = append(parts, modelapi.Part{Kind: modelapi.PartFunctionCall, CallID: c.CallID, ToolName: c.ToolName, Arguments: c.Args})
			}
			if rerr := s.Debug.RecordTurn(s.Clock.Now(), turn, req, text, parts, err); rerr != nil {
				s.Logger.Warn("debug trace write failed", "error", rerr)
			}
		}()
	}

	stream, err := s.Model.SendStream(ctx, req)
	if err != nil {
		return "", nil, false, err
	}
	defer stream.Close()

	dmx := demux.New(stream)
	var parts []modelapi.Part
	var textBuf string
	var splitter textSplitter

	for ev := range dmx.Events() {
		switch ev.Kind {
		case demux.EventContent:
			textBuf += ev.Text
			if chunk := splitter.Feed(ev.Text); chunk != "" {
				s.emit(Event{Kind: EventContent, Text: chunk})
			}
		case demux.EventThought:
			// Thoughts go to the listener only; they are never added
			// to the model message this function appends to history.
			s.emit(Event{Kind: EventThought, ThoughtSubject: ev.ThoughtSubject, ThoughtBody: ev.ThoughtBody})
		case demux.EventFunctionCall:
			calls = append(calls, toolcall.New(ev.CallID, ev.ToolName, json.RawMessage(ev.Arguments)))
		case demux.EventError:
			streamErr := ev.Err
			if streamErr == nil {
				streamErr = fmt.Errorf("model stream reported an error with no detail")
			}
			if ev.ContextOverflow {
				return "", nil, false, contextOverflowError{err: streamErr}
			}
			return "", nil, false, streamErr
		case demux.EventUserCancelled:
			modelRequestedStop = true
		case demux.EventUsageMetadata:
			s.emit(Event{Kind: EventUsageMetadata, Usage: ev.Usage})
		case demux.EventDone:
			// nothing to do here: usage is forwarded at the
			// EventUsageMetadata case, and the loop ends when the
			// demultiplexer closes its channel.
		}
	}
	if err := dmx.Err(); err != nil {
		return "", nil, false, err
	}
	if rest := splitter.Flush(); rest != "" {
		s.emit(Event{Kind: EventContent, Text: rest})
	}

	if textBuf != "" {
		parts = append(parts, modelapi.Part{Kind: modelapi.PartText, Text: textBuf})
	}
	for _, c := range calls {
		parts = append(parts, modelapi.Part{Kind: modelapi.PartFunctionCall, CallID: c.CallID, ToolName: c.ToolName, Arguments: c.Args})
	}
	s.History.Append(modelapi.Message{Role: modelapi.RoleModel, Parts: parts})

	calls = dedupeByID(calls)
	return textBuf, calls, modelRequestedStop, nil
}

func dedupeByID(calls []*toolcall.ToolCall) []*toolcall.ToolCall {
	return toolcall.DedupeCalls(calls)
}

// contextOverflowError marks a model-stream error as meaning "history
// too large for the context window", so the scheduler can trigger its
// one-shot reactive compaction retry instead of surfacing a generic
// failure.
type contextOverflowError struct{ err error }

func (e contextOverflowError) Error() string { return e.err.Error() }
func (e contextOverflowError) Unwrap() error { return e.err }

func isContextOverflow(err error) bool {
	_, ok := err.(contextOverflowError)
	return ok
}
