package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"io"
	"sync/atomic"
	"testing"

	"github.com/samsaffron/turnsched/internal/clock"
	"github.com/samsaffron/turnsched/internal/history"
	"github.com/samsaffron/turnsched/internal/modelapi"
	"github.com/samsaffron/turnsched/internal/registry"
	"github.com/samsaffron/turnsched/internal/toolapi"
)

// fakeStream replays a fixed sequence of RawEvents.
type fakeStream struct {
	events chan modelapi.RawEvent
}

func (f *fakeStream) Events() <-chan modelapi.RawEvent { return f.events }
func (f *fakeStream) Close() error                     { return nil }
func (f *fakeStream) Err() error                       { return nil }

func newFakeStream(events ...modelapi.RawEvent) *fakeStream {
	ch := make(chan modelapi.RawEvent, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return &fakeStream{events: ch}
}

// scriptedModel returns a queued stream per call, so a test can script
// a multi-turn exchange: first response calls a tool, second responds
// with final text.
type scriptedModel struct {
	responses []*fakeStream
	call      int
}

func (m *scriptedModel) Capabilities() modelapi.Capabilities { return modelapi.Capabilities{ToolCalls: true} }
func (m *scriptedModel) SendStream(ctx context.Context, req modelapi.Request) (modelapi.Stream, error) {
	s := m.responses[m.call]
	m.call++
	return s, nil
}
func (m *scriptedModel) CountTokens(messages []modelapi.Message) (int, error) { return len(messages), nil }
func (m *scriptedModel) TokenLimit() int                                     { return 1000000 }

// GenerateJSON has no script of its own in these tests; it always
// errors, so checkNextSpeaker falls back to "user" and every existing
// test's stop behavior is unaffected by the next-speaker check.
func (m *scriptedModel) GenerateJSON(ctx context.Context, messages []modelapi.Message, schema map[string]any) (json.RawMessage, error) {
	return nil, fmt.Errorf("scriptedModel: GenerateJSON not configured")
}

type echoTool struct {
	executed atomic.Int32
}

func (t *echoTool) Name() string { return "echo" }
func (t *echoTool) Describe() (string, map[string]any) {
	return "echoes input", map[string]any{"type": "object"}
}
func (t *echoTool) ValidateParams(json.RawMessage) error { return nil }
func (t *echoTool) ShouldConfirm(context.Context, json.RawMessage) (*toolapi.ConfirmationDetails, error) {
	return nil, nil
}
func (t *echoTool) Execute(ctx context.Context, args json.RawMessage, onLiveOutput func(string)) (toolapi.Output, error) {
	t.executed.Add(1)
	return toolapi.Output{LLMContent: "echoed"}, nil
}
func (t *echoTool) Kind() toolapi.Kind     { return toolapi.KindRead }
func (t *echoTool) IsOutputMarkdown() bool { return false }
func (t *echoTool) CanStreamOutput() bool  { return false }

type stubApprover struct{}

func (stubApprover) Resolve(context.Context, *toolapi.ConfirmationDetails) (toolapi.Outcome, error) {
	return toolapi.ProceedOnce, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunStopsWhenModelReturnsNoToolCalls(t *testing.T) {
	model := &scriptedModel{responses: []*fakeStream{
		newFakeStream(modelapi.RawEvent{Kind: modelapi.RawTextDelta, TextDelta: "hello there"}),
	}}
	reg := registry.New()
	sched := New(model, reg, history.New(), stubApprover{}, DefaultConfig(), discardLogger())

	result, err := sched.Run(context.Background(), clock.NewToken(context.Background()), "hi")
	if err != nil {
		t.Fatal(err)
	}
	if result.StopCause != StopModelFinished {
		t.Fatalf("stop cause = %s", result.StopCause)
	}
	if result.FinalText != "hello there" {
		t.Fatalf("final text = %q", result.FinalText)
	}
}

func TestRunExecutesToolThenFinishes(t *testing.T) {
	tool := &echoTool{}
	model := &scriptedModel{responses: []*fakeStream{
		newFakeStream(modelapi.RawEvent{Kind: modelapi.RawFunctionCall, CallID: "call-1", ToolName: "echo", Arguments: []byte(`{}`)}),
		newFakeStream(modelapi.RawEvent{Kind: modelapi.RawTextDelta, TextDelta: "done"}),
	}}
	reg := registry.New()
	reg.Replace([]toolapi.Tool{tool})
	sched := New(model, reg, history.New(), stubApprover{}, DefaultConfig(), discardLogger())

	result, err := sched.Run(context.Background(), clock.NewToken(context.Background()), "use the tool")
	if err != nil {
		t.Fatal(err)
	}
	if tool.executed.Load() != 1 {
		t.Fatalf("expected tool executed once, got %d", tool.executed.Load())
	}
	if result.StopCause != StopModelFinished || result.FinalText != "done" {
		t.Fatalf("result = %+v", result)
	}
}

func TestRunRespectsMaxTurns(t *testing.T) {
	responses := make([]*fakeStream, 5)
	for i := range responses {
		responses[i] = newFakeStream(modelapi.RawEvent{Kind: modelapi.RawFunctionCall, CallID: "repeat", ToolName: "echo", Arguments: []byte(`{}`)})
	}
	model := &scriptedModel{responses: responses}
	reg := registry.New()
	reg.Replace([]toolapi.Tool{&echoTool{}})
	cfg := DefaultConfig()
	cfg.MaxTurns = 3
	sched := New(model, reg, history.New(), stubApprover{}, cfg, discardLogger())

	result, err := sched.Run(context.Background(), clock.NewToken(context.Background()), "loop forever")
	if err != nil {
		t.Fatal(err)
	}
	if result.StopCause != StopMaxTurns {
		t.Fatalf("expected max turns exhaustion, got %s", result.StopCause)
	}
	if model.call != 3 {
		t.Fatalf("expected exactly MaxTurns model calls, got %d", model.call)
	}
}

func TestRunReturnsImmediatelyWhenTokenAlreadyCancelled(t *testing.T) {
	model := &scriptedModel{responses: []*fakeStream{newFakeStream()}}
	reg := registry.New()
	sched := New(model, reg, history.New(), stubApprover{}, DefaultConfig(), discardLogger())

	tok := clock.NewToken(context.Background())
	tok.Cancel()
	result, err := sched.Run(context.Background(), tok, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if result.StopCause != StopCancelled {
		t.Fatalf("stop cause = %s", result.StopCause)
	}
	if model.call != 0 {
		t.Fatalf("expected no model calls once cancelled, got %d", model.call)
	}
}

func TestInterjectIsDrainedBetweenTurns(t *testing.T) {
	model := &scriptedModel{responses: []*fakeStream{
		newFakeStream(modelapi.RawEvent{Kind: modelapi.RawFunctionCall, CallID: "call-1", ToolName: "echo", Arguments: []byte(`{}`)}),
		newFakeStream(modelapi.RawEvent{Kind: modelapi.RawTextDelta, TextDelta: "ack"}),
	}}
	reg := registry.New()
	reg.Replace([]toolapi.Tool{&echoTool{}})
	hist := history.New()
	sched := New(model, reg, hist, stubApprover{}, DefaultConfig(), discardLogger())
	sched.Interject("by the way, also check this")

	_, err := sched.Run(context.Background(), clock.NewToken(context.Background()), "hi")
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, m := range hist.Comprehensive() {
		for _, p := range m.Parts {
			if p.Kind == modelapi.PartText && p.Text == "by the way, also check this" {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected interjected message spliced into history")
	}
}
