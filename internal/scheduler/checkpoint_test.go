package scheduler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/samsaffron/turnsched/internal/checkpoint"
	"github.com/samsaffron/turnsched/internal/clock"
	"github.com/samsaffron/turnsched/internal/history"
	"github.com/samsaffron/turnsched/internal/modelapi"
	"github.com/samsaffron/turnsched/internal/registry"
	"github.com/samsaffron/turnsched/internal/toolapi"
)

type editTool struct{}

func (editTool) Name() string { return "write_file" }
func (editTool) Describe() (string, map[string]any) {
	return "writes a file", map[string]any{"type": "object"}
}
func (editTool) ValidateParams(json.RawMessage) error { return nil }
func (editTool) ShouldConfirm(context.Context, json.RawMessage) (*toolapi.ConfirmationDetails, error) {
	return &toolapi.ConfirmationDetails{Kind: toolapi.ConfirmEdit, FilePath: "/tmp/x.txt", OldText: "before", NewText: "after"}, nil
}
func (editTool) Execute(ctx context.Context, args json.RawMessage, onLiveOutput func(string)) (toolapi.Output, error) {
	return toolapi.Output{LLMContent: "wrote"}, nil
}
func (editTool) Kind() toolapi.Kind     { return toolapi.KindEdit }
func (editTool) IsOutputMarkdown() bool { return false }
func (editTool) CanStreamOutput() bool  { return false }

func TestRunSavesCheckpointBeforeEditToolExecutes(t *testing.T) {
	model := &scriptedModel{responses: []*fakeStream{
		newFakeStream(modelapi.RawEvent{Kind: modelapi.RawFunctionCall, CallID: "call-1", ToolName: "write_file", Arguments: []byte(`{}`)}),
		newFakeStream(modelapi.RawEvent{Kind: modelapi.RawTextDelta, TextDelta: "done"}),
	}}
	reg := registry.New()
	reg.Replace([]toolapi.Tool{editTool{}})

	store, err := checkpoint.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	sched := New(model, reg, history.New(), stubApprover{}, DefaultConfig(), discardLogger())
	sched.Checkpoints = store

	_, err = sched.Run(context.Background(), clock.NewToken(context.Background()), "edit the file")
	if err != nil {
		t.Fatal(err)
	}

	snaps, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 checkpoint, got %d", len(snaps))
	}
	if snaps[0].ToolCall.Name != "write_file" || snaps[0].Content != "before" || snaps[0].FilePath != "/tmp/x.txt" {
		t.Fatalf("snapshot = %+v", snaps[0])
	}
}
