package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/samsaffron/turnsched/internal/toolapi"
)

type stubTool struct {
	name      string
	finishing bool
}

func (s *stubTool) Name() string { return s.name }
func (s *stubTool) Describe() (string, map[string]any) {
	return "stub tool", map[string]any{"type": "object"}
}
func (s *stubTool) ValidateParams(json.RawMessage) error { return nil }
func (s *stubTool) ShouldConfirm(context.Context, json.RawMessage) (*toolapi.ConfirmationDetails, error) {
	return nil, nil
}
func (s *stubTool) Execute(context.Context, json.RawMessage, func(string)) (toolapi.Output, error) {
	return toolapi.Output{LLMContent: "ok"}, nil
}
func (s *stubTool) Kind() toolapi.Kind          { return toolapi.KindRead }
func (s *stubTool) IsFinishingTool() bool       { return s.finishing }
func (s *stubTool) IsOutputMarkdown() bool      { return false }
func (s *stubTool) CanStreamOutput() bool       { return false }

func TestReplaceAndGet(t *testing.T) {
	r := New()
	r.Replace([]toolapi.Tool{&stubTool{name: "read_file"}})
	if _, ok := r.Get("read_file"); !ok {
		t.Fatal("expected read_file registered")
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("did not expect missing tool")
	}
}

func TestRegisterDynamicQueuesPending(t *testing.T) {
	r := New()
	r.Replace([]toolapi.Tool{&stubTool{name: "a"}})
	r.RegisterDynamic(&stubTool{name: "b"})

	if _, ok := r.Get("b"); !ok {
		t.Fatal("dynamic tool should be immediately gettable")
	}
	pending := r.DrainPending()
	if len(pending) != 1 || pending[0].Name() != "b" {
		t.Fatalf("pending = %+v", pending)
	}
	if len(r.DrainPending()) != 0 {
		t.Fatal("second drain should be empty")
	}
}

func TestReplaceClearsPending(t *testing.T) {
	r := New()
	r.RegisterDynamic(&stubTool{name: "a"})
	r.Replace(nil)
	if len(r.DrainPending()) != 0 {
		t.Fatal("Replace should clear pending queue")
	}
}

func TestIsFinishingTool(t *testing.T) {
	r := New()
	r.Replace([]toolapi.Tool{&stubTool{name: "done", finishing: true}, &stubTool{name: "read"}})
	if !r.IsFinishingTool("done") {
		t.Fatal("expected done to be a finishing tool")
	}
	if r.IsFinishingTool("read") {
		t.Fatal("read should not be a finishing tool")
	}
	if r.IsFinishingTool("nope") {
		t.Fatal("unknown tool should not be finishing")
	}
}

func TestSpecsReflectsRegisteredTools(t *testing.T) {
	r := New()
	r.Replace([]toolapi.Tool{&stubTool{name: "a"}, &stubTool{name: "b"}})
	specs := r.Specs()
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
}

func TestSuggestClosestFindsTypoedName(t *testing.T) {
	r := New()
	r.Replace([]toolapi.Tool{&stubTool{name: "read_file"}, &stubTool{name: "write_file"}, &stubTool{name: "grep"}})

	matches := r.SuggestClosest("read_fle", 3)
	if len(matches) == 0 || matches[0] != "read_file" {
		t.Fatalf("matches = %v, want read_file first", matches)
	}
}
