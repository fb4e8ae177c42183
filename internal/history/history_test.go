package history

import (
	"testing"

	"github.com/samsaffron/turnsched/internal/modelapi"
)

func text(role modelapi.Role, s string) modelapi.Message {
	return modelapi.Message{Role: role, Parts: []modelapi.Part{{Kind: modelapi.PartText, Text: s}}}
}

func TestCuratedDropsGroupWithEmptyModelMessage(t *testing.T) {
	messages := []modelapi.Message{
		text(modelapi.RoleUser, "hi"),
		{Role: modelapi.RoleModel}, // empty
		text(modelapi.RoleUser, "still there?"),
		text(modelapi.RoleModel, "yes"),
	}
	curated := Curated(messages)
	if len(curated) != 2 {
		t.Fatalf("expected 2 messages kept, got %d: %+v", len(curated), curated)
	}
	if curated[0].Parts[0].Text != "still there?" {
		t.Fatalf("unexpected first kept message: %+v", curated[0])
	}
}

func TestCuratedKeepsUsableGroups(t *testing.T) {
	messages := []modelapi.Message{
		text(modelapi.RoleUser, "hi"),
		text(modelapi.RoleModel, "hello"),
	}
	curated := Curated(messages)
	if len(curated) != 2 {
		t.Fatalf("expected both messages kept, got %d", len(curated))
	}
}

func TestAppendWithAlternationInsertsEmptyModelTurn(t *testing.T) {
	base := []modelapi.Message{text(modelapi.RoleUser, "first")}
	out := appendWithAlternation(base, text(modelapi.RoleUser, "second"))
	if len(out) != 3 {
		t.Fatalf("expected 3 messages (user, empty model, user), got %d: %+v", len(out), out)
	}
	if out[1].Role != modelapi.RoleModel || len(out[1].Parts) != 0 {
		t.Fatalf("expected inserted empty model message, got %+v", out[1])
	}
}

func TestMergeDropsThoughtOnlyParts(t *testing.T) {
	next := []modelapi.Message{
		{Role: modelapi.RoleModel, Parts: []modelapi.Part{
			{Kind: modelapi.PartThought, Text: "thinking"},
			{Kind: modelapi.PartText, Text: "answer"},
		}},
	}
	out := Merge(nil, next)
	if len(out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out))
	}
	if len(out[0].Parts) != 1 || out[0].Parts[0].Kind != modelapi.PartText {
		t.Fatalf("expected thought part dropped, got %+v", out[0].Parts)
	}
}

func TestMergeCoalescesAdjacentTextAcrossCallBoundary(t *testing.T) {
	base := []modelapi.Message{text(modelapi.RoleModel, "Hello")}
	next := []modelapi.Message{text(modelapi.RoleModel, ", world")}
	out := Merge(base, next)
	if len(out) != 1 {
		t.Fatalf("expected messages merged into one, got %d: %+v", len(out), out)
	}
	if out[0].Parts[0].Text != "Hello, world" {
		t.Fatalf("unexpected merged text: %q", out[0].Parts[0].Text)
	}
}

func TestCheckAlternationDetectsViolation(t *testing.T) {
	messages := []modelapi.Message{
		text(modelapi.RoleUser, "a"),
		text(modelapi.RoleUser, "b"),
	}
	if idx := CheckAlternation(messages); idx != 1 {
		t.Fatalf("expected violation at index 1, got %d", idx)
	}
}

func TestCheckAlternationIgnoresSystemMessages(t *testing.T) {
	messages := []modelapi.Message{
		{Role: modelapi.RoleSystem},
		text(modelapi.RoleUser, "a"),
		text(modelapi.RoleModel, "b"),
	}
	if idx := CheckAlternation(messages); idx != -1 {
		t.Fatalf("expected well-formed history, violation reported at %d", idx)
	}
}

func TestCompressionSnapshotSeed(t *testing.T) {
	snap := CompressionSnapshot{Summary: "summary text"}
	seed := snap.Seed()
	if len(seed) != 2 || seed[0].Role != modelapi.RoleUser || seed[1].Role != modelapi.RoleModel {
		t.Fatalf("unexpected seed shape: %+v", seed)
	}
	if seed[1].Parts[0].Text != "acknowledged" {
		t.Fatalf("expected acknowledged seed, got %q", seed[1].Parts[0].Text)
	}
}
