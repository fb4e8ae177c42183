package modelapi

import "testing"

func TestExtractJSONPlain(t *testing.T) {
	raw, err := ExtractJSON(`{"reasoning":"because","next_speaker":"user"}`)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"reasoning":"because","next_speaker":"user"}` {
		t.Fatalf("raw = %s", raw)
	}
}

func TestExtractJSONStripsFenceAndProse(t *testing.T) {
	text := "Sure, here you go:\n```json\n{\"next_speaker\": \"model\"}\n```\nLet me know if that helps."
	raw, err := ExtractJSON(text)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"next_speaker": "model"}` {
		t.Fatalf("raw = %s", raw)
	}
}

func TestExtractJSONNoObjectErrors(t *testing.T) {
	if _, err := ExtractJSON("no json here"); err == nil {
		t.Fatal("expected error")
	}
}

func TestJSONInstructionEmbedsSchema(t *testing.T) {
	instr := JSONInstruction(map[string]any{"type": "object"})
	if instr == "" {
		t.Fatal("expected non-empty instruction")
	}
}
