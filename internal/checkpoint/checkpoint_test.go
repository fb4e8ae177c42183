package checkpoint

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/samsaffron/turnsched/internal/modelapi"
)

func sampleHistory() []modelapi.Message {
	return []modelapi.Message{
		{Role: modelapi.RoleUser, Parts: []modelapi.Part{{Kind: modelapi.PartText, Text: "edit the file"}}},
	}
}

func TestSaveAndListRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hist := sampleHistory()
	snap, err := store.Save(now, hist, hist, "write_file", json.RawMessage(`{"path":"/a.go"}`), "/a.go", "old content")
	if err != nil {
		t.Fatal(err)
	}
	if snap.ToolCall.Name != "write_file" {
		t.Fatalf("expected tool name recorded, got %+v", snap.ToolCall)
	}

	snaps, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 || snaps[0].Content != "old content" || snaps[0].FilePath != "/a.go" {
		t.Fatalf("snaps = %+v", snaps)
	}
	if len(snaps[0].History) != 1 {
		t.Fatalf("expected history round-tripped, got %+v", snaps[0].History)
	}
}

func TestFilenameFollowsTimestampBasenameToolConvention(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 123000000, time.UTC)
	name := filename(now, "/repo/src/a.go", "write_file")
	want := "2026-03-01T12-00-00-123Z-a.go-write_file.json"
	if name != want {
		t.Fatalf("filename = %q, want %q", name, want)
	}
}

func TestForFilePathFindsMostRecentMatch(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	hist := sampleHistory()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.Save(now, hist, hist, "write_file", nil, "/a.go", "a1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save(now.Add(time.Millisecond), hist, hist, "write_file", nil, "/b.go", "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save(now.Add(2*time.Millisecond), hist, hist, "write_file", nil, "/a.go", "a2"); err != nil {
		t.Fatal(err)
	}

	snap, ok, err := store.ForFilePath("/a.go")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || snap.Content != "a2" {
		t.Fatalf("snap=%+v ok=%v, want most recent /a.go snapshot", snap, ok)
	}

	if _, ok, _ := store.ForFilePath("/missing.go"); ok {
		t.Fatal("did not expect a match")
	}
}
