package debuglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samsaffron/turnsched/internal/modelapi"
)

func TestRecordTurnAppendsJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	logger, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	req := modelapi.Request{Messages: []modelapi.Message{{Role: modelapi.RoleUser}}}
	if err := logger.RecordTurn(time.Unix(0, 0), 1, req, "hello", nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := logger.RecordTurn(time.Unix(0, 0), 2, req, "", nil, errors.New("boom")); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var entries []Entry
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatal(err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Text != "hello" || entries[0].Err != "" {
		t.Fatalf("entry 0 = %+v", entries[0])
	}
	if entries[1].Err != "boom" {
		t.Fatalf("entry 1 = %+v", entries[1])
	}
}
