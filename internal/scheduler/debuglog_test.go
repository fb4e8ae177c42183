package scheduler

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/samsaffron/turnsched/internal/clock"
	"github.com/samsaffron/turnsched/internal/debuglog"
	"github.com/samsaffron/turnsched/internal/history"
	"github.com/samsaffron/turnsched/internal/modelapi"
	"github.com/samsaffron/turnsched/internal/registry"
)

func TestRunTracesEachTurnWhenDebugSet(t *testing.T) {
	model := &scriptedModel{responses: []*fakeStream{
		newFakeStream(modelapi.RawEvent{Kind: modelapi.RawTextDelta, TextDelta: "hi"}),
	}}
	reg := registry.New()
	sched := New(model, reg, history.New(), stubApprover{}, DefaultConfig(), discardLogger())

	path := filepath.Join(t.TempDir(), "trace.jsonl")
	logger, err := debuglog.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	sched.Debug = logger

	if _, err := sched.Run(context.Background(), clock.NewToken(context.Background()), "hello"); err != nil {
		t.Fatal(err)
	}
	logger.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	if lines != 1 {
		t.Fatalf("expected 1 traced turn, got %d", lines)
	}
}
