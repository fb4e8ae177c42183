package toolcall

import (
	"testing"

	"github.com/samsaffron/turnsched/internal/toolapi"
)

func TestValidTransitionSequence(t *testing.T) {
	tc := New("c1", "read_file", nil)
	steps := []Status{StatusAwaitingApproval, StatusScheduled, StatusExecuting, StatusSuccess}
	for _, s := range steps {
		if s == StatusSuccess {
			if err := tc.MarkSuccess(toolapi.Output{LLMContent: "ok"}); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := tc.Transition(s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	if status, _ := tc.Snapshot(); status != StatusSuccess {
		t.Fatalf("status = %s", status)
	}
}

func TestTerminalStateIsImmutable(t *testing.T) {
	tc := New("c2", "shell", nil)
	_ = tc.Transition(StatusScheduled)
	_ = tc.Transition(StatusExecuting)
	if err := tc.MarkSuccess(toolapi.Output{LLMContent: "done"}); err != nil {
		t.Fatal(err)
	}
	if err := tc.Transition(StatusExecuting); err == nil {
		t.Fatal("expected error transitioning out of terminal state")
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	tc := New("c3", "grep", nil)
	if err := tc.Transition(StatusExecuting); err == nil {
		t.Fatal("expected error skipping straight to executing")
	}
}

func TestMarkCancelledFromAnyNonTerminalState(t *testing.T) {
	tc := New("c4", "write_file", nil)
	_ = tc.Transition(StatusAwaitingApproval)
	tc.MarkCancelled()
	if status, _ := tc.Snapshot(); status != StatusCancelled {
		t.Fatalf("status = %s", status)
	}
}

func TestMarkCancelledNoOpOnTerminal(t *testing.T) {
	tc := New("c5", "edit", nil)
	_ = tc.Transition(StatusScheduled)
	_ = tc.Transition(StatusExecuting)
	_ = tc.MarkSuccess(toolapi.Output{LLMContent: "x"})
	tc.MarkCancelled()
	if status, _ := tc.Snapshot(); status != StatusSuccess {
		t.Fatalf("expected terminal success preserved, got %s", status)
	}
}

func TestResponseSubmittedIsOneShot(t *testing.T) {
	tc := New("c6", "read_file", nil)
	if !tc.MarkResponseSubmitted() {
		t.Fatal("expected first call to succeed")
	}
	if tc.MarkResponseSubmitted() {
		t.Fatal("expected second call to report already-submitted")
	}
}
