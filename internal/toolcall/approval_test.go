package toolcall

import (
	"context"
	"testing"

	"github.com/samsaffron/turnsched/internal/toolapi"
)

func TestPathCacheRemembersPerToolPerPath(t *testing.T) {
	c := NewPathCache()
	if _, ok := c.Get("edit", "/a.go"); ok {
		t.Fatal("expected no cached outcome yet")
	}
	c.Set("edit", "/a.go", toolapi.ProceedAlways)
	o, ok := c.Get("edit", "/a.go")
	if !ok || o != toolapi.ProceedAlways {
		t.Fatalf("got %v, %v", o, ok)
	}
	if _, ok := c.Get("shell", "/a.go"); ok {
		t.Fatal("cache should be scoped per tool, not shared across tools")
	}
}

func TestDirCacheApprovesSubpaths(t *testing.T) {
	c := NewDirCache()
	c.Approve("/repo/src")
	if !c.IsApproved("/repo/src/main.go") {
		t.Fatal("expected subpath approved")
	}
	if c.IsApproved("/repo/other/main.go") {
		t.Fatal("did not expect unrelated path approved")
	}
}

func TestShellCacheDedupesPatterns(t *testing.T) {
	c := NewShellCache()
	if err := c.AddPattern("git *"); err != nil {
		t.Fatal(err)
	}
	if err := c.AddPattern("git *"); err != nil {
		t.Fatal(err)
	}
	if len(c.raw) != 1 {
		t.Fatalf("expected dedup, got %d patterns", len(c.raw))
	}
	if !c.Matches("git status") {
		t.Fatal("expected match")
	}
	if c.Matches("rm -rf /") {
		t.Fatal("did not expect match")
	}
}

func TestManagerYoloModeBypassesPrompt(t *testing.T) {
	m := NewManager(func(*toolapi.ConfirmationDetails) (toolapi.Outcome, error) {
		t.Fatal("prompt should not be called in yolo mode")
		return "", nil
	})
	m.YoloMode = true
	outcome, err := m.Resolve(context.Background(), &toolapi.ConfirmationDetails{Kind: toolapi.ConfirmExec, Command: "rm -rf /"})
	if err != nil || outcome != toolapi.ProceedAlways {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}
}

func TestManagerRemembersAlwaysOutcomeForShell(t *testing.T) {
	calls := 0
	m := NewManager(func(*toolapi.ConfirmationDetails) (toolapi.Outcome, error) {
		calls++
		return toolapi.ProceedAlways, nil
	})
	details := &toolapi.ConfirmationDetails{Kind: toolapi.ConfirmExec, Command: "git status"}
	if _, err := m.Resolve(context.Background(), details); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Resolve(context.Background(), &toolapi.ConfirmationDetails{Kind: toolapi.ConfirmExec, Command: "git log"}); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected prompt called once, got %d", calls)
	}
}

func TestManagerParentFallbackAndCycleDetection(t *testing.T) {
	parent := NewManager(func(*toolapi.ConfirmationDetails) (toolapi.Outcome, error) {
		return toolapi.ProceedAlways, nil
	})
	child := NewManager(nil)
	if err := child.SetParent(parent); err != nil {
		t.Fatal(err)
	}
	if err := parent.SetParent(child); err == nil {
		t.Fatal("expected cycle detection error")
	}

	outcome, err := child.Resolve(context.Background(), &toolapi.ConfirmationDetails{Kind: toolapi.ConfirmExec, Command: "ls -la"})
	if err != nil || outcome != toolapi.ProceedAlways {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}
}

func TestManagerMCPServerApprovalCoversAllItsTools(t *testing.T) {
	m := NewManager(func(*toolapi.ConfirmationDetails) (toolapi.Outcome, error) {
		return toolapi.ProceedAlways, nil
	})
	if _, err := m.Resolve(context.Background(), &toolapi.ConfirmationDetails{Kind: toolapi.ConfirmMCP, ServerName: "github", ToolName: "list_issues"}); err != nil {
		t.Fatal(err)
	}
	if !m.MCPServers.IsApproved("github") {
		t.Fatal("expected server approved")
	}
	outcome, ok := m.CheckMCPServer("github")
	if !ok || outcome != toolapi.ProceedAlways {
		t.Fatalf("expected no-prompt approval for other tools on the same server")
	}
}

func TestManagerResolveCancelledBeforeHumanAnswers(t *testing.T) {
	humanAnswered := make(chan struct{})
	m := NewManager(func(*toolapi.ConfirmationDetails) (toolapi.Outcome, error) {
		<-humanAnswered // never closed: simulates a human who never answers
		return toolapi.ProceedOnce, nil
	})
	defer close(humanAnswered)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := m.Resolve(ctx, &toolapi.ConfirmationDetails{Kind: toolapi.ConfirmExec, Command: "rm -rf /tmp/x"})
	if err == nil {
		t.Fatal("expected an error from a cancelled context")
	}
	if outcome != toolapi.Cancel {
		t.Fatalf("outcome = %v, want Cancel", outcome)
	}
}
