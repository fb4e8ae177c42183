package toolcall

import (
	"path/filepath"
	"testing"

	"github.com/samsaffron/turnsched/internal/toolapi"
)

func TestSaveAndLoadApprovalsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "approvals.yaml")

	saved := SavedApprovals{ShellPatterns: []string{"git *"}, Dirs: []string{"/repo/src"}, MCPServers: []string{"filesystem"}}
	if err := SaveApprovals(path, saved); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadApprovals(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.ShellPatterns) != 1 || loaded.ShellPatterns[0] != "git *" {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestLoadApprovalsMissingFileReturnsEmpty(t *testing.T) {
	saved, err := LoadApprovals(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.ShellPatterns) != 0 {
		t.Fatalf("expected empty, got %+v", saved)
	}
}

func TestManagerSnapshotAndRestore(t *testing.T) {
	m := NewManager(nil)
	if err := m.Shell.AddPattern("git *"); err != nil {
		t.Fatal(err)
	}
	m.Dirs.Approve("/repo/src")
	m.MCPServers.Approve("filesystem")

	snap := m.Snapshot()
	if len(snap.ShellPatterns) != 1 || len(snap.Dirs) != 1 || len(snap.MCPServers) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	m2 := NewManager(nil)
	if err := m2.Restore(snap); err != nil {
		t.Fatal(err)
	}
	if !m2.Shell.Matches("git status") {
		t.Fatal("expected restored shell pattern to match")
	}
	if !m2.Dirs.IsApproved("/repo/src/main.go") {
		t.Fatal("expected restored dir to be approved")
	}
	outcome, ok := m2.CheckMCPServer("filesystem")
	if !ok || outcome != toolapi.ProceedAlways {
		t.Fatalf("CheckMCPServer = %v, %v", outcome, ok)
	}
}
