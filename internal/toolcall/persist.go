package toolcall

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SavedApprovals is the on-disk form of everything a ProceedAlwaysAndSave
// outcome records, so a project's approval memory survives across
// process restarts rather than living only for the session.
type SavedApprovals struct {
	ShellPatterns []string `yaml:"shell_patterns,omitempty"`
	Dirs          []string `yaml:"dirs,omitempty"`
	MCPServers    []string `yaml:"mcp_servers,omitempty"`
}

// LoadApprovals reads SavedApprovals from path, returning an empty value
// if the file doesn't exist yet.
func LoadApprovals(path string) (SavedApprovals, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return SavedApprovals{}, nil
		}
		return SavedApprovals{}, fmt.Errorf("toolcall: read approvals: %w", err)
	}
	var saved SavedApprovals
	if err := yaml.Unmarshal(data, &saved); err != nil {
		return SavedApprovals{}, fmt.Errorf("toolcall: parse approvals: %w", err)
	}
	return saved, nil
}

// SaveApprovals writes saved to path as YAML.
func SaveApprovals(path string, saved SavedApprovals) error {
	data, err := yaml.Marshal(saved)
	if err != nil {
		return fmt.Errorf("toolcall: marshal approvals: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("toolcall: write approvals: %w", err)
	}
	return nil
}

// Snapshot captures the Manager's own (non-parent) approval state into a
// SavedApprovals value.
func (m *Manager) Snapshot() SavedApprovals {
	m.Shell.mu.Lock()
	shellPatterns := append([]string(nil), m.Shell.raw...)
	m.Shell.mu.Unlock()

	m.Dirs.mu.Lock()
	dirs := append([]string(nil), m.Dirs.dirs...)
	m.Dirs.mu.Unlock()

	m.MCPServers.mu.Lock()
	servers := make([]string, 0, len(m.MCPServers.approved))
	for name := range m.MCPServers.approved {
		servers = append(servers, name)
	}
	m.MCPServers.mu.Unlock()

	return SavedApprovals{ShellPatterns: shellPatterns, Dirs: dirs, MCPServers: servers}
}

// Restore loads saved approvals into the Manager's caches, for applying
// a SavedApprovals value read at startup.
func (m *Manager) Restore(saved SavedApprovals) error {
	for _, p := range saved.ShellPatterns {
		if err := m.Shell.AddPattern(p); err != nil {
			return err
		}
	}
	for _, d := range saved.Dirs {
		m.Dirs.Approve(d)
	}
	for _, s := range saved.MCPServers {
		m.MCPServers.Approve(s)
	}
	return nil
}
