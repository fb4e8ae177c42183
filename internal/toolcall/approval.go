package toolcall

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"

	"github.com/samsaffron/turnsched/internal/toolapi"
)

// toolPathKey hashes a tool+path pair the same way the approval cache
// key is hashed, so memorized decisions don't leak raw paths into map
// keys that might get logged.
func toolPathKey(tool, path string) string {
	sum := sha256.Sum256([]byte(tool + "\x00" + path))
	return hex.EncodeToString(sum[:])
}

// PathCache remembers per-tool, per-path approval decisions for the
// lifetime of a session (scope: per-tool).
type PathCache struct {
	mu      sync.Mutex
	results map[string]toolapi.Outcome
}

// NewPathCache returns an empty PathCache.
func NewPathCache() *PathCache { return &PathCache{results: make(map[string]toolapi.Outcome)} }

// Get returns a remembered outcome for tool+path, if any.
func (c *PathCache) Get(tool, path string) (toolapi.Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.results[toolPathKey(tool, path)]
	return o, ok
}

// Set remembers an outcome for tool+path.
func (c *PathCache) Set(tool, path string, outcome toolapi.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[toolPathKey(tool, path)] = outcome
}

// DirCache remembers directories the user has approved wholesale,
// regardless of which tool touches a path under them.
type DirCache struct {
	mu    sync.Mutex
	dirs  []string
}

// NewDirCache returns an empty DirCache.
func NewDirCache() *DirCache { return &DirCache{} }

// Approve remembers dir as wholesale-approved.
func (c *DirCache) Approve(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirs = append(c.dirs, strings.TrimRight(dir, "/"))
}

// IsApproved reports whether path falls under any approved directory,
// matched against doublestar patterns so `**`-style recursive approvals
// (e.g. approving `src/**`) work, not just a plain prefix check.
func (c *DirCache) IsApproved(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, dir := range c.dirs {
		if strings.HasPrefix(path, dir+"/") || path == dir {
			return true
		}
		if ok, _ := doublestar.Match(dir, path); ok {
			return true
		}
	}
	return false
}

// ShellCache remembers approved shell-command glob patterns (scope:
// session-wide), matched with a real glob engine rather than a
// hand-rolled trailing-`*` check.
type ShellCache struct {
	mu       sync.Mutex
	patterns []glob.Glob
	raw      []string
}

// NewShellCache returns an empty ShellCache.
func NewShellCache() *ShellCache { return &ShellCache{} }

// AddPattern compiles and remembers a shell command glob pattern,
// de-duplicating against patterns already stored.
func (c *ShellCache) AddPattern(pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.raw {
		if r == pattern {
			return nil
		}
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile shell approval pattern %q: %w", pattern, err)
	}
	c.patterns = append(c.patterns, g)
	c.raw = append(c.raw, pattern)
	return nil
}

// Matches reports whether command matches any remembered pattern.
func (c *ShellCache) Matches(command string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.patterns {
		if g.Match(command) {
			return true
		}
	}
	return false
}

// MCPServerCache remembers servers approved wholesale (scope:
// per-MCP-server) — once a server is approved, every tool it exposes
// proceeds without further prompting.
type MCPServerCache struct {
	mu       sync.Mutex
	approved map[string]bool
}

// NewMCPServerCache returns an empty MCPServerCache.
func NewMCPServerCache() *MCPServerCache {
	return &MCPServerCache{approved: make(map[string]bool)}
}

// Approve remembers serverName as approved for the session.
func (c *MCPServerCache) Approve(serverName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.approved[serverName] = true
}

// IsApproved reports whether serverName has been approved.
func (c *MCPServerCache) IsApproved(serverName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.approved[serverName]
}

// PromptFunc is supplied by whatever surface renders approval UI
// (out of scope here) and returns the user's choice.
type PromptFunc func(details *toolapi.ConfirmationDetails) (toolapi.Outcome, error)

// Manager gates tool execution behind the three approval scopes:
// session-wide (ShellCache patterns, DirCache directories), per-MCP-
// server (MCPServerCache), and per-tool (PathCache). YoloMode bypasses
// every check.
type Manager struct {
	mu sync.Mutex

	Paths      *PathCache
	Dirs       *DirCache
	Shell      *ShellCache
	MCPServers *MCPServerCache

	YoloMode bool
	Prompt   PromptFunc

	// parent lets a sub-agent's approval decisions fall back to
	// whatever its parent session already approved, mirroring the
	// teacher's sub-agent inheritance.
	parent *Manager
}

// NewManager returns a Manager with empty caches.
func NewManager(prompt PromptFunc) *Manager {
	return &Manager{
		Paths:      NewPathCache(),
		Dirs:       NewDirCache(),
		Shell:      NewShellCache(),
		MCPServers: NewMCPServerCache(),
		Prompt:     prompt,
	}
}

// SetParent attaches a parent Manager for inherited approvals, after
// checking for a cycle by walking the existing parent chain.
func (m *Manager) SetParent(parent *Manager) error {
	for p := parent; p != nil; p = p.parent {
		if p == m {
			return fmt.Errorf("approval manager: cycle detected attaching parent")
		}
	}
	m.mu.Lock()
	m.parent = parent
	m.mu.Unlock()
	return nil
}

// CheckPath resolves whether a tool's confirmation for a file path can
// proceed without prompting: yolo mode, then this manager's own
// caches, then the parent chain's caches. Returns (outcome, true) if a
// decision is already known; (zero, false) means a prompt is needed.
func (m *Manager) CheckPath(tool, path string) (toolapi.Outcome, bool) {
	if m.YoloMode {
		return toolapi.ProceedAlways, true
	}
	for mgr := m; mgr != nil; mgr = mgr.parent {
		if mgr.Dirs.IsApproved(path) {
			return toolapi.ProceedAlways, true
		}
		if o, ok := mgr.Paths.Get(tool, path); ok {
			return o, true
		}
	}
	return "", false
}

// CheckShell resolves whether a shell command can proceed without
// prompting, walking this manager's and its parents' ShellCache.
func (m *Manager) CheckShell(command string) (toolapi.Outcome, bool) {
	if m.YoloMode {
		return toolapi.ProceedAlways, true
	}
	for mgr := m; mgr != nil; mgr = mgr.parent {
		if mgr.Shell.Matches(command) {
			return toolapi.ProceedAlways, true
		}
	}
	return "", false
}

// CheckMCPServer resolves whether an MCP server's tools can proceed
// without prompting.
func (m *Manager) CheckMCPServer(serverName string) (toolapi.Outcome, bool) {
	if m.YoloMode {
		return toolapi.ProceedAlways, true
	}
	for mgr := m; mgr != nil; mgr = mgr.parent {
		if mgr.MCPServers.IsApproved(serverName) {
			return toolapi.ProceedAlways, true
		}
	}
	return "", false
}

// Resolve runs the full approval flow for one confirmation: a no-prompt
// check first, then Prompt (falling back to the parent's Prompt if this
// manager has none), then records the outcome at the scope implied by
// the confirmation kind and the user's answer.
//
// Prompt is invoked on its own goroutine and raced against ctx: if
// ctx is cancelled before the human answers, Resolve returns
// (Cancel, ctx.Err()) immediately, satisfying "cancelToken fires"
// during awaiting_approval even though a blocking prompt (e.g. reading
// a line from stdin) has no portable way to be interrupted mid-read.
// The abandoned prompt goroutine is left to finish or block forever;
// it holds no resources Resolve's caller needs back.
func (m *Manager) Resolve(ctx context.Context, details *toolapi.ConfirmationDetails) (toolapi.Outcome, error) {
	if outcome, ok := m.noPromptOutcome(details); ok {
		return outcome, nil
	}

	prompt := m.Prompt
	for mgr := m; prompt == nil && mgr.parent != nil; mgr = mgr.parent {
		prompt = mgr.parent.Prompt
	}
	if prompt == nil {
		return toolapi.Cancel, fmt.Errorf("approval manager: no prompt configured")
	}

	type answer struct {
		outcome toolapi.Outcome
		err     error
	}
	done := make(chan answer, 1)
	go func() {
		outcome, err := prompt(details)
		done <- answer{outcome, err}
	}()

	select {
	case <-ctx.Done():
		return toolapi.Cancel, ctx.Err()
	case a := <-done:
		if a.err != nil {
			return "", a.err
		}
		m.record(details, a.outcome)
		return a.outcome, nil
	}
}

func (m *Manager) noPromptOutcome(details *toolapi.ConfirmationDetails) (toolapi.Outcome, bool) {
	switch details.Kind {
	case toolapi.ConfirmEdit:
		return m.CheckPath(details.ToolName, details.FilePath)
	case toolapi.ConfirmExec:
		return m.CheckShell(details.Command)
	case toolapi.ConfirmMCP:
		return m.CheckMCPServer(details.ServerName)
	default:
		return "", false
	}
}

func (m *Manager) record(details *toolapi.ConfirmationDetails, outcome toolapi.Outcome) {
	if outcome != toolapi.ProceedAlways && outcome != toolapi.ProceedAlwaysAndSave {
		return
	}
	switch details.Kind {
	case toolapi.ConfirmEdit:
		m.Paths.Set(details.ToolName, details.FilePath, outcome)
	case toolapi.ConfirmExec:
		pattern := shellPattern(details.Command)
		_ = m.Shell.AddPattern(pattern)
	case toolapi.ConfirmMCP:
		m.MCPServers.Approve(details.ServerName)
	}
}

// shellPattern derives a glob pattern from an approved command: the
// first word (the binary) followed by a wildcard, so "git status"
// approves future "git *" invocations rather than only that exact
// command line.
func shellPattern(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return command
	}
	return fields[0] + " *"
}
