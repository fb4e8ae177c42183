// Package registry implements the Tool Registry: the set of tools
// currently on offer to the model, with atomic snapshot replacement
// (so a turn in flight sees a consistent set) and dynamic mid-turn
// registration for tools activated by a skill partway through a turn.
package registry

import (
	"sync"

	"github.com/sahilm/fuzzy"

	"github.com/samsaffron/turnsched/internal/modelapi"
	"github.com/samsaffron/turnsched/internal/toolapi"
)

// Registry holds the currently-available tools, keyed by name.
// Replace swaps the whole set atomically; RegisterDynamic adds one
// tool without disturbing readers that already took a snapshot.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]toolapi.Tool
	pending []toolapi.Tool // tools added via RegisterDynamic since the last Drain
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{tools: make(map[string]toolapi.Tool)}
}

// Replace atomically swaps the full tool set, discarding whatever was
// registered before (including any undrained pending dynamic tools).
func (r *Registry) Replace(tools []toolapi.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]toolapi.Tool, len(tools))
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	r.pending = nil
}

// RegisterDynamic adds a tool mid-turn. It becomes visible to Get/Specs
// immediately, and is also queued for DrainPending so a running scheduler
// loop can notice new tools appeared since it last checked, matching
// the teacher engine's drainPendingToolSpecs pattern.
func (r *Registry) RegisterDynamic(tool toolapi.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	r.pending = append(r.pending, tool)
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (toolapi.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// IsFinishingTool reports whether the named tool signals turn
// completion when it finishes.
func (r *Registry) IsFinishingTool(name string) bool {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	ft, ok := t.(toolapi.Finishing)
	return ok && ft.IsFinishingTool()
}

// Specs returns modelapi.ToolSpec values for every registered tool, for
// inclusion in the next model request.
func (r *Registry) Specs() []modelapi.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]modelapi.ToolSpec, 0, len(r.tools))
	for name, t := range r.tools {
		desc, schema := t.Describe()
		specs = append(specs, modelapi.ToolSpec{Name: name, Description: desc, Schema: schema})
	}
	return specs
}

// DrainPending returns the tools registered dynamically since the last
// DrainPending call and clears the queue. The scheduler calls this
// between turns (and at mid-turn suspension points) to pick up tools a
// skill activated without restarting the loop.
func (r *Registry) DrainPending() []toolapi.Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := r.pending
	r.pending = nil
	return pending
}

// SuggestClosest returns the registered tool name(s) that best fuzzy-
// match an unknown name the model called, so the scheduler can report
// a helpful "did you mean" validation error instead of a bare not-found.
// Returns at most limit names, best match first. A candidate matches
// only if every character of name appears in it in order, so a name
// with a dropped letter is found but one with transposed letters is not.
func (r *Registry) SuggestClosest(name string, limit int) []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	r.mu.RUnlock()

	matches := fuzzy.Find(name, names)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Str
	}
	return out
}

// ByMCPServer groups the given tool names by the MCP server that
// contributed them, using the MCPServer field on each tool's spec as
// advertised via specs. Tools with no MCPServer (local tools) are
// grouped under the empty string key.
func ByMCPServer(specs []modelapi.ToolSpec) map[string][]modelapi.ToolSpec {
	grouped := make(map[string][]modelapi.ToolSpec)
	for _, s := range specs {
		grouped[s.MCPServer] = append(grouped[s.MCPServer], s)
	}
	return grouped
}
