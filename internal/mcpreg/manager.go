// Package mcpreg discovers and manages MCP server connections and
// exposes each server's tools as toolapi.Tool values the Tool Registry
// can hold alongside local tools.
package mcpreg

import (
	"context"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/samsaffron/turnsched/internal/toolapi"
)

// Sampler answers an MCP server's sampling/createMessage request by
// routing it through the host's own model, the collaborator named in
// spec.md's MCP integration notes.
type Sampler interface {
	Sample(ctx context.Context, serverName string, req *mcp.CreateMessageRequest) (*mcp.CreateMessageResult, error)
}

// Status is the lifecycle state of one managed server.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusFailed   Status = "failed"
)

type serverState struct {
	status Status
	err    error
	client *client
}

// Manager owns the set of configured MCP servers, starting and
// stopping them and aggregating their tools for the registry.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	states   map[string]*serverState
	sampler  Sampler
}

// NewManager returns an empty Manager for the given config.
func NewManager(cfg *Config) *Manager {
	return &Manager{config: cfg, states: make(map[string]*serverState)}
}

// SetSampler wires the collaborator invoked when a server sends a
// sampling/createMessage request, routing it to the host's model the
// way the teacher's SamplingHandler does.
func (m *Manager) SetSampler(s Sampler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sampler = s
}

// Enable starts a configured server by name. It is synchronous: the
// caller sees the server's tools as soon as Enable returns without
// error, unlike the teacher's fire-and-forget background start, since
// SPEC_FULL.md's scheduler needs the registry consistent before a turn
// starts rather than mid-turn.
func (m *Manager) Enable(ctx context.Context, name string) error {
	m.mu.Lock()
	cfg, ok := m.config.Servers[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("mcpreg: unknown server %q", name)
	}
	if st, ok := m.states[name]; ok && st.status == StatusReady {
		m.mu.Unlock()
		return nil
	}
	c := newClient(name, cfg)
	m.states[name] = &serverState{status: StatusStarting, client: c}
	sampler := m.sampler
	m.mu.Unlock()

	var sampling samplingFunc
	if sampler != nil {
		sampling = func(ctx context.Context, req *mcp.CreateMessageRequest) (*mcp.CreateMessageResult, error) {
			return sampler.Sample(ctx, name, req)
		}
	}
	err := c.start(ctx, sampling)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.states[name].status = StatusFailed
		m.states[name].err = err
		return err
	}
	m.states[name].status = StatusReady
	return nil
}

// Disable stops a running server.
func (m *Manager) Disable(name string) error {
	m.mu.Lock()
	st, ok := m.states[name]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.states, name)
	m.mu.Unlock()

	if st.client != nil {
		return st.client.stop()
	}
	return nil
}

// StopAll stops every running server, for scheduler/process shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	states := m.states
	m.states = make(map[string]*serverState)
	m.mu.Unlock()

	for _, st := range states {
		if st.client != nil {
			st.client.stop()
		}
	}
}

// ServerStatus reports a server's current lifecycle state.
func (m *Manager) ServerStatus(name string) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[name]
	if !ok {
		return StatusStopped, nil
	}
	return st.status, st.err
}

// Tools returns toolapi.Tool adapters for every tool offered by ready
// servers, for the Tool Registry to hold alongside local tools.
func (m *Manager) Tools() []toolapi.Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []toolapi.Tool
	for name, st := range m.states {
		if st.status != StatusReady || st.client == nil {
			continue
		}
		c := st.client
		for _, dt := range c.tools {
			out = append(out, &mcpTool{serverName: name, tool: dt, call: c.callTool})
		}
	}
	return out
}
