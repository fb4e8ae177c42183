package mcpreg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// discoveredTool describes one tool as advertised by a running server.
type discoveredTool struct {
	Name        string
	Description string
	Schema      map[string]any
}

// client wraps one running MCP server connection over stdio.
type client struct {
	name   string
	config ServerConfig

	mu      sync.RWMutex
	session *mcp.ClientSession
	tools   []discoveredTool
	running bool
}

func newClient(name string, config ServerConfig) *client {
	return &client{name: name, config: config}
}

// samplingFunc matches the go-sdk's CreateMessageHandler field: it
// answers a server's sampling/createMessage request with a model-backed
// response, or an error if sampling isn't permitted.
type samplingFunc func(ctx context.Context, req *mcp.CreateMessageRequest) (*mcp.CreateMessageResult, error)

// start connects to the server over stdio and fetches its tool list.
func (c *client) start(ctx context.Context, sampling samplingFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	sdkClient := mcp.NewClient(&mcp.Implementation{Name: "turnsched", Version: "0.1.0"}, &mcp.ClientOptions{
		CreateMessageHandler: sampling,
	})

	cmd := exec.CommandContext(ctx, c.config.Command, c.config.Args...)
	for k, v := range c.config.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	session, err := sdkClient.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return fmt.Errorf("mcpreg: connect %s: %w", c.name, err)
	}
	c.session = session

	if err := c.refreshTools(ctx); err != nil {
		c.session.Close()
		c.session = nil
		return fmt.Errorf("mcpreg: list tools from %s: %w", c.name, err)
	}
	c.running = true
	return nil
}

func (c *client) stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	var err error
	if c.session != nil {
		err = c.session.Close()
		c.session = nil
	}
	c.running = false
	c.tools = nil
	return err
}

func (c *client) refreshTools(ctx context.Context) error {
	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return err
	}
	c.tools = make([]discoveredTool, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema := map[string]any{}
		if m, ok := any(t.InputSchema).(map[string]any); ok {
			schema = m
		}
		c.tools = append(c.tools, discoveredTool{Name: t.Name, Description: t.Description, Schema: schema})
	}
	return nil
}

func (c *client) callTool(ctx context.Context, name string, args json.RawMessage) (string, bool, error) {
	c.mu.RLock()
	session, running := c.session, c.running
	c.mu.RUnlock()
	if !running || session == nil {
		return "", false, fmt.Errorf("mcpreg: server %s is not running", c.name)
	}

	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return "", false, fmt.Errorf("mcpreg: invalid arguments: %w", err)
		}
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return "", false, fmt.Errorf("mcpreg: call %s: %w", name, err)
	}
	return formatContent(result.Content), result.IsError, nil
}

func formatContent(content []mcp.Content) string {
	var out string
	for _, c := range content {
		switch v := c.(type) {
		case *mcp.TextContent:
			out += v.Text
		default:
			if data, err := json.Marshal(c); err == nil {
				out += string(data)
			}
		}
	}
	return out
}
