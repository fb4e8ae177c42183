package mcpreg

import (
	"context"
	"encoding/json"

	"github.com/samsaffron/turnsched/internal/toolapi"
)

// mcpTool adapts one MCP server tool to toolapi.Tool. Every MCP tool
// call confirms via ConfirmMCP, since unlike a local read/edit/shell
// tool there's no finer-grained way to classify what a remote server
// might do with the call.
type mcpTool struct {
	serverName  string
	tool        discoveredTool
	call        func(ctx context.Context, name string, args json.RawMessage) (string, bool, error)
}

// Name returns the registry-visible name, prefixed with the server name
// to avoid collisions between servers exposing the same tool name.
func (t *mcpTool) Name() string { return t.serverName + "__" + t.tool.Name }

func (t *mcpTool) Describe() (string, map[string]any) {
	return "[" + t.serverName + "] " + t.tool.Description, t.tool.Schema
}

func (t *mcpTool) ValidateParams(args json.RawMessage) error {
	if len(args) == 0 {
		return nil
	}
	var v any
	return json.Unmarshal(args, &v)
}

func (t *mcpTool) ShouldConfirm(ctx context.Context, args json.RawMessage) (*toolapi.ConfirmationDetails, error) {
	return &toolapi.ConfirmationDetails{
		Kind:        toolapi.ConfirmMCP,
		ServerName:  t.serverName,
		ToolName:    t.tool.Name,
		DisplayName: t.serverName + "__" + t.tool.Name,
	}, nil
}

func (t *mcpTool) Execute(ctx context.Context, args json.RawMessage, onLiveOutput func(chunk string)) (toolapi.Output, error) {
	content, isError, err := t.call(ctx, t.tool.Name, args)
	if err != nil {
		return toolapi.Output{}, err
	}
	return toolapi.Output{LLMContent: content, IsError: isError}, nil
}

func (t *mcpTool) Kind() toolapi.Kind { return toolapi.KindExecute }

// IsOutputMarkdown reports true: most MCP servers return prose or
// fenced code, and there's no schema field to tell otherwise.
func (t *mcpTool) IsOutputMarkdown() bool { return true }

// CanStreamOutput is false: the MCP call adapter returns one final
// result, not incremental chunks.
func (t *mcpTool) CanStreamOutput() bool { return false }
