package mcpreg

import (
	"context"
	"encoding/json"
	"testing"
)

func TestConfigValidateRequiresCommand(t *testing.T) {
	cfg := &Config{Servers: map[string]ServerConfig{"broken": {}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for server with no command")
	}

	cfg = &Config{Servers: map[string]ServerConfig{"ok": {Command: "mcp-server"}}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMcpToolNameIsServerPrefixed(t *testing.T) {
	tool := &mcpTool{
		serverName: "filesystem",
		tool:       discoveredTool{Name: "read_file", Description: "reads a file"},
	}
	if got, want := tool.Name(), "filesystem__read_file"; got != want {
		t.Fatalf("Name() = %q, want %q", got, want)
	}
	desc, _ := tool.Describe()
	if desc != "[filesystem] reads a file" {
		t.Fatalf("Describe() = %q", desc)
	}
}

func TestMcpToolExecuteRoutesThroughCall(t *testing.T) {
	var gotName string
	tool := &mcpTool{
		serverName: "fs",
		tool:       discoveredTool{Name: "read_file"},
		call: func(ctx context.Context, name string, args json.RawMessage) (string, bool, error) {
			gotName = name
			return "contents", false, nil
		},
	}
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"path":"a.go"}`), nil)
	if err != nil {
		t.Fatal(err)
	}
	if gotName != "read_file" {
		t.Fatalf("call received name %q", gotName)
	}
	if out.LLMContent != "contents" || out.IsError {
		t.Fatalf("out = %+v", out)
	}
}

func TestModelSamplerRequiresApproval(t *testing.T) {
	s := NewModelSampler(nil, false)
	if s.IsApproved("srv") {
		t.Fatal("expected unapproved server to start unapproved")
	}
	s.Approve("srv")
	if !s.IsApproved("srv") {
		t.Fatal("expected server to be approved after Approve")
	}
}
