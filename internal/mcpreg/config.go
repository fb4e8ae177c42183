package mcpreg

import "fmt"

// ServerConfig describes one configured MCP server, stdio transport
// only — the teacher's HTTP-transport branch is a concrete-transport
// detail this package doesn't need to reproduce.
type ServerConfig struct {
	Command string
	Args    []string
	Env     map[string]string
}

// Config is the full mcp.json-equivalent: every server this process
// may enable, keyed by name.
type Config struct {
	Servers map[string]ServerConfig
}

// Validate checks that every server config names a command.
func (c *Config) Validate() error {
	for name, s := range c.Servers {
		if s.Command == "" {
			return fmt.Errorf("mcpreg: server %q: command is required", name)
		}
	}
	return nil
}
