// Package rtconfig loads the scheduler's runtime configuration from
// defaults, an optional YAML file, and environment variables, using
// viper's layered precedence the way the teacher's internal/config
// package does.
package rtconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the small, flat configuration surface the scheduler and its
// collaborators need. It intentionally omits everything the teacher's
// Config carried for its own product surface (themes, agents, skills,
// serve platforms) since none of that is a named SPEC_FULL.md component.
type Config struct {
	DefaultProvider string                    `mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `mapstructure:"providers"`

	MaxTurns              int     `mapstructure:"max_turns"`
	MaxParallelTools      int     `mapstructure:"max_parallel_tools"`
	CompressionThreshold  float64 `mapstructure:"compression_threshold"`
	ToolOutputMaxBytes    int64   `mapstructure:"tool_output_max_bytes"`
	ToolOutputMaxLines    int     `mapstructure:"tool_output_max_lines"`
	YoloMode              bool    `mapstructure:"yolo_mode"`

	ToolTimeout time.Duration `mapstructure:"tool_timeout"`
}

// ProviderConfig names which model adapter to construct and with which
// model string; credential resolution itself is the out-of-scope
// transport concern, so this only carries what SendStream needs plus an
// optional API key for the adapter's own env-var fallback.
type ProviderConfig struct {
	Type   string `mapstructure:"type"`
	Model  string `mapstructure:"model"`
	APIKey string `mapstructure:"api_key"`
}

// defaults mirrors the teacher's GetDefaults single-source-of-truth
// pattern: every default lives in one map so Load and a future "config
// show defaults" surface read the exact same values.
func defaults() map[string]any {
	return map[string]any{
		"default_provider":      "anthropic",
		"max_turns":             64,
		"max_parallel_tools":    8,
		"compression_threshold": 0.7,
		"tool_output_max_bytes": int64(32 * 1024),
		"tool_output_max_lines": 2000,
		"yolo_mode":             false,
		"tool_timeout":          120 * time.Second,
	}
}

// ConfigDir returns the XDG config directory for turnsched, honoring
// XDG_CONFIG_HOME the way the teacher's GetConfigDir does.
func ConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "turnsched"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "turnsched"), nil
}

// Load reads config.yaml from the XDG config dir (or the current
// directory), falling back to defaults() for anything unset, and
// applying TURNSCHED_-prefixed environment overrides last.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if dir, err := ConfigDir(); err == nil {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("turnsched")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("rtconfig: read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("rtconfig: unmarshal: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	return &cfg, nil
}
