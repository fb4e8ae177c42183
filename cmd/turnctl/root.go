package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/google/uuid"

	"github.com/samsaffron/turnsched/internal/checkpoint"
	"github.com/samsaffron/turnsched/internal/clock"
	"github.com/samsaffron/turnsched/internal/debuglog"
	"github.com/samsaffron/turnsched/internal/history"
	"github.com/samsaffron/turnsched/internal/modelapi"
	"github.com/samsaffron/turnsched/internal/providers/anthropic"
	"github.com/samsaffron/turnsched/internal/providers/gemini"
	"github.com/samsaffron/turnsched/internal/providers/openai"
	"github.com/samsaffron/turnsched/internal/registry"
	"github.com/samsaffron/turnsched/internal/rtconfig"
	"github.com/samsaffron/turnsched/internal/scheduler"
	"github.com/samsaffron/turnsched/internal/sessionstore"
	"github.com/samsaffron/turnsched/internal/toolcall"
)

func newRootCmd() *cobra.Command {
	var provider, model, apiKey, debugPath string
	var yolo bool

	root := &cobra.Command{
		Use:   "turnctl",
		Short: "Manually exercise the turn scheduler against a model provider",
	}

	chat := &cobra.Command{
		Use:   "chat",
		Short: "Start a line-oriented REPL driving one chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, provider, model, apiKey, debugPath, yolo)
		},
	}
	chat.Flags().StringVar(&provider, "provider", "", "model provider: anthropic, openai, or gemini (defaults to config file)")
	chat.Flags().StringVar(&model, "model", "", "model name (defaults to config file)")
	chat.Flags().StringVar(&apiKey, "api-key", "", "provider API key (defaults to the provider's own env var)")
	chat.Flags().StringVar(&debugPath, "debug-trace", "", "append per-turn request/response JSON lines to this file")
	chat.Flags().BoolVar(&yolo, "yolo", false, "skip every tool confirmation prompt")

	root.AddCommand(chat)
	return root
}

func runChat(cmd *cobra.Command, providerFlag, modelFlag, apiKeyFlag, debugPath string, yolo bool) error {
	cfg, err := rtconfig.Load()
	if err != nil {
		return fmt.Errorf("turnctl: load config: %w", err)
	}

	providerName := providerFlag
	if providerName == "" {
		providerName = cfg.DefaultProvider
	}
	pc := cfg.Providers[providerName]
	if modelFlag != "" {
		pc.Model = modelFlag
	}
	if apiKeyFlag != "" {
		pc.APIKey = apiKeyFlag
	}

	model, err := buildProvider(providerName, pc)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	reg := registry.New()
	hist := history.New()

	prompt := toolcall.NewCLIPrompt(os.Stdin, os.Stdout)
	approver := toolcall.NewManager(prompt)
	approver.YoloMode = yolo || cfg.YoloMode

	schedCfg := scheduler.DefaultConfig()
	if cfg.MaxTurns > 0 {
		schedCfg.MaxTurns = cfg.MaxTurns
	}
	if cfg.CompressionThreshold > 0 {
		schedCfg.CompressionThreshold = cfg.CompressionThreshold
	}

	sched := scheduler.New(model, reg, hist, approver, schedCfg, logger)

	if cpDir, err := os.MkdirTemp("", "turnctl-checkpoints-"); err == nil {
		if store, err := checkpoint.NewStore(cpDir); err == nil {
			sched.Checkpoints = store
		}
	}

	if debugPath != "" {
		logger, err := debuglog.Open(debugPath)
		if err != nil {
			return fmt.Errorf("turnctl: open debug trace: %w", err)
		}
		defer logger.Close()
		sched.Debug = logger
	}

	var store *sessionstore.Store
	if dbPath, err := sessionstore.ResolveDBPath(""); err == nil {
		if s, err := sessionstore.Open(dbPath); err == nil {
			store = s
			defer store.Close()
		} else {
			logger.Warn("could not open session store", "error", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "turnctl: connected to %s (%s). Ctrl-D to exit.\n", providerName, pc.Model)
	return replLoop(cmd, sched, model, store)
}

func replLoop(cmd *cobra.Command, sched *scheduler.Scheduler, model modelapi.Model, store *sessionstore.Store) error {
	out := cmd.OutOrStdout()
	sessionID := uuid.NewString()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			return nil
		}

		tok := clock.NewToken(context.Background())
		result, err := sched.Run(context.Background(), tok, line)
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			continue
		}
		fmt.Fprintln(out, result.FinalText)

		if store != nil {
			messages := sched.History.Comprehensive()
			tokens, _ := model.CountTokens(messages)
			if _, err := store.AppendTurn(context.Background(), sessionID, messages, tokens, 0, 0); err != nil {
				fmt.Fprintln(out, "warning: failed to persist completed turn:", err)
			}
		}
	}
}

func buildProvider(name string, pc rtconfig.ProviderConfig) (modelapi.Model, error) {
	switch name {
	case "anthropic":
		return anthropic.New(pc.APIKey, pc.Model)
	case "openai":
		return openai.New(pc.APIKey, pc.Model)
	case "gemini":
		return gemini.New(pc.APIKey, pc.Model)
	default:
		return nil, fmt.Errorf("turnctl: unknown provider %q", name)
	}
}
