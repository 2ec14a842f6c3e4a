// Package main provides the deskpilot CLI, an agent that drives the local
// desktop through an LLM.
//
// # Basic Usage
//
// Give the agent a task:
//
//	deskpilot run "open the settings app and enable dark mode"
//
// Inspect the display model the agent will see:
//
//	deskpilot geometry --point 640,400
//	deskpilot screenshot -o shot.png
//
// Work with configuration:
//
//	deskpilot config schema > deskpilot.schema.json
//	deskpilot config validate --config deskpilot.yaml
//
// # Environment Variables
//
//   - DESKPILOT_CONFIG: Path to configuration file (default: deskpilot.yaml)
//   - OPENROUTER_API_KEY: Key used by the openrouter provider when the file has none
//   - ANTHROPIC_API_KEY: Key used by the anthropic provider when the file has none
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags shared by every subcommand.
var (
	configPath string
	logLevel   string
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deskpilot",
		Short: "deskpilot - LLM-driven desktop automation",
		Long: `deskpilot lets a language model operate this machine through a small set
of tools: computer (mouse, keyboard, screenshots), bash, str_replace_editor
and a headless browser.

Supported providers: OpenRouter (any OpenAI-compatible endpoint), Anthropic`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (or set DESKPILOT_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(
		buildRunCmd(),
		buildGeometryCmd(),
		buildScreenshotCmd(),
		buildToolsCmd(),
		buildConfigCmd(),
	)
	return rootCmd
}
