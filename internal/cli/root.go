// Package cli implements the claude-memory commands.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dogkeeper886/mem0/internal/config"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var configPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "claude-memory",
	Short:         "Project-scoped semantic memory for coding agents",
	Long:          "Stores and searches memories in a vector index, tagged with the project, git branch and session they came from.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: $"+config.PathEnv+")")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the JSON logger. The MCP command passes stderr because
// stdout carries protocol frames.
func newLogger(w io.Writer, level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel}))
}
