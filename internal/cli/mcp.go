package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dogkeeper886/mem0/internal/mcp"
	"github.com/dogkeeper886/mem0/internal/project"
)

func init() {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP stdio server",
		Long: "Speaks MCP over stdin/stdout and runs the memory service in-process, " +
			"so memories are tagged with the directory the client was started in.",
		Args: cobra.NoArgs,
		RunE: runMCP,
	}

	RootCmd.AddCommand(cmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(os.Stderr, cfg.LogLevel)

	svc, cleanup, err := buildService(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := mcp.NewServer(svc, project.EnvFromProcess(), Version, logger)
	return server.Serve(ctx, os.Stdin, os.Stdout)
}
