package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openclaw/recall/internal/config"
	"github.com/openclaw/recall/internal/logging"
	"github.com/openclaw/recall/internal/mcp"
	"github.com/openclaw/recall/internal/ui"
)

// serveOptions hold the serve flags. Zero values defer to config.
type serveOptions struct {
	transport string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP memory server",
		Long: `Start the Model Context Protocol server on stdio.

Stdout carries JSON-RPC exclusively; all logs go to the log file.
Register the binary in the agent client configuration, for example:

  {"mcpServers": {"recall": {"command": "recall", "args": ["serve"]}}}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "stdio", "Transport: stdio")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	if err := verifyStdinForMCP(); err != nil {
		return err
	}

	ws := resolveWorkspace()
	cfg, err := config.Load(ws)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	transport := opts.transport
	if transport == "" {
		transport = cfg.Server.Transport
	}

	// Stdout belongs to JSON-RPC from here on, so logging moves to the
	// file before anything else runs.
	level := cfg.Server.LogLevel
	if debugMode {
		level = "debug"
	}
	if cleanup, err := logging.SetupMCPModeWithLevel(level); err == nil {
		defer cleanup()
	}

	mgr, err := openManager(ctx, cfg, ws, false)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close(context.Background()) }()

	srv, err := mcp.NewServer(mgr, ws, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	if err := srv.RegisterResources(ctx); err != nil {
		return fmt.Errorf("register resources: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx, transport)
}

// verifyStdinForMCP rejects interactive stdin. The stdio transport
// expects a client process on the other end of a pipe; a terminal there
// means the user ran serve by hand.
func verifyStdinForMCP() error {
	if ui.InteractiveStdin() {
		return fmt.Errorf("stdin is a terminal: MCP serving needs a client pipe\n" +
			"Register recall in your agent's MCP configuration instead of running it interactively")
	}
	return nil
}
