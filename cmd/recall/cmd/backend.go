package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openclaw/recall/internal/config"
	"github.com/openclaw/recall/internal/logging"
	"github.com/openclaw/recall/internal/memory"
)

// resolveWorkspace picks the workspace directory: the --workspace flag
// when set, otherwise the detected project root.
func resolveWorkspace() string {
	if workspaceFlag != "" {
		return workspaceFlag
	}
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	return root
}

// openBackend loads configuration and opens the memory backend. One-shot
// commands pass disableWatch since they close before a watcher could
// ever fire.
func openBackend(ctx context.Context, disableWatch bool) (*memory.Manager, *config.Config, error) {
	ws := resolveWorkspace()
	cfg, err := config.Load(ws)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	mgr, err := openManager(ctx, cfg, ws, disableWatch)
	if err != nil {
		return nil, nil, err
	}
	return mgr, cfg, nil
}

// openManager opens the backend against an already-loaded config.
func openManager(ctx context.Context, cfg *config.Config, workspace string, disableWatch bool) (*memory.Manager, error) {
	return memory.Open(ctx, memory.OpenOptions{
		Config:       cfg,
		Workspace:    workspace,
		AgentID:      agentFlag,
		DisableWatch: disableWatch,
		Logger:       slog.Default(),
	})
}

// setupCommandLogging routes one-shot command logs to the log file only,
// keeping stdout for command output. Logging failure is not fatal.
func setupCommandLogging() func() {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if debugMode {
		logCfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return func() {}
	}
	slog.SetDefault(logger)
	return cleanup
}
