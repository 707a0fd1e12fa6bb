package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openclaw/recall/configs"
	"github.com/openclaw/recall/internal/config"
	"github.com/openclaw/recall/internal/output"
)

// mcpServerEntry is one server registration inside .mcp.json.
type mcpServerEntry struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// mcpClientConfig is the root .mcp.json structure shared by MCP clients.
type mcpClientConfig struct {
	MCPServers map[string]mcpServerEntry `json:"mcpServers"`
}

type initOptions struct {
	force bool
	user  bool
}

func newInitCmd() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up recall for a project",
		Long: `Set up recall for the current project.

This command:
1. Writes a .recall.yaml configuration template to the project root
   (existing files are always preserved)
2. Registers recall as a stdio MCP server in .mcp.json so MCP clients
   pick it up on their next start

With --user it also writes the machine-level config template to
~/.config/recall/config.yaml, the place for connection strings and API
keys that should not live in version control.

Run 'recall sync' afterwards to load the workspace into MongoDB.`,
		Example: `  # Set up the current project
  recall init

  # Rewrite the .mcp.json entry (after moving the binary)
  recall init --force

  # Also create the user config template
  recall init --user`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite an existing recall entry in .mcp.json")
	cmd.Flags().BoolVar(&opts.user, "user", false, "Also write the user config template")

	return cmd
}

func runInit(cmd *cobra.Command, opts initOptions) error {
	defer setupCommandLogging()()

	out := output.New(cmd.OutOrStdout())

	root, err := filepath.Abs(resolveWorkspace())
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	if err := writeProjectTemplate(out, root); err != nil {
		return err
	}
	if err := registerMCPServer(out, root, opts.force); err != nil {
		return err
	}
	if opts.user {
		if err := writeUserTemplate(out); err != nil {
			return err
		}
	}

	out.Newline()
	out.Success("recall is configured")
	out.Status("💡", "Run 'recall sync' to load memory files into MongoDB")
	return nil
}

// writeProjectTemplate creates a template .recall.yaml unless the
// project already has one. Existing files are never overwritten; the
// template carries user customizations we cannot reconstruct.
func writeProjectTemplate(out *output.Writer, projectRoot string) error {
	yamlPath := filepath.Join(projectRoot, ".recall.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		out.Status("ℹ️ ", "Existing .recall.yaml preserved")
		return nil
	}

	// Both extensions load; respect whichever the user picked.
	if _, err := os.Stat(filepath.Join(projectRoot, ".recall.yml")); err == nil {
		out.Status("ℹ️ ", "Existing .recall.yml found, skipping template")
		return nil
	}

	if err := os.WriteFile(yamlPath, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write .recall.yaml: %w", err)
	}

	out.Status("📝", "Created .recall.yaml (optional, all settings commented out)")
	return nil
}

// registerMCPServer creates or updates .mcp.json in the project root so
// MCP clients launch 'recall serve' over stdio. Other server entries in
// the file are left untouched.
func registerMCPServer(out *output.Writer, projectRoot string, force bool) error {
	mcpPath := filepath.Join(projectRoot, ".mcp.json")

	clientCfg := mcpClientConfig{MCPServers: make(map[string]mcpServerEntry)}
	if data, err := os.ReadFile(mcpPath); err == nil {
		if err := json.Unmarshal(data, &clientCfg); err != nil {
			return fmt.Errorf("parse existing .mcp.json: %w", err)
		}
		if clientCfg.MCPServers == nil {
			clientCfg.MCPServers = make(map[string]mcpServerEntry)
		}
		if _, exists := clientCfg.MCPServers["recall"]; exists && !force {
			out.Status("ℹ️ ", "recall already configured in .mcp.json (use --force to rewrite)")
			return nil
		}
	}

	bin, err := findRecallBinary()
	if err != nil {
		return fmt.Errorf("locate recall binary: %w", err)
	}

	clientCfg.MCPServers["recall"] = mcpServerEntry{
		Type:    "stdio",
		Command: bin,
		Args:    []string{"serve"},
		Cwd:     projectRoot,
	}

	data, err := json.MarshalIndent(clientCfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal .mcp.json: %w", err)
	}
	if err := os.WriteFile(mcpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write .mcp.json: %w", err)
	}

	out.Statusf("📝", "Registered recall in %s", mcpPath)
	return nil
}

// writeUserTemplate creates the machine-level config template at the
// user config path. Existing files are preserved.
func writeUserTemplate(out *output.Writer) error {
	path := config.GetUserConfigPath()
	if _, err := os.Stat(path); err == nil {
		out.Statusf("ℹ️ ", "Existing user config preserved: %s", path)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.UserConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write user config: %w", err)
	}

	out.Statusf("📝", "Created %s", path)
	return nil
}

// findRecallBinary locates the recall binary for the .mcp.json entry,
// preferring our own resolved path so the registration survives PATH
// changes.
func findRecallBinary() (string, error) {
	execPath, err := os.Executable()
	if err == nil {
		if realPath, err := filepath.EvalSymlinks(execPath); err == nil {
			return realPath, nil
		}
		return execPath, nil
	}

	path, err := exec.LookPath("recall")
	if err != nil {
		return "", fmt.Errorf("recall not found in PATH: %w", err)
	}
	return path, nil
}
