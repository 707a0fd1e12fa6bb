package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/openclaw/recall/internal/config"
	"github.com/openclaw/recall/internal/memory"
	"github.com/openclaw/recall/internal/output"
	"github.com/openclaw/recall/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show backend health and capabilities",
		Long: `Display backend state for the workspace:
  - File and chunk counts, dirty state, indexed sources
  - Embedding mode, provider, and live availability
  - Detected search capabilities (vector, text, fusion)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	defer setupCommandLogging()()

	mgr, cfg, err := openBackend(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close(context.Background()) }()

	// The probe is a live round trip; failure means degraded, not broken.
	embedOK, _ := mgr.ProbeEmbeddingAvailability(ctx)
	info := collectStatus(mgr.Status(), cfg, embedOK)

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	if err := renderer.Render(info); err != nil {
		return err
	}

	if !embedOK && cfg.MongoDB.EmbeddingMode == config.EmbeddingManaged {
		out := output.New(cmd.OutOrStdout())
		out.Newline()
		out.Warning("Embedding provider unreachable, falling back to lexical search")
		out.Code("export OPENAI_API_KEY=sk-...\nrecall sync --force")
	}
	return nil
}

// collectStatus maps a backend snapshot onto the renderable view.
func collectStatus(st memory.Status, cfg *config.Config, embedOK bool) ui.StatusInfo {
	state := "clean"
	if st.Dirty {
		state = "dirty"
	}
	if st.Closed {
		state = "closed"
	}

	info := ui.StatusInfo{
		Workspace:          st.Workspace,
		Backend:            st.Backend,
		State:              state,
		Files:              st.Files,
		Chunks:             st.Chunks,
		Sources:            st.Sources,
		Provider:           st.Provider,
		Model:              st.Model,
		EmbeddingAvailable: embedOK,
		Profile:            customString(st.Custom, "deploymentProfile"),
		EmbeddingMode:      customString(st.Custom, "embeddingMode"),
		Fusion:             customString(st.Custom, "fusionMethod"),
		Quantization:       customString(st.Custom, "quantization"),
		VectorSearch:       customBool(st.Custom, "vectorSearch"),
		TextSearch:         customBool(st.Custom, "textSearch"),
		ServerFusion:       customBool(st.Custom, "serverFusion"),
	}
	if cfg != nil {
		info.Dimensions = cfg.MongoDB.NumDimensions
	}
	if customBool(st.Custom, "watcher") {
		info.Watcher = "active"
	}
	return info
}

// customString reads a string from the backend's custom status map.
func customString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// customBool reads a bool from the backend's custom status map.
func customBool(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}
