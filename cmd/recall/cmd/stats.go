package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openclaw/recall/internal/memory"
	"github.com/openclaw/recall/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store metrics",
		Long: `Display store-level metrics: chunk counts per source, embedding
coverage, cache size, collection document counts, and index usage.

Stale-path detection compares stored paths against the files currently
on disk and lists entries whose file is gone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	defer setupCommandLogging()()

	mgr, _, err := openBackend(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close(context.Background()) }()

	stats, err := mgr.Stats(ctx, memory.StatsOptions{ValidPaths: mgr.ValidPaths()})
	if err != nil {
		return fmt.Errorf("collect stats: %w", err)
	}

	info := collectStats(stats)
	renderer := ui.NewStatsRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

// collectStats maps store metrics onto the renderable view.
func collectStats(stats *memory.Stats) ui.StatsInfo {
	info := ui.StatsInfo{
		Sources:         make(map[string]int64, len(stats.SourceCounts)),
		EmbeddingStatus: make(map[string]int64, len(stats.EmbeddingStatus)),
		EmbeddedRatio:   stats.EmbeddedRatio,
		CacheEntries:    stats.CacheEntries,
		Collections:     stats.Collections,
		IndexAccesses:   stats.IndexAccesses,
		StalePaths:      stats.StalePaths,
	}
	for source, n := range stats.SourceCounts {
		info.Sources[string(source)] = n
	}
	for status, n := range stats.EmbeddingStatus {
		info.EmbeddingStatus[string(status)] = n
	}
	return info
}
