package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openclaw/recall/internal/ingest"
	"github.com/openclaw/recall/internal/memory"
	"github.com/openclaw/recall/internal/output"
	"github.com/openclaw/recall/internal/ui"
)

func newSyncCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Scan memory files and update the store",
		Long: `Scan the workspace's memory files and session transcripts, write
changed content to MongoDB, and refresh the knowledge base import
directory when one is configured.

Unchanged files are skipped by content hash; --force re-ingests
everything, which also rebuilds embeddings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), cmd, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-ingest files even when unchanged")

	return cmd
}

func runSync(ctx context.Context, cmd *cobra.Command, force bool) error {
	defer setupCommandLogging()()

	mgr, _, err := openBackend(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close(context.Background()) }()

	out := output.New(cmd.OutOrStdout())
	progress := ui.NewSyncProgress(cmd.OutOrStdout(), ui.DetectNoColor())

	res, err := mgr.Sync(ctx, memory.SyncOptions{
		Force:  force,
		Reason: "cli",
		Progress: func(p ingest.Progress) {
			progress.Update(p.Completed, p.Total, p.Label)
		},
	})
	progress.Done()
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	printSyncResult(out, res)
	return nil
}

// printSyncResult renders the sync summary, keeping quiet passes quiet:
// zero-valued counters print nothing.
func printSyncResult(out *output.Writer, res *memory.SyncResult) {
	ing := res.Ingest
	if ing == nil {
		ing = &ingest.Result{}
	}

	out.Successf("Synced %d files (%d chunks) in %s",
		ing.Files, ing.Chunks, ing.Duration.Round(time.Millisecond))
	if ing.Skipped > 0 {
		out.Statusf("", "Skipped: %d unchanged", ing.Skipped)
	}
	if ing.Repaired > 0 {
		out.Statusf("", "Repaired: %d chunk embeddings", ing.Repaired)
	}
	if ing.DeletedFiles > 0 || ing.DeletedChunks > 0 {
		out.Statusf("", "Pruned: %d files, %d chunks", ing.DeletedFiles, ing.DeletedChunks)
	}
	if ing.Failed > 0 {
		out.Warningf("%d files failed, see the log for details", ing.Failed)
	}
	if res.KB != nil {
		out.Statusf("", "Knowledge base: %d documents, %d chunks (%d skipped)",
			res.KB.Documents, res.KB.Chunks, res.KB.Skipped)
		if res.KB.Failed > 0 {
			out.Warningf("%d knowledge base files failed", res.KB.Failed)
		}
	}
}
