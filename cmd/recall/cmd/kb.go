package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openclaw/recall/internal/kb"
	"github.com/openclaw/recall/internal/output"
	"github.com/openclaw/recall/internal/store"
)

func newKBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Manage the knowledge base",
		Long: `Import and refresh knowledge base documents.

File-sourced documents come from the configured import directory and
are maintained by 'kb refresh' (or any sync pass). 'kb add' stores a
manual or url-sourced document directly.`,
	}

	cmd.AddCommand(newKBAddCmd())
	cmd.AddCommand(newKBRefreshCmd())

	return cmd
}

// kbAddOptions holds CLI flags for kb add.
type kbAddOptions struct {
	title string
	file  string
	url   string
	tags  []string
}

func newKBAddCmd() *cobra.Command {
	var opts kbAddOptions

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a document to the knowledge base",
		Long: `Store one document in the knowledge base.

Content comes from --file, or from stdin when --file is omitted.
Documents added with --url are stored as url-sourced and keep the URL
as their identity, so re-adding the same URL updates in place.

Examples:
  recall kb add --title "Deploy runbook" --file docs/runbook.md --tag ops
  cat notes.md | recall kb add --title "Notes"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKBAdd(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.title, "title", "t", "", "Document title (required)")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Read content from file (default: stdin)")
	cmd.Flags().StringVar(&opts.url, "url", "", "Record the document's source URL")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "Tag for search pre-filtering (repeatable)")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

func runKBAdd(ctx context.Context, cmd *cobra.Command, opts kbAddOptions) error {
	defer setupCommandLogging()()

	content, err := readKBContent(cmd, opts.file)
	if err != nil {
		return err
	}

	mgr, _, err := openBackend(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close(context.Background()) }()

	sourceType := store.KBSourceManual
	if opts.url != "" {
		sourceType = store.KBSourceURL
	}

	docID, chunks, err := mgr.AddKBDocument(ctx, kb.AddRequest{
		Title:      opts.title,
		Content:    string(content),
		SourceType: sourceType,
		URL:        opts.url,
		Tags:       opts.tags,
	})
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	out := output.New(cmd.OutOrStdout())
	out.Successf("Added %q (%d chunks)", opts.title, chunks)
	out.Statusf("", "id: %s", docID)
	return nil
}

// readKBContent loads the document body from the file flag or stdin.
func readKBContent(cmd *cobra.Command, file string) ([]byte, error) {
	if file != "" {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read content: %w", err)
		}
		return content, nil
	}
	content, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return content, nil
}

func newKBRefreshCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-import the knowledge base directory",
		Long: `Scan the configured import directory and write changed documents to
the knowledge base. Unchanged documents are skipped by content hash;
--force re-imports everything. Documents whose file left the import
set are removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKBRefresh(cmd.Context(), cmd, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-import documents even when unchanged")

	return cmd
}

func runKBRefresh(ctx context.Context, cmd *cobra.Command, force bool) error {
	defer setupCommandLogging()()

	mgr, cfg, err := openBackend(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close(context.Background()) }()

	out := output.New(cmd.OutOrStdout())
	if !cfg.MongoDB.KB.Enabled {
		out.Warning("Knowledge base import is disabled (kb.enabled: false)")
		return nil
	}

	res, err := mgr.RefreshKB(ctx, force)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	out.Successf("Imported %d documents (%d chunks) in %s",
		res.Documents, res.Chunks, res.Duration.Round(time.Millisecond))
	if res.Skipped > 0 {
		out.Statusf("", "Skipped: %d unchanged", res.Skipped)
	}
	if res.DeletedDocs > 0 {
		out.Statusf("", "Removed: %d documents, %d chunks", res.DeletedDocs, res.DeletedChunks)
	}
	if res.Failed > 0 {
		out.Warningf("%d files failed, see the log for details", res.Failed)
	}
	return nil
}
