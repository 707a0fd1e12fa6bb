package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openclaw/recall/internal/memory"
	"github.com/openclaw/recall/internal/output"
	"github.com/openclaw/recall/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	minScore float64
	session  string
	format   string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memory, sessions, and the knowledge base",
		Long: `Search the workspace memory with hybrid (vector + text) retrieval.

Results merge memory file chunks, session transcript chunks, knowledge
base chunks, and structured entries into one ranked list.

Examples:
  recall search "deploy window"
  recall search "database migration" --limit 5
  recall search "standup notes" --session 2026-08-21 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", search.DefaultMaxResults, "Maximum number of results")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Minimum normalized score (0 applies the default floor)")
	cmd.Flags().StringVar(&opts.session, "session", "", "Restrict session hits to one transcript key")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	defer setupCommandLogging()()

	mgr, _, err := openBackend(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close(context.Background()) }()

	results, err := mgr.Search(ctx, query, memory.SearchOptions{
		MaxResults: opts.limit,
		MinScore:   opts.minScore,
		SessionKey: opts.session,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := output.New(cmd.OutOrStdout())
	if len(results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	switch opts.format {
	case "json":
		return formatResultsJSON(cmd, results)
	default:
		return formatResultsText(out, query, results)
	}
}

// formatResultsText outputs results in human-readable form.
func formatResultsText(out *output.Writer, query string, results []search.Result) error {
	out.Statusf("🔍", "Found %d results for %q:", len(results), query)
	out.Newline()

	for i, r := range results {
		out.Statusf("", "%d. %s (score: %.2f)", i+1, resultOrigin(r), r.Score)
		for _, line := range getSnippet(r.Snippet, 3) {
			out.Status("", "   "+line)
		}
		if r.Kind == search.KindStructured && len(r.Tags) > 0 {
			out.Statusf("", "   tags: %s", strings.Join(r.Tags, ", "))
		}
		out.Newline()
	}
	return nil
}

// resultOrigin names where a hit came from, per kind.
func resultOrigin(r search.Result) string {
	switch r.Kind {
	case search.KindStructured:
		return fmt.Sprintf("[%s] %s", r.Type, r.Key)
	case search.KindKB:
		if r.Path != "" {
			return fmt.Sprintf("kb %s:%d-%d", r.Path, r.StartLine, r.EndLine)
		}
		return "kb " + r.DocID
	default:
		if r.StartLine > 0 {
			return fmt.Sprintf("%s:%d-%d", r.Path, r.StartLine, r.EndLine)
		}
		return r.Path
	}
}

// formatResultsJSON outputs results as a JSON array.
func formatResultsJSON(cmd *cobra.Command, results []search.Result) error {
	type jsonResult struct {
		Kind      string   `json:"kind"`
		Path      string   `json:"path,omitempty"`
		Source    string   `json:"source,omitempty"`
		StartLine int      `json:"start_line,omitempty"`
		EndLine   int      `json:"end_line,omitempty"`
		DocID     string   `json:"doc_id,omitempty"`
		Type      string   `json:"type,omitempty"`
		Key       string   `json:"key,omitempty"`
		Tags      []string `json:"tags,omitempty"`
		Score     float64  `json:"score"`
		Snippet   string   `json:"snippet"`
	}

	rows := make([]jsonResult, 0, len(results))
	for _, r := range results {
		rows = append(rows, jsonResult{
			Kind:      string(r.Kind),
			Path:      r.Path,
			Source:    r.Source,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			DocID:     r.DocID,
			Type:      r.Type,
			Key:       r.Key,
			Tags:      r.Tags,
			Score:     r.Score,
			Snippet:   r.Snippet,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// getSnippet returns the first n lines of content, trimming trailing
// blank lines.
func getSnippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
