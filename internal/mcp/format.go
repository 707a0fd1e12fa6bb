package mcp

import (
	"fmt"
	"strings"

	"github.com/openclaw/recall/internal/search"
)

// FormatSearchResults renders merged search results as markdown.
func FormatSearchResults(query string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Search Results for \"%s\"\n\n", query))
	sb.WriteString(fmt.Sprintf("Found %d result", len(results)))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		formatResult(&sb, i+1, r)
	}

	return sb.String()
}

// formatResult renders one merged hit. Memory content is markdown
// already, so snippets pass through unfenced with a rule between entries.
func formatResult(sb *strings.Builder, num int, r search.Result) {
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n\n", num, resultOrigin(r), r.Score)

	if len(r.Tags) > 0 {
		tags := make([]string, len(r.Tags))
		for i, t := range r.Tags {
			tags[i] = fmt.Sprintf("`%s`", t)
		}
		fmt.Fprintf(sb, "**Tags:** %s\n\n", strings.Join(tags, ", "))
	}

	sb.WriteString(strings.TrimRight(r.Snippet, "\n"))
	sb.WriteString("\n\n---\n\n")
}

// resultOrigin names where a hit came from: file and line range for chunk
// hits, type and key for structured entries.
func resultOrigin(r search.Result) string {
	switch r.Kind {
	case search.KindStructured:
		return fmt.Sprintf("[%s] %s", r.Type, r.Key)
	case search.KindKB:
		origin := r.Path
		if origin == "" {
			origin = r.DocID
		}
		if r.StartLine > 0 {
			origin = fmt.Sprintf("%s:%d-%d", origin, r.StartLine, r.EndLine)
		}
		return "kb " + origin
	default:
		if r.StartLine > 0 {
			return fmt.Sprintf("%s:%d-%d", r.Path, r.StartLine, r.EndLine)
		}
		return r.Path
	}
}

// FormatFileContent renders a windowed file read as markdown.
func FormatFileContent(out *ReadFileOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", out.Path)

	if out.Lines == 0 {
		fmt.Fprintf(&sb, "No content in the requested range (%d lines total).\n", out.Total)
		return sb.String()
	}

	fmt.Fprintf(&sb, "Lines %d-%d of %d\n\n", out.From, out.From+out.Lines-1, out.Total)
	sb.WriteString(out.Content)
	if !strings.HasSuffix(out.Content, "\n") {
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatStatus renders a status snapshot as markdown.
func FormatStatus(out *StatusOutput) string {
	var sb strings.Builder
	sb.WriteString("## Memory Status\n\n")
	fmt.Fprintf(&sb, "**Backend:** %s (%s profile)\n", out.Backend, out.Search.Profile)
	fmt.Fprintf(&sb, "**Workspace:** %s\n", out.Workspace.Path)
	fmt.Fprintf(&sb, "**Indexed:** %d files, %d chunks\n", out.Files, out.Chunks)

	state := "clean"
	if out.Dirty {
		state = "dirty (sync pending)"
	}
	fmt.Fprintf(&sb, "**State:** %s\n", state)
	fmt.Fprintf(&sb, "**Sources:** %s\n\n", strings.Join(out.Sources, ", "))

	availability := "available"
	if !out.Embeddings.Available {
		availability = "unavailable"
	}
	fmt.Fprintf(&sb, "**Embeddings:** %s mode, %s (%s), %s\n",
		out.Embeddings.Mode, out.Embeddings.Provider, out.Embeddings.Model, availability)
	fmt.Fprintf(&sb, "**Vector search:** %s\n", yesNo(out.Search.VectorSearch))
	fmt.Fprintf(&sb, "**Text search:** %s\n", yesNo(out.Search.TextSearch))
	fmt.Fprintf(&sb, "**Fusion:** %s", out.Search.Fusion)
	if out.Search.ServerFusion {
		sb.WriteString(" (server-side)")
	}
	sb.WriteString("\n")
	return sb.String()
}

// FormatSyncResult renders a sync pass as markdown.
func FormatSyncResult(out *SyncOutput) string {
	var sb strings.Builder
	sb.WriteString("## Sync Complete\n\n")
	fmt.Fprintf(&sb, "**Files:** %d ingested, %d skipped, %d failed\n", out.Files, out.Skipped, out.Failed)
	fmt.Fprintf(&sb, "**Chunks:** %d written\n", out.Chunks)
	if out.DeletedFiles > 0 || out.DeletedChunks > 0 {
		fmt.Fprintf(&sb, "**Pruned:** %d files, %d chunks\n", out.DeletedFiles, out.DeletedChunks)
	}
	if out.KBDocuments > 0 || out.KBChunks > 0 {
		fmt.Fprintf(&sb, "**Knowledge base:** %d documents, %d chunks\n", out.KBDocuments, out.KBChunks)
	}
	fmt.Fprintf(&sb, "**Duration:** %dms\n", out.DurationMS)
	return sb.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
