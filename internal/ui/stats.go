package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// StatsInfo is the renderable view of store-level metrics.
type StatsInfo struct {
	Sources         map[string]int64 `json:"sources"`
	EmbeddingStatus map[string]int64 `json:"embedding_status"`
	EmbeddedRatio   float64          `json:"embedded_ratio"`
	CacheEntries    int64            `json:"cache_entries"`
	Collections     map[string]int64 `json:"collections"`
	IndexAccesses   map[string]int64 `json:"index_accesses"`
	StalePaths      []string         `json:"stale_paths,omitempty"`
}

// StatsRenderer displays store metrics.
type StatsRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatsRenderer creates a stats renderer.
func NewStatsRenderer(out io.Writer, noColor bool) *StatsRenderer {
	return &StatsRenderer{out: out, styles: GetStyles(noColor)}
}

// Render displays stats to the terminal.
func (r *StatsRenderer) Render(info StatsInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Memory Stats"))

	if len(info.Sources) > 0 {
		_, _ = fmt.Fprintln(r.out, "  Chunks by source:")
		r.renderCounts(info.Sources)
		_, _ = fmt.Fprintln(r.out)
	}

	if len(info.EmbeddingStatus) > 0 {
		_, _ = fmt.Fprintln(r.out, "  Embedding status:")
		r.renderCounts(info.EmbeddingStatus)
		_, _ = fmt.Fprintf(r.out, "  Embedded: %s\n\n", r.renderRatio(info.EmbeddedRatio))
	}

	_, _ = fmt.Fprintf(r.out, "  Cache entries: %d\n\n", info.CacheEntries)

	if len(info.Collections) > 0 {
		_, _ = fmt.Fprintln(r.out, "  Collections:")
		r.renderCounts(info.Collections)
		_, _ = fmt.Fprintln(r.out)
	}

	if len(info.IndexAccesses) > 0 {
		_, _ = fmt.Fprintln(r.out, "  Index accesses:")
		r.renderCounts(info.IndexAccesses)
		_, _ = fmt.Fprintln(r.out)
	}

	if len(info.StalePaths) > 0 {
		_, _ = fmt.Fprintf(r.out, "  %s\n", r.styles.Warning.Render(fmt.Sprintf("Stale paths (%d):", len(info.StalePaths))))
		for _, p := range info.StalePaths {
			_, _ = fmt.Fprintf(r.out, "    %s\n", p)
		}
	}

	return nil
}

// RenderJSON outputs stats as JSON.
func (r *StatsRenderer) RenderJSON(info StatsInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// renderCounts prints a count map with sorted keys and aligned values.
func (r *StatsRenderer) renderCounts(counts map[string]int64) {
	keys := make([]string, 0, len(counts))
	width := 0
	for k := range counts {
		keys = append(keys, k)
		if len(k) > width {
			width = len(k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(r.out, "    %-*s %d\n", width+1, k+":", counts[k])
	}
}

// renderRatio colors the embedded coverage percentage: green at full
// coverage, yellow while chunks are still pending.
func (r *StatsRenderer) renderRatio(ratio float64) string {
	pct := fmt.Sprintf("%.1f%%", ratio*100)
	if ratio >= 1 {
		return r.styles.Success.Render(pct)
	}
	return r.styles.Warning.Render(pct)
}
