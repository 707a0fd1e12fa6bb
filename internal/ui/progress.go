package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

const progressBarWidth = 24

// SyncProgress renders an in-place progress line during a sync pass.
// It stays silent on non-interactive writers so piped output and CI logs
// only carry the final summary. Safe for concurrent use.
type SyncProgress struct {
	mu          sync.Mutex
	out         io.Writer
	styles      Styles
	interactive bool
	drawn       bool
}

// NewSyncProgress creates a progress renderer for the writer. Rendering
// activates only when the writer is an interactive terminal outside CI.
func NewSyncProgress(out io.Writer, noColor bool) *SyncProgress {
	return &SyncProgress{
		out:         out,
		styles:      GetStyles(noColor),
		interactive: InteractiveProgress(out),
	}
}

// Update redraws the progress line for the given position.
func (p *SyncProgress) Update(completed, total int, label string) {
	if !p.interactive {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	line := fmt.Sprintf("%s %d/%d", p.renderBar(completed, total), completed, total)
	if label != "" {
		line += " " + p.styles.Dim.Render(truncateLabel(label, 40))
	}
	_, _ = fmt.Fprintf(p.out, "\r\033[K%s", line)
	p.drawn = true
}

// Done clears the progress line so the summary prints on a clean row.
func (p *SyncProgress) Done() {
	if !p.interactive {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.drawn {
		_, _ = fmt.Fprint(p.out, "\r\033[K")
		p.drawn = false
	}
}

// renderBar draws a fixed-width bar of filled and empty cells.
func (p *SyncProgress) renderBar(completed, total int) string {
	filled := 0
	if total > 0 {
		filled = completed * progressBarWidth / total
		if filled > progressBarWidth {
			filled = progressBarWidth
		}
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled)
	return "[" + p.styles.Accent.Render(bar) + "]"
}

// truncateLabel keeps the tail of long labels, which for file paths is
// the informative part.
func truncateLabel(label string, max int) string {
	if len(label) <= max {
		return label
	}
	return "..." + label[len(label)-max+3:]
}
