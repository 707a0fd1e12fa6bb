package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// StatusInfo is the renderable view of backend health: workspace shape,
// embedding configuration, and the search capabilities detected at open.
type StatusInfo struct {
	Workspace string   `json:"workspace"`
	Backend   string   `json:"backend"`
	Profile   string   `json:"profile,omitempty"`
	State     string   `json:"state"`
	Files     int64    `json:"files"`
	Chunks    int64    `json:"chunks"`
	Sources   []string `json:"sources,omitempty"`

	EmbeddingMode      string `json:"embedding_mode,omitempty"`
	Provider           string `json:"provider"`
	Model              string `json:"model,omitempty"`
	Dimensions         int    `json:"dimensions,omitempty"`
	EmbeddingAvailable bool   `json:"embedding_available"`

	VectorSearch bool   `json:"vector_search"`
	TextSearch   bool   `json:"text_search"`
	ServerFusion bool   `json:"server_fusion"`
	Fusion       string `json:"fusion,omitempty"`
	Quantization string `json:"quantization,omitempty"`

	// Watcher is "active" or "disabled"; empty skips the line, which
	// one-shot commands use since they never start watchers.
	Watcher string `json:"watcher,omitempty"`
}

// StatusRenderer displays backend status.
type StatusRenderer struct {
	out     io.Writer
	styles  Styles
	noColor bool
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:     out,
		styles:  GetStyles(noColor),
		noColor: noColor,
	}
}

// Render displays status info to the terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Memory Status: "+info.Workspace))

	backend := info.Backend
	if info.Profile != "" {
		backend = fmt.Sprintf("%s (%s)", info.Backend, info.Profile)
	}
	_, _ = fmt.Fprintf(r.out, "  Backend: %s\n", backend)
	_, _ = fmt.Fprintf(r.out, "  State:   %s\n", r.renderState(info.State))
	_, _ = fmt.Fprintf(r.out, "  Files:   %d\n", info.Files)
	_, _ = fmt.Fprintf(r.out, "  Chunks:  %d\n", info.Chunks)
	if len(info.Sources) > 0 {
		_, _ = fmt.Fprintf(r.out, "  Sources: %s\n", strings.Join(info.Sources, ", "))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Embedding:")
	if info.EmbeddingMode != "" {
		_, _ = fmt.Fprintf(r.out, "    Mode:     %s\n", info.EmbeddingMode)
	}
	provider := info.Provider
	if provider == "" {
		provider = "none"
	}
	_, _ = fmt.Fprintf(r.out, "    Provider: %s\n", provider)
	if info.Model != "" {
		model := info.Model
		if info.Dimensions > 0 {
			model = fmt.Sprintf("%s (%d dims)", info.Model, info.Dimensions)
		}
		_, _ = fmt.Fprintf(r.out, "    Model:    %s\n", model)
	}
	_, _ = fmt.Fprintf(r.out, "    Status:   %s\n", r.renderAvailability(info.EmbeddingAvailable))
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Search:")
	_, _ = fmt.Fprintf(r.out, "    Vector: %s\n", r.renderAvailability(info.VectorSearch))
	_, _ = fmt.Fprintf(r.out, "    Text:   %s\n", r.renderAvailability(info.TextSearch))
	if info.Fusion != "" {
		fusion := info.Fusion
		if info.ServerFusion {
			fusion += " (server-side)"
		}
		_, _ = fmt.Fprintf(r.out, "    Fusion: %s\n", fusion)
	}
	if info.Quantization != "" && info.Quantization != "none" {
		_, _ = fmt.Fprintf(r.out, "    Quantization: %s\n", info.Quantization)
	}

	if info.Watcher != "" {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "  Watcher: %s\n", r.renderState(info.Watcher))
	}

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// renderState formats a state string with color.
func (r *StatusRenderer) renderState(state string) string {
	switch state {
	case "clean", "active":
		return r.styles.Success.Render(state)
	case "dirty", "disabled":
		return r.styles.Warning.Render(state)
	case "closed":
		return r.styles.Error.Render(state)
	default:
		return state
	}
}

// renderAvailability formats a capability flag with color.
func (r *StatusRenderer) renderAvailability(ok bool) string {
	if ok {
		return r.styles.Success.Render("available")
	}
	return r.styles.Warning.Render("unavailable")
}
