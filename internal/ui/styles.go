package ui

import "github.com/charmbracelet/lipgloss"

// Styles bundles the lipgloss styles used by the CLI renderers. A zero
// style renders text unchanged, which is how PlainStyles disables color
// without branching at every call site.
type Styles struct {
	Header  lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Accent  lipgloss.Style
}

// DefaultStyles returns the styled palette for interactive terminals.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		Label:   lipgloss.NewStyle().Bold(true),
		Value:   lipgloss.NewStyle(),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Accent:  lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	}
}

// PlainStyles returns unstyled passthrough styles for NO_COLOR and
// non-terminal output.
func PlainStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		Label:   lipgloss.NewStyle(),
		Value:   lipgloss.NewStyle(),
		Success: lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
		Accent:  lipgloss.NewStyle(),
	}
}

// GetStyles picks the palette for the requested color mode.
func GetStyles(noColor bool) Styles {
	if noColor {
		return PlainStyles()
	}
	return DefaultStyles()
}
