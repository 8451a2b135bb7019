// Package style holds the lipgloss palette and styles shared by the qhist
// CLI output, help and error rendering.
package style

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Palette is the CLI color palette.
type Palette struct {
	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Success   lipgloss.AdaptiveColor
	Warning   lipgloss.AdaptiveColor
	Error     lipgloss.AdaptiveColor
	Info      lipgloss.AdaptiveColor
	Text      lipgloss.AdaptiveColor
	TextMuted lipgloss.AdaptiveColor
}

// DefaultPalette adapts to light and dark terminals.
func DefaultPalette() Palette {
	return Palette{
		Primary:   lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"},
		Secondary: lipgloss.AdaptiveColor{Light: "#2563EB", Dark: "#60A5FA"},
		Success:   lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"},
		Warning:   lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"},
		Error:     lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#F87171"},
		Info:      lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"},
		Text:      lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#F9FAFB"},
		TextMuted: lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"},
	}
}

// Styles are the rendered styles for one output stream.
type Styles struct {
	Palette Palette

	Title   lipgloss.Style
	Heading lipgloss.Style
	Text    lipgloss.Style
	Muted   lipgloss.Style
	Command lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style
	Box     lipgloss.Style
}

// New builds styles for w. Color is used only when color is true and w is
// a terminal.
func New(w io.Writer, color bool) *Styles {
	r := lipgloss.NewRenderer(w)
	if !color || !IsTerminal(w) {
		r.SetColorProfile(termenv.Ascii)
	}

	p := DefaultPalette()
	return &Styles{
		Palette: p,
		Title:   r.NewStyle().Bold(true).Foreground(p.Primary),
		Heading: r.NewStyle().Bold(true).Foreground(p.Secondary),
		Text:    r.NewStyle().Foreground(p.Text),
		Muted:   r.NewStyle().Foreground(p.TextMuted),
		Command: r.NewStyle().Foreground(p.Info),
		Success: r.NewStyle().Foreground(p.Success),
		Warning: r.NewStyle().Foreground(p.Warning),
		Error:   r.NewStyle().Foreground(p.Error).Bold(true),
		Info:    r.NewStyle().Foreground(p.Info),
		Box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Error).
			Padding(0, 1),
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
