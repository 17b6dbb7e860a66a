package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles holds the dashboard styling definitions.
type Styles struct {
	App lipgloss.Style

	TabActive   lipgloss.Style
	TabInactive lipgloss.Style
	TabBar      lipgloss.Style

	TableBorder lipgloss.Style
	Header      lipgloss.Style

	StatusBar          lipgloss.Style
	StatusConnected    lipgloss.Style
	StatusDisconnected lipgloss.Style

	Pending  lipgloss.Style
	Approved lipgloss.Style
	Rejected lipgloss.Style

	Muted  lipgloss.Style
	Accent lipgloss.Style
	Error  lipgloss.Style
}

// NewStyles builds the style set on the given renderer.
func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		App: r.NewStyle().Padding(0, 1),

		TabActive: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("62")).
			Padding(0, 2),
		TabInactive: r.NewStyle().
			Foreground(lipgloss.Color("245")).
			Padding(0, 2),
		TabBar: r.NewStyle().MarginBottom(1),

		TableBorder: r.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")),
		Header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("62")),

		StatusBar: r.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1),
		StatusConnected:    r.NewStyle().Foreground(lipgloss.Color("42")),
		StatusDisconnected: r.NewStyle().Foreground(lipgloss.Color("196")),

		Pending:  r.NewStyle().Foreground(lipgloss.Color("214")),
		Approved: r.NewStyle().Foreground(lipgloss.Color("42")),
		Rejected: r.NewStyle().Foreground(lipgloss.Color("196")),

		Muted:  r.NewStyle().Foreground(lipgloss.Color("240")),
		Accent: r.NewStyle().Foreground(lipgloss.Color("62")),
		Error:  r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
}
