package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"foreman/pkg/client"
)

// Run starts the dashboard against a gateway base URL.
func Run(gatewayURL, approver string) error {
	model := NewModel(ModelConfig{
		Client:     client.New(gatewayURL),
		GatewayURL: gatewayURL,
		Approver:   approver,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard error: %w", err)
	}
	return nil
}
