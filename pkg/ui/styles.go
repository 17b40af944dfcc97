package ui

import "github.com/charmbracelet/lipgloss"

type Style struct {
	Header       lipgloss.Style
	UserLabel    lipgloss.Style
	RemoteLabel  lipgloss.Style
	Message      lipgloss.Style
	Streaming    lipgloss.Style
	FocusedInput lipgloss.Style
	BlurredInput lipgloss.Style
	Status       lipgloss.Style
	Error        lipgloss.Style

	PhaseReady   lipgloss.Style
	PhasePending lipgloss.Style
	PhaseDown    lipgloss.Style
}

func DefaultStyles() *Style {
	return &Style{
		Header:      lipgloss.NewStyle().Bold(true),
		UserLabel:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		RemoteLabel: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
		Message:     lipgloss.NewStyle().PaddingLeft(2),
		Streaming:   lipgloss.NewStyle().PaddingLeft(2).Faint(true),
		FocusedInput: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")),
		BlurredInput: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")),
		Status: lipgloss.NewStyle().Faint(true),
		Error: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("9")).
			Foreground(lipgloss.Color("9")),

		PhaseReady:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		PhasePending: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		PhaseDown:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}
