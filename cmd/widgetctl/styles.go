package main

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Padding(0, 1)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	selfStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	peerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	imageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Underline(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	statusStyles = map[string]lipgloss.Style{
		"active":  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"waiting": lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"closed":  lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
	}
)

func statusBadge(status string) string {
	style, ok := statusStyles[status]
	if !ok {
		style = metaStyle
	}
	return style.Render(status)
}
