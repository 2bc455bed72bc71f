package ui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	header      lipgloss.Style
	tabActive   lipgloss.Style
	tabInactive lipgloss.Style
	tabBusy     lipgloss.Style

	userLabel      lipgloss.Style
	assistantLabel lipgloss.Style
	messageBody    lipgloss.Style
	streamingBody  lipgloss.Style

	toolRunning lipgloss.Style
	toolDone    lipgloss.Style
	toolError   lipgloss.Style

	inputFrame lipgloss.Style
	footer     lipgloss.Style
	statusGood lipgloss.Style
	statusBad  lipgloss.Style
	statusBusy lipgloss.Style
	helpText   lipgloss.Style
}

func newTheme() theme {
	accent := lipgloss.Color("#7c6af7")
	green := lipgloss.Color("#2dd4a7")
	red := lipgloss.Color("#f76a6a")
	amber := lipgloss.Color("#f7c36a")
	text := lipgloss.Color("#e8e8f0")
	muted := lipgloss.Color("#8a8aa3")

	return theme{
		header: lipgloss.NewStyle().
			Foreground(text).
			Background(lipgloss.Color("#23213a")).
			Bold(true).
			Padding(0, 1),
		tabActive: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#16142a")).
			Background(accent).
			Bold(true).
			Padding(0, 1),
		tabInactive: lipgloss.NewStyle().
			Foreground(muted).
			Padding(0, 1),
		tabBusy: lipgloss.NewStyle().
			Foreground(amber).
			Padding(0, 1),

		userLabel:      lipgloss.NewStyle().Foreground(green).Bold(true),
		assistantLabel: lipgloss.NewStyle().Foreground(accent).Bold(true),
		messageBody:    lipgloss.NewStyle().Foreground(text),
		streamingBody:  lipgloss.NewStyle().Foreground(muted).Italic(true),

		toolRunning: lipgloss.NewStyle().Foreground(amber),
		toolDone:    lipgloss.NewStyle().Foreground(green),
		toolError:   lipgloss.NewStyle().Foreground(red),

		inputFrame: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		footer:     lipgloss.NewStyle().Foreground(muted),
		statusGood: lipgloss.NewStyle().Foreground(green).Bold(true),
		statusBad:  lipgloss.NewStyle().Foreground(red).Bold(true),
		statusBusy: lipgloss.NewStyle().Foreground(amber).Bold(true),
		helpText:   lipgloss.NewStyle().Foreground(muted),
	}
}
