package main

import "github.com/charmbracelet/lipgloss"

// Centralized style definitions for the TUI.
var (
	titleStyle = lipgloss.NewStyle().Bold(true).PaddingLeft(1)

	// Transcript speaker labels.
	userLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")) // blue
	botLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2")) // green
	entryStyle     = lipgloss.NewStyle().PaddingLeft(1)

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5")) // magenta
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")) // gray
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	// Input box and Send control.
	focusedBorder  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("2"))
	blurredBorder  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("7"))
	disabledBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8"))

	errorBlockStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("1")).
			Foreground(lipgloss.Color("1"))

	noticeStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			BorderLeft(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("8")).
			Foreground(lipgloss.Color("8"))
)
