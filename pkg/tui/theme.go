package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/michaelluochen/zerg-tui/pkg/display"
)

type theme struct {
	panel      lipgloss.Style
	panelFocus lipgloss.Style
	panelTitle lipgloss.Style
	input      lipgloss.Style
	status     lipgloss.Style
	statusErr  lipgloss.Style
	muted      lipgloss.Style
	lines      map[display.Style]lipgloss.Style
}

func newTheme() theme {
	green := lipgloss.Color("#5fd787")
	blue := lipgloss.Color("#5fafff")
	yellow := lipgloss.Color("#ffd75f")
	red := lipgloss.Color("#ff5f5f")
	magenta := lipgloss.Color("#d787ff")
	cyan := lipgloss.Color("#5fd7d7")
	muted := lipgloss.Color("#8a8a8a")
	border := lipgloss.Color("#4e4e4e")

	return theme{
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(border),
		panelFocus: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue),
		panelTitle: lipgloss.NewStyle().Foreground(blue).Bold(true),
		input: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(border),
		status:    lipgloss.NewStyle().Foreground(lipgloss.Color("#d0d0d0")).Background(lipgloss.Color("#303030")),
		statusErr: lipgloss.NewStyle().Foreground(red).Background(lipgloss.Color("#303030")).Bold(true),
		muted:     lipgloss.NewStyle().Foreground(muted),
		lines: map[display.Style]lipgloss.Style{
			display.StylePlain:     lipgloss.NewStyle(),
			display.StyleSystem:    lipgloss.NewStyle().Foreground(muted).Italic(true),
			display.StyleUser:      lipgloss.NewStyle().Foreground(green).Bold(true),
			display.StyleOutput:    lipgloss.NewStyle(),
			display.StyleReasoning: lipgloss.NewStyle().Foreground(magenta),
			display.StyleError:     lipgloss.NewStyle().Foreground(red).Bold(true),
			display.StyleWarning:   lipgloss.NewStyle().Foreground(yellow),
			display.StyleTests:     lipgloss.NewStyle().Foreground(cyan),
			display.StyleEvals:     lipgloss.NewStyle().Foreground(cyan),
			display.StylePrompt:    lipgloss.NewStyle().Foreground(blue),
			display.StyleStdout:    lipgloss.NewStyle(),
			display.StyleStderr:    lipgloss.NewStyle().Foreground(red),
			display.StyleReview:    lipgloss.NewStyle(),
			display.StyleHeading:   lipgloss.NewStyle().Bold(true).Underline(true),
		},
	}
}

func (t theme) line(s display.Style) lipgloss.Style {
	if st, ok := t.lines[s]; ok {
		return st
	}
	return t.lines[display.StylePlain]
}
