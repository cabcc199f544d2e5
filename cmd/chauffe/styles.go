package main

import (
	"fmt"
	"strings"

	"chauffe/internal/compat"
	"chauffe/internal/smoke"

	"github.com/charmbracelet/lipgloss"
)

// Brand palette.
var (
	colorPrimary = lipgloss.Color("#101F38")
	colorAccent  = lipgloss.Color("#8BC34A")
	colorDanger  = lipgloss.Color("#e53935")
	colorWarning = lipgloss.Color("#FFC107")
	colorMuted   = lipgloss.Color("#7a8599")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	labelStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(20)
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorWarning)
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorDanger)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1)
)

func title(s string) string {
	return titleStyle.Render(s)
}

func row(label string, value any) string {
	return labelStyle.Render(label) + fmt.Sprint(value)
}

func verdictBadge(v compat.Verdict) string {
	switch v.State {
	case compat.Compatible:
		return okStyle.Render("COMPATIBLE")
	case compat.IncompatibleWarning:
		return warnStyle.Render("INCOMPATIBLE (warning)")
	case compat.Unavailable:
		return errStyle.Render("UNAVAILABLE")
	default:
		return mutedStyle.Render(strings.ToUpper(v.State.String()))
	}
}

func outcomeBadge(o smoke.Outcome) string {
	switch o {
	case smoke.OutcomeSuccess:
		return okStyle.Render("SUCCESS")
	case smoke.OutcomeWarning:
		return warnStyle.Render("WARNING")
	default:
		return errStyle.Render("FAILURE")
	}
}

func passMark(ok bool) string {
	if ok {
		return okStyle.Render("PASS")
	}
	return errStyle.Render("FAIL")
}

func box(lines ...string) string {
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
