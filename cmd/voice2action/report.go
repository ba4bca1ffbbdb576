package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"voice2action/internal/domain"
)

// Report palette. Adaptive colors keep the report readable on light and dark
// terminals; NO_COLOR is honored by lipgloss.
var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	colorBorder  = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
)

var (
	styleBold    = lipgloss.NewStyle().Bold(true)
	styleDim     = lipgloss.NewStyle().Faint(true)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleAgent   = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleAction  = lipgloss.NewStyle().Foreground(colorInfo)

	styleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
)

const maxResultWidth = 160

// renderReport formats one box per recording: status line, transcription,
// numbered action trail and summary.
func renderReport(outcomes []runOutcome) string {
	var b strings.Builder
	for _, o := range outcomes {
		b.WriteString(styleBox.Render(renderOutcome(o)))
		b.WriteString("\n")
	}
	return b.String()
}

func renderOutcome(o runOutcome) string {
	var lines []string
	lines = append(lines, styleBold.Render(o.Path)+"  "+statusLabel(o))

	if o.Err != nil {
		lines = append(lines, styleError.Render(string(domain.ErrorCodeOf(o.Err)))+" "+o.Err.Error())
	}
	res := o.Result
	if res == nil {
		return strings.Join(lines, "\n")
	}

	lines = append(lines, styleDim.Render("run "+res.RunID))
	if res.Transcription != nil {
		lines = append(lines, "", styleBold.Render("Transcription"), *res.Transcription)
	}
	if len(res.Actions) > 0 {
		lines = append(lines, "", styleBold.Render("Actions"))
		for i, a := range res.Actions {
			lines = append(lines, fmt.Sprintf("%2d. %s %s %s",
				i+1,
				styleAgent.Render(a.Agent),
				styleAction.Render(a.Action),
				styleDim.Render(truncate(a.RawResult, maxResultWidth)),
			))
		}
	}
	if res.Summary != nil {
		lines = append(lines, "", styleBold.Render("Summary"), *res.Summary)
	}
	return strings.Join(lines, "\n")
}

func statusLabel(o runOutcome) string {
	switch {
	case o.Err != nil:
		return styleError.Render("failed")
	case o.Result.Completed():
		return styleSuccess.Render("done")
	default:
		return styleWarning.Render("incomplete")
	}
}

// truncate shortens s to n runes on a single line.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
