package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// statusOut receives the human-readable summary lines. Logs and spinners go
// to stderr.
var statusOut io.Writer = os.Stdout

var (
	colorAccent  = lipgloss.Color("36")
	colorOK      = lipgloss.Color("35")
	colorAlert   = lipgloss.Color("220")
	colorFail    = lipgloss.Color("167")
	colorCommand = lipgloss.Color("75")
	colorValue   = lipgloss.Color("255")
	colorLabel   = lipgloss.Color("245")
	colorMuted   = lipgloss.Color("240")
)

var (
	// StyleHighlight marks scenario names and spinner frames.
	StyleHighlight = lipgloss.NewStyle().Foreground(colorAccent)

	// StyleDim marks durations, paths and other secondary text.
	StyleDim = lipgloss.NewStyle().Foreground(colorMuted)

	// StyleValue marks numbers in key/value lines.
	StyleValue = lipgloss.NewStyle().Foreground(colorValue)

	// StyleWarning marks limit violations and non-converged steps.
	StyleWarning = lipgloss.NewStyle().Foreground(colorAlert)
)

var (
	styleOK      = lipgloss.NewStyle().Foreground(colorOK)
	styleFail    = lipgloss.NewStyle().Foreground(colorFail)
	styleInfo    = lipgloss.NewStyle().Foreground(colorLabel)
	styleLabel   = lipgloss.NewStyle().Foreground(colorLabel).Width(12)
	styleCommand = lipgloss.NewStyle().Foreground(colorCommand)
)

const (
	markOK   = "✓"
	markFail = "✗"
	markWarn = "!"
	markInfo = "›"
	markPath = "→"
)

// writeStatus writes msg to w behind a styled mark.
func writeStatus(w io.Writer, mark string, style lipgloss.Style, msg string) {
	fmt.Fprintln(w, style.Render(mark)+" "+msg)
}

func printSuccess(format string, args ...any) {
	writeStatus(statusOut, markOK, styleOK, fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	writeStatus(statusOut, markFail, styleFail, fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	writeStatus(statusOut, markWarn, StyleWarning, StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(format string, args ...any) {
	writeStatus(statusOut, markInfo, styleInfo, fmt.Sprintf(format, args...))
}

// printDetail prints an indented secondary line.
func printDetail(format string, args ...any) {
	fmt.Fprintln(statusOut, "  "+StyleDim.Render(fmt.Sprintf(format, args...)))
}

// printFile prints where an artifact was written.
func printFile(path string) {
	fmt.Fprintln(statusOut, "  "+StyleDim.Render(markPath)+" "+StyleValue.Render(path))
}

// printKeyValue prints one aligned summary field.
func printKeyValue(key, value string) {
	fmt.Fprintln(statusOut, styleLabel.Render(key)+" "+StyleValue.Render(value))
}

// printNextStep suggests the command that consumes what was just written.
func printNextStep(description, cmd string) {
	fmt.Fprintln(statusOut, StyleDim.Render(description+":")+" "+styleCommand.Render(cmd))
}

// graphSummary renders the feeder size and whether the impact index came
// from the cache, e.g. "9 nodes · 8 edges · cached".
func graphSummary(nodes, edges int, indexCached bool) string {
	parts := []string{
		fmt.Sprintf("%d nodes", nodes),
		fmt.Sprintf("%d edges", edges),
	}
	if indexCached {
		parts = append(parts, styleOK.Render("cached"))
	} else {
		parts = append(parts, styleInfo.Render("fresh"))
	}
	return strings.Join(parts, StyleDim.Render(" · "))
}

func printGraphSummary(nodes, edges int, indexCached bool) {
	fmt.Fprintln(statusOut, "  "+graphSummary(nodes, edges, indexCached))
}

// formatCount renders "n of total".
func formatCount(n, total int) string {
	return fmt.Sprintf("%d of %d", n, total)
}

// formatPercent renders a percentage index with two decimals.
func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "%"
}

// formatRisk renders a customer-weighted index, highlighted once any
// customer was affected.
func formatRisk(v float64) string {
	if v > 0 {
		return StyleWarning.Render(formatPercent(v))
	}
	return formatPercent(v)
}
