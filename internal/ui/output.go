package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Stdout is where the Print helpers write. Tests may swap it.
var Stdout io.Writer = os.Stdout

var (
	accent = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#81C784"}

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"})
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#CC6600", Dark: "#FFAA00"})
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF0000"})
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#00AAFF"})
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"})
	valueStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#FFFFFF"})
	dividerStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#CCCCCC", Dark: "#444444"})
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
)

// PrintHeader prints a styled header
func PrintHeader(text string) {
	fmt.Fprintln(Stdout, headerStyle.Render(text))
}

// PrintSuccess prints a success message with checkmark
func PrintSuccess(text string) {
	fmt.Fprintln(Stdout, successStyle.Render("✔")+" "+text)
}

// PrintWarning prints a warning message
func PrintWarning(text string) {
	fmt.Fprintln(Stdout, warningStyle.Render("⚠")+" "+text)
}

// PrintError prints an error message
func PrintError(text string) {
	fmt.Fprintln(Stdout, errorStyle.Render("✖")+" "+text)
}

// PrintInfo prints an info message
func PrintInfo(text string) {
	fmt.Fprintln(Stdout, infoStyle.Render("ℹ")+" "+text)
}

// Println prints plain text.
func Println(text string) {
	fmt.Fprintln(Stdout, text)
}

// PrintHighlight prints a label and a bold value
func PrintHighlight(label, value string) {
	fmt.Fprintln(Stdout, "  "+labelStyle.Render(label+":")+" "+valueStyle.Render(value))
}

// PrintDivider prints a styled divider
func PrintDivider() {
	fmt.Fprintln(Stdout, dividerStyle.Render(strings.Repeat("─", 50)))
}

// PrintBox prints text in a rounded box
func PrintBox(title, content string) {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1)
	if title != "" {
		fmt.Fprintln(Stdout, headerStyle.Render(title))
	}
	fmt.Fprintln(Stdout, box.Render(content))
}
