package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RenderTable renders rows under headers with a rounded border.
func RenderTable(headers []string, rows [][]string) string {
	headerCell := lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dividerStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCell
			}
			return cell
		})
	return t.Render()
}

// PrintTable writes RenderTable to Stdout.
func PrintTable(headers []string, rows [][]string) {
	fmt.Fprintln(Stdout, RenderTable(headers, rows))
}
