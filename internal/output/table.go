package output

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const tableCellPadding = 1

// Table prints rows under headers with aligned columns. Headers are bold
// when colour is enabled.
func (w *Writer) Table(headers []string, rows [][]string) {
	if w.Quiet {
		return
	}

	r := lipgloss.NewRenderer(w.Out)
	cell := r.NewStyle().PaddingRight(tableCellPadding)
	header := cell

	if w.terminal.ColorEnabled() {
		header = header.Bold(true)
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		BorderHeader(false).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}

			return cell
		})

	w.Println(t.Render())
}
