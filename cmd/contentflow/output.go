package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/zen-systems/contentflow/pkg/pipeline"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

func statusText(s pipeline.Status) string {
	switch s {
	case pipeline.StatusCompleted:
		return successStyle.Render(string(s))
	case pipeline.StatusFailed:
		return failStyle.Render(string(s))
	case pipeline.StatusSkipped:
		return skipStyle.Render(string(s))
	default:
		return string(s)
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
)

// newTable returns a borderless table with one line per row.
func newTable(headers ...string) *table.Table {
	last := len(headers) - 1
	return table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := cellStyle
			if col == last {
				style = lipgloss.NewStyle()
			}
			if row == table.HeaderRow {
				return style.Inherit(headerStyle)
			}
			return style
		})
}

// printRunSummary writes the run header and per-step table.
func printRunSummary(w io.Writer, plan string, res *pipeline.Result, cost *pipeline.CostReport) {
	header := fmt.Sprintf("%s %s in %s", plan, res.Status, res.Duration().Round(time.Millisecond))
	if res.Status == pipeline.StatusCompleted {
		fmt.Fprintln(w, titleStyle.Render(header))
	} else {
		fmt.Fprintln(w, failStyle.Render(header))
	}
	fmt.Fprintln(w, dimStyle.Render("run "+res.RunID))

	tbl := newTable("STEP", "KIND", "TARGET", "STATUS", "DURATION")
	for _, s := range res.Steps {
		tbl.Row(s.Name, string(s.Kind), dash(s.Target), statusText(s.Status), s.Duration.Round(time.Millisecond).String())
	}
	fmt.Fprintln(w, tbl)

	if cost != nil && len(cost.Calls) > 0 {
		fmt.Fprintf(w, "%d model calls, %d tokens, est. %.4f %s\n",
			len(cost.Calls), cost.TotalUsage.TotalTokens, cost.TotalAmount, cost.Currency)
	}
	if res.Error != "" {
		fmt.Fprintln(w, failStyle.Render("error: "+res.Error))
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
