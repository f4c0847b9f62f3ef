package table

import (
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
)

const (
	HostWidth     = 30
	StatusWidth   = 8
	DurationWidth = 10
	OutputWidth   = 60
)

// HostResult is the outcome of one command on one host.
type HostResult struct {
	Host     string
	Port     int
	Output   string
	Err      error
	Duration time.Duration
}

func (r HostResult) Status() string {
	if r.Err != nil {
		return "FAILED"
	}
	return "OK"
}

type ResultTable struct {
	table *tablewriter.Table
	rows  int
}

func NewResultTable(w io.Writer) *ResultTable {
	if w == nil {
		w = os.Stdout
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Host", "Status", "Duration", "Output"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	return &ResultTable{table: table}
}

func (rt *ResultTable) AddResult(r HostResult) {
	host := r.Host
	if r.Port != 0 {
		host = net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
	}

	output := r.Output
	if r.Err != nil {
		output = r.Err.Error()
	}

	row := []string{
		truncate(host, HostWidth),
		statusStyle(r.Status()).Render(truncate(r.Status(), StatusWidth)),
		truncate(r.Duration.Round(time.Millisecond).String(), DurationWidth),
		truncate(firstLine(output), OutputWidth),
	}
	rt.table.Append(row)
	rt.rows++
}

func (rt *ResultTable) Rows() int {
	return rt.rows
}

func (rt *ResultTable) Render() {
	rt.table.Render()
}

// statusStyle colors the status column. lipgloss drops the color when the output is
// not a terminal.
func statusStyle(status string) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)
	switch status {
	case "OK":
		style = style.Foreground(lipgloss.Color("#00c413"))
	case "FAILED":
		style = style.Foreground(lipgloss.Color("#ff0000"))
	}
	return style
}

// firstLine keeps the first non-empty line and marks that more followed.
func firstLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= 1 {
		return lines[0]
	}
	return strings.TrimSpace(lines[0]) + " (+" + strconv.Itoa(len(lines)-1) + " lines)"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
