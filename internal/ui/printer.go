package ui

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/muurk/dantescan/internal/discovery"
	"github.com/muurk/dantescan/internal/netif"
	"github.com/muurk/dantescan/internal/reach"
)

// Param is one key/value line of a header or result box. A slice keeps
// the order stable across renders.
type Param struct {
	Key   string
	Value string
}

// DeviceTableOptions adds optional columns to a device table.
type DeviceTableOptions struct {
	// Nicknames maps device names to user nicknames
	Nicknames map[string]string

	// Reach holds ping results keyed by IP address
	Reach map[string]reach.Result
}

// Printer writes rendered components to a writer.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Print writes content to the output
func (p *Printer) Print(content string) {
	_, _ = fmt.Fprint(p.out, content)
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params []Param) {
	p.Println(RenderHeader(title, command, params, p.width))
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details []Param) {
	p.Println(RenderSuccessBox(title, details, p.width))
}

// PrintError prints an error result box with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting []string) {
	p.Println(RenderErrorBox(title, err, troubleshooting, p.width))
}

// PrintWarning prints a single warning line
func (p *Printer) PrintWarning(msg string) {
	p.Println(WarningMessageStyle.Render("  " + WarningMarker + " " + msg))
}

// PrintDevices prints a device table, or a muted note when it is empty
func (p *Printer) PrintDevices(records []discovery.Record, opts DeviceTableOptions) {
	if len(records) == 0 {
		p.Println(MutedStyle.Render("  No devices discovered"))
		return
	}
	p.Println(RenderDeviceTable(records, opts))
}

// PrintInterfaces prints host interfaces with their suggested roles
func (p *Printer) PrintInterfaces(list []netif.Interface, roles []netif.Assignment) {
	p.Println(RenderInterfaceTable(list, roles))
}

// RenderHeader renders a command header box
func RenderHeader(title, command string, params []Param, width int) string {
	titleLine := HeaderTitleStyle.Render(strings.ToUpper(title))
	commandLine := HeaderCommandStyle.Render(command)
	sections := []string{titleLine, commandLine}

	if len(params) > 0 {
		dividerWidth := width - 6 // Account for border and padding
		if dividerWidth < 10 {
			dividerWidth = 10
		}
		sections = append(sections, RenderHorizontalDivider(dividerWidth, "─"))
		for _, param := range params {
			sections = append(sections,
				HeaderParamKeyStyle.Render(param.Key+":")+" "+HeaderParamValueStyle.Render(param.Value))
		}
	}

	return HeaderBorderStyle(width).Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// RenderSuccessBox renders a success result box
func RenderSuccessBox(title string, details []Param, width int) string {
	lines := []string{
		SuccessTitleStyle.Render(SuccessMarker + "  " + title),
		"",
	}
	for _, d := range details {
		lines = append(lines, ResultKeyStyle.Render(d.Key+":")+" "+ResultValueStyle.Render(d.Value))
	}
	return SuccessBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// RenderErrorBox renders an error result box with troubleshooting
func RenderErrorBox(title string, err error, troubleshooting []string, width int) string {
	lines := []string{
		ErrorTitleStyle.Render(FailureMarker + "  FAILED  ─  " + title),
		"",
	}

	if err != nil {
		lines = append(lines, ErrorMessageStyle.Render("Error: "+err.Error()), "")
	}

	if len(troubleshooting) > 0 {
		troubleLines := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
		for _, tip := range troubleshooting {
			troubleLines = append(troubleLines, TroubleshootingItemStyle.Render("  • "+tip))
		}
		lines = append(lines, TroubleshootingBoxStyle(width).Render(strings.Join(troubleLines, "\n")))
	}

	return ErrorBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// DeviceRow returns the table cells of one record.
func DeviceRow(rec discovery.Record, opts DeviceTableOptions) []string {
	name := rec.Name
	if nick := opts.Nicknames[rec.Name]; nick != "" {
		name = fmt.Sprintf("%s (%s)", rec.Name, nick)
	}
	row := []string{strconv.Itoa(rec.ID), name, rec.Model, rec.FirmwareVersion, rec.IPAddress}
	if opts.Reach != nil {
		row = append(row, reachCell(rec, opts.Reach))
	}
	return row
}

// DeviceColumns returns the column titles matching DeviceRow.
func DeviceColumns(opts DeviceTableOptions) []string {
	cols := []string{"#", "NAME", "MODEL", "FIRMWARE", "IP"}
	if opts.Reach != nil {
		cols = append(cols, "PING")
	}
	return cols
}

func reachCell(rec discovery.Record, results map[string]reach.Result) string {
	if !rec.Resolved() {
		return "-"
	}
	r, ok := results[rec.IPAddress]
	switch {
	case !ok:
		return "-"
	case r.Alive:
		return fmt.Sprintf("%s %s", SuccessMarker, r.RTT.Round(100*time.Microsecond))
	default:
		return FailureMarker
	}
}

// RenderDeviceTable renders records as a bordered table
func RenderDeviceTable(records []discovery.Record, opts DeviceTableOptions) string {
	rows := make([][]string, len(records))
	for i, rec := range records {
		rows[i] = DeviceRow(rec, opts)
	}

	const ipCol = 4
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(MutedStyle).
		Headers(DeviceColumns(opts)...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			if col == ipCol && row >= 0 && row < len(records) {
				return AddressStyle(records[row].Resolved()).Padding(0, 1)
			}
			return TableCellStyle
		})
	return t.Render()
}

// RenderInterfaceTable renders host interfaces and suggested roles
func RenderInterfaceTable(list []netif.Interface, roles []netif.Assignment) string {
	role := make(map[string]string, len(roles))
	for _, a := range roles {
		role[a.Interface.Name] = a.Role
	}

	rows := make([][]string, len(list))
	for i, info := range list {
		status := "DOWN"
		if info.IsUp {
			status = "UP"
		}
		ip := info.IP
		if ip == "" {
			ip = "N/A"
		}
		rows[i] = []string{info.Name, info.MAC, ip, status, role[info.Name]}
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(MutedStyle).
		Headers("NAME", "MAC", "IP", "STATUS", "SUGGESTED ROLE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		}).
		Render()
}
