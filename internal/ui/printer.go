package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/rendercast/internal/registry"
)

// Printer provides methods for printing UI components to a writer.
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

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params map[string]string) {
	p.Println(RenderHeader(title, command, params, p.width))
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details map[string]string) {
	p.Println(RenderSuccessBox(title, details, p.width))
}

// PrintError prints an error result box
func (p *Printer) PrintError(title string, err error) {
	p.Println(RenderErrorBox(title, err, p.width))
}

// PrintDevices prints one line per device, or a muted note when empty.
func (p *Printer) PrintDevices(devices []registry.Device) {
	if len(devices) == 0 {
		p.Println(StatusStyle.Render("No renderers found."))
		return
	}
	for _, d := range devices {
		p.Println(RenderDeviceLine(d, false))
	}
}

// RenderHeader renders a command header box. Params are listed in key order.
func RenderHeader(title, command string, params map[string]string, width int) string {
	titleLine := HeaderTitleStyle.Render(strings.ToUpper(title))
	commandLine := HeaderCommandStyle.Render(command)
	topSection := lipgloss.JoinVertical(lipgloss.Left, titleLine, commandLine)

	var paramLines []string
	for _, key := range sortedKeys(params) {
		paramLines = append(paramLines, HeaderParamKeyStyle.Render(key+":")+" "+HeaderParamValueStyle.Render(params[key]))
	}

	dividerWidth := width - 6 // Account for border and padding
	if dividerWidth < 10 {
		dividerWidth = 10
	}
	divider := RenderHorizontalDivider(dividerWidth, "─")

	content := lipgloss.JoinVertical(lipgloss.Left, topSection, divider, strings.Join(paramLines, "\n"))
	return HeaderBorderStyle(width).Render(content)
}

// RenderSuccessBox renders a success result box
func RenderSuccessBox(title string, details map[string]string, width int) string {
	lines := []string{"", SuccessTitleStyle.Render("   " + SuccessMarker + "  " + title), ""}
	for _, key := range sortedKeys(details) {
		lines = append(lines, ResultKeyStyle.Render("   "+key+":")+" "+ResultValueStyle.Render(details[key]))
	}
	lines = append(lines, "")
	return SuccessBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// RenderErrorBox renders an error result box
func RenderErrorBox(title string, err error, width int) string {
	lines := []string{"", ErrorTitleStyle.Render("   " + FailureMarker + "  FAILED  ─  " + title), ""}
	if err != nil {
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+err.Error()), "")
	}
	return ErrorBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// RenderDeviceLine renders one device as "● Name  host  (model)".
func RenderDeviceLine(d registry.Device, upgraded bool) string {
	marker := DeviceMarker
	if upgraded {
		marker = UpgradeStyle.Render(UpgradeMarker)
	}

	parts := []string{marker, DeviceNameStyle.Render(d.Name), DeviceHostStyle.Render(d.Host)}
	if d.ModelName != "" {
		model := d.ModelName
		if d.ModelNumber != "" {
			model += " " + d.ModelNumber
		}
		parts = append(parts, DeviceModelStyle.Render("("+model+")"))
	}
	return "  " + strings.Join(parts, "  ")
}

// FormatDevicePlain renders a device without styling, for non-terminal output.
func FormatDevicePlain(event string, d registry.Device) string {
	return fmt.Sprintf("%s\t%s\t%s\t%s", event, d.Name, d.Host, d.Location)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
