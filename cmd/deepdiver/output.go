package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
)

// Color palette shared by every command.
var (
	salmonPink = lipgloss.Color("#FFB3BA")
	mintGreen  = lipgloss.Color("#A8E6CF")
	amber      = lipgloss.Color("#FFD59E")
	mutedGray  = lipgloss.Color("#6B7280")
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(salmonPink).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(mintGreen)
	warnStyle    = lipgloss.NewStyle().Foreground(amber)
	errorStyle   = lipgloss.NewStyle().Foreground(salmonPink)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedGray)
	labelStyle   = lipgloss.NewStyle().Foreground(mutedGray).Width(14)
)

// Output formats accepted by -format.
const (
	formatText = "text"
	formatJSON = "json"
)

func printHeader(s string) {
	fmt.Println(headerStyle.Render(s))
}

func printInfo(format string, v ...any) {
	fmt.Println(mutedStyle.Render(fmt.Sprintf(format, v...)))
}

func printSuccess(format string, v ...any) {
	fmt.Println(successStyle.Render("✓ " + fmt.Sprintf(format, v...)))
}

func printWarn(format string, v ...any) {
	fmt.Println(warnStyle.Render("! " + fmt.Sprintf(format, v...)))
}

func printError(format string, v ...any) {
	fmt.Println(errorStyle.Render("✗ " + fmt.Sprintf(format, v...)))
}

// printField prints one aligned "label value" line.
func printField(label, value string) {
	fmt.Println(labelStyle.Render(label) + value)
}

// isTerminal reports whether f is attached to a character device.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// writeJSON encodes v as indented JSON, highlighted when color is set.
func writeJSON(w io.Writer, v any, color bool) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if !color {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	if err := quick.Highlight(w, string(data)+"\n", "json", "terminal256", "monokai"); err != nil {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	return nil
}

func printJSON(v any) error {
	return writeJSON(os.Stdout, v, isTerminal(os.Stdout))
}

func checkFormat(format string) error {
	switch format {
	case formatText, formatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format %q (must be %s or %s)", format, formatText, formatJSON)
	}
}

// multiFlag collects a repeatable string flag.
type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ",")
}

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
