package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-json"
)

// OutputFormat represents the output format for commands.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// GetOutputFormat returns the current output format from the global flag.
func GetOutputFormat() OutputFormat {
	if output == "json" {
		return OutputFormatJSON
	}
	return OutputFormatText
}

// IsJSONOutput returns true if JSON output mode is enabled.
func IsJSONOutput() bool {
	return GetOutputFormat() == OutputFormatJSON
}

// StatusOutput is the JSON envelope of commands that modify a document.
type StatusOutput struct {
	Status   string `json:"status"` // "ok", "error"
	Path     string `json:"path,omitempty"`
	Action   string `json:"action,omitempty"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// StyleSet holds the lipgloss styles of text output.
type StyleSet struct {
	Title   lipgloss.Style
	Key     lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// Styles is the global style set for text output
var Styles = StyleSet{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
	Key:     lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")),
	Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
	Success: lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
	Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
	Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")),
}

// PrintJSON marshals and prints a value as indented JSON.
func PrintJSON(w io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		// Fallback error output
		errOut := map[string]string{
			"status": "error",
			"error":  fmt.Sprintf("failed to marshal JSON: %v", err),
		}
		data, _ = json.MarshalIndent(errOut, "", "  ")
	}
	fmt.Fprintln(w, string(data))
}

// PrintJSONError prints an error in JSON format on stdout.
func PrintJSONError(err error) {
	PrintJSON(os.Stdout, StatusOutput{
		Status: "error",
		Error:  err.Error(),
	})
}

// printKV prints an aligned "key: value" line in text mode.
func printKV(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "%s %v\n", Styles.Key.Render(fmt.Sprintf("%-12s", key+":")), value)
}
