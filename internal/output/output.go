// Package output renders CLI results as tables, markdown or JSON.
package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Tabular is data that can be rendered as rows.
type Tabular interface {
	Title() string
	Header() table.Row
	Rows() []table.Row
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// Extension returns the file extension used for format.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

// Render renders data in the requested format.
func Render(format Format, data Tabular) (string, error) {
	switch format {
	case FormatJSON:
		return renderJSON(data)
	case FormatMarkdown:
		return renderTable(data, true), nil
	default:
		return renderTable(data, false), nil
	}
}
