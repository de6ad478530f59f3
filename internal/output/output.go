package output

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// View is something the CLI can print in every format.
type View interface {
	// Title is printed above table and markdown output. May be empty.
	Title() string
	Header() []string
	Rows() [][]string
	// Value is what the JSON format marshals.
	Value() any
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

// Render renders view in the requested format.
func Render(format Format, view View) (string, error) {
	if view == nil {
		return "", nil
	}

	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(view.Value(), "", "  ")
		if err != nil {
			return "", fmt.Errorf("render json: %w", err)
		}
		return string(data), nil
	case FormatMarkdown:
		return renderMarkdown(view), nil
	default:
		return renderTable(view), nil
	}
}
