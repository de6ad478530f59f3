package output

import (
	"strings"
)

func renderMarkdown(view View) string {
	var sb strings.Builder
	if title := view.Title(); title != "" {
		sb.WriteString("## " + escapeMarkdownCell(title) + "\n\n")
	}

	header := view.Header()
	writeMarkdownRow(&sb, header)
	sb.WriteString("|")
	for range header {
		sb.WriteString("---|")
	}
	sb.WriteString("\n")

	for _, row := range view.Rows() {
		writeMarkdownRow(&sb, row)
	}
	return sb.String()
}

func writeMarkdownRow(sb *strings.Builder, cells []string) {
	sb.WriteString("|")
	for _, cell := range cells {
		sb.WriteString(" " + escapeMarkdownCell(cell) + " |")
	}
	sb.WriteString("\n")
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.ReplaceAll(value, "|", "\\|")
}
