// Package csvrows parses the comma-separated output of the database client
// into header-keyed rows.
//
// Fields may be double-quoted with quotes escaped by doubling. Each input line
// is one record: quoted fields spanning lines are not supported, matching the
// single-line records the client emits for the queries we run.
package csvrows

import (
	"strings"

	"github.com/prismon/mcp-guard-tools/internal/models"
)

// ParseLine splits one record into fields
func ParseLine(line string) []string {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		if inQuotes {
			if ch == '"' {
				if i+1 < len(runes) && runes[i+1] == '"' {
					current.WriteRune('"')
					i++
					continue
				}
				inQuotes = false
				continue
			}
			current.WriteRune(ch)
			continue
		}

		switch ch {
		case '"':
			inQuotes = true
		case ',':
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}

	return append(fields, current.String())
}

// Parse converts client output into rows. The first line is the header; every
// following line, blank ones included, becomes one row with exactly one entry
// per header column.
// Missing trailing values are nil and surplus values are dropped.
func Parse(text string) []models.Row {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return []models.Row{}
	}

	lines := strings.Split(trimmed, "\n")
	header := ParseLine(strings.TrimSuffix(lines[0], "\r"))

	rows := make([]models.Row, 0, len(lines)-1)
	for _, line := range lines[1:] {
		values := ParseLine(strings.TrimSuffix(line, "\r"))

		row := models.NewRow()
		for i, column := range header {
			if i < len(values) {
				v := values[i]
				row.Set(column, &v)
			} else {
				row.Set(column, nil)
			}
		}
		rows = append(rows, row)
	}

	return rows
}
