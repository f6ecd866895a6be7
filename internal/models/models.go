package models

import (
	"github.com/mark3labs/mcp-go/mcp"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ToolDescriptor describes one registered tool. Descriptors are built once at
// startup and never mutated afterwards.
type ToolDescriptor struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	InputSchema mcp.ToolInputSchema `json:"inputSchema"`
}

// Row is one parsed result line keyed by header column. Column order follows
// the source header; a nil value is a SQL NULL (or a missing trailing field).
type Row struct {
	*orderedmap.OrderedMap[string, *string]
}

// NewRow creates an empty row
func NewRow() Row {
	return Row{orderedmap.New[string, *string]()}
}

// Columns returns the column names in header order
func (r Row) Columns() []string {
	cols := make([]string, 0, r.Len())
	for pair := r.Oldest(); pair != nil; pair = pair.Next() {
		cols = append(cols, pair.Key)
	}
	return cols
}

// Value returns the string value of a column and whether it is non-null
func (r Row) Value(column string) (string, bool) {
	v, ok := r.Get(column)
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

// QueryResult is the output of the read-only query gateway
type QueryResult struct {
	Rows     []Row `json:"rows"`
	RowCount int   `json:"rowCount"`
}

// Finding is a single security pattern match
type Finding struct {
	File    string `json:"file"`
	Line    int    `json:"line"` // 1-based
	Issue   string `json:"issueName"`
	Snippet string `json:"snippet"`
}

// SkippedFile records a file the scanner attempted but could not read
type SkippedFile struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// ScanResult is the output of the security scanner
type ScanResult struct {
	Success bool          `json:"success"`
	Issues  []Finding     `json:"issues"`
	Count   int           `json:"count"`
	Scanned int           `json:"scanned"` // files attempted, readable or not
	Skipped []SkippedFile `json:"skipped,omitempty"`
}

// CallRecord is one audited tool invocation
type CallRecord struct {
	ID         string `db:"id" json:"id"`
	Session    string `db:"session" json:"session"`
	Tool       string `db:"tool" json:"tool"`
	IsError    bool   `db:"is_error" json:"isError"`
	Message    string `db:"message" json:"message,omitempty"`
	DurationMs int64  `db:"duration_ms" json:"durationMs"`
	CreatedAt  int64  `db:"created_at" json:"createdAt"` // Unix timestamp in seconds
}
