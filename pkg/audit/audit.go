// Package audit keeps an optional SQLite log of tool calls.
package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prismon/mcp-guard-tools/internal/models"
	"github.com/prismon/mcp-guard-tools/pkg/logger"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("audit")
}

const defaultBusyTimeoutMs = 5000

// Store records tool calls in SQLite
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the audit database at path
func Open(path string) (*Store, error) {
	log.WithField("path", path).Info("Opening audit database")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	// one connection keeps :memory: databases coherent and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeoutMs)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit database: %w", err)
	}

	return s, nil
}

func (s *Store) init() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS tool_calls (
		id TEXT PRIMARY KEY,
		session TEXT NOT NULL,
		tool TEXT NOT NULL,
		is_error INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	)`); err != nil {
		return err
	}

	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_tool_calls_created ON tool_calls(created_at)`); err != nil {
		return err
	}

	_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool)`)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	log.WithField("path", s.path).Debug("Closing audit database")
	return s.db.Close()
}

// Record stores one tool call
func (s *Store) Record(ctx context.Context, rec models.CallRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_calls (id, session, tool, is_error, message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Session, rec.Tool, rec.IsError, rec.Message, rec.DurationMs, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record tool call: %w", err)
	}
	return nil
}

// Recent returns up to limit calls, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]models.CallRecord, error) {
	return s.query(ctx, `
		SELECT id, session, tool, is_error, message, duration_ms, created_at
		FROM tool_calls
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limitOrDefault(limit))
}

// RecentForTool returns up to limit calls of one tool, newest first
func (s *Store) RecentForTool(ctx context.Context, tool string, limit int) ([]models.CallRecord, error) {
	return s.query(ctx, `
		SELECT id, session, tool, is_error, message, duration_ms, created_at
		FROM tool_calls
		WHERE tool = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, tool, limitOrDefault(limit))
}

// ToolStats summarises calls per tool
type ToolStats struct {
	Tool     string `json:"tool"`
	Calls    int    `json:"calls"`
	Failures int    `json:"failures"`
}

// Stats returns call and failure counts per tool, ordered by tool name
func (s *Store) Stats(ctx context.Context) ([]ToolStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tool, COUNT(*), COALESCE(SUM(is_error), 0)
		FROM tool_calls
		GROUP BY tool
		ORDER BY tool
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool stats: %w", err)
	}
	defer rows.Close()

	stats := []ToolStats{}
	for rows.Next() {
		var st ToolStats
		if err := rows.Scan(&st.Tool, &st.Calls, &st.Failures); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]models.CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool calls: %w", err)
	}
	defer rows.Close()

	records := []models.CallRecord{}
	for rows.Next() {
		var rec models.CallRecord
		if err := rows.Scan(&rec.ID, &rec.Session, &rec.Tool, &rec.IsError, &rec.Message, &rec.DurationMs, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}
