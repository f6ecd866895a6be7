// Package gateway implements the read-only query tool: it resolves the
// connection string, applies the SQL gate, runs the database client under
// hard bounds and parses its CSV output into rows.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prismon/mcp-guard-tools/internal/models"
	"github.com/prismon/mcp-guard-tools/pkg/config"
	"github.com/prismon/mcp-guard-tools/pkg/csvrows"
	"github.com/prismon/mcp-guard-tools/pkg/execx"
	"github.com/prismon/mcp-guard-tools/pkg/logger"
	"github.com/prismon/mcp-guard-tools/pkg/sqlgate"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("gateway")
}

var (
	// ErrMissingConfig means no connection string could be resolved
	ErrMissingConfig = errors.New("configuration error")

	// ErrValidation means the statement failed the read-only gate
	ErrValidation = errors.New("validation error")

	// ErrExecution means the client process failed, timed out or
	// produced too much output
	ErrExecution = errors.New("execution error")
)

const redacted = "[redacted]"

// Runner executes the database client. *execx.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*execx.Result, error)
}

// Gateway runs read-only SQL through an external database client
type Gateway struct {
	cfg    config.QueryConfig
	runner Runner
}

// New creates a gateway from query settings
func New(cfg config.QueryConfig) *Gateway {
	return NewWithRunner(cfg, &execx.Executor{
		Timeout:   cfg.Timeout,
		MaxOutput: cfg.MaxOutput,
	})
}

// NewWithRunner creates a gateway with a custom process runner
func NewWithRunner(cfg config.QueryConfig, runner Runner) *Gateway {
	return &Gateway{cfg: cfg, runner: runner}
}

// Query resolves the connection string, gates sql, executes it and parses
// the result. Every failure wraps one of ErrMissingConfig, ErrValidation or
// ErrExecution.
func (g *Gateway) Query(ctx context.Context, sql string) (*models.QueryResult, error) {
	dsn, source, err := ResolveDSN(g.cfg.DSNEnv, g.cfg.EnvFiles)
	if err != nil {
		return nil, err
	}

	if err := sqlgate.Check(sql); err != nil {
		log.WithField("reason", reasonOf(err)).Info("Rejected non read-only statement")
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	args := buildArgs(g.cfg.ClientArgs, dsn, sql)

	log.WithFields(logrus.Fields{
		"client":    g.cfg.ClientPath,
		"dsnSource": source,
		"sqlLength": len(sql),
	}).Debug("Executing query")

	res, err := g.runner.Run(ctx, g.cfg.ClientPath, args...)
	if err != nil {
		return nil, executionError(err, res, dsn)
	}

	rows := csvrows.Parse(res.Stdout)
	return &models.QueryResult{Rows: rows, RowCount: len(rows)}, nil
}

func buildArgs(template []string, dsn, sql string) []string {
	args := make([]string, len(template))
	for i, a := range template {
		a = strings.ReplaceAll(a, "{dsn}", dsn)
		args[i] = strings.ReplaceAll(a, "{sql}", sql)
	}
	return args
}

// executionError builds a caller-facing error that never contains the
// connection string
func executionError(err error, res *execx.Result, dsn string) error {
	switch {
	case errors.Is(err, execx.ErrTimeout),
		errors.Is(err, execx.ErrOutputLimit),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrExecution, err)
	}

	detail := ""
	if res != nil {
		detail = firstLine(res.Stderr)
	}
	if detail == "" {
		detail = err.Error()
	}
	return fmt.Errorf("%w: %w: %s", ErrExecution, execx.ErrCommandFailed, redact(detail, dsn))
}

func redact(msg, dsn string) string {
	if dsn == "" {
		return msg
	}
	return strings.ReplaceAll(msg, dsn, redacted)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func reasonOf(err error) string {
	var gateErr *sqlgate.GateError
	if errors.As(err, &gateErr) {
		return string(gateErr.Reason)
	}
	return "unknown"
}
