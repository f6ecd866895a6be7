// Package tools binds the query gateway and the security scanner to MCP tool
// definitions.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prismon/mcp-guard-tools/internal/models"
	"github.com/prismon/mcp-guard-tools/pkg/config"
	"github.com/prismon/mcp-guard-tools/pkg/gateway"
	"github.com/prismon/mcp-guard-tools/pkg/logger"
	"github.com/prismon/mcp-guard-tools/pkg/registry"
	"github.com/prismon/mcp-guard-tools/pkg/scanner"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("tools")
}

// Tool names
const (
	QueryDatabase = "query_database"
	SecurityScan  = "security_scan"
)

// Names lists every available tool in registration order
func Names() []string {
	return []string{QueryDatabase, SecurityScan}
}

// Querier runs read-only SQL
type Querier interface {
	Query(ctx context.Context, sql string) (*models.QueryResult, error)
}

// TreeScanner scans a file tree for vulnerability signatures
type TreeScanner interface {
	Scan(ctx context.Context, root string) (*models.ScanResult, error)
}

// Deps are the backends the tool handlers call into
type Deps struct {
	Querier Querier
	Scanner TreeScanner
	// WorkDir is scanned when security_scan is called without a path.
	// Empty means the process working directory.
	WorkDir string
}

// DepsFromConfig wires the default gateway and scanner
func DepsFromConfig(cfg *config.Config) Deps {
	return Deps{
		Querier: gateway.New(cfg.Query),
		Scanner: scanner.New(scanner.OptionsFromConfig(cfg.Scan)),
	}
}

// Register adds the named tools to b in the order given. With no names,
// every tool is registered.
func Register(b *registry.Builder, deps Deps, names ...string) error {
	if len(names) == 0 {
		names = Names()
	}

	for _, name := range names {
		switch strings.TrimSpace(name) {
		case QueryDatabase:
			registerQueryDatabaseTool(b, deps.Querier)
		case SecurityScan:
			registerSecurityScanTool(b, deps.Scanner, deps.WorkDir)
		default:
			return fmt.Errorf("unknown tool %q (available: %s)", name, strings.Join(Names(), ", "))
		}
	}
	return nil
}

// NewRegistry builds an immutable registry with the selected tools
func NewRegistry(cfg *config.Config, deps Deps, names ...string) (*registry.Registry, error) {
	b := registry.NewBuilder(cfg.Server.Name, cfg.Server.Version)
	if err := Register(b, deps, names...); err != nil {
		return nil, err
	}
	return b.Build()
}

func registerQueryDatabaseTool(b *registry.Builder, q Querier) {
	tool := mcp.NewTool(QueryDatabase,
		mcp.WithDescription("Run a read-only SQL query (SELECT, WITH, SHOW, EXPLAIN, DESCRIBE) against the configured database and return the rows"),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("Read-only SQL statement to execute"),
		),
	)

	b.Add(tool, func(ctx context.Context, arguments map[string]any) (*mcp.CallToolResult, error) {
		var args struct {
			SQL string `json:"sql"`
		}
		if err := unmarshalArgs(arguments, &args); err != nil {
			return nil, fmt.Errorf("%w: %v", registry.ErrInvalidArguments, err)
		}

		log.WithField("sql", args.SQL).Debug("Executing query_database via MCP")

		result, err := q.Query(ctx, args.SQL)
		if err != nil {
			return nil, err
		}
		return jsonResult(result)
	})
}

func registerSecurityScanTool(b *registry.Builder, s TreeScanner, workDir string) {
	tool := mcp.NewTool(SecurityScan,
		mcp.WithDescription("Scan source files for hardcoded credentials, eval, innerHTML, SQL string concatenation and command execution"),
		mcp.WithString("path",
			mcp.Description("Directory or file to scan (default: current working directory)"),
		),
	)

	b.Add(tool, func(ctx context.Context, arguments map[string]any) (*mcp.CallToolResult, error) {
		var args struct {
			Path string `json:"path"`
		}
		if err := unmarshalArgs(arguments, &args); err != nil {
			return nil, fmt.Errorf("%w: %v", registry.ErrInvalidArguments, err)
		}

		root := args.Path
		if root == "" {
			root = workDir
		}
		if root == "" {
			wd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("cannot determine working directory: %w", err)
			}
			root = wd
		}

		log.WithField("path", root).Info("Executing security_scan via MCP")

		result, err := s.Scan(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		return jsonResult(result)
	})
}

// jsonResult returns v as pretty JSON text plus structured content
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultStructured(v, string(data)), nil
}

func unmarshalArgs(arguments any, v any) error {
	data, err := json.Marshal(arguments)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
