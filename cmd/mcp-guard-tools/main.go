package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prismon/mcp-guard-tools/internal/models"
	"github.com/prismon/mcp-guard-tools/pkg/audit"
	"github.com/prismon/mcp-guard-tools/pkg/config"
	"github.com/prismon/mcp-guard-tools/pkg/gateway"
	"github.com/prismon/mcp-guard-tools/pkg/home"
	"github.com/prismon/mcp-guard-tools/pkg/httpapi"
	"github.com/prismon/mcp-guard-tools/pkg/logger"
	"github.com/prismon/mcp-guard-tools/pkg/scanner"
	"github.com/prismon/mcp-guard-tools/pkg/session"
	"github.com/prismon/mcp-guard-tools/pkg/sqlgate"
	"github.com/prismon/mcp-guard-tools/pkg/tools"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	log *logrus.Entry

	// Global options
	configPath string
	logLevel   string
	logFile    string
	auditPath  string

	// Serve command options
	toolNames []string

	// HTTP command options
	host string
	port int

	// Query command options
	queryTimeout time.Duration

	// Scan command options
	failOnFindings bool

	// History command options
	historyLimit int
	historyTool  string
	historyStats bool
)

func init() {
	log = logger.WithName("cli")
}

func main() {
	var rootCmd = &cobra.Command{
		Use:   "mcp-guard-tools",
		Short: "Guarded MCP tool servers for read-only SQL and security scanning",
		Long: `mcp-guard-tools - MCP tool servers built with Go.

It exposes a read-only database query tool and a pattern-based security
scanner over the Model Context Protocol (JSON-RPC 2.0 on stdio or HTTP).`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: $"+config.EnvConfigPath+", then config.yaml in the home directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, silent)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Append logs to this file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&auditPath, "audit-db", "", "SQLite file recording tool calls (default: audit.path from config)")

	// init command
	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Create the home directory with a default config",
		Run:   runInit,
	}

	// serve command
	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP tools over stdin/stdout",
		Run:   runServe,
	}
	serveCmd.Flags().StringSliceVar(&toolNames, "tools", nil, "Tools to expose (default: all of "+strings.Join(tools.Names(), ", ")+")")

	// serve-http command
	var serveHTTPCmd = &cobra.Command{
		Use:   "serve-http",
		Short: "Serve MCP tools over HTTP (POST /mcp)",
		Run:   runServeHTTP,
	}
	serveHTTPCmd.Flags().StringSliceVar(&toolNames, "tools", nil, "Tools to expose (default: all)")
	serveHTTPCmd.Flags().StringVar(&host, "host", "", "Host to bind (default: server.host from config)")
	serveHTTPCmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default: server.port from config)")

	// query command
	var queryCmd = &cobra.Command{
		Use:   "query <sql>",
		Short: "Run one read-only query and print the rows as JSON",
		Args:  cobra.ExactArgs(1),
		Run:   runQuery,
	}
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 0, "Query timeout (default: query.timeout from config)")

	// scan command
	var scanCmd = &cobra.Command{
		Use:   "scan [path]",
		Short: "Scan a directory for vulnerability patterns and print findings as JSON",
		Args:  cobra.MaximumNArgs(1),
		Run:   runScan,
	}
	scanCmd.Flags().BoolVar(&failOnFindings, "fail-on-findings", false, "Exit with status 2 when any finding is reported")

	// check-sql command
	var checkSQLCmd = &cobra.Command{
		Use:   "check-sql <sql>",
		Short: "Check whether a statement passes the read-only gate",
		Args:  cobra.ExactArgs(1),
		Run:   runCheckSQL,
	}

	// history command
	var historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List recent tool calls from the audit store",
		Run:   runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of calls to show")
	historyCmd.Flags().StringVar(&historyTool, "tool", "", "Only show calls of this tool")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "Show per-tool call and failure counts instead")

	rootCmd.AddCommand(initCmd, serveCmd, serveHTTPCmd, queryCmd, scanCmd, checkSQLCmd, historyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies global flag overrides
func loadConfig() *config.Config {
	cfg, err := config.Load(home.ResolveConfigPath(configPath))
	if err != nil {
		fail("Failed to load configuration", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if auditPath != "" {
		cfg.Audit.Path = auditPath
	}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fail("Failed to open log file", err)
		}
		logger.SetOutput(f)
	}

	if err := logger.ConfigureFromString(cfg.Logging.Level); err != nil {
		fail("Invalid log level", err)
	}

	return cfg
}

// openRecorder opens the audit store when one is configured. Audit problems
// never stop a server from starting.
func openRecorder(cfg *config.Config) (session.Recorder, func()) {
	if cfg.Audit.Path == "" {
		return nil, func() {}
	}

	store, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		log.WithError(err).Warn("Audit store unavailable, continuing without it")
		return nil, func() {}
	}
	return store, func() { store.Close() }
}

func runInit(cmd *cobra.Command, args []string) {
	mgr, err := home.NewManager("")
	if err != nil {
		fail("Failed to resolve home directory", err)
	}

	if !mgr.Exists() {
		fmt.Printf("Creating home directory %s\n", mgr.Path())
	}

	created, err := mgr.Initialize()
	if err != nil {
		fail("Failed to initialize home directory", err)
	}

	if created {
		fmt.Printf("Created %s\n", mgr.ConfigPath())
	} else {
		fmt.Printf("Config already exists at %s\n", mgr.ConfigPath())
	}
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	reg, err := tools.NewRegistry(cfg, tools.DepsFromConfig(cfg), toolNames...)
	if err != nil {
		fail("Failed to build tool registry", err)
	}

	recorder, closeRecorder := openRecorder(cfg)
	defer closeRecorder()

	sess := session.New(reg, os.Stdin, os.Stdout, session.WithRecorder(recorder))
	log.WithFields(logrus.Fields{
		"command": "serve",
		"tools":   reg.Names(),
		"session": sess.ID(),
	}).Info("Starting MCP stdio server")

	if err := sess.Serve(context.Background()); err != nil {
		log.WithError(err).Error("Session ended with error")
		closeRecorder()
		os.Exit(1)
	}
}

func runServeHTTP(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	reg, err := tools.NewRegistry(cfg, tools.DepsFromConfig(cfg), toolNames...)
	if err != nil {
		fail("Failed to build tool registry", err)
	}

	recorder, closeRecorder := openRecorder(cfg)
	defer closeRecorder()

	if err := httpapi.New(cfg.Server, reg, recorder).Run(); err != nil {
		log.WithError(err).Error("HTTP server failed")
		closeRecorder()
		os.Exit(1)
	}
}

func runQuery(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if queryTimeout > 0 {
		cfg.Query.Timeout = queryTimeout
	}

	log.WithFields(logrus.Fields{
		"command": "query",
		"timeout": cfg.Query.Timeout,
	}).Info("Executing command")

	result, err := gateway.New(cfg.Query).Query(context.Background(), args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

func runScan(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	log.WithFields(logrus.Fields{
		"command": "scan",
		"target":  root,
	}).Info("Executing command")

	result, err := scanner.New(scanner.OptionsFromConfig(cfg.Scan)).Scan(context.Background(), root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)

	if failOnFindings && result.Count > 0 {
		os.Exit(2)
	}
}

func runCheckSQL(cmd *cobra.Command, args []string) {
	loadConfig()

	err := sqlgate.Check(args[0])
	if err == nil {
		fmt.Println("accepted")
		return
	}

	var gateErr *sqlgate.GateError
	if errors.As(err, &gateErr) {
		fmt.Printf("rejected (%s): %v\n", gateErr.Reason, err)
	} else {
		fmt.Printf("rejected: %v\n", err)
	}
	os.Exit(1)
}

func runHistory(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Audit.Path == "" {
		fmt.Fprintln(os.Stderr, "Error: no audit store configured (set audit.path, AUDIT_DB_PATH or --audit-db)")
		os.Exit(1)
	}

	store, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		fail("Failed to open audit store", err)
	}
	defer store.Close()

	ctx := context.Background()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if historyStats {
		stats, err := store.Stats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(w, "TOOL\tCALLS\tFAILURES")
		for _, st := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\n", st.Tool, st.Calls, st.Failures)
		}
		return
	}

	var records []models.CallRecord
	if historyTool != "" {
		records, err = store.RecentForTool(ctx, historyTool, historyLimit)
	} else {
		records, err = store.Recent(ctx, historyLimit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintln(w, "TIME\tTOOL\tSTATUS\tDURATION\tSESSION\tMESSAGE")
	for _, rec := range records {
		status := "ok"
		if rec.IsError {
			status = "error"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%dms\t%s\t%s\n",
			time.Unix(rec.CreatedAt, 0).Format(time.RFC3339),
			rec.Tool, status, rec.DurationMs, rec.Session, rec.Message)
	}
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail("Failed to encode result", err)
	}
	fmt.Println(string(data))
}

func fail(msg string, err error) {
	log.WithError(err).Error(msg)
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	os.Exit(1)
}
