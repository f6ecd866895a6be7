// Package config loads tool-server settings from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable consulted when no --config flag is given
const EnvConfigPath = "MCP_GUARD_CONFIG"

// Config holds the complete application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Query   QueryConfig   `yaml:"query"`
	Scan    ScanConfig    `yaml:"scan"`
	Audit   AuditConfig   `yaml:"audit"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds identity and HTTP transport settings
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// QueryConfig holds read-only query gateway settings
type QueryConfig struct {
	// DSNEnv lists environment variables consulted for the connection
	// string, in priority order. The first non-empty one wins.
	DSNEnv []string `yaml:"dsn_env"`

	// EnvFiles are dotenv files loaded before resolving DSNEnv. Missing
	// files are ignored and already-set variables are never overridden.
	EnvFiles []string `yaml:"env_files"`

	// ClientPath is the database client binary
	ClientPath string `yaml:"client_path"`

	// ClientArgs is the argument template. {dsn} and {sql} are substituted.
	ClientArgs []string `yaml:"client_args"`

	Timeout   time.Duration `yaml:"timeout"`
	MaxOutput int           `yaml:"max_output"`
}

// ScanConfig holds security scanner settings
type ScanConfig struct {
	Extensions   []string `yaml:"extensions"`
	ExcludeDirs  []string `yaml:"exclude_dirs"`
	MaxFileSize  int64    `yaml:"max_file_size"`
	SnippetLimit int      `yaml:"snippet_limit"`
}

// AuditConfig holds the optional call audit store settings
type AuditConfig struct {
	// Path is the SQLite file; empty disables auditing
	Path string `yaml:"path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a config with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:    "mcp-guard-tools",
			Version: "0.1.0",
			Host:    "localhost",
			Port:    3000,
		},
		Query: QueryConfig{
			DSNEnv:     []string{"DATABASE_URL", "POSTGRES_URL", "POSTGRES_PRISMA_URL", "PG_CONNECTION_STRING"},
			EnvFiles:   []string{".env", ".env.local"},
			ClientPath: "psql",
			ClientArgs: []string{"{dsn}", "--csv", "-X", "-q", "-v", "ON_ERROR_STOP=1", "-c", "{sql}"},
			Timeout:    30 * time.Second,
			MaxOutput:  10 << 20,
		},
		Scan: ScanConfig{
			Extensions: []string{
				".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs",
				".py", ".go", ".rb", ".php", ".java", ".cs", ".sql",
			},
			ExcludeDirs:  []string{"node_modules", ".next", "dist", "build", ".git", "vendor"},
			MaxFileSize:  1 << 20,
			SnippetLimit: 100,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from configPath (if non-empty), applies
// environment overrides and validates the result. A missing file is not an
// error; defaults are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = os.Getenv(EnvConfigPath)
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg as YAML to path
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if port := os.Getenv("HTTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid HTTP_PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}

	if client := os.Getenv("PSQL_PATH"); client != "" {
		cfg.Query.ClientPath = client
	}

	if timeout := os.Getenv("QUERY_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid QUERY_TIMEOUT %q: %w", timeout, err)
		}
		cfg.Query.Timeout = d
	}

	if maxOutput := os.Getenv("QUERY_MAX_OUTPUT"); maxOutput != "" {
		n, err := strconv.Atoi(maxOutput)
		if err != nil {
			return fmt.Errorf("invalid QUERY_MAX_OUTPUT %q: %w", maxOutput, err)
		}
		cfg.Query.MaxOutput = n
	}

	if names := os.Getenv("QUERY_DSN_ENV"); names != "" {
		cfg.Query.DSNEnv = splitList(names)
	}

	if auditPath := os.Getenv("AUDIT_DB_PATH"); auditPath != "" {
		cfg.Audit.Path = auditPath
	}

	return nil
}

// Validate checks that required settings are present and sane
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return fmt.Errorf("server.name is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if len(c.Query.DSNEnv) == 0 {
		return fmt.Errorf("query.dsn_env must list at least one variable")
	}
	if c.Query.ClientPath == "" {
		return fmt.Errorf("query.client_path is required")
	}
	if !containsPlaceholder(c.Query.ClientArgs, "{sql}") {
		return fmt.Errorf("query.client_args must contain the {sql} placeholder")
	}
	if c.Query.Timeout <= 0 {
		return fmt.Errorf("query.timeout must be positive")
	}
	if c.Query.MaxOutput <= 0 {
		return fmt.Errorf("query.max_output must be positive")
	}
	if len(c.Scan.Extensions) == 0 {
		return fmt.Errorf("scan.extensions must not be empty")
	}
	for _, ext := range c.Scan.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("scan.extensions entry %q must start with a dot", ext)
		}
	}
	if c.Scan.SnippetLimit <= 0 {
		return fmt.Errorf("scan.snippet_limit must be positive")
	}
	return nil
}

func containsPlaceholder(args []string, placeholder string) bool {
	for _, a := range args {
		if strings.Contains(a, placeholder) {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
