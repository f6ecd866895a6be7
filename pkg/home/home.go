// Package home manages the per-user application directory that holds the
// default config file and the audit database.
package home

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prismon/mcp-guard-tools/pkg/config"
)

// EnvHome overrides the default home directory
const EnvHome = "MCP_GUARD_HOME"

// Files within home
const (
	ConfigFile = "config.yaml"
	AuditFile  = "audit.db"
)

// Manager handles the application home directory
type Manager struct {
	path string
}

// NewManager creates a new home directory manager
func NewManager(path string) (*Manager, error) {
	if path == "" {
		path = DefaultHomePath()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid home path: %w", err)
	}

	return &Manager{path: absPath}, nil
}

// DefaultHomePath returns $MCP_GUARD_HOME or ~/.mcp-guard-tools
func DefaultHomePath() string {
	if path := os.Getenv(EnvHome); path != "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".mcp-guard-tools"
	}
	return filepath.Join(home, ".mcp-guard-tools")
}

// Path returns the home directory path
func (m *Manager) Path() string {
	return m.path
}

// Exists checks if the home directory exists
func (m *Manager) Exists() bool {
	info, err := os.Stat(m.path)
	return err == nil && info.IsDir()
}

// JoinPath joins path elements relative to home directory
func (m *Manager) JoinPath(elem ...string) string {
	parts := append([]string{m.path}, elem...)
	return filepath.Join(parts...)
}

// ConfigPath returns the path to config.yaml
func (m *Manager) ConfigPath() string {
	return m.JoinPath(ConfigFile)
}

// AuditPath returns the path to audit.db
func (m *Manager) AuditPath() string {
	return m.JoinPath(AuditFile)
}

// ExistingConfigPath returns ConfigPath if the file exists, else ""
func (m *Manager) ExistingConfigPath() string {
	if info, err := os.Stat(m.ConfigPath()); err == nil && !info.IsDir() {
		return m.ConfigPath()
	}
	return ""
}

// Initialize creates the home directory and writes a default config.yaml
// with auditing pointed at audit.db. An existing config is left untouched.
// It reports whether a new config file was written.
func (m *Manager) Initialize() (bool, error) {
	if err := os.MkdirAll(m.path, 0755); err != nil {
		return false, fmt.Errorf("failed to create directory %s: %w", m.path, err)
	}

	if _, err := os.Stat(m.ConfigPath()); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to check config: %w", err)
	}

	cfg := config.Default()
	cfg.Audit.Path = m.AuditPath()
	if err := config.Save(cfg, m.ConfigPath()); err != nil {
		return false, fmt.Errorf("failed to initialize config: %w", err)
	}

	return true, nil
}

// ResolveConfigPath picks the config file to load: explicit if set, then
// $MCP_GUARD_CONFIG, then config.yaml in the home directory when it exists.
// An empty result means built-in defaults.
func ResolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(config.EnvConfigPath); env != "" {
		return env
	}
	mgr, err := NewManager("")
	if err != nil {
		return ""
	}
	return mgr.ExistingConfigPath()
}
