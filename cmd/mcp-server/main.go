package main

import (
	"context"
	"os"

	"github.com/prismon/mcp-guard-tools/pkg/audit"
	"github.com/prismon/mcp-guard-tools/pkg/config"
	"github.com/prismon/mcp-guard-tools/pkg/home"
	"github.com/prismon/mcp-guard-tools/pkg/logger"
	"github.com/prismon/mcp-guard-tools/pkg/session"
	"github.com/prismon/mcp-guard-tools/pkg/tools"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("mcp")
}

// main serves every tool over stdio with no flags, for use as a drop-in
// MCP server entry. Settings come from $MCP_GUARD_CONFIG (or the home
// directory config) and the environment.
func main() {
	cfg, err := config.Load(home.ResolveConfigPath(""))
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if err := logger.ConfigureFromString(cfg.Logging.Level); err != nil {
		log.WithError(err).Fatal("Invalid log level")
	}

	reg, err := tools.NewRegistry(cfg, tools.DepsFromConfig(cfg))
	if err != nil {
		log.WithError(err).Fatal("Failed to build tool registry")
	}

	var opts []session.Option
	if cfg.Audit.Path != "" {
		store, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			log.WithError(err).Warn("Audit store unavailable, continuing without it")
		} else {
			defer store.Close()
			opts = append(opts, session.WithRecorder(store))
		}
	}

	log.WithField("tools", reg.Names()).Info("Starting MCP server")

	if err := session.New(reg, os.Stdin, os.Stdout, opts...).Serve(context.Background()); err != nil {
		log.WithError(err).Fatal("Server failed")
	}
}
