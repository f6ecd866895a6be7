// Package httpapi exposes the tool registry over HTTP. Every POST /mcp
// carries one JSON-RPC message and is handled by a fresh, pre-initialized
// session, so requests share nothing but the immutable registry.
package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prismon/mcp-guard-tools/pkg/config"
	"github.com/prismon/mcp-guard-tools/pkg/logger"
	"github.com/prismon/mcp-guard-tools/pkg/registry"
	"github.com/prismon/mcp-guard-tools/pkg/session"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("httpapi")
}

// SessionHeader carries the client's session id, echoed on the response
const SessionHeader = "Mcp-Session-Id"

// MaxBodyBytes bounds a single JSON-RPC request body
const MaxBodyBytes = 4 << 20

// Server serves the registry over HTTP
type Server struct {
	cfg      config.ServerConfig
	registry *registry.Registry
	recorder session.Recorder
}

// New creates an HTTP server for reg. recorder may be nil.
func New(cfg config.ServerConfig, reg *registry.Registry, recorder session.Recorder) *Server {
	return &Server{cfg: cfg, registry: reg, recorder: recorder}
}

// Router builds the gin engine with all routes mounted
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	router.GET("/healthz", s.handleHealth)
	router.GET("/tools", s.handleTools)
	router.POST("/mcp", s.handleMCP)

	return router
}

// Run listens on the configured host and port until the process exits
func (s *Server) Run() error {
	gin.SetMode(gin.ReleaseMode)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	log.WithFields(logrus.Fields{
		"host":         s.cfg.Host,
		"port":         s.cfg.Port,
		"mcp_endpoint": "/mcp",
		"tools":        s.registry.Names(),
	}).Info("MCP HTTP server starting")

	return s.Router().Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"name":    s.registry.Name(),
		"version": s.registry.Version(),
	})
}

func (s *Server) handleTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": s.registry.Descriptors()})
}

func (s *Server) handleMCP(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("failed to read request: %v", err)})
		return
	}

	opts := []session.Option{session.WithInitialized()}
	if id := strings.TrimSpace(c.GetHeader(SessionHeader)); id != "" {
		opts = append(opts, session.WithID(id))
	}
	if s.recorder != nil {
		opts = append(opts, session.WithRecorder(s.recorder))
	}

	sess := session.New(s.registry, http.NoBody, io.Discard, opts...)
	c.Header(SessionHeader, sess.ID())

	resp := sess.HandleMessage(c.Request.Context(), body)
	if resp == nil {
		c.Status(http.StatusAccepted)
		return
	}
	c.Data(http.StatusOK, "application/json", resp)
}

// requestLogger logs each request and its outcome through logrus
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		path := c.Request.URL.Path

		clientIP := c.Request.RemoteAddr
		if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
			clientIP = realIP
		} else if forwardedFor := c.GetHeader("X-Forwarded-For"); forwardedFor != "" {
			clientIP = strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
		}

		log.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      path,
			"clientIP":  clientIP,
			"userAgent": c.GetHeader("User-Agent"),
		}).Debug("Incoming request")

		c.Next()

		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     path,
			"status":   c.Writer.Status(),
			"duration": time.Since(startTime).Milliseconds(),
			"clientIP": clientIP,
		}).Info("Request completed")
	}
}
