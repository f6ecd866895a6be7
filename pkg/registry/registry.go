// Package registry holds the fixed set of tools a server exposes and
// dispatches calls to them.
//
// A Registry is built once at startup and is read-only afterwards, so it can
// be shared by any number of sessions without locking. Call never returns a
// Go error: unknown tools, bad arguments, handler errors and handler panics
// all come back as error results.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prismon/mcp-guard-tools/internal/models"
	"github.com/prismon/mcp-guard-tools/pkg/logger"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("registry")
}

var (
	// ErrUnknownTool is reported when a call names an unregistered tool
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments is reported when arguments do not match the schema
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrDuplicateTool is returned by Build when two tools share a name
	ErrDuplicateTool = errors.New("duplicate tool name")
)

// Handler executes one tool. args has already been checked against the
// tool's input schema.
type Handler func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error)

type entry struct {
	tool    mcp.Tool
	handler Handler
}

// Builder collects tools before the registry is frozen
type Builder struct {
	name    string
	version string
	entries []entry
}

// NewBuilder starts a registry for a server with the given identity
func NewBuilder(name, version string) *Builder {
	return &Builder{name: name, version: version}
}

// Add queues a tool for registration
func (b *Builder) Add(tool mcp.Tool, handler Handler) *Builder {
	b.entries = append(b.entries, entry{tool: tool, handler: handler})
	return b
}

// Build freezes the collected tools into a Registry
func (b *Builder) Build() (*Registry, error) {
	r := &Registry{
		name:    b.name,
		version: b.version,
		entries: make([]entry, 0, len(b.entries)),
		byName:  make(map[string]int, len(b.entries)),
	}

	for _, e := range b.entries {
		if e.tool.Name == "" {
			return nil, fmt.Errorf("tool name cannot be empty")
		}
		if e.handler == nil {
			return nil, fmt.Errorf("tool %q has no handler", e.tool.Name)
		}
		if _, exists := r.byName[e.tool.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, e.tool.Name)
		}
		r.byName[e.tool.Name] = len(r.entries)
		r.entries = append(r.entries, e)
	}

	r.protocol = server.NewMCPServer(r.name, r.version, server.WithToolCapabilities(false))
	for _, e := range r.entries {
		r.protocol.AddTool(e.tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return r.Call(ctx, request.Params.Name, request.Params.Arguments), nil
		})
	}

	log.WithFields(logrus.Fields{
		"server": r.name,
		"tools":  r.Names(),
	}).Debug("Tool registry built")

	return r, nil
}

// Registry is an immutable set of tools
type Registry struct {
	name     string
	version  string
	entries  []entry
	byName   map[string]int
	protocol *server.MCPServer
}

// Name returns the server name reported during initialize
func (r *Registry) Name() string { return r.name }

// Version returns the server version reported during initialize
func (r *Registry) Version() string { return r.version }

// MCPServer returns the mcp-go server answering protocol-level methods such
// as initialize and ping. Its tools dispatch back through Call. Sessions list
// tools from the registry directly because mcp-go sorts them by name.
func (r *Registry) MCPServer() *server.MCPServer { return r.protocol }

// Names returns tool names in registration order
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.tool.Name
	}
	return names
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Tools returns the MCP tool definitions in registration order
func (r *Registry) Tools() []mcp.Tool {
	tools := make([]mcp.Tool, len(r.entries))
	for i, e := range r.entries {
		tools[i] = e.tool
	}
	return tools
}

// Descriptors returns every tool descriptor in registration order
func (r *Registry) Descriptors() []models.ToolDescriptor {
	out := make([]models.ToolDescriptor, len(r.entries))
	for i, e := range r.entries {
		out[i] = models.ToolDescriptor{
			Name:        e.tool.Name,
			Description: e.tool.Description,
			InputSchema: e.tool.InputSchema,
		}
	}
	return out
}

// Call dispatches to the named tool. The result is never nil; failures have
// IsError set.
func (r *Registry) Call(ctx context.Context, name string, arguments any) (result *mcp.CallToolResult) {
	idx, ok := r.byName[name]
	if !ok {
		return failure(fmt.Errorf("%w: %s", ErrUnknownTool, name))
	}
	e := r.entries[idx]

	args, err := validateArguments(e.tool.InputSchema, arguments)
	if err != nil {
		return failure(err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("tool", name).WithField("panic", rec).Error("Tool handler panicked")
			result = failure(fmt.Errorf("internal error in tool %s: %v", name, rec))
		}
	}()

	res, err := e.handler(ctx, args)
	if err != nil {
		return failure(err)
	}
	if res == nil {
		return mcp.NewToolResultText("")
	}
	return res
}

func failure(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

// ResultText returns the concatenated text content of a result
func ResultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	text := ""
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			text += tc.Text
		}
	}
	return text
}
