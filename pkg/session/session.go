// Package session runs one MCP conversation over a newline-delimited
// JSON-RPC stream.
//
// Messages are handled strictly one at a time: the response to a request is
// written before the next message is handled. initialize and ping are answered by
// the registry's mcp-go server; tools/list and tools/call go straight to the
// registry so ordering and failure shape stay under our control.
package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prismon/mcp-guard-tools/internal/models"
	"github.com/prismon/mcp-guard-tools/pkg/logger"
	"github.com/prismon/mcp-guard-tools/pkg/registry"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("session")
}

// State of a session
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateProcessing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateProcessing:
		return "processing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Recorder receives one record per tool call
type Recorder interface {
	Record(ctx context.Context, rec models.CallRecord) error
}

// Option configures a Session
type Option func(*Session)

// WithID overrides the generated session id
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithRecorder sends every tool call to rec
func WithRecorder(rec Recorder) Option {
	return func(s *Session) { s.recorder = rec }
}

// WithInitialized starts the session in the Ready state, for transports
// without a handshake
func WithInitialized() Option {
	return func(s *Session) { s.state.Store(int32(StateReady)) }
}

// Session is a single client conversation
type Session struct {
	id       string
	registry *registry.Registry
	recorder Recorder
	in       *bufio.Reader
	out      io.Writer
	state    atomic.Int32
}

// New creates a session reading requests from in and writing responses to out
func New(reg *registry.Registry, in io.Reader, out io.Writer, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		registry: reg,
		in:       bufio.NewReader(in),
		out:      out,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identifier used in logs and audit records
func (s *Session) ID() string { return s.id }

// State returns the current session state
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Serve processes messages until the input ends or ctx is cancelled. It
// returns nil at end of input and an error only when ctx is done or the
// output can no longer be written. Messages are still handled one at a time;
// only the blocking read runs in the background, so cancellation interrupts
// a session idling on input.
func (s *Session) Serve(ctx context.Context) error {
	log.WithField("session", s.id).Info("Session started")
	defer func() {
		s.setState(StateClosed)
		log.WithField("session", s.id).Info("Session closed")
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	lines := s.readLines(done)

	for {
		var next readResult
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next = <-lines:
		}

		if len(bytes.TrimSpace(next.line)) > 0 {
			if resp := s.HandleMessage(ctx, next.line); resp != nil {
				if err := s.write(resp); err != nil {
					return err
				}
			}
		}

		if next.err != nil {
			if errors.Is(next.err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read from input: %w", next.err)
		}
	}
}

type readResult struct {
	line []byte
	err  error
}

// readLines feeds input lines to the returned channel until a read fails or
// done is closed. A read blocked on input outlives done until the input
// yields or closes.
func (s *Session) readLines(done <-chan struct{}) <-chan readResult {
	lines := make(chan readResult)
	go func() {
		for {
			line, err := s.in.ReadBytes('\n')
			select {
			case lines <- readResult{line: line, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return lines
}

func (s *Session) write(resp []byte) error {
	buf := make([]byte, 0, len(resp)+1)
	buf = append(buf, resp...)
	buf = append(buf, '\n')
	if _, err := s.out.Write(buf); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r *request) isNotification() bool {
	return len(r.ID) == 0
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

var nullID = json.RawMessage("null")

// HandleMessage processes one raw JSON-RPC message and returns the encoded
// response, or nil for notifications
func (s *Session) HandleMessage(ctx context.Context, raw []byte) []byte {
	if logger.IsLevelEnabled(logrus.TraceLevel) {
		log.WithField("session", s.id).WithField("message", string(raw)).Trace("Received message")
	}

	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		log.WithField("session", s.id).WithError(err).Warn("Malformed message")
		return s.encode(errorResponse(nullID, CodeParseError, "parse error: "+err.Error()))
	}

	if req.Method == "" {
		if req.isNotification() {
			return nil
		}
		return s.encode(errorResponse(req.ID, CodeInvalidRequest, "invalid request: missing method"))
	}

	if req.isNotification() {
		log.WithField("session", s.id).WithField("method", req.Method).Debug("Notification received")
		return nil
	}

	if s.State() == StateUninitialized && req.Method != string(mcp.MethodInitialize) && req.Method != string(mcp.MethodPing) {
		return s.encode(errorResponse(req.ID, CodeInvalidRequest, "session not initialized"))
	}

	switch req.Method {
	case string(mcp.MethodToolsList):
		return s.encode(response{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  mcp.ListToolsResult{Tools: s.registry.Tools()},
		})
	case string(mcp.MethodToolsCall):
		return s.encode(response{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  s.callTool(ctx, req.Params),
		})
	default:
		return s.delegate(ctx, req, raw)
	}
}

// delegate hands protocol methods to the mcp-go server
func (s *Session) delegate(ctx context.Context, req request, raw []byte) []byte {
	reply := s.registry.MCPServer().HandleMessage(ctx, raw)
	if reply == nil {
		return nil
	}

	encoded, err := json.Marshal(reply)
	if err != nil {
		log.WithField("session", s.id).WithError(err).Error("Failed to encode protocol response")
		return s.encode(errorResponse(req.ID, CodeInternalError, "internal error"))
	}

	if req.Method == string(mcp.MethodInitialize) && !hasError(encoded) {
		if s.State() == StateUninitialized {
			log.WithField("session", s.id).Info("Session initialized")
		}
		s.setState(StateReady)
	}

	return encoded
}

func hasError(encoded []byte) bool {
	var reply struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(encoded, &reply); err != nil {
		return true
	}
	return len(reply.Error) > 0 && !bytes.Equal(reply.Error, nullID)
}

type callParams struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

func (s *Session) callTool(ctx context.Context, raw json.RawMessage) *mcp.CallToolResult {
	s.setState(StateProcessing)
	defer s.setState(StateReady)

	startTime := time.Now()

	var params callParams
	var result *mcp.CallToolResult
	if len(raw) == 0 {
		result = mcp.NewToolResultError(fmt.Sprintf("%v: missing params", registry.ErrInvalidArguments))
	} else if err := json.Unmarshal(raw, &params); err != nil {
		result = mcp.NewToolResultError(fmt.Sprintf("%v: %v", registry.ErrInvalidArguments, err))
	} else {
		result = s.registry.Call(ctx, params.Name, params.Arguments)
	}

	duration := time.Since(startTime)
	entry := log.WithFields(logrus.Fields{
		"session":    s.id,
		"tool":       params.Name,
		"durationMs": duration.Milliseconds(),
		"isError":    result.IsError,
	})
	if result.IsError {
		entry.WithField("message", registry.ResultText(result)).Warn("Tool call failed")
	} else {
		entry.Info("Tool call completed")
	}

	s.record(ctx, params.Name, result, duration)
	return result
}

func (s *Session) record(ctx context.Context, tool string, result *mcp.CallToolResult, duration time.Duration) {
	if s.recorder == nil {
		return
	}

	rec := models.CallRecord{
		ID:         uuid.NewString(),
		Session:    s.id,
		Tool:       tool,
		IsError:    result.IsError,
		DurationMs: duration.Milliseconds(),
		CreatedAt:  time.Now().Unix(),
	}
	if result.IsError {
		rec.Message = registry.ResultText(result)
	}

	if err := s.recorder.Record(ctx, rec); err != nil {
		log.WithField("session", s.id).WithError(err).Warn("Failed to record tool call")
	}
}

func errorResponse(id json.RawMessage, code int, message string) response {
	if len(id) == 0 {
		id = nullID
	}
	return response{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	}
}

func (s *Session) encode(resp response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		log.WithField("session", s.id).WithError(err).Error("Failed to encode response")
		data, _ = json.Marshal(errorResponse(resp.ID, CodeInternalError, "internal error"))
	}
	return data
}
