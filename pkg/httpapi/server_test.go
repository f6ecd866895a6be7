package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prismon/mcp-guard-tools/internal/models"
	"github.com/prismon/mcp-guard-tools/pkg/config"
	"github.com/prismon/mcp-guard-tools/pkg/registry"
	"github.com/prismon/mcp-guard-tools/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryRecorder struct {
	mu      sync.Mutex
	records []models.CallRecord
}

func (m *memoryRecorder) Record(_ context.Context, rec models.CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func setupTestRouter(t *testing.T, recorder session.Recorder) *gin.Engine {
	t.Helper()
	reg, err := registry.NewBuilder("guard-http", "0.2.0").
		Add(mcp.NewTool("echo", mcp.WithDescription("Echo"), mcp.WithString("message", mcp.Required())),
			func(_ context.Context, args map[string]any) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText(args["message"].(string)), nil
			}).
		Add(mcp.NewTool("broken", mcp.WithDescription("Fails")),
			func(context.Context, map[string]any) (*mcp.CallToolResult, error) {
				return nil, errors.New("execution error: client exited")
			}).
		Build()
	require.NoError(t, err)

	return New(config.Default().Server, reg, recorder).Router()
}

func postMCP(router *gin.Engine, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type callReply struct {
	Result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code int `json:"code"`
	} `json:"error"`
}

func TestHealthz(t *testing.T) {
	router := setupTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "guard-http", body["name"])
}

func TestToolsEndpoint(t *testing.T) {
	router := setupTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/tools", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Tools []models.ToolDescriptor `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Tools, 2)
	assert.Equal(t, "echo", body.Tools[0].Name)
	assert.Equal(t, "broken", body.Tools[1].Name)
}

func TestMCPToolCallWithoutHandshake(t *testing.T) {
	router := setupTestRouter(t, nil)

	w := postMCP(router, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"message":"over http"}}}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var reply callReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	require.Nil(t, reply.Error)
	assert.False(t, reply.Result.IsError)
	require.Len(t, reply.Result.Content, 1)
	assert.Equal(t, "over http", reply.Result.Content[0].Text)
}

func TestMCPUnknownToolIsFailure(t *testing.T) {
	router := setupTestRouter(t, nil)

	w := postMCP(router, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"rm_rf","arguments":{}}}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var reply callReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Nil(t, reply.Error)
	assert.True(t, reply.Result.IsError)
	assert.Equal(t, "unknown tool: rm_rf", reply.Result.Content[0].Text)
}

func TestMCPInitialize(t *testing.T) {
	router := setupTestRouter(t, nil)

	w := postMCP(router, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"guard-http"`)
}

func TestMCPMalformedBody(t *testing.T) {
	router := setupTestRouter(t, nil)

	w := postMCP(router, `{not json`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var reply callReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32700, reply.Error.Code)
}

func TestMCPNotificationIsAccepted(t *testing.T) {
	router := setupTestRouter(t, nil)

	w := postMCP(router, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestMCPSessionHeaderAndAudit(t *testing.T) {
	rec := &memoryRecorder{}
	router := setupTestRouter(t, rec)

	w := postMCP(router, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"broken"}}`,
		map[string]string{SessionHeader: "client-session-7"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "client-session-7", w.Header().Get(SessionHeader))

	require.Len(t, rec.records, 1)
	assert.Equal(t, "client-session-7", rec.records[0].Session)
	assert.Equal(t, "broken", rec.records[0].Tool)
	assert.True(t, rec.records[0].IsError)
	assert.Equal(t, "execution error: client exited", rec.records[0].Message)
}

func TestMCPGeneratesSessionID(t *testing.T) {
	router := setupTestRouter(t, nil)

	w := postMCP(router, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(SessionHeader))
}
