package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() mcp.Tool {
	return mcp.NewTool("echo",
		mcp.WithDescription("Echo a message"),
		mcp.WithString("message", mcp.Required(), mcp.Description("Text to echo")),
		mcp.WithNumber("times", mcp.Description("Repeat count")),
	)
}

func echoHandler(_ context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(args["message"].(string)), nil
}

func buildTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewBuilder("test-server", "0.0.1").
		Add(echoTool(), echoHandler).
		Add(mcp.NewTool("fail", mcp.WithDescription("Always fails")), func(context.Context, map[string]any) (*mcp.CallToolResult, error) {
			return nil, errors.New("validation error: nope")
		}).
		Add(mcp.NewTool("boom", mcp.WithDescription("Panics")), func(context.Context, map[string]any) (*mcp.CallToolResult, error) {
			panic("kaboom")
		}).
		Build()
	require.NoError(t, err)
	return reg
}

func TestDescriptorsKeepRegistrationOrder(t *testing.T) {
	reg := buildTestRegistry(t)

	descs := reg.Descriptors()
	require.Len(t, descs, 3)
	assert.Equal(t, "echo", descs[0].Name)
	assert.Equal(t, "fail", descs[1].Name)
	assert.Equal(t, "boom", descs[2].Name)
	assert.Equal(t, "Echo a message", descs[0].Description)
	assert.Equal(t, []string{"message"}, descs[0].InputSchema.Required)
	assert.Equal(t, []string{"echo", "fail", "boom"}, reg.Names())
	assert.Len(t, reg.Tools(), 3)
}

func TestHas(t *testing.T) {
	reg := buildTestRegistry(t)
	assert.True(t, reg.Has("echo"))
	assert.False(t, reg.Has("drop_database"))
}

func TestBuildRejectsDuplicates(t *testing.T) {
	_, err := NewBuilder("s", "1").
		Add(echoTool(), echoHandler).
		Add(echoTool(), echoHandler).
		Build()
	assert.ErrorIs(t, err, ErrDuplicateTool)
}

func TestBuildRejectsMissingHandler(t *testing.T) {
	_, err := NewBuilder("s", "1").Add(echoTool(), nil).Build()
	assert.Error(t, err)
}

func TestCallSuccess(t *testing.T) {
	reg := buildTestRegistry(t)
	res := reg.Call(context.Background(), "echo", map[string]any{"message": "hi"})
	require.NotNil(t, res)
	assert.False(t, res.IsError)
	assert.Equal(t, "hi", ResultText(res))
}

func TestCallUnknownTool(t *testing.T) {
	reg := buildTestRegistry(t)
	res := reg.Call(context.Background(), "drop_database", nil)
	require.NotNil(t, res)
	assert.True(t, res.IsError)
	assert.Equal(t, "unknown tool: drop_database", ResultText(res))
}

func TestCallArgumentValidation(t *testing.T) {
	reg := buildTestRegistry(t)

	tests := []struct {
		name string
		args any
		want string
	}{
		{"missing required", map[string]any{}, `invalid arguments: missing required argument "message"`},
		{"nil arguments", nil, `invalid arguments: missing required argument "message"`},
		{"null required", map[string]any{"message": nil}, `invalid arguments: missing required argument "message"`},
		{"wrong type", map[string]any{"message": 42.0}, `invalid arguments: argument "message" must be of type string`},
		{"wrong optional type", map[string]any{"message": "x", "times": "two"}, `invalid arguments: argument "times" must be of type number`},
		{"not an object", []any{"x"}, "invalid arguments: arguments must be an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := reg.Call(context.Background(), "echo", tt.args)
			assert.True(t, res.IsError)
			assert.Equal(t, tt.want, ResultText(res))
		})
	}
}

func TestCallAllowsUnknownKeys(t *testing.T) {
	reg := buildTestRegistry(t)
	res := reg.Call(context.Background(), "echo", map[string]any{"message": "hi", "extra": true})
	assert.False(t, res.IsError)
}

func TestCallHandlerError(t *testing.T) {
	reg := buildTestRegistry(t)
	res := reg.Call(context.Background(), "fail", nil)
	assert.True(t, res.IsError)
	assert.Equal(t, "validation error: nope", ResultText(res))
}

func TestCallRecoversPanic(t *testing.T) {
	reg := buildTestRegistry(t)
	res := reg.Call(context.Background(), "boom", nil)
	assert.True(t, res.IsError)
	assert.Contains(t, ResultText(res), "internal error in tool boom")

	// the registry stays usable
	res = reg.Call(context.Background(), "echo", map[string]any{"message": "still here"})
	assert.False(t, res.IsError)
}

func TestMatchesType(t *testing.T) {
	assert.True(t, matchesType(3.0, "integer"))
	assert.False(t, matchesType(3.5, "integer"))
	assert.True(t, matchesType(true, "boolean"))
	assert.True(t, matchesType(map[string]any{}, "object"))
	assert.True(t, matchesType([]any{}, "array"))
	assert.True(t, matchesType("x", "whatever"))
}
