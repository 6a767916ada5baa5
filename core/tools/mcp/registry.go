// Package mcp exposes the tools of a Model Context Protocol server.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/koscakluka/ema-companion/core/llms"
	"github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-companion/core/tools/mcp"

var logger = otelslog.NewLogger(scopeName)

var ErrToolFailed = errors.New("mcp tool reported an error")

type mcpClient interface {
	Initialize(ctx context.Context, request mcpgo.InitializeRequest) (*mcpgo.InitializeResult, error)
	ListTools(ctx context.Context, request mcpgo.ListToolsRequest) (*mcpgo.ListToolsResult, error)
	CallTool(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error)
	Close() error
}

// Registry keeps one connection to an MCP server and caches its tool list.
type Registry struct {
	name   string
	client mcpClient

	mu    sync.RWMutex
	tools []llms.Tool
	names map[string]bool
}

// Connect starts the server command over stdio, initializes the session and
// loads the tool list.
func Connect(ctx context.Context, name, command string, env []string, args ...string) (*Registry, error) {
	c, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to start mcp server %q: %w", name, err)
	}

	registry, err := newRegistry(ctx, name, c)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return registry, nil
}

func newRegistry(ctx context.Context, name string, c mcpClient) (*Registry, error) {
	initRequest := mcpgo.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcpgo.Implementation{
		Name:    "ema-companion",
		Version: "1.0.0",
	}
	if _, err := c.Initialize(ctx, initRequest); err != nil {
		return nil, fmt.Errorf("failed to initialize mcp server %q: %w", name, err)
	}

	r := &Registry{name: name, client: c}
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh reloads the tool list from the server.
func (r *Registry) Refresh(ctx context.Context) error {
	listed, err := r.client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list tools from mcp server %q: %w", r.name, err)
	}

	tools := make([]llms.Tool, 0, len(listed.Tools))
	names := make(map[string]bool, len(listed.Tools))
	for _, tool := range listed.Tools {
		parameters := json.RawMessage(tool.RawInputSchema)
		if len(parameters) == 0 {
			if parameters, err = json.Marshal(tool.InputSchema); err != nil {
				logger.Warn("skipping mcp tool with invalid schema", "server", r.name, "tool", tool.Name, "error", err)
				continue
			}
		}
		tools = append(tools, llms.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  parameters,
		})
		names[tool.Name] = true
	}

	r.mu.Lock()
	r.tools, r.names = tools, names
	r.mu.Unlock()

	logger.Info("loaded mcp tools", "server", r.name, "count", len(tools))
	return nil
}

func (r *Registry) Tools(context.Context) []llms.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]llms.Tool(nil), r.tools...)
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.names[name]
}

// Call executes the tool on the server. Text contents are joined with
// newlines; other contents are included as JSON.
func (r *Registry) Call(ctx context.Context, call llms.ToolCall) (string, error) {
	arguments := map[string]any{}
	if raw := strings.TrimSpace(call.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &arguments); err != nil {
			logger.Warn("failed to parse mcp tool arguments, sending none", "tool", call.Name, "error", err)
			arguments = map[string]any{}
		}
	}

	request := mcpgo.CallToolRequest{}
	request.Params.Name = call.Name
	request.Params.Arguments = arguments

	result, err := r.client.CallTool(ctx, request)
	if err != nil {
		return "", fmt.Errorf("failed to call mcp tool %q: %w", call.Name, err)
	}

	parts := make([]string, 0, len(result.Content))
	for _, content := range result.Content {
		if text, ok := content.(mcpgo.TextContent); ok {
			parts = append(parts, text.Text)
			continue
		}
		encoded, err := json.Marshal(content)
		if err != nil {
			continue
		}
		parts = append(parts, string(encoded))
	}
	text := strings.Join(parts, "\n")

	if result.IsError {
		return "", fmt.Errorf("%w: %s", ErrToolFailed, text)
	}
	return text, nil
}

func (r *Registry) Close() error {
	return r.client.Close()
}
