package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"voice2action/internal/domain"
	"voice2action/internal/infra/config"
)

// mcpCallTimeout is the default per-call timeout for MCP tool execution.
const mcpCallTimeout = 2 * time.Minute

// MCPBridge connects to remote MCP servers and exposes their tools as
// domain.Tool instances grouped by the worker each server backs.
type MCPBridge struct {
	servers []mcpServerConn
	tools   map[string][]domain.Tool // lower-cased worker name -> tools
	logger  *slog.Logger
	mu      sync.RWMutex
}

type mcpServerConn struct {
	name   string
	worker string
	client mcpClient
}

// mcpClient abstracts the MCP client interface for testability.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// NewMCPBridge connects to every configured server and discovers its tools.
func NewMCPBridge(ctx context.Context, servers []config.MCPServer, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{logger: logger}

	for _, srv := range servers {
		conn, err := b.connectServer(ctx, srv)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("mcp server %q: %w", srv.Name, err)
		}
		b.servers = append(b.servers, *conn)
	}

	if err := b.discoverTools(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("discover tools: %w", err)
	}
	return b, nil
}

// newMCPBridgeWithClients creates an MCPBridge with pre-built clients (for testing).
func newMCPBridgeWithClients(ctx context.Context, servers []mcpServerConn, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{servers: servers, logger: logger}
	if err := b.discoverTools(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *MCPBridge) connectServer(ctx context.Context, srv config.MCPServer) (*mcpServerConn, error) {
	var c mcpClient

	switch srv.Transport {
	case "stdio":
		stdio, err := mcpclient.NewStdioMCPClient(srv.Command, envSlice(srv.Env), srv.Args...)
		if err != nil {
			return nil, fmt.Errorf("create stdio client: %w", err)
		}
		c = stdio
	case "http":
		t, err := transport.NewStreamableHTTP(srv.URL)
		if err != nil {
			return nil, fmt.Errorf("create http transport: %w", err)
		}
		httpClient := mcpclient.NewClient(t)
		if err := httpClient.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
		c = httpClient
	default:
		return nil, fmt.Errorf("unsupported transport %q", srv.Transport)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "voice2action",
		Version: "1.0.0",
	}

	if ic, ok := c.(interface {
		Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	}); ok {
		if _, err := ic.Initialize(ctx, initReq); err != nil {
			c.Close()
			return nil, domain.WrapOp("initialize", err)
		}
	}

	b.logger.Info("mcp server connected", "name", srv.Name, "worker", srv.Worker, "transport", srv.Transport)
	return &mcpServerConn{name: srv.Name, worker: srv.Worker, client: c}, nil
}

// discoverTools lists tools on every server. A tool name already provided
// to the same worker by an earlier server is skipped. Discovery fails only
// when every server fails.
func (b *MCPBridge) discoverTools(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tools = make(map[string][]domain.Tool)
	seen := make(map[string]bool)
	var errs []string
	successCount := 0

	for _, srv := range b.servers {
		result, err := srv.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			b.logger.Warn("mcp server discovery failed, skipping", "server", srv.name, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", srv.name, err))
			continue
		}

		worker := strings.ToLower(srv.worker)
		for _, t := range result.Tools {
			key := worker + "/" + t.Name
			if seen[key] {
				b.logger.Warn("duplicate mcp tool skipped", "server", srv.name, "worker", srv.worker, "tool", t.Name)
				continue
			}
			seen[key] = true
			b.tools[worker] = append(b.tools[worker], newMCPToolAdapter(srv.name, srv.client, t, b.logger))
		}

		b.logger.Info("mcp tools discovered", "server", srv.name, "worker", srv.worker, "count", len(result.Tools))
		successCount++
	}

	if successCount == 0 && len(errs) > 0 {
		return fmt.Errorf("all mcp servers failed discovery: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ToolsFor returns the tools backing worker, matched ignoring case.
func (b *MCPBridge) ToolsFor(worker string) []domain.Tool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]domain.Tool(nil), b.tools[strings.ToLower(worker)]...)
}

// Workers returns the worker names that have at least one remote tool.
func (b *MCPBridge) Workers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var names []string
	seen := make(map[string]bool)
	for _, srv := range b.servers {
		key := strings.ToLower(srv.worker)
		if seen[key] || len(b.tools[key]) == 0 {
			continue
		}
		seen[key] = true
		names = append(names, srv.worker)
	}
	return names
}

// Close shuts down all MCP server connections.
func (b *MCPBridge) Close() {
	for _, srv := range b.servers {
		if err := srv.client.Close(); err != nil {
			b.logger.Warn("mcp server close error", "server", srv.name, "error", err)
		}
	}
}

// mcpToolAdapter wraps a single remote MCP tool as a domain.Tool. It keeps
// the remote name so worker instructions can refer to it directly.
type mcpToolAdapter struct {
	serverName string
	client     mcpClient
	mcpTool    mcp.Tool
	logger     *slog.Logger
}

func newMCPToolAdapter(serverName string, client mcpClient, t mcp.Tool, logger *slog.Logger) *mcpToolAdapter {
	return &mcpToolAdapter{
		serverName: serverName,
		client:     client,
		mcpTool:    t,
		logger:     logger,
	}
}

func (a *mcpToolAdapter) Name() string { return a.mcpTool.Name }

func (a *mcpToolAdapter) Description() string {
	if a.mcpTool.Description != "" {
		return a.mcpTool.Description
	}
	return fmt.Sprintf("MCP tool %q from server %q", a.mcpTool.Name, a.serverName)
}

func (a *mcpToolAdapter) Schema() domain.ToolSchema {
	params := json.RawMessage(`{"type": "object"}`)
	if a.mcpTool.InputSchema.Properties != nil || a.mcpTool.InputSchema.Required != nil {
		if data, err := json.Marshal(a.mcpTool.InputSchema); err == nil {
			params = data
		}
	}
	return domain.ToolSchema{
		Name:        a.mcpTool.Name,
		Description: a.Description(),
		Parameters:  params,
	}
}

func (a *mcpToolAdapter) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var args map[string]any
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &args); err != nil {
			return &domain.ToolResult{
				IsError: true,
				Content: Fail(string(domain.CodeInvalidInput), fmt.Sprintf("invalid arguments: %v", err), ""),
			}, nil
		}
	}

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = a.mcpTool.Name
	callReq.Params.Arguments = args

	a.logger.Debug("mcp tool call", "server", a.serverName, "tool", a.mcpTool.Name)

	callCtx, cancel := context.WithTimeout(ctx, mcpCallTimeout)
	defer cancel()

	result, err := a.client.CallTool(callCtx, callReq)
	if err != nil {
		err = domain.NewDomainError("mcp."+a.mcpTool.Name, domain.ErrProviderError, err.Error())
		return &domain.ToolResult{
			IsError:     true,
			IsRetryable: true,
			Content:     FailErr(err, ""),
		}, nil
	}

	return &domain.ToolResult{
		Content: extractMCPContent(result),
		IsError: result.IsError,
	}, nil
}

// extractMCPContent converts MCP CallToolResult content to a string.
func extractMCPContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// envSlice converts a map of env vars to KEY=VALUE slices.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	return result
}
