package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"voice2action/internal/domain"
	"voice2action/internal/infra/middleware"
)

// MCPServerConfig configures a ToolServer.
type MCPServerConfig struct {
	Name      string
	Version   string
	Addr      string
	RateLimit float64 // requests per second per client IP, 0 disables
	RateBurst int
}

// ToolServer hosts domain tools over MCP streamable HTTP at /mcp and
// reports liveness at /healthz.
type ToolServer struct {
	cfg     MCPServerConfig
	tools   []domain.Tool
	mcp     *server.MCPServer
	logger  *slog.Logger
	httpSrv *http.Server

	mu        sync.Mutex
	boundAddr string
}

// NewToolServer registers tools on a new MCP server.
func NewToolServer(cfg MCPServerConfig, tools []domain.Tool, logger *slog.Logger) *ToolServer {
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	s := &ToolServer{
		cfg:    cfg,
		tools:  tools,
		mcp:    server.NewMCPServer(cfg.Name, cfg.Version, server.WithToolCapabilities(false)),
		logger: logger,
	}
	for _, t := range tools {
		schema := t.Schema()
		s.mcp.AddTool(
			mcp.NewToolWithRawSchema(schema.Name, schema.Description, schema.Parameters),
			s.handler(t),
		)
	}
	return s
}

func (s *ToolServer) handler(t domain.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(Fail(string(domain.CodeInvalidInput), err.Error(), "")), nil
		}
		res, err := t.Execute(ctx, params)
		if err != nil {
			s.logger.Warn("hosted tool failed", "tool", t.Name(), "error", err)
			return mcp.NewToolResultError(FailErr(err, "")), nil
		}
		out := mcp.NewToolResultText(res.Content)
		out.IsError = res.IsError
		return out, nil
	}
}

// ToolNames returns the hosted tool names in registration order.
func (s *ToolServer) ToolNames() []string {
	names := make([]string, len(s.tools))
	for i, t := range s.tools {
		names[i] = t.Name()
	}
	return names
}

// Handler returns the HTTP handler serving /mcp and /healthz.
func (s *ToolServer) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", server.NewStreamableHTTPServer(s.mcp))
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return middleware.Chain(mux,
		middleware.Recover(s.logger),
		middleware.RequestLog(s.logger),
		middleware.APIHeaders,
		middleware.RateLimit(ctx, s.cfg.RateLimit, s.cfg.RateBurst),
	)
}

func (s *ToolServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"tools":  s.ToolNames(),
	})
}

// Start listens on cfg.Addr and serves until ctx is cancelled.
func (s *ToolServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("%s listen: %w", s.cfg.Name, err)
	}
	s.mu.Lock()
	s.boundAddr = listener.Addr().String()
	s.httpSrv = &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpSrv
	s.mu.Unlock()

	s.logger.Info("mcp tool server started", "name", s.cfg.Name, "addr", listener.Addr().String(), "tools", s.ToolNames())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("%s serve: %w", s.cfg.Name, err)
	}
	return nil
}

// BoundAddr returns the listening address. Only valid after Start.
func (s *ToolServer) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}
