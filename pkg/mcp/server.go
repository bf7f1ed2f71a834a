package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/supplier-sync/pkg/config"
	"github.com/Sriram-PR/supplier-sync/pkg/orchestrate"
)

const serverName = "supplier-sync"

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig    *config.AppConfig
	Orchestrator *orchestrate.Orchestrator
	ConfigPath   string
	Version      string
	Transport    string // "stdio" or "sse"
	Port         int
	Logger       *logrus.Logger
}

// Server exposes sync control and ad-hoc parsing as MCP tools
type Server struct {
	mcpServer *server.MCPServer
	cfg       *ServerConfig
	orch      *orchestrate.Orchestrator
	log       *logrus.Entry
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("Orchestrator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	mcpServer := server.NewMCPServer(
		serverName,
		cfg.Version,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer: mcpServer,
		cfg:       cfg,
		orch:      cfg.Orchestrator,
		log:       cfg.Logger.WithField("component", "mcp"),
	}
	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	tools := []server.ServerTool{
		{
			Tool: mcp.NewTool("list_suppliers",
				mcp.WithDescription("List the configured suppliers and their crawl settings"),
			),
			Handler: s.handleListSuppliers,
		},
		{
			Tool: mcp.NewTool("start_sync",
				mcp.WithDescription("Start a background product sync for one customer of a supplier. Returns immediately with a request ID."),
				mcp.WithString("supplier",
					mcp.Required(),
					mcp.Description("Supplier key from the config file (e.g., 'sysco')"),
				),
				mcp.WithString("customer_id",
					mcp.Required(),
					mcp.Description("Customer the products are synced for"),
				),
				mcp.WithBoolean("favorites_only",
					mcp.Description("Sync only the customer's favorite lists"),
				),
				mcp.WithString("customer_override",
					mcp.Description("Optional 'opco-customerid' pair replacing the values found at login"),
				),
			),
			Handler: s.handleStartSync,
		},
		{
			Tool: mcp.NewTool("get_sync_status",
				mcp.WithDescription("Get the status and progress of a sync"),
				mcp.WithString("request_id",
					mcp.Required(),
					mcp.Description("The request ID returned by start_sync"),
				),
			),
			Handler: s.handleGetSyncStatus,
		},
		{
			Tool: mcp.NewTool("cancel_sync",
				mcp.WithDescription("Cancel a pending or running sync"),
				mcp.WithString("request_id",
					mcp.Required(),
					mcp.Description("The request ID returned by start_sync"),
				),
			),
			Handler: s.handleCancelSync,
		},
		{
			Tool: mcp.NewTool("parse_response",
				mcp.WithDescription("Parse one combined supplier document ({\"productList\":...,\"prices\":[...]}) into products"),
				mcp.WithString("data",
					mcp.Required(),
					mcp.Description("The raw combined document"),
				),
				mcp.WithString("supplier",
					mcp.Description("Supplier key; selects the configured pack size rules"),
				),
				mcp.WithBoolean("favorites_only",
					mcp.Description("The document came from a favorites crawl"),
				),
				mcp.WithString("category",
					mcp.Description("Category label stored with each product"),
				),
				mcp.WithString("rules",
					mcp.Description("Pack size rules (default, keany, pfg, new_sysco, coastal_sunbelt); overrides the supplier's"),
				),
			),
			Handler: s.handleParseResponse,
		},
		{
			Tool: mcp.NewTool("resolve_pack_size",
				mcp.WithDescription("Split a pack-size string such as '12 X 1' into pack and size"),
				mcp.WithString("pack_size",
					mcp.Required(),
					mcp.Description("The raw pack-size string"),
				),
				mcp.WithString("uom",
					mcp.Description("Unit of measure (e.g., 'LB', 'CS')"),
				),
				mcp.WithString("rules",
					mcp.Description("Pack size rules (default if empty)"),
				),
			),
			Handler: s.handleResolvePackSize,
		},
	}
	s.mcpServer.AddTools(tools...)

	s.log.Infof("Registered %d MCP tools", len(tools))
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown cancels running syncs and waits for them to stop
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	done := make(chan struct{})
	go func() {
		s.orch.Shutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
