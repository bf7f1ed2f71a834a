package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Sriram-PR/supplier-sync/pkg/api"
	"github.com/Sriram-PR/supplier-sync/pkg/jobs"
	"github.com/Sriram-PR/supplier-sync/pkg/mcp"
	"github.com/Sriram-PR/supplier-sync/pkg/orchestrate"
)

// runServe handles the serve subcommand
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	addr := fs.String("addr", "", "Listen address (defaults to listen_addr from config)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: supplier-sync serve [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doServe(*configFile, *addr, *logLevel, os.Stderr))
}

// doServe runs the HTTP API until a signal arrives.
// Returns exit code (0 = clean shutdown, 1 = error).
func doServe(configPath, addr, logLevel string, stderr io.Writer) int {
	log := setupLogger(logLevel, stderr)
	appCfg, err := loadAndValidateConfig(configPath, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer attachLogFile(log, appCfg).Close()
	logAppConfig(appCfg, log)
	if addr == "" {
		addr = appCfg.ListenAddr
	}

	ctx, stop := signalContext(log)
	defer stop()

	backends, err := openBackends(ctx, appCfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: open storage: %v\n", err)
		return 1
	}
	defer backends.Close()

	entry := log.WithField("component", "serve")
	orch, err := orchestrate.NewOrchestrator(appCfg, backends.Store, jobs.NewManager(backends.Status, entry), entry)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer orch.Shutdown()

	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRouter(api.NewHandler(appCfg, orch, version, entry), entry)
	if err := api.Serve(ctx, addr, router, entry); err != nil {
		fmt.Fprintf(stderr, "API server error: %v\n", err)
		return 1
	}
	return 0
}

// runMcpServer handles the mcp-server subcommand
func runMcpServer(args []string) {
	fs := flag.NewFlagSet("mcp-server", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	transport := fs.String("transport", "stdio", "Transport type (stdio, sse)")
	port := fs.Int("port", 8080, "HTTP port (for sse transport)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: supplier-sync mcp-server [options]

Start an MCP (Model Context Protocol) server for AI tool integration.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Start with stdio transport
  supplier-sync mcp-server -config config.yaml

  # Start with SSE transport on port 8080
  supplier-sync mcp-server -config config.yaml -transport sse -port 8080

Available MCP Tools:
  list_suppliers     List configured suppliers
  start_sync         Start a background sync for a customer
  get_sync_status    Get the status of a sync
  cancel_sync        Cancel a running sync
  parse_response     Parse a combined supplier document
  resolve_pack_size  Split a pack-size string into pack and size
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doMcpServer(*configFile, *transport, *port, *logLevel, os.Stdout, os.Stderr))
}

// doMcpServer is the testable implementation of the MCP server
func doMcpServer(configPath, transport string, port int, logLevel string, stdout, stderr io.Writer) int {
	// MCP protocol uses stdout, logs go to stderr
	log := setupLogger(logLevel, stderr)

	appCfg, err := loadAndValidateConfig(configPath, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	defer attachLogFile(log, appCfg).Close()

	ctx, stop := signalContext(log)
	defer stop()

	backends, err := openBackends(ctx, appCfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: open storage: %v\n", err)
		return 1
	}
	defer backends.Close()

	entry := log.WithField("component", "mcp-server")
	orch, err := orchestrate.NewOrchestrator(appCfg, backends.Store, jobs.NewManager(backends.Status, entry), entry)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	server, err := mcp.NewServer(&mcp.ServerConfig{
		AppConfig:    appCfg,
		Orchestrator: orch,
		ConfigPath:   configPath,
		Version:      version,
		Transport:    transport,
		Port:         port,
		Logger:       log,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error creating MCP server: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warnf("MCP shutdown: %v", err)
		}
	}()

	log.Infof("Starting MCP server (transport: %s)", transport)
	if err := server.Run(); err != nil {
		fmt.Fprintf(stderr, "MCP server error: %v\n", err)
		return 1
	}
	return 0
}
