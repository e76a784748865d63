// Commbridge: community platform MCP gateway.
//
// Exposes a community-management REST API to AI coding and assistant
// tools as a single MCP tool over stdio: dashboards, analytics,
// member/channel/event/course listings, and a few management actions.
//
// Usage:
//
//	commbridge serve    # Start MCP server (stdio transport)
//	commbridge version  # Print version
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	cbserver "commbridge/internal/server"
	"commbridge/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("commbridge v%s\n", cbserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	s, cleanup, err := cbserver.New(cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Graceful shutdown on interrupt. The stdio server also exits on
	// EOF when the client goes away.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cleanup()
		os.Exit(0)
	}()

	return server.ServeStdio(s)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `commbridge v%s — community platform MCP gateway

Usage:
  commbridge serve    Start the MCP server (stdio transport)
  commbridge version  Print version

Configuration (environment):
  COMMBRIDGE_API_TOKEN            Bearer token for the upstream API (required)
  COMMBRIDGE_API_URL              Upstream base URL
  COMMBRIDGE_CACHE_TTL_SECONDS    GET cache freshness window (default 60)
  COMMBRIDGE_HTTP_TIMEOUT_SECONDS Per-attempt HTTP timeout (default 30)
  COMMBRIDGE_AUDIT_DB             Audit log path (default: in-memory)

Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "commbridge": {
        "command": "commbridge",
        "args": ["serve"],
        "env": {"COMMBRIDGE_API_TOKEN": "..."}
      }
    }
  }
`, cbserver.Version)
}
