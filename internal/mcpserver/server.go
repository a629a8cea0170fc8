// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the bundler to LLM tooling via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/cascade/internal/bundle"
	"github.com/starford/cascade/internal/storage"
)

// Server wraps the MCP server with the bundler tools.
type Server struct {
	mcp    *server.MCPServer
	orch   *bundle.Orchestrator
	cache  map[string]*bundle.Record
	output string
}

// New creates an MCP server with the bundler tools registered. cache is
// shared with build calls so repeated tool invocations stay incremental.
func New(orch *bundle.Orchestrator, cache map[string]*bundle.Record, output string) *Server {
	s := &Server{orch: orch, cache: cache, output: output}

	s.mcp = server.NewMCPServer(
		"Cascade",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("build_bundle",
		mcp.WithDescription("Merge the configured stylesheet import tree into a single "+
			"document, write it to the output path, and return build statistics."),
	), s.buildBundle)

	s.mcp.AddTool(mcp.NewTool("read_bundle",
		mcp.WithDescription("Read the current merged stylesheet artifact."),
	), s.readBundle)

	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List every source file reachable from the entry stylesheet "+
			"through import directives (runs an incremental build to refresh the graph)."),
	), s.listSources)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) buildBundle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.orch.Build(ctx, s.cache)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := storage.WriteArtifact(s.output, []byte(res.Document)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	stats := map[string]interface{}{
		"output":    s.output,
		"files":     len(res.Touched),
		"converted": len(res.Converted),
		"bytes":     len(res.Document),
		"marker":    res.Marker,
	}
	out, _ := json.MarshalIndent(stats, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readBundle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := os.ReadFile(s.output)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no bundle at %s; run build_bundle first", s.output)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) listSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.orch.Build(ctx, s.cache)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths := append([]string(nil), res.Touched...)
	sort.Strings(paths)
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}
