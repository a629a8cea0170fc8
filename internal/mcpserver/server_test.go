package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/cascade/internal/bundle"
	"github.com/starford/cascade/internal/resolver"
	"github.com/starford/cascade/internal/syntax"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	dir := t.TempDir()
	entry := filepath.Join(dir, "main.scss")
	if err := os.WriteFile(entry, []byte("@import \"part\";\n.x{color:red}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "part.scss"), []byte(".y{color:blue}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	res := resolver.New([]string{"", ".scss", ".sass", ".css"}, nil, []string{""}, true)
	loader := bundle.NewLoader(res, nil, true, true, logger)
	conv := bundle.NewConverter("sh", []string{"-c", "cat"}, 1<<20, 10*time.Second, nil, logger)
	orch := bundle.NewOrchestrator(entry, syntax.Nested, loader, conv, nil,
		bundle.OptimizeOptions{NormalizeWhitespace: true}, logger)

	output := filepath.Join(dir, "dist", "bundle.scss")
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		t.Fatal(err)
	}

	srv := New(orch, make(map[string]*bundle.Record), output)
	return srv, output
}

func callTool(t *testing.T, srv *Server, name string) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name

	// mcp-go has no direct "call tool" test helper, so the handler
	// functions are exercised directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "build_bundle":
		result, err = srv.buildBundle(ctx, req)
	case "read_bundle":
		result, err = srv.readBundle(ctx, req)
	case "list_sources":
		result, err = srv.listSources(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestBuildAndReadBundle(t *testing.T) {
	srv, output := testServer(t)

	r := callTool(t, srv, "build_bundle")
	if r.IsError {
		t.Fatalf("build_bundle failed: %s", resultText(r))
	}
	stats := resultText(r)
	if !strings.Contains(stats, `"files": 2`) {
		t.Errorf("stats = %s", stats)
	}

	if _, err := os.Stat(output); err != nil {
		t.Fatalf("artifact not written: %v", err)
	}

	r = callTool(t, srv, "read_bundle")
	text := resultText(r)
	if !strings.Contains(text, ".y{color:blue}") || !strings.Contains(text, ".x{color:red}") {
		t.Errorf("read result = %q", text)
	}
	if strings.Contains(text, "@import") {
		t.Errorf("import directive survived: %q", text)
	}
}

func TestReadBundleMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_bundle")
	if !r.IsError {
		t.Error("expected error before first build")
	}
}

func TestListSources(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "list_sources")
	if r.IsError {
		t.Fatalf("list_sources failed: %s", resultText(r))
	}
	lines := strings.Split(resultText(r), "\n")
	if len(lines) != 2 {
		t.Fatalf("sources = %v, want 2", lines)
	}
	// Sorted output: main.scss after part.scss alphabetically.
	if !strings.HasSuffix(lines[0], "main.scss") || !strings.HasSuffix(lines[1], "part.scss") {
		t.Errorf("sources = %v", lines)
	}
}
