package bundle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/cascade/internal/apperr"
	"github.com/starford/cascade/internal/resolver"
	"github.com/starford/cascade/internal/syntax"
	"github.com/starford/cascade/internal/urlmap"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// testOrchestrator wires a build over dir with a cat-backed converter:
// it echoes its input, so cross-syntax "conversion" is the identity and
// the marker protocol round-trips unchanged.
func testOrchestrator(t *testing.T, root string, target syntax.Syntax, urls *urlmap.Resolver, opts OptimizeOptions) *Orchestrator {
	t.Helper()
	logger := testLogger()
	res := resolver.New([]string{"", ".scss", ".sass", ".css"}, nil, []string{""}, true)
	loader := NewLoader(res, urls, true, opts.NormalizeWhitespace, logger)
	conv := NewConverter("sh", []string{"-c", "cat"}, 1<<20, 10*time.Second, nil, logger)
	return NewOrchestrator(root, target, loader, conv, urls, opts, logger)
}

func TestBuild_MergesImports(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.scss")
	writeTestFile(t, a, "@import \"b\";\n.x{color:red}\n")
	writeTestFile(t, filepath.Join(dir, "b.scss"), ".y{color:blue}\n")

	o := testOrchestrator(t, a, syntax.Nested, nil, OptimizeOptions{NormalizeWhitespace: true})
	res, err := o.Build(context.Background(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	doc := res.Document
	if strings.Contains(doc, "@import") {
		t.Errorf("import directive survived: %q", doc)
	}
	yi := strings.Index(doc, ".y{color:blue}")
	xi := strings.Index(doc, ".x{color:red}")
	if yi < 0 || xi < 0 || yi > xi {
		t.Errorf("merged order wrong: %q", doc)
	}
	if len(res.Touched) != 2 {
		t.Errorf("touched = %v, want 2 files", res.Touched)
	}
}

func TestBuild_NoImportsIsIdentity(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.scss")
	writeTestFile(t, a, ".x{color:red}\n")

	o := testOrchestrator(t, a, syntax.Nested, nil, OptimizeOptions{})
	res, err := o.Build(context.Background(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Document != ".x{color:red}\n" {
		t.Errorf("Document = %q", res.Document)
	}
}

func TestBuild_CircularImport(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.scss")
	b := filepath.Join(dir, "b.scss")
	writeTestFile(t, a, "@import \"b\";\n.x{}\n")
	writeTestFile(t, b, "@import \"a\";\n.y{}\n")

	o := testOrchestrator(t, a, syntax.Nested, nil, OptimizeOptions{})
	_, err := o.Build(context.Background(), nil)
	if !errors.Is(err, apperr.ErrCircularImport) {
		t.Fatalf("err = %v, want ErrCircularImport", err)
	}
	if !strings.Contains(err.Error(), a) || !strings.Contains(err.Error(), b) {
		t.Errorf("cycle error does not name both paths: %v", err)
	}
	// Failed builds still report what they touched.
	if got := apperr.TouchedFiles(err); len(got) != 2 {
		t.Errorf("touched on failure = %v, want both files", got)
	}
}

func TestBuild_IncrementalReuse(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.scss")
	writeTestFile(t, a, "@import \"b\";\n.x{color:red}\n")
	writeTestFile(t, filepath.Join(dir, "b.scss"), ".y{color:blue}\n")

	o := testOrchestrator(t, a, syntax.Nested, nil, OptimizeOptions{NormalizeWhitespace: true})
	cache := make(map[string]*Record)

	first, err := o.Build(context.Background(), cache)
	if err != nil {
		t.Fatalf("first Build: %v", err)
	}
	second, err := o.Build(context.Background(), cache)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if first.Document != second.Document {
		t.Errorf("rebuild not byte-identical:\n%q\n%q", first.Document, second.Document)
	}
	// Nothing changed, so no record was restamped.
	if second.Marker != first.Marker+1 {
		t.Errorf("marker = %d, want %d", second.Marker, first.Marker+1)
	}
	for p, rec := range cache {
		if rec.LastUpdated != first.Marker {
			t.Errorf("%s restamped to %d", p, rec.LastUpdated)
		}
	}
}

func TestBuild_LeafChangePropagates(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.scss")
	b := filepath.Join(dir, "b.scss")
	c := filepath.Join(dir, "c.scss")
	writeTestFile(t, a, "@import \"b\";\n@import \"c\";\n.x{}\n")
	writeTestFile(t, b, ".y{color:blue}\n")
	writeTestFile(t, c, ".z{color:green}\n")

	o := testOrchestrator(t, a, syntax.Nested, nil, OptimizeOptions{NormalizeWhitespace: true})
	cache := make(map[string]*Record)

	first, err := o.Build(context.Background(), cache)
	if err != nil {
		t.Fatalf("first Build: %v", err)
	}

	writeTestFile(t, b, ".y{color:purple}\n")
	second, err := o.Build(context.Background(), cache)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}

	if !strings.Contains(second.Document, "purple") {
		t.Errorf("leaf change not propagated: %q", second.Document)
	}
	// Changed leaf and its importer carry the new marker.
	if cache[b].LastUpdated != second.Marker {
		t.Errorf("b.LastUpdated = %d, want %d", cache[b].LastUpdated, second.Marker)
	}
	if cache[a].LastUpdated != second.Marker {
		t.Errorf("a.LastUpdated = %d, want %d (root must reassemble)", cache[a].LastUpdated, second.Marker)
	}
	// The unrelated branch kept its cached final untouched.
	if cache[c].LastUpdated != first.Marker {
		t.Errorf("c.LastUpdated = %d, want %d (unrelated branch)", cache[c].LastUpdated, first.Marker)
	}
}

func TestBuild_URLRewrite(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.scss")
	img := filepath.Join(dir, "img.png")
	writeTestFile(t, a, ".x{background:url(\"./img.png\")}\n")

	urls := urlmap.NewMapping(map[string]string{img: "hashed.png"}, "/assets/", dir, false)
	o := testOrchestrator(t, a, syntax.Nested, urls, OptimizeOptions{})
	res, err := o.Build(context.Background(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(res.Document, `url("/assets/hashed.png")`) {
		t.Errorf("url not rewritten: %q", res.Document)
	}
}

func TestBuild_SingleFlight(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.scss")
	writeTestFile(t, a, ".x{}\n")

	o := testOrchestrator(t, a, syntax.Nested, nil, OptimizeOptions{})

	// Hold the busy flag the way a running build would.
	if !o.building.CompareAndSwap(false, true) {
		t.Fatal("flag already held")
	}
	_, err := o.Build(context.Background(), nil)
	if !errors.Is(err, apperr.ErrBuildInProgress) {
		t.Fatalf("err = %v, want ErrBuildInProgress", err)
	}
	o.building.Store(false)

	if _, err := o.Build(context.Background(), nil); err != nil {
		t.Fatalf("Build after release: %v", err)
	}
}

func TestBuild_UnresolvedImport(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.scss")
	writeTestFile(t, a, "@import \"missing\";\n")

	o := testOrchestrator(t, a, syntax.Nested, nil, OptimizeOptions{})
	_, err := o.Build(context.Background(), nil)
	if !errors.Is(err, apperr.ErrUnresolvedImport) {
		t.Fatalf("err = %v, want ErrUnresolvedImport", err)
	}
}
