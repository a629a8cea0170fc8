package bundle

import (
	"log/slog"
	"path/filepath"

	"github.com/starford/cascade/internal/checksum"
	"github.com/starford/cascade/internal/parser"
	"github.com/starford/cascade/internal/resolver"
	"github.com/starford/cascade/internal/storage"
	"github.com/starford/cascade/internal/syntax"
	"github.com/starford/cascade/internal/urlmap"
)

// Graph is the result of one load pass: every file reachable from the
// root through import directives, keyed by absolute path.
type Graph struct {
	Root  *Record
	Files map[string]*Record
}

// Paths returns the loaded file paths.
func (g *Graph) Paths() []string {
	out := make([]string, 0, len(g.Files))
	for p := range g.Files {
		out = append(out, p)
	}
	return out
}

// Loader reads and registers every transitively imported file exactly
// once per build, breadth-first from the root.
type Loader struct {
	resolver *resolver.Resolver
	urls     *urlmap.Resolver // nil disables url(...) rewriting

	stripComments      bool
	collapseWhitespace bool

	logger *slog.Logger
}

// NewLoader creates a Loader. urls may be nil.
func NewLoader(res *resolver.Resolver, urls *urlmap.Resolver, stripComments, collapseWhitespace bool, logger *slog.Logger) *Loader {
	return &Loader{
		resolver:           res,
		urls:               urls,
		stripComments:      stripComments,
		collapseWhitespace: collapseWhitespace,
		logger:             logger,
	}
}

// Load traverses the import graph from root. Records whose on-disk
// bytes are unchanged since the cached read are reused as-is, keeping
// their final/import caches; changed files get fresh records stamped
// with marker. The returned Graph is always non-nil; on error it holds
// the files registered before the failure so the caller can keep
// watching them.
func (l *Loader) Load(root string, marker int64, cache map[string]*Record) (*Graph, error) {
	g := &Graph{Files: make(map[string]*Record)}

	queue := []string{root}
	visited := map[string]struct{}{root: {}}

	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]

		rec, err := l.loadFile(path, marker, cache)
		if err != nil {
			return g, err
		}
		g.Files[path] = rec
		if g.Root == nil {
			g.Root = rec
		}

		for _, ref := range rec.Imports(rec.Native) {
			if _, seen := visited[ref.Target]; !seen {
				visited[ref.Target] = struct{}{}
				queue = append(queue, ref.Target)
			}
		}
	}

	return g, nil
}

// loadFile obtains the record for path, reusing the cached one when the
// raw bytes are unchanged. A fresh record's text goes through the load
// pipeline in order: url(...) rewriting, import specifier rewriting to
// resolved absolute paths, comment stripping, whitespace collapsing.
func (l *Loader) loadFile(path string, marker int64, cache map[string]*Record) (*Record, error) {
	raw, err := storage.ReadSource(path)
	if err != nil {
		return nil, err
	}
	sum := checksum.Sum64(raw)

	if old, ok := cache[path]; ok && old.RawSum == sum {
		l.logger.Debug("loader: reusing cached record", slog.String("path", path))
		return old, nil
	}

	native, err := syntax.FromPath(path)
	if err != nil {
		return nil, err
	}

	rec := NewRecord(path, native, sum)
	text := string(raw)

	if l.urls != nil {
		text = l.rewriteURLs(text, filepath.Dir(path))
	}

	// Plain import directives are never followed, so plain files skip
	// specifier rewriting entirely.
	if native != syntax.Plain {
		text, err = l.rewriteImports(text, path, native)
		if err != nil {
			return nil, err
		}
	}

	if l.stripComments {
		text = parser.StripComments(text, native)
	}
	if l.collapseWhitespace {
		text = normalizeWhitespace(text, native)
	}

	rec.SetOriginal(native, text, marker)
	if native == syntax.Plain {
		// CSS is valid nested syntax; mirror it so a nested-target build
		// needs no conversion, with imports pinned empty.
		rec.SetOriginal(syntax.Nested, text, marker)
		rec.PinImports(syntax.Plain, nil)
		rec.PinImports(syntax.Nested, nil)
	}

	if cache != nil {
		cache[path] = rec
	}
	l.logger.Debug("loader: loaded", slog.String("path", path), slog.String("syntax", string(native)))
	return rec, nil
}

// rewriteImports replaces each import directive with a canonical one
// naming the resolved absolute path, so later stages never re-resolve.
// Spans are replaced in reverse order to keep earlier offsets valid.
func (l *Loader) rewriteImports(text, path string, native syntax.Syntax) (string, error) {
	refs := parser.Imports(text, native)
	for i := len(refs) - 1; i >= 0; i-- {
		ref := refs[i]
		abs := ref.Target
		if !filepath.IsAbs(abs) {
			resolved, err := l.resolver.Resolve(ref.Target, path)
			if err != nil {
				return "", err
			}
			abs = resolved
		}
		directive := ref.Indent + `@import "` + abs + `";`
		if native == syntax.Indented {
			directive = ref.Indent + "@import " + abs
		}
		text = parser.Splice(text, ref.Start, ref.End, directive)
	}
	return text, nil
}

func (l *Loader) rewriteURLs(text, fromDir string) string {
	refs := parser.URLRefs(text)
	for i := len(refs) - 1; i >= 0; i-- {
		ref := refs[i]
		if published, ok := l.urls.Rewrite(ref.Spec, fromDir); ok {
			text = parser.Splice(text, ref.Start, ref.End, published)
		}
	}
	return text
}
