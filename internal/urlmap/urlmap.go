// Package urlmap rewrites url(...) references to their published URLs.
// The mapping source is a tagged variant: an in-process function, a
// literal map, or a JSON manifest file reloaded at the start of every
// build.
package urlmap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/cascade/internal/apperr"
)

// Kind discriminates the mapping source.
type Kind int

const (
	// Func delegates lookups to a caller-supplied function.
	Func Kind = iota
	// Mapping looks up a literal map of absolute paths to URLs.
	Mapping
	// ManifestPath reads the map from a JSON file, re-read per build.
	ManifestPath
)

// LookupFunc maps an absolute file path to its published URL.
type LookupFunc func(absPath string) (string, bool)

// Resolver maps asset paths referenced from stylesheets to published
// URLs, prefixed with the configured public path.
type Resolver struct {
	kind Kind

	fn       LookupFunc
	mapping  map[string]string
	manifest string

	publicPath   string
	rootDir      string
	rootRelative bool
}

// NewFunc builds a function-backed resolver.
func NewFunc(fn LookupFunc, publicPath, rootDir string, rootRelative bool) *Resolver {
	return &Resolver{kind: Func, fn: fn, publicPath: publicPath, rootDir: rootDir, rootRelative: rootRelative}
}

// NewMapping builds a resolver over a literal path→URL map.
func NewMapping(m map[string]string, publicPath, rootDir string, rootRelative bool) *Resolver {
	return &Resolver{kind: Mapping, mapping: m, publicPath: publicPath, rootDir: rootDir, rootRelative: rootRelative}
}

// NewManifest builds a resolver that loads its map from a JSON file.
// Call Reload before the first use and again at the start of each build.
func NewManifest(path, publicPath, rootDir string, rootRelative bool) *Resolver {
	return &Resolver{kind: ManifestPath, manifest: path, publicPath: publicPath, rootDir: rootDir, rootRelative: rootRelative}
}

// ManifestFile returns the manifest path, or "" for the other variants.
// A watcher adds this file to its watch set.
func (r *Resolver) ManifestFile() string {
	if r == nil || r.kind != ManifestPath {
		return ""
	}
	return r.manifest
}

// Reload re-reads the manifest from disk. A no-op for the other
// variants.
func (r *Resolver) Reload() error {
	if r == nil || r.kind != ManifestPath {
		return nil
	}
	data, err := os.ReadFile(r.manifest)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", apperr.ErrManifestUnreadable, r.manifest, err)
	}
	m := make(map[string]string)
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: %s: %v", apperr.ErrManifestUnreadable, r.manifest, err)
	}
	r.mapping = m
	return nil
}

func (r *Resolver) lookup(abs string) (string, bool) {
	switch r.kind {
	case Func:
		if r.fn == nil {
			return "", false
		}
		return r.fn(abs)
	default:
		url, ok := r.mapping[abs]
		return url, ok
	}
}

// Rewrite resolves a url(...) specifier as seen from fromDir and returns
// the published URL. ok is false when the specifier is not eligible
// (remote, data:, or root-relative with that disabled) or has no mapping
// entry; callers leave the reference untouched in that case.
func (r *Resolver) Rewrite(spec, fromDir string) (string, bool) {
	if r == nil || spec == "" {
		return "", false
	}
	if strings.Contains(spec, "://") || strings.HasPrefix(spec, "data:") || strings.HasPrefix(spec, "//") {
		return "", false
	}

	// Fragment/query parts stay on the published URL.
	suffix := ""
	if i := strings.IndexAny(spec, "?#"); i >= 0 {
		spec, suffix = spec[:i], spec[i:]
	}

	var abs string
	switch {
	case strings.HasPrefix(spec, "/"):
		if !r.rootRelative {
			return "", false
		}
		abs = filepath.Join(r.rootDir, spec[1:])
	case filepath.IsAbs(spec):
		abs = filepath.Clean(spec)
	default:
		abs = filepath.Join(fromDir, spec)
	}

	url, ok := r.lookup(abs)
	if !ok {
		return "", false
	}
	return r.publicPath + url + suffix, true
}
