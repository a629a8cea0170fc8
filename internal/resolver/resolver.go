// Package resolver turns import specifiers into absolute file paths by
// probing the referring file's directory and the configured library
// directories.
package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/starford/cascade/internal/apperr"
)

const cacheSize = 4096

type cacheEntry struct {
	path string
	ok   bool
}

// Resolver resolves import specifiers against a fixed search
// configuration. Resolution order is deterministic: local candidates
// first (specifier + each extension against the referring directory),
// then library candidates (each matching prefix stripped, each include
// dir, each extension).
type Resolver struct {
	extensions  []string // probed in order; should contain ""
	includeDirs []string
	prefixes    []string // library prefixes, e.g. "" and "~"

	cache *lru.Cache[string, cacheEntry] // nil when path caching is disabled
}

// New creates a Resolver. When cached is true, results (including
// failures) are memoized per (specifier, referring directory).
func New(extensions, includeDirs, prefixes []string, cached bool) *Resolver {
	r := &Resolver{
		extensions:  extensions,
		includeDirs: includeDirs,
		prefixes:    prefixes,
	}
	if cached {
		// Size is generous; a merge session rarely sees more than a few
		// hundred distinct specifiers.
		r.cache, _ = lru.New[string, cacheEntry](cacheSize)
	}
	return r
}

// Resolve returns the absolute path for specifier as seen from fromFile.
// On failure the error lists every candidate path that was probed.
func (r *Resolver) Resolve(specifier, fromFile string) (string, error) {
	fromDir := filepath.Dir(fromFile)
	key := specifier + "\x00" + fromDir

	if r.cache != nil {
		if e, ok := r.cache.Get(key); ok {
			if e.ok {
				return e.path, nil
			}
			return "", r.unresolved(specifier, fromFile)
		}
	}

	for _, cand := range r.Candidates(specifier, fromFile) {
		if info, err := os.Stat(cand); err == nil && !info.IsDir() {
			abs, err := filepath.Abs(cand)
			if err != nil {
				return "", fmt.Errorf("resolver: %s: %w", cand, err)
			}
			if r.cache != nil {
				r.cache.Add(key, cacheEntry{path: abs, ok: true})
			}
			return abs, nil
		}
	}

	if r.cache != nil {
		r.cache.Add(key, cacheEntry{})
	}
	return "", r.unresolved(specifier, fromFile)
}

func (r *Resolver) unresolved(specifier, fromFile string) error {
	return fmt.Errorf("%w: %q from %s (tried %s)",
		apperr.ErrUnresolvedImport, specifier, fromFile,
		strings.Join(r.Candidates(specifier, fromFile), ", "))
}

// Candidates enumerates every path Resolve would probe, in probe order,
// without touching the filesystem. Used for diagnostics.
func (r *Resolver) Candidates(specifier, fromFile string) []string {
	fromDir := filepath.Dir(fromFile)
	var out []string

	for _, ext := range r.extensions {
		cand := specifier + ext
		if !filepath.IsAbs(cand) {
			cand = filepath.Join(fromDir, cand)
		}
		out = append(out, cand)
	}

	for _, prefix := range r.prefixes {
		if !strings.HasPrefix(specifier, prefix) {
			continue
		}
		stripped := strings.TrimPrefix(specifier, prefix)
		for _, dir := range r.includeDirs {
			for _, ext := range r.extensions {
				out = append(out, filepath.Join(dir, stripped+ext))
			}
		}
	}

	return out
}

// ClearCache discards the memoized resolutions entirely.
func (r *Resolver) ClearCache() {
	if r.cache != nil {
		r.cache.Purge()
	}
}
