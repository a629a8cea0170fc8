// Package bundle implements the incremental merge engine: the import
// graph loader, the per-file multi-syntax content cache, the batch
// syntax converter bridge, the cycle-safe assembler, and the build
// orchestrator that sequences them.
package bundle

import (
	"github.com/starford/cascade/internal/parser"
	"github.com/starford/cascade/internal/syntax"
)

// slot caches one syntax variant's content for a file: the unprocessed
// original text, the fully assembled final text, and the parsed import
// list for the original.
type slot struct {
	original    string
	hasOriginal bool
	final       string
	hasFinal    bool
	imports     []parser.ImportRef
	hasImports  bool
}

// Record is the per-path cache entry. Records are created once per
// absolute path per cache lifetime and replaced (never patched in
// place) when the on-disk content changes.
type Record struct {
	// Path is the absolute file path and the record's identity.
	Path string
	// Native is the syntax implied by the file extension; immutable.
	Native syntax.Syntax
	// LastUpdated is the build marker stamped whenever any original or
	// final slot is written. Markers order "who changed more recently"
	// comparisons across builds.
	LastUpdated int64
	// RawSum is the xxhash of the raw on-disk bytes, used to detect
	// byte-identical re-reads so the record can be reused wholesale.
	RawSum uint64

	slots map[syntax.Syntax]*slot
}

// NewRecord creates an empty record for path with the given native
// syntax and raw content hash.
func NewRecord(path string, native syntax.Syntax, rawSum uint64) *Record {
	r := &Record{Path: path, Native: native, RawSum: rawSum, slots: make(map[syntax.Syntax]*slot, len(syntax.All))}
	for _, s := range syntax.All {
		r.slots[s] = &slot{}
	}
	return r
}

// SetOriginal stores text as the original content for syn and stamps the
// record with marker. The slot's final text and import list are
// invalidated; imports are re-parsed lazily on next access.
func (r *Record) SetOriginal(syn syntax.Syntax, text string, marker int64) {
	s := r.slots[syn]
	s.original = text
	s.hasOriginal = true
	s.final = ""
	s.hasFinal = false
	s.imports = nil
	s.hasImports = false
	r.LastUpdated = marker
}

// Original returns the original text for syn, if present.
func (r *Record) Original(syn syntax.Syntax) (string, bool) {
	s := r.slots[syn]
	return s.original, s.hasOriginal
}

// SetFinal stores the assembled text for syn and stamps the record.
func (r *Record) SetFinal(syn syntax.Syntax, text string, marker int64) {
	s := r.slots[syn]
	s.final = text
	s.hasFinal = true
	r.LastUpdated = marker
}

// Final returns the assembled text for syn, if present.
func (r *Record) Final(syn syntax.Syntax) (string, bool) {
	s := r.slots[syn]
	return s.final, s.hasFinal
}

// PinImports fixes syn's import list, bypassing lazy parsing. Used to
// pin plain-syntax mirrors to an empty list: plain import directives
// are never followed.
func (r *Record) PinImports(syn syntax.Syntax, refs []parser.ImportRef) {
	s := r.slots[syn]
	s.imports = refs
	s.hasImports = true
}

// Imports returns syn's import list, parsing it from the original text
// on first access. Parsed once per (record, syntax); replaced originals
// reset the cache.
func (r *Record) Imports(syn syntax.Syntax) []parser.ImportRef {
	s := r.slots[syn]
	if !s.hasImports {
		s.imports = parser.Imports(s.original, syn)
		s.hasImports = true
	}
	return s.imports
}
