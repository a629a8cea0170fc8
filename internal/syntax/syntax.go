// Package syntax enumerates the stylesheet syntax variants the bundler
// understands and maps file extensions onto them.
package syntax

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/starford/cascade/internal/apperr"
)

// Syntax is a stylesheet syntax variant.
type Syntax string

const (
	// Indented is the whitespace-significant Sass syntax (.sass).
	Indented Syntax = "indented"
	// Nested is the brace-delimited SCSS syntax (.scss).
	Nested Syntax = "nested"
	// Plain is vanilla CSS (.css).
	Plain Syntax = "plain"
)

// All lists every syntax variant.
var All = []Syntax{Indented, Nested, Plain}

// FromPath derives the native syntax from a file's extension.
func FromPath(path string) (Syntax, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sass":
		return Indented, nil
	case ".scss":
		return Nested, nil
	case ".css":
		return Plain, nil
	default:
		return "", fmt.Errorf("%w: %s", apperr.ErrUnknownSyntax, path)
	}
}

// Valid reports whether s is one of the known variants.
func (s Syntax) Valid() bool {
	return s == Indented || s == Nested || s == Plain
}

// Indented syntax has no braces; everything else uses them.
func (s Syntax) Braced() bool { return s != Indented }
