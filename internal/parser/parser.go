// Package parser extracts import directives and url() references from
// stylesheet text using pattern matching. It is deliberately not a real
// parser: no AST is built and no syntax is validated. That trades
// correctness on deeply nested constructs for speed, which is the
// documented contract of the bundler.
package parser

import (
	"regexp"

	"github.com/starford/cascade/internal/syntax"
)

var (
	// Braced syntaxes: @import "foo"; with optional url(...) wrapper.
	bracedImportRe = regexp.MustCompile(`(?m)^([ \t]*)@import[ \t]+(?:url\()?["']([^"'\n]+)["']\)?[ \t]*;?`)
	// Indented syntax: @import foo, quotes optional, no terminator.
	indentedImportRe = regexp.MustCompile(`(?m)^([ \t]*)@import[ \t]+["']?([^"'\n]+?)["']?[ \t]*$`)

	urlRe = regexp.MustCompile(`url\([ \t]*["']?([^"')\n]+?)["']?[ \t]*\)`)

	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	// Avoids eating protocol separators like "://".
	lineCommentRe = regexp.MustCompile(`(?m)(^|[^:])//[^\n]*`)
)

// ImportRef is one import directive found in a file's text. Start/End
// are byte offsets spanning the whole directive, Indent is the leading
// whitespace of its line (used to re-indent inlined content for the
// indented syntax).
type ImportRef struct {
	Target string
	Start  int
	End    int
	Indent string
}

// URLRef is one url(...) occurrence. Start/End span only the specifier
// inside the parentheses so it can be rewritten in place.
type URLRef struct {
	Spec  string
	Start int
	End   int
}

// Imports returns every import directive in text for the given syntax,
// in span order. Multi-target directives (@import "a", "b";) are not
// split; the whole specifier list is returned as one target.
func Imports(text string, syn syntax.Syntax) []ImportRef {
	re := indentedImportRe
	if syn.Braced() {
		re = bracedImportRe
	}
	matches := re.FindAllStringSubmatchIndex(text, -1)
	out := make([]ImportRef, 0, len(matches))
	for _, m := range matches {
		out = append(out, ImportRef{
			Target: text[m[4]:m[5]],
			Start:  m[0],
			End:    m[1],
			Indent: text[m[2]:m[3]],
		})
	}
	return out
}

// URLRefs returns every url(...) reference in text, in span order.
func URLRefs(text string) []URLRef {
	matches := urlRe.FindAllStringSubmatchIndex(text, -1)
	out := make([]URLRef, 0, len(matches))
	for _, m := range matches {
		out = append(out, URLRef{
			Spec:  text[m[2]:m[3]],
			Start: m[2],
			End:   m[3],
		})
	}
	return out
}

// StripComments removes /* */ block comments for every syntax and //
// line comments for the Sass-derived syntaxes. Plain CSS has no line
// comment form, so // is left alone there.
func StripComments(text string, syn syntax.Syntax) string {
	text = blockCommentRe.ReplaceAllString(text, "")
	if syn != syntax.Plain {
		text = lineCommentRe.ReplaceAllString(text, "$1")
	}
	return text
}

// Splice replaces text[start:end] with repl. Callers replacing several
// spans must work in reverse span order so earlier offsets stay valid.
func Splice(text string, start, end int, repl string) string {
	return text[:start] + repl + text[end:]
}
