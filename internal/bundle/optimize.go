package bundle

import (
	"regexp"
	"strings"

	"github.com/starford/cascade/internal/syntax"
)

// OptimizeOptions selects the post-assembly text passes.
type OptimizeOptions struct {
	NormalizeWhitespace bool
	DedupeMixins        bool
	DedupeVars          bool
}

// Brace scanning gives up past this nesting depth rather than walk a
// pathological input forever.
const maxBraceDepth = 64

var (
	blankRunRe  = regexp.MustCompile(`\n(?:[ \t]*\n)+`)
	leadingWSRe = regexp.MustCompile(`(?m)^[ \t]+`)

	mixinHeadRe = regexp.MustCompile(`(?m)^[ \t]*@(mixin|function)[ \t]+([A-Za-z_][A-Za-z0-9_-]*)`)

	bracedVarRe   = regexp.MustCompile(`(?m)^[ \t]*\$([A-Za-z_][A-Za-z0-9_-]*)[ \t]*:[^;\n]*!default[^;\n]*;[ \t]*\n?`)
	indentedVarRe = regexp.MustCompile(`(?m)^[ \t]*\$([A-Za-z_][A-Za-z0-9_-]*)[ \t]*:.*!default.*\n?`)
)

// normalizeWhitespace collapses runs of blank lines to one newline and,
// for brace syntaxes where indentation carries no meaning, strips
// leading whitespace at line starts.
func normalizeWhitespace(text string, syn syntax.Syntax) string {
	if syn.Braced() {
		text = leadingWSRe.ReplaceAllString(text, "")
	}
	return blankRunRe.ReplaceAllString(text, "\n")
}

// dedupeMixins removes later @mixin/@function blocks whose name and full
// body text exactly match an earlier one. The first occurrence is always
// kept. Blocks are found by balanced-brace scanning from each header;
// unterminated or over-deep blocks are skipped.
func dedupeMixins(text string) string {
	type span struct{ start, end int }
	var remove []span
	seen := make(map[string]string)

	for _, m := range mixinHeadRe.FindAllStringSubmatchIndex(text, -1) {
		key := text[m[2]:m[3]] + " " + text[m[4]:m[5]]
		open := strings.IndexByte(text[m[1]:], '{')
		if open < 0 {
			continue
		}
		end, ok := matchBrace(text, m[1]+open)
		if !ok {
			continue
		}
		block := text[m[1]+open : end]
		if prev, dup := seen[key]; dup {
			if prev == block {
				remove = append(remove, span{m[0], end})
			}
			continue
		}
		seen[key] = block
	}

	for i := len(remove) - 1; i >= 0; i-- {
		s := remove[i]
		end := s.end
		if end < len(text) && text[end] == '\n' {
			end++
		}
		text = text[:s.start] + text[end:]
	}
	return text
}

// matchBrace returns the offset just past the brace closing the one at
// open.
func matchBrace(text string, open int) (int, bool) {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
			if depth > maxBraceDepth {
				return 0, false
			}
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// dedupeVars keeps only the first !default assignment per variable
// name. Scopes are not distinguished; that is a documented limitation
// of the pattern-matching approach.
func dedupeVars(text string, syn syntax.Syntax) string {
	re := indentedVarRe
	if syn.Braced() {
		re = bracedVarRe
	}

	seen := make(map[string]struct{})
	var remove [][2]int
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		if _, dup := seen[name]; dup {
			remove = append(remove, [2]int{m[0], m[1]})
			continue
		}
		seen[name] = struct{}{}
	}

	for i := len(remove) - 1; i >= 0; i-- {
		text = text[:remove[i][0]] + text[remove[i][1]:]
	}
	return text
}
