package bundle

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/cascade/internal/apperr"
	"github.com/starford/cascade/internal/parser"
	"github.com/starford/cascade/internal/syntax"
)

var newlineRunRe = regexp.MustCompile(`\n(?:[ \t]*\n)*`)

// assembler inlines import text recursively for one build. It carries
// the per-build staleness memo so the "needs rebuild" check runs at
// most once per file.
type assembler struct {
	target syntax.Syntax
	files  map[string]*Record
	marker int64
	opts   OptimizeOptions

	staleMemo map[string]bool
}

func newAssembler(target syntax.Syntax, files map[string]*Record, marker int64, opts OptimizeOptions) *assembler {
	return &assembler{
		target:    target,
		files:     files,
		marker:    marker,
		opts:      opts,
		staleMemo: make(map[string]bool),
	}
}

// assemble produces rec's final merged text for the target syntax.
// chain is the active recursion stack; finding rec already on it means
// a circular import.
func (a *assembler) assemble(rec *Record, chain []string) (string, error) {
	for i, p := range chain {
		if p == rec.Path {
			cycle := append(append([]string(nil), chain[i:]...), rec.Path)
			return "", fmt.Errorf("%w: %s", apperr.ErrCircularImport, strings.Join(cycle, " -> "))
		}
	}

	if final, ok := rec.Final(a.target); ok {
		stale, err := a.needsRebuild(rec, make(map[string]struct{}))
		if err != nil {
			return "", err
		}
		if !stale {
			return final, nil
		}
	}

	text, ok := rec.Original(a.target)
	if !ok {
		return "", fmt.Errorf("bundle: no %s content for %s", a.target, rec.Path)
	}

	chain = append(append([]string(nil), chain...), rec.Path)

	// Reverse span order keeps earlier offsets valid while later spans
	// are replaced. This is a correctness requirement.
	refs := rec.Imports(a.target)
	for i := len(refs) - 1; i >= 0; i-- {
		ref := refs[i]
		dep, ok := a.files[ref.Target]
		if !ok {
			return "", fmt.Errorf("%w: %s (imported by %s)", apperr.ErrUnresolvedImport, ref.Target, rec.Path)
		}
		sub, err := a.assemble(dep, chain)
		if err != nil {
			return "", err
		}
		if a.target == syntax.Indented {
			sub = reindent(sub, ref.Indent)
		}
		text = parser.Splice(text, ref.Start, ref.End, sub)
	}

	// Second whitespace pass: removing duplicate blocks can leave
	// collapsible blank runs the first pass could not see.
	if a.opts.NormalizeWhitespace {
		text = normalizeWhitespace(text, a.target)
	}
	if a.opts.DedupeMixins && a.target == syntax.Nested {
		text = dedupeMixins(text)
	}
	if a.opts.DedupeVars {
		text = dedupeVars(text, a.target)
	}
	if a.opts.NormalizeWhitespace {
		text = normalizeWhitespace(text, a.target)
	}

	rec.SetFinal(a.target, text, a.marker)
	return text, nil
}

// needsRebuild reports whether any direct or transitive import of rec
// was updated more recently than rec itself. visiting guards against
// import cycles independently of assemble's own cycle detection, since
// an unguarded recursion here would loop before that check ever fires.
func (a *assembler) needsRebuild(rec *Record, visiting map[string]struct{}) (bool, error) {
	if stale, ok := a.staleMemo[rec.Path]; ok {
		return stale, nil
	}
	if _, active := visiting[rec.Path]; active {
		return false, fmt.Errorf("%w: %s (found during staleness check)", apperr.ErrCircularImport, rec.Path)
	}
	visiting[rec.Path] = struct{}{}
	defer delete(visiting, rec.Path)

	stale := false
	for _, ref := range rec.Imports(a.target) {
		dep, ok := a.files[ref.Target]
		if !ok {
			continue
		}
		if dep.LastUpdated > rec.LastUpdated {
			stale = true
			break
		}
		depStale, err := a.needsRebuild(dep, visiting)
		if err != nil {
			return false, err
		}
		if depStale {
			stale = true
			break
		}
	}

	a.staleMemo[rec.Path] = stale
	return stale, nil
}

// reindent prepends indent to sub and replaces its internal newline and
// blank-line runs with a single newline plus indent, so inlined
// indented-syntax text sits at the directive's depth.
func reindent(sub, indent string) string {
	sub = strings.Trim(sub, "\n")
	return indent + newlineRunRe.ReplaceAllString(sub, "\n"+indent)
}
