// Package apperr defines the sentinel errors shared across the bundler.
package apperr

import "errors"

var (
	ErrUnknownSyntax      = errors.New("unknown syntax")
	ErrUnresolvedImport   = errors.New("unresolved import")
	ErrCircularImport     = errors.New("circular import")
	ErrConversionFailed   = errors.New("conversion failed")
	ErrOutputTooLarge     = errors.New("converter output too large")
	ErrManifestUnreadable = errors.New("url manifest unreadable")
	ErrBuildInProgress    = errors.New("build already in progress")
)

// BuildError wraps a build failure together with the set of files the
// build had touched before failing, so a watcher-style caller can keep
// watching them and retry on the next filesystem event.
type BuildError struct {
	Err     error
	Touched []string
}

func (e *BuildError) Error() string { return e.Err.Error() }

func (e *BuildError) Unwrap() error { return e.Err }

// TouchedFiles extracts the touched-file set from err if it (or anything
// it wraps) is a BuildError.
func TouchedFiles(err error) []string {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Touched
	}
	return nil
}
