package bundle

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/starford/cascade/internal/apperr"
	"github.com/starford/cascade/internal/syntax"
	"github.com/starford/cascade/internal/urlmap"
)

// Result is a successful build's output.
type Result struct {
	// Document is the fully merged stylesheet.
	Document string
	// Touched lists every file the build read, for watch-set upkeep.
	Touched []string
	// Converted lists files whose target-syntax content was produced
	// this build (externally or from the conversion cache).
	Converted []string
	// Marker is the build marker stamped on updated records.
	Marker int64
}

// Orchestrator sequences one build: manifest reload, graph load, batch
// conversion, assembly. At most one build runs per Orchestrator at a
// time; a concurrent caller fails immediately with ErrBuildInProgress
// rather than queueing. That guards the caller-supplied record cache
// from concurrent mutation.
type Orchestrator struct {
	root   string
	target syntax.Syntax

	loader    *Loader
	converter *Converter
	urls      *urlmap.Resolver
	opts      OptimizeOptions
	logger    *slog.Logger

	building atomic.Bool
	marker   atomic.Int64
}

// NewOrchestrator creates an Orchestrator. root must be the absolute
// path of the entry file; urls may be nil.
func NewOrchestrator(root string, target syntax.Syntax, loader *Loader, converter *Converter, urls *urlmap.Resolver, opts OptimizeOptions, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		root:      root,
		target:    target,
		loader:    loader,
		converter: converter,
		urls:      urls,
		opts:      opts,
		logger:    logger,
	}
}

// Root returns the entry file path.
func (o *Orchestrator) Root() string { return o.root }

// Target returns the output syntax.
func (o *Orchestrator) Target() syntax.Syntax { return o.target }

// Build runs one full merge. cache carries records across builds for
// incremental reuse and is owned by this build until it returns; nil
// means a cold build. Every failure after the graph starts loading
// carries the touched path set so a watcher can keep watching those
// files.
func (o *Orchestrator) Build(ctx context.Context, cache map[string]*Record) (*Result, error) {
	if !o.building.CompareAndSwap(false, true) {
		return nil, apperr.ErrBuildInProgress
	}
	defer o.building.Store(false)

	started := time.Now()

	if err := o.urls.Reload(); err != nil {
		return nil, err
	}

	marker := o.marker.Add(1)

	graph, err := o.loader.Load(o.root, marker, cache)
	if err != nil {
		return nil, &apperr.BuildError{Err: err, Touched: graph.Paths()}
	}
	touched := graph.Paths()

	converted, err := o.converter.ConvertAll(ctx, graph.Files, o.target, marker)
	if err != nil {
		return nil, &apperr.BuildError{Err: err, Touched: touched}
	}

	doc, err := newAssembler(o.target, graph.Files, marker, o.opts).assemble(graph.Root, nil)
	if err != nil {
		return nil, &apperr.BuildError{Err: err, Touched: touched}
	}

	o.logger.Info("build: done",
		slog.Int64("marker", marker),
		slog.Int("files", len(touched)),
		slog.Int("converted", len(converted)),
		slog.Duration("elapsed", time.Since(started)))

	return &Result{Document: doc, Touched: touched, Converted: converted, Marker: marker}, nil
}
