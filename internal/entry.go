// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/cascade/internal/bundle"
	"github.com/starford/cascade/internal/convcache"
	"github.com/starford/cascade/internal/mcpserver"
	"github.com/starford/cascade/internal/resolver"
	"github.com/starford/cascade/internal/server"
	"github.com/starford/cascade/internal/sse"
	"github.com/starford/cascade/internal/storage"
	"github.com/starford/cascade/internal/urlmap"
)

// runtime is the wired bundler: the orchestrator plus everything the
// run modes share.
type runtime struct {
	orch      *bundle.Orchestrator
	cache     map[string]*bundle.Record
	convCache *convcache.Store
	manifest  string
	output    string
}

func (rt *runtime) close() {
	if rt.convCache != nil {
		_ = rt.convCache.Close()
	}
}

func newApplication(opts ...Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// wire constructs the orchestrator and its collaborators from config.
func (a *application) wire(logger *slog.Logger) (*runtime, error) {
	cfg := a.config

	entry, err := filepath.Abs(cfg.Entry.File)
	if err != nil {
		return nil, fmt.Errorf("resolve entry file: %w", err)
	}
	output, err := filepath.Abs(cfg.Entry.Output)
	if err != nil {
		return nil, fmt.Errorf("resolve output file: %w", err)
	}
	rootDir := filepath.Dir(entry)

	includeDirs := make([]string, 0, len(cfg.Bundle.IncludeDirs))
	for _, dir := range cfg.Bundle.IncludeDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve include dir %s: %w", dir, err)
		}
		includeDirs = append(includeDirs, abs)
	}

	var urls *urlmap.Resolver
	switch {
	case a.urlLookup != nil:
		urls = urlmap.NewFunc(a.urlLookup, cfg.URLs.PublicPath, rootDir, cfg.URLs.RootRelative)
	case cfg.URLs.Manifest != "":
		manifest, err := filepath.Abs(cfg.URLs.Manifest)
		if err != nil {
			return nil, fmt.Errorf("resolve manifest: %w", err)
		}
		urls = urlmap.NewManifest(manifest, cfg.URLs.PublicPath, rootDir, cfg.URLs.RootRelative)
	case len(cfg.URLs.Mapping) > 0:
		urls = urlmap.NewMapping(cfg.URLs.Mapping, cfg.URLs.PublicPath, rootDir, cfg.URLs.RootRelative)
	}

	res := resolver.New(cfg.Bundle.Extensions, includeDirs, cfg.Bundle.Prefixes, cfg.Bundle.PathCache)
	loader := bundle.NewLoader(res, urls, cfg.Bundle.StripComments, cfg.Bundle.MinifyWhitespace, logger)

	var convStore *convcache.Store
	if cfg.Converter.CachePath != "" {
		convStore, err = convcache.Open(cfg.Converter.CachePath)
		if err != nil {
			return nil, fmt.Errorf("open conversion cache: %w", err)
		}
	}
	conv := bundle.NewConverter(
		cfg.Converter.Command,
		cfg.Converter.Args,
		cfg.Converter.MaxOutputBytes,
		time.Duration(cfg.Converter.TimeoutSeconds)*time.Second,
		convStore,
		logger,
	)

	orch := bundle.NewOrchestrator(entry, cfg.Bundle.TargetSyntax(), loader, conv, urls, bundle.OptimizeOptions{
		NormalizeWhitespace: cfg.Bundle.MinifyWhitespace,
		DedupeMixins:        cfg.Bundle.DedupeMixins,
		DedupeVars:          cfg.Bundle.DedupeVars,
	}, logger)

	return &runtime{
		orch:      orch,
		cache:     make(map[string]*bundle.Record),
		convCache: convStore,
		manifest:  urls.ManifestFile(),
		output:    output,
	}, nil
}

// RunBuild performs a single build and writes the artifact.
func RunBuild(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	logger := newLogger(app.config)

	rt, err := app.wire(logger)
	if err != nil {
		return err
	}
	defer rt.close()

	res, err := rt.orch.Build(ctx, rt.cache)
	if err != nil {
		return err
	}
	if err := storage.WriteArtifact(rt.output, []byte(res.Document)); err != nil {
		return err
	}

	logger.Info("bundle written",
		slog.String("output", rt.output),
		slog.Int("files", len(res.Touched)),
		slog.Int("bytes", len(res.Document)))
	return nil
}

// Run starts the watch daemon: an initial build followed by incremental
// rebuilds on file changes, with the preview server and live-reload
// events, until ctx is cancelled or a signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(cfg)

	logger.Info("configuration loaded",
		slog.String("entry", cfg.Entry.File),
		slog.String("output", cfg.Entry.Output),
		slog.String("target", cfg.Bundle.Target),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	rt, err := app.wire(logger)
	if err != nil {
		return err
	}
	defer rt.close()

	broker := sse.NewBroker()
	defer broker.Close()

	router := server.NewRouter(rt.output, rt.orch.Target(), broker)
	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: router,
	}

	onBuild := func(res *bundle.Result, buildErr error) {
		if buildErr != nil {
			broker.PublishBundleFailed(buildErr.Error())
			return
		}
		if werr := storage.WriteArtifact(rt.output, []byte(res.Document)); werr != nil {
			logger.Error("write artifact failed", slog.String("error", werr.Error()))
			broker.PublishBundleFailed(werr.Error())
			return
		}
		broker.PublishBundleUpdated(rt.output, res.Marker, len(res.Touched))

		if rt.convCache != nil {
			live := make(map[string]struct{}, len(res.Touched))
			for _, p := range res.Touched {
				live[p] = struct{}{}
			}
			if perr := rt.convCache.Prune(live); perr != nil {
				logger.Warn("conversion cache prune failed", slog.String("error", perr.Error()))
			}
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gCtx)
	defer stopWatch()

	g.Go(func() error {
		debounce := time.Duration(cfg.Watch.DebounceMS) * time.Millisecond
		return bundle.Watch(watchCtx, rt.orch, rt.cache, rt.manifest, debounce, logger, onBuild)
	})

	g.Go(func() error {
		logger.Info("preview server starting", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
		}

		stopWatch()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("stopped")
	return nil
}

// RunMCP serves the bundler's MCP tools over stdio.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	logger := newLogger(app.config)

	rt, err := app.wire(logger)
	if err != nil {
		return err
	}
	defer rt.close()

	return mcpserver.New(rt.orch, rt.cache, rt.output).ServeStdio()
}
