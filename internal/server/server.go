// Package server provides the preview HTTP surface: the current bundle
// artifact, health checks, and the live-reload event stream.
package server

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/cascade/internal/syntax"
)

// contentType maps the output syntax to a media type. Only plain output
// is real CSS; the Sass-derived syntaxes get their conventional types.
func contentType(syn syntax.Syntax) string {
	switch syn {
	case syntax.Indented:
		return "text/x-sass; charset=utf-8"
	case syntax.Nested:
		return "text/x-scss; charset=utf-8"
	default:
		return "text/css; charset=utf-8"
	}
}

// NewRouter builds the preview router. outputPath is the artifact on
// disk; sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(outputPath string, target syntax.Syntax, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := os.Stat(outputPath); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"no bundle yet"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/bundle", func(w http.ResponseWriter, req *http.Request) {
		data, err := os.ReadFile(outputPath)
		if err != nil {
			http.Error(w, "bundle not built yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", contentType(target))
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
