package internal

import "github.com/starford/cascade/internal/urlmap"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	urlLookup urlmap.LookupFunc
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithURLLookup installs a programmatic URL resolver, taking precedence
// over the manifest/mapping configured in the config file.
func WithURLLookup(fn urlmap.LookupFunc) Option {
	return func(a *application) {
		a.urlLookup = fn
	}
}
