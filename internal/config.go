package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cascade/internal/syntax"
)

// Config represents the bundler configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Entry     EntryConfig       `yaml:"entry"`
	Bundle    BundleConfig      `yaml:"bundle"`
	Converter ConverterConfig   `yaml:"converter"`
	URLs      URLConfig         `yaml:"urls"`
	Watch     WatchConfig       `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Entry.Validate(); err != nil {
		return err
	}
	if err := c.Bundle.Validate(); err != nil {
		return err
	}
	if err := c.Converter.Validate(); err != nil {
		return err
	}
	return c.URLs.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds the preview server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns the preview server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// EntryConfig names the root stylesheet and the output artifact.
type EntryConfig struct {
	File   string `yaml:"file"`
	Output string `yaml:"output"`
}

// Validate validates the entry configuration.
func (c *EntryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.File, validation.Required),
		validation.Field(&c.Output, validation.Required),
	)
}

// BundleConfig controls import resolution and the output text passes.
type BundleConfig struct {
	Target           string   `yaml:"target"`
	Extensions       []string `yaml:"extensions"`
	IncludeDirs      []string `yaml:"include_dirs"`
	Prefixes         []string `yaml:"prefixes"`
	PathCache        bool     `yaml:"path_cache"`
	StripComments    bool     `yaml:"strip_comments"`
	MinifyWhitespace bool     `yaml:"minify_whitespace"`
	DedupeMixins     bool     `yaml:"dedupe_mixins"`
	DedupeVars       bool     `yaml:"dedupe_vars"`
}

// TargetSyntax returns the configured output syntax.
func (c *BundleConfig) TargetSyntax() syntax.Syntax {
	return syntax.Syntax(c.Target)
}

// Validate validates the bundle configuration. Plain is not a valid
// output target; only the two Sass-derived syntaxes can express the
// merged tree.
func (c *BundleConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Target, validation.Required,
			validation.In(string(syntax.Nested), string(syntax.Indented))),
		validation.Field(&c.Extensions, validation.Required),
	)
}

// ConverterConfig describes the external syntax converter.
type ConverterConfig struct {
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args"`
	MaxOutputBytes int64    `yaml:"max_output_bytes"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	CachePath      string   `yaml:"cache_path"`
}

// Validate validates the converter configuration.
func (c *ConverterConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Command, validation.Required),
		validation.Field(&c.MaxOutputBytes, validation.Required, validation.Min(1)),
	)
}

// URLConfig controls url(...) rewriting. Manifest and Mapping are
// mutually exclusive; leaving both empty disables rewriting.
type URLConfig struct {
	Manifest     string            `yaml:"manifest"`
	Mapping      map[string]string `yaml:"mapping"`
	PublicPath   string            `yaml:"public_path"`
	RootRelative bool              `yaml:"root_relative"`
}

// Validate validates the URL configuration.
func (c *URLConfig) Validate() error {
	if c.Manifest != "" && len(c.Mapping) > 0 {
		return fmt.Errorf("urls: manifest and mapping are mutually exclusive")
	}
	return nil
}

// WatchConfig tunes the rebuild trigger.
type WatchConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Entry: EntryConfig{
			File:   "styles/main.scss",
			Output: "dist/bundle.scss",
		},
		Bundle: BundleConfig{
			Target:        string(syntax.Nested),
			Extensions:    []string{"", ".scss", ".sass", ".css"},
			Prefixes:      []string{"", "~"},
			PathCache:     true,
			StripComments: true,
			DedupeMixins:  true,
			DedupeVars:    true,
		},
		Converter: ConverterConfig{
			Command:        "sass-convert",
			MaxOutputBytes: 8 << 20,
			TimeoutSeconds: 30,
		},
		URLs: URLConfig{
			PublicPath: "/",
		},
		Watch: WatchConfig{
			DebounceMS: 150,
		},
	}
}
