package internal

import (
	"os"
	"path/filepath"
	"testing"

	pkgconfig "github.com/starford/cascade/pkg/config"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestConfigRejectsPlainTarget(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Bundle.Target = "plain"
	if err := cfg.Validate(); err == nil {
		t.Fatal("plain output target accepted")
	}
}

func TestConfigRejectsBadPort(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.HTTP.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("port 0 accepted")
	}
}

func TestConfigRejectsMissingConverterCommand(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Converter.Command = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty converter command accepted")
	}
}

func TestURLConfigMutuallyExclusive(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.URLs.Manifest = "manifest.json"
	cfg.URLs.Mapping = map[string]string{"a.png": "b.png"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("manifest+mapping accepted")
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Setenv("STYLES_DIR", "site/styles")

	path := filepath.Join(t.TempDir(), "cascade.yaml")
	doc := `
app:
  http:
    port: 9090
entry:
  file: ${STYLES_DIR}/main.sass
  output: dist/bundle.sass
bundle:
  target: indented
  extensions: ["", ".sass", ".scss"]
converter:
  command: sass-convert
  max_output_bytes: 1048576
watch:
  debounce_ms: 50
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 {
		t.Errorf("port = %d", cfg.App.HTTP.Port)
	}
	if cfg.Entry.File != "site/styles/main.sass" {
		t.Errorf("env expansion failed: %q", cfg.Entry.File)
	}
	if cfg.Bundle.TargetSyntax() != "indented" {
		t.Errorf("target = %q", cfg.Bundle.Target)
	}
	if cfg.App.HTTP.Address() != ":9090" {
		t.Errorf("Address = %q", cfg.App.HTTP.Address())
	}
}

func TestLoadIfPresentKeepsDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.LoadIfPresent(filepath.Join(t.TempDir(), "absent.yaml"), cfg); err != nil {
		t.Fatalf("LoadIfPresent: %v", err)
	}
	if cfg.Entry.File != "styles/main.scss" {
		t.Errorf("defaults disturbed: %q", cfg.Entry.File)
	}
}

func TestLoadRejectsInvalidYAMLConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cascade.yaml")
	doc := `
bundle:
  target: plain
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err == nil {
		t.Fatal("invalid target accepted through Load")
	}
}
