package resolver

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/cascade/internal/apperr"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolve_Local(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.scss"), ".y{}")
	from := filepath.Join(dir, "a.scss")

	r := New([]string{"", ".scss"}, nil, []string{""}, false)
	got, err := r.Resolve("b", from)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != filepath.Join(dir, "b.scss") {
		t.Errorf("Resolve = %q", got)
	}
}

func TestResolve_ExtensionOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b"), "bare")
	writeFile(t, filepath.Join(dir, "b.scss"), ".y{}")
	from := filepath.Join(dir, "a.scss")

	r := New([]string{"", ".scss"}, nil, []string{""}, false)
	got, err := r.Resolve("b", from)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Empty extension is configured first, so the bare file wins.
	if got != filepath.Join(dir, "b") {
		t.Errorf("Resolve = %q, want bare file", got)
	}
}

func TestResolve_GlobalPrefix(t *testing.T) {
	libs := t.TempDir()
	writeFile(t, filepath.Join(libs, "foo.scss"), ".lib{}")
	from := filepath.Join(t.TempDir(), "a.scss")

	r := New([]string{"", ".scss"}, []string{libs}, []string{"", "~"}, false)
	got, err := r.Resolve("~foo", from)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != filepath.Join(libs, "foo.scss") {
		t.Errorf("Resolve = %q, want %q", got, filepath.Join(libs, "foo.scss"))
	}
}

func TestResolve_FailureListsCandidates(t *testing.T) {
	libs := t.TempDir()
	from := filepath.Join(t.TempDir(), "a.scss")

	r := New([]string{"", ".scss"}, []string{libs}, []string{"", "~"}, false)
	_, err := r.Resolve("~missing", from)
	if !errors.Is(err, apperr.ErrUnresolvedImport) {
		t.Fatalf("err = %v, want ErrUnresolvedImport", err)
	}
	for _, want := range []string{
		filepath.Join(filepath.Dir(from), "~missing"),
		filepath.Join(libs, "missing.scss"),
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not list candidate %q: %v", want, err)
		}
	}
}

func TestCandidates_Order(t *testing.T) {
	libs := "/libs"
	from := "/src/a.scss"
	r := New([]string{"", ".scss"}, []string{libs}, []string{"", "~"}, false)

	got := r.Candidates("~foo", from)
	want := []string{
		"/src/~foo",
		"/src/~foo.scss",
		"/libs/~foo",
		"/libs/~foo.scss",
		"/libs/foo",
		"/libs/foo.scss",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestResolve_Memoized(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "b.scss")
	writeFile(t, target, ".y{}")
	from := filepath.Join(dir, "a.scss")

	r := New([]string{"", ".scss"}, nil, []string{""}, true)
	if _, err := r.Resolve("b", from); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}

	// The file is gone, but the cached resolution still answers.
	if err := os.Remove(target); err != nil {
		t.Fatal(err)
	}
	got, err := r.Resolve("b", from)
	if err != nil {
		t.Fatalf("cached Resolve: %v", err)
	}
	if got != target {
		t.Errorf("cached Resolve = %q", got)
	}

	r.ClearCache()
	if _, err := r.Resolve("b", from); !errors.Is(err, apperr.ErrUnresolvedImport) {
		t.Errorf("after ClearCache err = %v, want ErrUnresolvedImport", err)
	}
}
