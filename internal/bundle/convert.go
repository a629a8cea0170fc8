package bundle

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/starford/cascade/internal/apperr"
	"github.com/starford/cascade/internal/checksum"
	"github.com/starford/cascade/internal/convcache"
	"github.com/starford/cascade/internal/syntax"
)

// Converter batches every file needing a syntax conversion into one
// round trip through an external converter process, then distributes
// the converted fragments back onto the records.
type Converter struct {
	command   string
	args      []string
	maxOutput int64
	timeout   time.Duration
	cache     *convcache.Store // nil disables the persistent cache
	logger    *slog.Logger
}

// NewConverter creates a Converter around an external command. The
// command receives "--from <syntax> --to <syntax>" appended to args,
// the batched text on stdin, and must write the converted batch to
// stdout. A non-positive maxOutput disables the output ceiling; cache
// may be nil.
func NewConverter(command string, args []string, maxOutput int64, timeout time.Duration, cache *convcache.Store, logger *slog.Logger) *Converter {
	return &Converter{
		command:   command,
		args:      args,
		maxOutput: maxOutput,
		timeout:   timeout,
		cache:     cache,
		logger:    logger,
	}
}

// sourceSyntax is the variant files are converted from for a given
// target: nested output needs indented files converted, indented output
// needs nested text (plain files contribute their nested mirror — CSS
// is valid nested syntax).
func sourceSyntax(target syntax.Syntax) syntax.Syntax {
	if target == syntax.Indented {
		return syntax.Nested
	}
	return syntax.Indented
}

// ConvertAll fills the target-syntax original slot of every record that
// lacks one. Returns the paths that received converted content. When no
// record needs conversion, no external call is made.
func (c *Converter) ConvertAll(ctx context.Context, files map[string]*Record, target syntax.Syntax, marker int64) ([]string, error) {
	from := sourceSyntax(target)

	var pending []*Record
	for _, rec := range files {
		if _, ok := rec.Original(target); ok {
			continue
		}
		pending = append(pending, rec)
	}
	if len(pending) == 0 {
		return nil, nil
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Path < pending[j].Path })

	var converted []string
	var batch []*Record
	keys := make(map[string]string, len(pending))

	for _, rec := range pending {
		src, ok := rec.Original(from)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no %s content to convert", apperr.ErrConversionFailed, rec.Path, from)
		}
		key := checksum.Key([]byte(string(from) + "\x00" + string(target) + "\x00" + src))
		keys[rec.Path] = key

		if c.cache != nil {
			if out, hit, err := c.cache.Get(key); err == nil && hit {
				rec.SetOriginal(target, out, marker)
				converted = append(converted, rec.Path)
				c.logger.Debug("converter: cache hit", slog.String("path", rec.Path))
				continue
			}
		}
		batch = append(batch, rec)
	}
	if len(batch) == 0 {
		return converted, nil
	}

	token, err := batchToken()
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, rec := range batch {
		src, _ := rec.Original(from)
		b.WriteString("\n// " + token + "_BEGIN" + rec.Path + "\n")
		b.WriteString(src)
		b.WriteString("\n// " + token + "_END\n")
	}

	out, err := c.run(ctx, from, target, b.String())
	if err != nil {
		return nil, err
	}

	for _, rec := range batch {
		fragment, err := splitFragment(out, token, rec.Path)
		if err != nil {
			return nil, err
		}
		rec.SetOriginal(target, fragment, marker)
		converted = append(converted, rec.Path)
		if c.cache != nil {
			if err := c.cache.Put(keys[rec.Path], rec.Path, string(from), string(target), fragment); err != nil {
				c.logger.Warn("converter: cache write failed",
					slog.String("path", rec.Path), slog.String("error", err.Error()))
			}
		}
	}

	c.logger.Info("converter: batch converted",
		slog.Int("files", len(batch)),
		slog.String("from", string(from)),
		slog.String("to", string(target)))
	return converted, nil
}

// run performs the single external round trip: batched text on stdin,
// converted batch on stdout, bounded by the output ceiling and timeout.
func (c *Converter) run(ctx context.Context, from, to syntax.Syntax, input string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), c.args...), "--from", string(from), "--to", string(to))
	cmd := exec.CommandContext(ctx, c.command, args...)
	cmd.Stdin = strings.NewReader(input)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrConversionFailed, err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("%w: %s: %v", apperr.ErrConversionFailed, c.command, err)
	}

	var data []byte
	var readErr error
	if c.maxOutput > 0 {
		data, readErr = io.ReadAll(io.LimitReader(stdout, c.maxOutput+1))
		if int64(len(data)) > c.maxOutput {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return "", fmt.Errorf("%w: exceeds %d bytes", apperr.ErrOutputTooLarge, c.maxOutput)
		}
	} else {
		data, readErr = io.ReadAll(stdout)
	}
	waitErr := cmd.Wait()
	if waitErr != nil {
		return "", fmt.Errorf("%w: %v: %s", apperr.ErrConversionFailed, waitErr, strings.TrimSpace(stderr.String()))
	}
	if readErr != nil {
		return "", fmt.Errorf("%w: reading output: %v", apperr.ErrConversionFailed, readErr)
	}
	return string(data), nil
}

// splitFragment extracts one file's converted text between its marker
// lines in the batched output. The begin marker includes its newline so
// a path that prefixes another batched path cannot match the wrong
// marker line.
func splitFragment(out, token, path string) (string, error) {
	begin := "// " + token + "_BEGIN" + path + "\n"
	end := "// " + token + "_END"

	i := strings.Index(out, begin)
	if i < 0 {
		return "", fmt.Errorf("%w: begin marker missing for %s", apperr.ErrConversionFailed, path)
	}
	rest := out[i+len(begin):]
	j := strings.Index(rest, end)
	if j < 0 {
		return "", fmt.Errorf("%w: end marker missing for %s", apperr.ErrConversionFailed, path)
	}
	return strings.Trim(rest[:j], "\n"), nil
}

// batchToken returns a fresh random marker token so file content can
// never collide with the batching protocol.
func batchToken() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("%w: token: %v", apperr.ErrConversionFailed, err)
	}
	return hex.EncodeToString(buf[:]), nil
}
