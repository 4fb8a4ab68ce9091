// Package writer writes generated Go files.
//
// Content optionally passes through an import fixer and gofmt, is compared
// with what is on disk, and is written with a temp file and rename so a
// concurrent reader such as the Go toolchain never sees a partial file.
package writer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"go/format"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/tools/imports"
)

// TempPattern is the name pattern of in-flight temp files. Watchers ignore
// files starting with a dot.
const TempPattern = ".routetree-*.tmp"

// Options configures a Writer.
type Options struct {
	LintFix bool // run goimports over the content
	Format  bool // run gofmt over the content
	Mode    os.FileMode
	Logger  *slog.Logger
}

// Writer writes generated files. It is stateless apart from its options.
type Writer struct {
	opts Options
}

// New creates a Writer.
func New(opts Options) *Writer {
	if opts.Mode == 0 {
		opts.Mode = 0o644
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Writer{opts: opts}
}

// Process applies the configured lint-fix and format steps.
func (w *Writer) Process(path string, src []byte) ([]byte, error) {
	out := src
	if w.opts.LintFix {
		fixed, err := imports.Process(path, out, &imports.Options{
			Comments:  true,
			TabIndent: true,
			TabWidth:  8,
		})
		if err != nil {
			return nil, fmt.Errorf("fix imports in %s: %w", path, err)
		}
		out = fixed
	}
	if w.opts.Format {
		formatted, err := format.Source(out)
		if err != nil {
			return nil, fmt.Errorf("format %s: %w", path, err)
		}
		out = formatted
	}
	return out, nil
}

// Write processes src and writes it to path. It reports whether the file
// changed; identical content on disk is left untouched.
func (w *Writer) Write(ctx context.Context, path string, src []byte) (bool, error) {
	return w.write(ctx, path, src, nil)
}

// write is Write with a check run right before the file is replaced.
// A false result from proceed skips the write without error.
func (w *Writer) write(ctx context.Context, path string, src []byte, proceed func() bool) (bool, error) {
	out, err := w.Process(path, src)
	if err != nil {
		return false, err
	}
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err == nil && bytes.Equal(existing, out) {
		return false, nil
	}
	if proceed != nil && !proceed() {
		w.opts.Logger.Debug("skipping superseded write", "path", path)
		return false, nil
	}
	if err := writeAtomic(ctx, path, out, w.opts.Mode); err != nil {
		return false, err
	}
	w.opts.Logger.Debug("wrote file", "path", path, "bytes", len(out))
	return true, nil
}

func writeAtomic(ctx context.Context, path string, content []byte, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, TempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := func() {
		_ = os.Remove(tempPath)
	}

	_, writeErr := tempFile.Write(content)
	closeErr := tempFile.Close()
	if writeErr != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", writeErr)
	}
	if closeErr != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", closeErr)
	}
	if err := os.Chmod(tempPath, mode); err != nil {
		cleanup()
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := ctx.Err(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// DefaultCacheSize bounds the number of paths a Cached writer remembers.
const DefaultCacheSize = 4096

// Cached skips writes whose unprocessed content hashes the same as the last
// write requested for the same path.
//
// The cache lives as long as the watch loop. A write whose hash is replaced
// by a newer request for the same path before it reaches the disk is
// dropped.
type Cached struct {
	w     *Writer
	cache *lru.Cache[string, [sha256.Size]byte]
}

// NewCached wraps w with a content-hash cache of the given size.
func NewCached(w *Writer, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, [sha256.Size]byte](size)
	if err != nil {
		return nil, err
	}
	return &Cached{w: w, cache: cache}, nil
}

// Write writes src to path unless the same content was last requested for
// path. It reports whether the file changed.
func (c *Cached) Write(ctx context.Context, path string, src []byte) (bool, error) {
	sum := sha256.Sum256(src)
	if prev, ok := c.cache.Get(path); ok && prev == sum {
		// The file may have been removed since, e.g. by the stale-route cleaner.
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	c.cache.Add(path, sum)
	changed, err := c.w.write(ctx, path, src, func() bool {
		cur, ok := c.cache.Get(path)
		return ok && cur == sum
	})
	if err != nil {
		c.cache.Remove(path)
	}
	return changed, err
}

// Forget drops the cached hash for path, forcing the next write through.
func (c *Cached) Forget(path string) {
	c.cache.Remove(path)
}

// FileWriter is implemented by Writer and Cached.
type FileWriter interface {
	Write(ctx context.Context, path string, src []byte) (bool, error)
}

var (
	_ FileWriter = (*Writer)(nil)
	_ FileWriter = (*Cached)(nil)
)
