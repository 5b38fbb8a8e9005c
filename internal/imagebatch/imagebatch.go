// Package imagebatch normalizes the images of a batch in place: pixel mode, size and
// file format. Operations are plain values applied in order by an Executor, and each
// of them leaves an image that already matches its target untouched, so running the
// same operations twice does not rewrite any file.
package imagebatch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/lookalike/internal/logging"
)

// Op rewrites a single image file and returns its path afterwards.
type Op interface {
	Apply(path string) (string, error)
	String() string
}

// Convert changes the pixel mode of an image.
type Convert struct {
	Mode Mode
}

func (c Convert) String() string { return "convert to " + string(c.Mode) }

func (c Convert) Apply(path string) (string, error) {
	img, err := open(path)
	if err != nil {
		return "", err
	}
	if satisfies(img, c.Mode) {
		return path, nil
	}
	converted, err := ToMode(img, c.Mode)
	if err != nil {
		return "", err
	}
	return path, save(converted, path)
}

// Resize scales an image to exactly Width×Height with a Lanczos filter, keeping its mode.
type Resize struct {
	Width  int
	Height int
}

func (r Resize) String() string { return fmt.Sprintf("resize to %dx%d", r.Width, r.Height) }

func (r Resize) Apply(path string) (string, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return "", fmt.Errorf("invalid target size %dx%d", r.Width, r.Height)
	}
	img, err := open(path)
	if err != nil {
		return "", err
	}
	b := img.Bounds()
	if b.Dx() == r.Width && b.Dy() == r.Height {
		return path, nil
	}

	mode := ModeOf(img)
	var resized image.Image = imaging.Resize(img, r.Width, r.Height, imaging.Lanczos)
	if mode == L || mode == RGB {
		if resized, err = ToMode(resized, mode); err != nil {
			return "", err
		}
	}
	return path, save(resized, path)
}

// removeFile is swapped in tests.
var removeFile = os.Remove

// ChangeExtension re-encodes an image as RGB under a new file extension and removes
// the original file.
type ChangeExtension struct {
	Ext string // with or without the leading dot
}

func (c ChangeExtension) String() string { return "change extension to " + normalizeExt(c.Ext) }

func (c ChangeExtension) Apply(path string) (string, error) {
	ext := normalizeExt(c.Ext)
	if ext == "" {
		return "", errors.New("empty target extension")
	}
	if extOf(path) == ext {
		return path, nil
	}

	img, err := open(path)
	if err != nil {
		return "", err
	}
	rgb, err := ToMode(img, RGB)
	if err != nil {
		return "", err
	}

	target, err := freePath(strings.TrimSuffix(path, filepath.Ext(path)), ext)
	if err != nil {
		return "", err
	}
	if err := save(rgb, target); err != nil {
		return "", err
	}
	if err := removeFile(path); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return target, nil
}

// freePath returns base.ext, or the first base_N.ext that is not taken, so a
// re-encoded image never replaces another file of its folder.
func freePath(base, ext string) (string, error) {
	candidate := base + "." + ext
	for n := 1; ; n++ {
		_, err := os.Lstat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s_%d.%s", base, n, ext)
	}
}

// Failure records an image an operation could not process.
type Failure struct {
	Path string
	Op   string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.Op, f.Path, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Executor applies operations to batches.
type Executor struct {
	log *slog.Logger
}

func NewExecutor(log *slog.Logger) *Executor {
	return &Executor{log: logging.OrDiscard(log)}
}

// Run applies ops to every image in order and returns the resulting paths, in input
// order, of the images every op succeeded on. An image an op fails on is logged,
// reported as a Failure and skipped for the remaining ops. The error is only set when
// ctx is cancelled.
func (e *Executor) Run(ctx context.Context, paths []string, ops ...Op) ([]string, []Failure, error) {
	out := make([]string, 0, len(paths))
	var failures []Failure

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("normalization interrupted: %w", err)
		}

		current := p
		var failed bool
		for _, op := range ops {
			next, err := op.Apply(current)
			if err != nil {
				e.log.Warn("image normalization failed", "path", current, "op", op.String(), "error", err)
				failures = append(failures, Failure{Path: current, Op: op.String(), Err: err})
				failed = true
				break
			}
			current = next
		}
		if !failed {
			out = append(out, current)
		}
	}
	return out, failures, nil
}

// FilterInvalidExtensions returns the paths, in input order, whose extension differs
// from ext. The comparison ignores case and the leading dot.
func FilterInvalidExtensions(paths []string, ext string) []string {
	ext = normalizeExt(ext)
	var invalid []string
	for _, p := range paths {
		if extOf(p) != ext {
			invalid = append(invalid, p)
		}
	}
	return invalid
}

// Delete removes the files. Files that are already gone are ignored.
func Delete(paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func extOf(path string) string {
	return normalizeExt(filepath.Ext(path))
}

func open(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return img, nil
}

func save(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
