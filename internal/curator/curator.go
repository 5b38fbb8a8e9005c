// Package curator cleans identity folders: it normalizes every image, drops the
// ones with an unexpected number of faces or that duplicate another image, and
// re-encodes the survivors under the dataset's file extension.
package curator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"

	"github.com/kozaktomas/lookalike/internal/catalog"
	"github.com/kozaktomas/lookalike/internal/imagebatch"
	"github.com/kozaktomas/lookalike/internal/logging"
)

// Reason explains why an image was marked invalid.
type Reason string

const (
	ReasonNormalization Reason = "normalization failed"
	ReasonFaceCount     Reason = "unexpected number of faces"
	ReasonDuplicate     Reason = "duplicate of another image"
	ReasonExtension     Reason = "re-encoding failed"
)

// InvalidSet collects invalid images by path. Adding a path twice keeps the first reason.
type InvalidSet map[string]Reason

func (s InvalidSet) Add(path string, r Reason) {
	if _, ok := s[path]; !ok {
		s[path] = r
	}
}

func (s InvalidSet) Has(path string) bool {
	_, ok := s[path]
	return ok
}

// Paths returns the invalid paths sorted.
func (s InvalidSet) Paths() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// DuplicateFinder returns the images of a batch that duplicate another one.
type DuplicateFinder interface {
	Handle(paths []string) []string
}

// FaceFilter returns the images whose face count differs from allowed.
type FaceFilter interface {
	HandleFaceNumber(ctx context.Context, paths []string, allowed int) ([]string, error)
}

// Options describes the target shape of a curated dataset.
type Options struct {
	Root         string
	Labels       []string // folders under Root; empty means every folder found there
	Width        int
	Height       int
	Mode         imagebatch.Mode
	Extension    string
	FacesAllowed int

	// OnFolder, when set, is called after each folder of a multi-folder run.
	OnFolder func(Report)
}

// Report is the outcome of curating one folder.
type Report struct {
	Folder  string
	Label   string
	Total   int
	Valid   []string // final paths, sorted
	Invalid InvalidSet
	Purged  bool
}

// Removed returns how many images the folder lost.
func (r Report) Removed() int {
	return len(r.Invalid)
}

type Curator struct {
	opts  Options
	dups  DuplicateFinder
	faces FaceFilter
	exec  *imagebatch.Executor
	log   *slog.Logger
}

func New(opts Options, dups DuplicateFinder, faces FaceFilter, log *slog.Logger) *Curator {
	log = logging.OrDiscard(log)
	return &Curator{
		opts:  opts,
		dups:  dups,
		faces: faces,
		exec:  imagebatch.NewExecutor(log),
		log:   log,
	}
}

// CleanFolder curates dir and reports its invalid images without deleting them.
func (c *Curator) CleanFolder(ctx context.Context, dir string) (Report, error) {
	return c.curate(ctx, dir)
}

// CleanLabel curates the identity folder of label and deletes its invalid images.
func (c *Curator) CleanLabel(ctx context.Context, label string) (Report, error) {
	return c.curateAndPurge(ctx, filepath.Join(c.opts.Root, label))
}

// CleanDataset curates and purges every configured identity folder.
func (c *Curator) CleanDataset(ctx context.Context) ([]Report, error) {
	labels := c.opts.Labels
	if len(labels) == 0 {
		var err error
		if labels, err = catalog.Labels(c.opts.Root); err != nil {
			return nil, err
		}
	}
	return c.CleanNewFolders(ctx, labels)
}

// CleanNewFolders curates and purges the named identity folders, typically the ones
// just added to the dataset.
func (c *Curator) CleanNewFolders(ctx context.Context, labels []string) ([]Report, error) {
	reports := make([]Report, 0, len(labels))
	for _, label := range labels {
		report, err := c.CleanLabel(ctx, label)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
		if c.opts.OnFolder != nil {
			c.opts.OnFolder(report)
		}
	}
	return reports, nil
}

// FilterInferenceImages curates an ad-hoc folder of query images and deletes the
// ones that cannot be matched. The report lists the usable images and why the
// others were ignored.
func (c *Curator) FilterInferenceImages(ctx context.Context, dir string) (Report, error) {
	return c.curateAndPurge(ctx, dir)
}

func (c *Curator) curateAndPurge(ctx context.Context, dir string) (Report, error) {
	report, err := c.curate(ctx, dir)
	if err != nil {
		return report, err
	}
	if err := imagebatch.Delete(report.Invalid.Paths()); err != nil {
		return report, fmt.Errorf("failed to purge %s: %w", dir, err)
	}
	report.Purged = true
	c.log.Info("folder curated", "folder", dir, "total", report.Total, "kept", len(report.Valid), "removed", report.Removed())
	return report, nil
}

func (c *Curator) curate(ctx context.Context, dir string) (Report, error) {
	report := Report{Folder: dir, Label: filepath.Base(dir), Invalid: InvalidSet{}}

	batch, err := catalog.LoadFolder(dir)
	if err != nil {
		return report, err
	}
	report.Total = len(batch)

	current, failures, err := c.exec.Run(ctx, batch.Paths(),
		imagebatch.Convert{Mode: c.opts.Mode},
		imagebatch.Resize{Width: c.opts.Width, Height: c.opts.Height},
	)
	if err != nil {
		return report, err
	}
	for _, f := range failures {
		report.Invalid.Add(f.Path, ReasonNormalization)
	}

	faceInvalid, err := c.faces.HandleFaceNumber(ctx, current, c.opts.FacesAllowed)
	if err != nil {
		return report, err
	}
	for _, p := range faceInvalid {
		report.Invalid.Add(p, ReasonFaceCount)
	}
	// Duplicates are searched among all normalized images, including the ones the
	// face filter rejected.
	for _, p := range c.dups.Handle(current) {
		report.Invalid.Add(p, ReasonDuplicate)
	}

	var valid []string
	for _, p := range current {
		if !report.Invalid.Has(p) {
			valid = append(valid, p)
		}
	}

	wrongExt := imagebatch.FilterInvalidExtensions(valid, c.opts.Extension)
	fixed, failures, err := c.exec.Run(ctx, wrongExt, imagebatch.ChangeExtension{Ext: c.opts.Extension})
	if err != nil {
		return report, err
	}
	for _, f := range failures {
		report.Invalid.Add(f.Path, ReasonExtension)
	}

	needsFix := make(map[string]bool, len(wrongExt))
	for _, p := range wrongExt {
		needsFix[p] = true
	}
	for _, p := range valid {
		if !needsFix[p] {
			report.Valid = append(report.Valid, p)
		}
	}
	report.Valid = append(report.Valid, fixed...)
	sort.Strings(report.Valid)
	report.Valid = slices.Compact(report.Valid)

	return report, nil
}
