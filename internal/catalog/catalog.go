// Package catalog enumerates the images of a dataset laid out as one folder per identity:
//
//	<root>/<label>/<stem>.<ext>
//
// Every listing is sorted lexicographically so that the global path order used when
// an index is fitted can be rebuilt identically when it is queried.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ErrFolderNotFound is returned when a dataset root or identity folder does not exist.
var ErrFolderNotFound = errors.New("image folder not found")

// ImagePath references a single image file inside an identity folder.
type ImagePath struct {
	Path  string
	Label string
}

// NewImagePath derives the label from the name of the file's parent folder.
func NewImagePath(path string) ImagePath {
	return ImagePath{Path: path, Label: filepath.Base(filepath.Dir(path))}
}

// Stem returns the file name without its extension.
func (p ImagePath) Stem() string {
	base := filepath.Base(p.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Ext returns the extension as found on disk, without the leading dot.
func (p ImagePath) Ext() string {
	return strings.TrimPrefix(filepath.Ext(p.Path), ".")
}

func (p ImagePath) String() string {
	return p.Path
}

// Batch is an ordered set of images, normally scoped to one identity folder.
type Batch []ImagePath

// Paths returns the file paths of the batch in order.
func (b Batch) Paths() []string {
	paths := make([]string, len(b))
	for i, p := range b {
		paths[i] = p.Path
	}
	return paths
}

// FromPaths wraps plain file paths into a batch, keeping their order.
func FromPaths(paths []string) Batch {
	b := make(Batch, len(paths))
	for i, p := range paths {
		b[i] = NewImagePath(p)
	}
	return b
}

func readDir(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	return entries, nil
}

// LoadFolder lists the regular, non-hidden files directly inside dir.
func LoadFolder(dir string) (Batch, error) {
	entries, err := readDir(dir)
	if err != nil {
		return nil, err
	}

	var batch Batch
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		batch = append(batch, NewImagePath(filepath.Join(dir, e.Name())))
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	return batch, nil
}

// Labels returns the names of the identity folders under root.
func Labels(root string) ([]string, error) {
	entries, err := readDir(root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// LoadDataset lists every image of every identity folder under root, folder by folder.
func LoadDataset(root string) (Batch, error) {
	names, err := Labels(root)
	if err != nil {
		return nil, err
	}
	return LoadLabels(root, names)
}

// LoadLabels lists the images of the named identity folders, in sorted label order.
func LoadLabels(root string, labels []string) (Batch, error) {
	names := append([]string(nil), labels...)
	sort.Strings(names)

	var all Batch
	for _, name := range names {
		batch, err := LoadFolder(filepath.Join(root, name))
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}
	return all, nil
}

// Fingerprint hashes the label/file-name sequence of a batch. Two listings of the
// same dataset produce the same value regardless of where the root is mounted.
func Fingerprint(b Batch) uint64 {
	d := xxhash.New()
	for _, p := range b {
		_, _ = d.WriteString(p.Label)
		_, _ = d.WriteString("/")
		_, _ = d.WriteString(filepath.Base(p.Path))
		_, _ = d.WriteString("\n")
	}
	return d.Sum64()
}
