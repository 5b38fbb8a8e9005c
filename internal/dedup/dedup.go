// Package dedup finds exact and near-duplicate images within a batch.
//
// Two images are exact duplicates when their decoded pixels are identical, whatever
// container they are stored in. They are near duplicates when their perceptual hashes
// differ by at most round((1 - similarity/100) * hashSize²) bits.
package dedup

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/kozaktomas/lookalike/internal/fingerprint"
	"github.com/kozaktomas/lookalike/internal/logging"
)

// Verdict classifies an unordered pair of images.
type Verdict int

const (
	Distinct Verdict = iota
	NearDuplicate
	ExactDuplicate
)

func (v Verdict) String() string {
	switch v {
	case NearDuplicate:
		return "near-duplicate"
	case ExactDuplicate:
		return "exact-duplicate"
	default:
		return "distinct"
	}
}

// Detector compares images pairwise.
type Detector struct {
	similarity float64
	hashSize   int
	algo       fingerprint.Algorithm
	limit      int
	log        *slog.Logger
}

// NewDetector creates a detector. similarity is a percentage in [0, 100]: 100 only
// admits hash-identical pairs, 0 admits every pair.
func NewDetector(similarity float64, hashSize int, algo fingerprint.Algorithm, log *slog.Logger) *Detector {
	if hashSize < 2 {
		hashSize = fingerprint.DefaultHashSize
	}
	if algo == "" {
		algo = fingerprint.Average
	}
	return &Detector{
		similarity: similarity,
		hashSize:   hashSize,
		algo:       algo,
		limit:      fingerprint.DiffLimit(similarity, hashSize),
		log:        logging.OrDiscard(log),
	}
}

// DiffLimit returns the largest Hamming distance the detector treats as similar.
func (d *Detector) DiffLimit() int {
	return d.limit
}

type decoded struct {
	pixels *image.NRGBA
	hash   fingerprint.Hash
}

func (d *Detector) load(path string) (*decoded, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	hash, err := fingerprint.Compute(img, d.algo, d.hashSize)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return &decoded{pixels: imaging.Clone(img), hash: hash}, nil
}

func samePixels(a, b *image.NRGBA) bool {
	if a.Rect.Dx() != b.Rect.Dx() || a.Rect.Dy() != b.Rect.Dy() {
		return false
	}
	return bytes.Equal(a.Pix, b.Pix)
}

func (d *Detector) verdict(a, b *decoded) Verdict {
	// Identical pixels always hash identically, so a pair outside the hash
	// limit can never be an exact duplicate.
	if a.hash.Distance(b.hash) > d.limit {
		return Distinct
	}
	if samePixels(a.pixels, b.pixels) {
		return ExactDuplicate
	}
	return NearDuplicate
}

func (d *Detector) loadPair(p1, p2 string) (*decoded, *decoded, error) {
	a, err := d.load(p1)
	if err != nil {
		return nil, nil, err
	}
	b, err := d.load(p2)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// AreDuplicates reports whether both images decode to identical pixels.
func (d *Detector) AreDuplicates(p1, p2 string) (bool, error) {
	a, b, err := d.loadPair(p1, p2)
	if err != nil {
		return false, err
	}
	return samePixels(a.pixels, b.pixels), nil
}

// AreSimilar reports whether the perceptual hashes of both images are within the
// detector's Hamming distance limit. It is symmetric.
func (d *Detector) AreSimilar(p1, p2 string) (bool, error) {
	a, b, err := d.loadPair(p1, p2)
	if err != nil {
		return false, err
	}
	return a.hash.Distance(b.hash) <= d.limit, nil
}

// Compare classifies a pair of images.
func (d *Detector) Compare(p1, p2 string) (Verdict, error) {
	a, b, err := d.loadPair(p1, p2)
	if err != nil {
		return Distinct, err
	}
	return d.verdict(a, b), nil
}

// Handle compares every pair of the batch and returns the images to drop, sorted.
// Paths are visited in lexicographic order and for each matching pair the later
// path is flagged, so the lexicographically smallest image of every duplicate group
// is retained. Images that cannot be decoded are logged and never match.
func (d *Detector) Handle(paths []string) []string {
	sorted := uniqueSorted(paths)
	if len(sorted) < 2 {
		return nil
	}

	images := make([]*decoded, len(sorted))
	for i, p := range sorted {
		img, err := d.load(p)
		if err != nil {
			d.log.Warn("skipping unreadable image in duplicate check", "path", p, "error", err)
			continue
		}
		images[i] = img
	}

	flagged := make([]bool, len(sorted))
	for i := range sorted {
		if images[i] == nil {
			continue
		}
		for j := i + 1; j < len(sorted); j++ {
			if flagged[j] || images[j] == nil {
				continue
			}
			if v := d.verdict(images[i], images[j]); v != Distinct {
				flagged[j] = true
				d.log.Debug("duplicate found", "kept", sorted[i], "dropped", sorted[j], "verdict", v.String())
			}
		}
	}

	var out []string
	for i, p := range sorted {
		if flagged[i] {
			out = append(out, p)
		}
	}
	return out
}

func uniqueSorted(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
