package curator

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/kozaktomas/lookalike/internal/catalog"
	"github.com/kozaktomas/lookalike/internal/dedup"
	"github.com/kozaktomas/lookalike/internal/facecount"
	"github.com/kozaktomas/lookalike/internal/imagebatch"
)

const (
	topHalf      uint64 = 0xFFFFFFFF00000000
	leftColumns  uint64 = 0xF0F0F0F0F0F0F0F0
	stripedRows  uint64 = 0xFF00FF00FF00FF00
	checkeredish uint64 = 0xAAAAAAAAAAAAAAAA
)

func blockImage(mask uint64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			i := (y/8)*8 + x/8
			c := color.RGBA{A: 255}
			if mask&(1<<(63-uint(i))) != 0 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", name, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", name, err)
	}
	return path
}

// faceCounts reports one face for every image except the stems listed in none.
type faceCounts struct {
	none map[string]bool
}

func (f faceCounts) CountFaces(_ context.Context, path string) (int, error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if f.none[stem] {
		return 0, nil
	}
	return 1, nil
}

// seedFolder writes five images: img4 duplicates img2 and img5 has no face.
func seedFolder(t *testing.T, dir string) {
	t.Helper()
	writePNG(t, dir, "img1.png", blockImage(topHalf))
	writePNG(t, dir, "img2.png", blockImage(leftColumns))
	writePNG(t, dir, "img3.png", blockImage(stripedRows))
	writePNG(t, dir, "img4.png", blockImage(leftColumns))
	writePNG(t, dir, "img5.png", blockImage(checkeredish))
}

func newCurator(root string, labels ...string) *Curator {
	opts := Options{
		Root:         root,
		Labels:       labels,
		Width:        48,
		Height:       48,
		Mode:         imagebatch.RGB,
		Extension:    "jpg",
		FacesAllowed: 1,
	}
	faces := facecount.NewFilter(faceCounts{none: map[string]bool{"img5": true}}, nil)
	return New(opts, dedup.NewDetector(90, 8, "", nil), faces, nil)
}

func fileNames(t *testing.T, dir string) []string {
	t.Helper()
	batch, err := catalog.LoadFolder(dir)
	if err != nil {
		t.Fatalf("LoadFolder() error = %v", err)
	}
	var names []string
	for _, p := range batch {
		names = append(names, filepath.Base(p.Path))
	}
	return names
}

func TestInvalidSet(t *testing.T) {
	s := InvalidSet{}
	s.Add("/b.jpg", ReasonDuplicate)
	s.Add("/a.jpg", ReasonFaceCount)
	s.Add("/b.jpg", ReasonFaceCount)

	if len(s) != 2 {
		t.Errorf("expected 2 entries, got %d", len(s))
	}
	if s["/b.jpg"] != ReasonDuplicate {
		t.Errorf("first reason should win, got %q", s["/b.jpg"])
	}
	if !reflect.DeepEqual(s.Paths(), []string{"/a.jpg", "/b.jpg"}) {
		t.Errorf("Paths() = %v", s.Paths())
	}
}

func TestCleanDataset(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "alice")
	seedFolder(t, dir)

	var seen []string
	c := newCurator(root, "alice")
	c.opts.OnFolder = func(r Report) { seen = append(seen, r.Label) }

	reports, err := c.CleanDataset(context.Background())
	if err != nil {
		t.Fatalf("CleanDataset() error = %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	if !reflect.DeepEqual(seen, []string{"alice"}) {
		t.Errorf("OnFolder saw %v", seen)
	}

	r := reports[0]
	if r.Total != 5 || r.Removed() != 2 || !r.Purged {
		t.Errorf("report total=%d removed=%d purged=%v", r.Total, r.Removed(), r.Purged)
	}
	if r.Invalid[filepath.Join(dir, "img4.png")] != ReasonDuplicate {
		t.Errorf("img4 should be a duplicate, invalid = %v", r.Invalid)
	}
	if r.Invalid[filepath.Join(dir, "img5.png")] != ReasonFaceCount {
		t.Errorf("img5 should fail the face count, invalid = %v", r.Invalid)
	}

	want := []string{"img1.jpg", "img2.jpg", "img3.jpg"}
	if got := fileNames(t, dir); !reflect.DeepEqual(got, want) {
		t.Errorf("folder contains %v, want %v", got, want)
	}
	wantValid := []string{
		filepath.Join(dir, "img1.jpg"),
		filepath.Join(dir, "img2.jpg"),
		filepath.Join(dir, "img3.jpg"),
	}
	if !reflect.DeepEqual(r.Valid, wantValid) {
		t.Errorf("Valid = %v, want %v", r.Valid, wantValid)
	}

	for _, p := range r.Valid {
		img, err := imaging.Open(p)
		if err != nil {
			t.Fatalf("failed to open %s: %v", p, err)
		}
		if b := img.Bounds(); b.Dx() != 48 || b.Dy() != 48 {
			t.Errorf("%s is %dx%d, want 48x48", p, b.Dx(), b.Dy())
		}
		if mode := imagebatch.ModeOf(img); mode != imagebatch.RGB {
			t.Errorf("%s has mode %s, want RGB", p, mode)
		}
	}

	// A second pass over a clean folder removes nothing.
	again, err := c.CleanDataset(context.Background())
	if err != nil {
		t.Fatalf("second CleanDataset() error = %v", err)
	}
	if again[0].Removed() != 0 {
		t.Errorf("second pass removed %v", again[0].Invalid)
	}
}

func TestCleanDataset_DiscoversLabels(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "bob"), "a.png", blockImage(topHalf))
	writePNG(t, filepath.Join(root, "carol"), "a.png", blockImage(topHalf))

	reports, err := newCurator(root).CleanDataset(context.Background())
	if err != nil {
		t.Fatalf("CleanDataset() error = %v", err)
	}
	if len(reports) != 2 || reports[0].Label != "bob" || reports[1].Label != "carol" {
		t.Fatalf("unexpected reports %+v", reports)
	}
	// Identical images in different folders are never compared.
	for _, r := range reports {
		if len(r.Valid) != 1 {
			t.Errorf("%s kept %v", r.Label, r.Valid)
		}
	}
}

func TestCleanFolder_DoesNotPurge(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "alice")
	seedFolder(t, dir)

	r, err := newCurator(root).CleanFolder(context.Background(), dir)
	if err != nil {
		t.Fatalf("CleanFolder() error = %v", err)
	}
	if r.Purged {
		t.Error("CleanFolder must not purge")
	}
	wantInvalid := []string{filepath.Join(dir, "img4.png"), filepath.Join(dir, "img5.png")}
	if !reflect.DeepEqual(r.Invalid.Paths(), wantInvalid) {
		t.Errorf("Invalid = %v, want %v", r.Invalid.Paths(), wantInvalid)
	}
	for _, p := range wantInvalid {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s should still exist: %v", p, err)
		}
	}
}

func TestCleanNewFolders_MissingFolder(t *testing.T) {
	_, err := newCurator(t.TempDir()).CleanNewFolders(context.Background(), []string{"nobody"})
	if !errors.Is(err, catalog.ErrFolderNotFound) {
		t.Errorf("CleanNewFolders() error = %v, want ErrFolderNotFound", err)
	}
}

func TestCleanLabel_EmptyFolder(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	r, err := newCurator(root).CleanLabel(context.Background(), "empty")
	if err != nil {
		t.Fatalf("CleanLabel() error = %v", err)
	}
	if r.Total != 0 || len(r.Valid) != 0 || r.Removed() != 0 {
		t.Errorf("unexpected report %+v", r)
	}
}

func TestFilterInferenceImages(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "input")
	writePNG(t, dir, "query.png", blockImage(topHalf))
	writePNG(t, dir, "img5.png", blockImage(stripedRows))
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := newCurator("").FilterInferenceImages(context.Background(), dir)
	if err != nil {
		t.Fatalf("FilterInferenceImages() error = %v", err)
	}
	if want := []string{filepath.Join(dir, "query.jpg")}; !reflect.DeepEqual(r.Valid, want) {
		t.Errorf("Valid = %v, want %v", r.Valid, want)
	}
	if r.Invalid[filepath.Join(dir, "notes.txt")] != ReasonNormalization {
		t.Errorf("notes.txt should fail normalization, invalid = %v", r.Invalid)
	}
	if r.Invalid[filepath.Join(dir, "img5.png")] != ReasonFaceCount {
		t.Errorf("img5 should fail the face count, invalid = %v", r.Invalid)
	}
	if got := fileNames(t, dir); !reflect.DeepEqual(got, []string{"query.jpg"}) {
		t.Errorf("folder contains %v", got)
	}
}

func TestFilterInferenceImages_ExtensionCollision(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Drake")
	jpg := writePNG(t, dir, "photo.png", blockImage(topHalf))
	if err := os.Rename(jpg, filepath.Join(dir, "photo.jpg")); err != nil {
		t.Fatal(err)
	}
	writePNG(t, dir, "photo.png", blockImage(stripedRows))

	r, err := newCurator("").FilterInferenceImages(context.Background(), dir)
	if err != nil {
		t.Fatalf("FilterInferenceImages() error = %v", err)
	}

	want := []string{filepath.Join(dir, "photo.jpg"), filepath.Join(dir, "photo_1.jpg")}
	if !reflect.DeepEqual(r.Valid, want) {
		t.Errorf("Valid = %v, want %v", r.Valid, want)
	}
	if len(r.Invalid) != 0 {
		t.Errorf("Invalid = %v, want none", r.Invalid)
	}
	if got := fileNames(t, dir); !reflect.DeepEqual(got, []string{"photo.jpg", "photo_1.jpg"}) {
		t.Errorf("folder contains %v", got)
	}
}
