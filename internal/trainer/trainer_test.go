package trainer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/lookalike/internal/catalog"
	"github.com/kozaktomas/lookalike/internal/database/mock"
	"github.com/kozaktomas/lookalike/internal/faces"
	"github.com/kozaktomas/lookalike/internal/identity"
)

const dim = 4

// fakeExtractor embeds an image on the axis of its label; files named "noface*"
// have no face.
type fakeExtractor struct {
	axes  map[string]int
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (faces.Face, error) {
	f.calls++
	if strings.HasPrefix(filepath.Base(path), "noface") {
		return faces.Face{}, faces.ErrNoFace
	}
	e := make([]float32, dim)
	e[f.axes[filepath.Base(filepath.Dir(path))]] = 1
	e[3] = float32(len(filepath.Base(path))) / 100
	return faces.Face{Embedding: e, Model: "buffalo_l"}, nil
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func seed(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, p := range []string{
		"Drake/1.jpg", "Drake/2.jpg", "Drake/noface.jpg",
		"Eminem/1.jpg", "Eminem/22.jpg",
		"Adele/1.jpg",
	} {
		touch(t, filepath.Join(root, "images", p))
	}
	return root
}

func options(root string) Options {
	return Options{
		Root:        filepath.Join(root, "images"),
		Method:      identity.Exact,
		Dim:         dim,
		IndexPath:   filepath.Join(root, "index.hnsw"),
		EncoderPath: filepath.Join(root, "encoder.json"),
	}
}

func TestRun(t *testing.T) {
	root := seed(t)
	store := mock.NewMockEmbeddingStore()
	extractor := &fakeExtractor{axes: map[string]int{"Adele": 0, "Drake": 1, "Eminem": 2}}

	var seen int
	opts := options(root)
	opts.OnImage = func(string) { seen++ }

	res, err := New(opts, extractor, store, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Images != 6 || res.Embedded != 5 || len(res.Skipped) != 1 || seen != 6 {
		t.Errorf("images=%d embedded=%d skipped=%d seen=%d", res.Images, res.Embedded, len(res.Skipped), seen)
	}
	if !errors.Is(res.Skipped[0].Err, faces.ErrNoFace) {
		t.Errorf("skipped error = %v, want ErrNoFace", res.Skipped[0].Err)
	}
	if res.RunID == "" {
		t.Error("expected a run ID")
	}

	rows, _ := store.Load(context.Background())
	if len(rows) != 5 || rows[0].Label != "Adele" || rows[4].Label != "Eminem" {
		t.Fatalf("stored rows in unexpected order: %+v", rows)
	}

	index, err := identity.LoadIndex(opts.IndexPath)
	if err != nil {
		t.Fatalf("LoadIndex() error = %v", err)
	}
	encoder, err := identity.LoadLabelEncoder(opts.EncoderPath)
	if err != nil {
		t.Fatalf("LoadLabelEncoder() error = %v", err)
	}

	paths := make([]string, len(rows))
	for i, r := range rows {
		paths[i] = r.Path
	}
	m, err := identity.NewMatcher(index, encoder, catalog.FromPaths(paths))
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}
	matches, err := m.Match([][]float32{{0, 0, 0.9, 0}})
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if matches[0].Label != "Eminem" {
		t.Errorf("matched %+v, want Eminem", matches[0])
	}
}

func TestRun_ReusesStoredEmbeddings(t *testing.T) {
	root := seed(t)
	store := mock.NewMockEmbeddingStore()
	extractor := &fakeExtractor{axes: map[string]int{"Adele": 0, "Drake": 1, "Eminem": 2}}

	opts := options(root)
	if _, err := New(opts, extractor, store, nil).Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	first := extractor.calls

	opts.Reuse = true
	res, err := New(opts, extractor, store, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if res.Reused != 5 || res.Embedded != 0 {
		t.Errorf("reused=%d embedded=%d, want 5 and 0", res.Reused, res.Embedded)
	}
	// Only the faceless image is sent to the extractor again.
	if extractor.calls-first != 1 {
		t.Errorf("extractor called %d more times, want 1", extractor.calls-first)
	}
	if store.ReplaceCalls != 2 {
		t.Errorf("Replace called %d times, want 2", store.ReplaceCalls)
	}
}

func TestRun_SelectedLabels(t *testing.T) {
	root := seed(t)
	opts := options(root)
	opts.Labels = []string{"Eminem"}

	res, err := New(opts, &fakeExtractor{axes: map[string]int{"Eminem": 2}}, mock.NewMockEmbeddingStore(), nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Images != 2 || len(res.Classes) != 1 || res.Classes[0] != "Eminem" {
		t.Errorf("images=%d classes=%v", res.Images, res.Classes)
	}
}

func TestRun_EmptyTrainingSet(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "images", "Drake", "noface.jpg"))

	_, err := New(options(root), &fakeExtractor{}, mock.NewMockEmbeddingStore(), nil).Run(context.Background())
	if !errors.Is(err, ErrEmptyTrainingSet) {
		t.Errorf("Run() error = %v, want ErrEmptyTrainingSet", err)
	}
}

func TestRun_StoreFailure(t *testing.T) {
	root := seed(t)
	store := mock.NewMockEmbeddingStore()
	store.ReplaceError = errors.New("disk full")

	_, err := New(options(root), &fakeExtractor{axes: map[string]int{}}, store, nil).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Run() error = %v, want store failure", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "index.hnsw.meta")); !os.IsNotExist(statErr) {
		t.Error("index must not be written when the embeddings cannot be stored")
	}
}

func TestFit_Empty(t *testing.T) {
	if _, _, err := Fit(nil, identity.Exact, dim); !errors.Is(err, ErrEmptyTrainingSet) {
		t.Errorf("Fit() error = %v, want ErrEmptyTrainingSet", err)
	}
}
