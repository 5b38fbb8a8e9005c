package database

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kozaktomas/lookalike/internal/config"
)

func sampleEmbeddings() []StoredEmbedding {
	return []StoredEmbedding{
		{Path: "/data/b/1.jpg", Label: "b", Embedding: []float32{1, 2, 3}, Model: "buffalo_l", Dim: 3},
		{Path: "/data/a/1.jpg", Label: "a", Embedding: []float32{4, 5, 6}, Model: "buffalo_l", Dim: 3},
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "models", "embeddings.gob")
	store := NewFileStore(path)

	t.Run("missing file is empty", func(t *testing.T) {
		got, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Load() = %v, want empty", got)
		}
	})

	t.Run("replace keeps order", func(t *testing.T) {
		want := sampleEmbeddings()
		if err := store.Replace(ctx, want); err != nil {
			t.Fatalf("Replace() error = %v", err)
		}
		got, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Load() = %+v, want %+v", got, want)
		}
		n, err := store.Count(ctx)
		if err != nil || n != 2 {
			t.Errorf("Count() = %d, %v; want 2", n, err)
		}
		if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
			t.Error("temporary file should be renamed away")
		}
	})

	t.Run("replace overwrites", func(t *testing.T) {
		if err := store.Replace(ctx, sampleEmbeddings()[:1]); err != nil {
			t.Fatalf("Replace() error = %v", err)
		}
		n, _ := store.Count(ctx)
		if n != 1 {
			t.Errorf("Count() = %d, want 1", n)
		}
	})

	t.Run("corrupt file", func(t *testing.T) {
		if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := store.Load(ctx); err == nil {
			t.Error("expected error for corrupt file")
		}
	})
}

func TestByPath(t *testing.T) {
	m := ByPath(sampleEmbeddings())
	if len(m) != 2 || m["/data/a/1.jpg"].Label != "a" {
		t.Errorf("ByPath() = %v", m)
	}
}

func TestOpen(t *testing.T) {
	cfg := config.Default()
	cfg.Embeddings.Path = filepath.Join(t.TempDir(), "e.gob")

	store, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, ok := store.(*FileStore); !ok {
		t.Errorf("Open() = %T, want *FileStore", store)
	}

	cfg.Embeddings.Backend = "redis"
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestCountByLabels_FallsBackToLoad(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "embeddings.gob"))
	ctx := context.Background()
	rows := append(sampleEmbeddings(), StoredEmbedding{Path: "/data/a/2.jpg", Label: "a", Embedding: []float32{0, 0, 1}, Dim: 3})
	if err := store.Replace(ctx, rows); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	counts, err := CountByLabels(ctx, store, []string{"a", "c"})
	if err != nil {
		t.Fatalf("CountByLabels() error = %v", err)
	}
	if !reflect.DeepEqual(counts, map[string]int{"a": 2}) {
		t.Errorf("CountByLabels() = %v, want map[a:2]", counts)
	}
}
