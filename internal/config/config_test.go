package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Images.Width != 160 || cfg.Images.Height != 160 {
		t.Errorf("expected default size 160x160, got %dx%d", cfg.Images.Width, cfg.Images.Height)
	}
	if cfg.Duplicates.Similarity != 90 {
		t.Errorf("expected default similarity 90, got %v", cfg.Duplicates.Similarity)
	}
	if cfg.Model.Dim != 512 {
		t.Errorf("expected default dim 512, got %d", cfg.Model.Dim)
	}
	if cfg.Faces.Allowed != 1 {
		t.Errorf("expected default faces allowed 1, got %d", cfg.Faces.Allowed)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
images:
  root: /data/rappers
  labels: [Drake, Eminem]
  width: 224
  height: 224
  mode: L
  extension: png
duplicates:
  similarity: 95
model:
  method: hnsw
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Images.Root != "/data/rappers" {
		t.Errorf("expected root /data/rappers, got %s", cfg.Images.Root)
	}
	if !reflect.DeepEqual(cfg.Images.Labels, []string{"Drake", "Eminem"}) {
		t.Errorf("unexpected labels %v", cfg.Images.Labels)
	}
	if cfg.Images.Mode != "L" || cfg.Images.Extension != "png" {
		t.Errorf("unexpected mode/extension %s/%s", cfg.Images.Mode, cfg.Images.Extension)
	}
	if cfg.Duplicates.Similarity != 95 {
		t.Errorf("expected similarity 95, got %v", cfg.Duplicates.Similarity)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Duplicates.HashSize != 8 {
		t.Errorf("expected hash size 8, got %d", cfg.Duplicates.HashSize)
	}
	if cfg.Model.Method != "hnsw" {
		t.Errorf("expected method hnsw, got %s", cfg.Model.Method)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOOKALIKE_DATASET_ROOT", "/env/root")
	t.Setenv("LOOKALIKE_LABELS", "A, B ,,C")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "not-a-number")
	t.Setenv("FACE_SERVICE_URL", "http://faces:9000")

	cfg, err := Load(writeConfig(t, "images:\n  root: /file/root\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Images.Root != "/env/root" {
		t.Errorf("expected env root, got %s", cfg.Images.Root)
	}
	if !reflect.DeepEqual(cfg.Images.Labels, []string{"A", "B", "C"}) {
		t.Errorf("unexpected labels %v", cfg.Images.Labels)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("invalid env value should keep default 25, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.FaceService.URL != "http://faces:9000" {
		t.Errorf("unexpected face service URL %s", cfg.FaceService.URL)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "images: [unclosed")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"bad mode", func(c *Config) { c.Images.Mode = "CMYK" }, "images.mode"},
		{"similarity above range", func(c *Config) { c.Duplicates.Similarity = 101 }, "duplicates.similarity"},
		{"zero size", func(c *Config) { c.Images.Width = 0 }, "images size"},
		{"postgres without url", func(c *Config) { c.Embeddings.Backend = "postgres" }, "database.url"},
		{"unknown method", func(c *Config) { c.Model.Method = "kdtree" }, "model.method"},
		{"empty extension", func(c *Config) { c.Images.Extension = "." }, "images.extension"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestTargetExtension(t *testing.T) {
	for _, ext := range []string{"jpg", ".jpg", "JPG", ".JPG"} {
		c := ImagesConfig{Extension: ext}
		if got := c.TargetExtension(); got != "jpg" {
			t.Errorf("TargetExtension(%q) = %q, want jpg", ext, got)
		}
	}
}

func TestAddLabels(t *testing.T) {
	path := writeConfig(t, `# dataset settings
images:
  root: data/images
  labels:
    - Drake
    - Jiří
model:
  method: exact
`)

	if err := AddLabels(path, []string{"Eminem", "Kanye West"}); err != nil {
		t.Fatalf("AddLabels() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"Drake", "Jiří", "Eminem", "Kanye West"}
	if !reflect.DeepEqual(cfg.Images.Labels, want) {
		t.Errorf("labels = %v, want %v", cfg.Images.Labels, want)
	}
	if cfg.Model.Method != "exact" {
		t.Errorf("unrelated keys should survive, got method %q", cfg.Model.Method)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "# dataset settings") {
		t.Error("expected comments to be preserved")
	}
}

func TestAddLabels_RejectsDuplicates(t *testing.T) {
	path := writeConfig(t, "images:\n  labels: [Drake, Jiří]\n")
	before, _ := os.ReadFile(path)

	err := AddLabels(path, []string{"jiri", "Eminem"})
	if !errors.Is(err, ErrDuplicateLabels) {
		t.Fatalf("AddLabels() error = %v, want ErrDuplicateLabels", err)
	}
	if !strings.Contains(err.Error(), "jiri") {
		t.Errorf("error should name the duplicate label, got %v", err)
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("config file must not change when labels are rejected")
	}
}

func TestAddLabels_CreatesMissingSection(t *testing.T) {
	path := writeConfig(t, "model:\n  method: exact\n")

	if err := AddLabels(path, []string{"Drake"}); err != nil {
		t.Fatalf("AddLabels() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg.Images.Labels, []string{"Drake"}) {
		t.Errorf("labels = %v, want [Drake]", cfg.Images.Labels)
	}
}
