package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for the config file when --config is not given.
const DefaultPath = "config/config.yaml"

type Config struct {
	Images      ImagesConfig      `yaml:"images"`
	Duplicates  DuplicatesConfig  `yaml:"duplicates"`
	Faces       FacesConfig       `yaml:"faces"`
	FaceService FaceServiceConfig `yaml:"face_service"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings"`
	Database    DatabaseConfig    `yaml:"database"`
	Model       ModelConfig       `yaml:"model"`
	Inference   InferenceConfig   `yaml:"inference"`
	Logging     LoggingConfig     `yaml:"logging"`
	Server      ServerConfig      `yaml:"server"`
}

type ImagesConfig struct {
	Root      string   `yaml:"root"`
	Labels    []string `yaml:"labels"`
	Width     int      `yaml:"width"`
	Height    int      `yaml:"height"`
	Mode      string   `yaml:"mode"`      // RGB, RGBA or L
	Extension string   `yaml:"extension"` // without the leading dot
}

type DuplicatesConfig struct {
	Similarity float64 `yaml:"similarity"` // percentage in [0, 100]
	HashSize   int     `yaml:"hash_size"`
	Hash       string  `yaml:"hash"` // average, difference or perceptual
}

type FacesConfig struct {
	Allowed int `yaml:"allowed"`
}

type FaceServiceConfig struct {
	URL            string `yaml:"url"`             // defaults to http://localhost:8000
	MaxImageSize   int    `yaml:"max_image_size"`  // longest side sent to the service
	TimeoutSeconds int    `yaml:"timeout_seconds"` // per request
}

type EmbeddingsConfig struct {
	Backend string `yaml:"backend"` // file or postgres
	Path    string `yaml:"path"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url"` // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type ModelConfig struct {
	IndexPath   string `yaml:"index_path"`
	EncoderPath string `yaml:"encoder_path"`
	Method      string `yaml:"method"` // exact or hnsw
	Dim         int    `yaml:"dim"`
}

type InferenceConfig struct {
	ImagesFolder string `yaml:"images_folder"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // localhost is always allowed
	MaxUploadMB    int      `yaml:"max_upload_mb"`
	UploadDir      string   `yaml:"upload_dir"` // per-request folders; defaults to the OS temp dir
}

// Default returns a configuration with every optional key filled in.
func Default() *Config {
	return &Config{
		Images: ImagesConfig{
			Root:      "data/images",
			Width:     160,
			Height:    160,
			Mode:      "RGB",
			Extension: "jpg",
		},
		Duplicates: DuplicatesConfig{
			Similarity: 90,
			HashSize:   8,
			Hash:       "average",
		},
		Faces: FacesConfig{Allowed: 1},
		FaceService: FaceServiceConfig{
			URL:            "http://localhost:8000",
			MaxImageSize:   1600,
			TimeoutSeconds: 60,
		},
		Embeddings: EmbeddingsConfig{
			Backend: "file",
			Path:    "models/embeddings.gob",
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Model: ModelConfig{
			IndexPath:   "models/index.hnsw",
			EncoderPath: "models/encoder.json",
			Method:      "exact",
			Dim:         512,
		},
		Inference: InferenceConfig{ImagesFolder: "data/input"},
		Logging:   LoggingConfig{Level: "info"},
		Server:    ServerConfig{Host: "0.0.0.0", Port: 8080, MaxUploadMB: 32},
	}
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Load reads the YAML file at path on top of Default and applies environment overrides.
// A missing file is not an error; the defaults and the environment are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted CLI flag
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Images.Root = envString("LOOKALIKE_DATASET_ROOT", c.Images.Root)
	if labels := os.Getenv("LOOKALIKE_LABELS"); labels != "" {
		c.Images.Labels = splitList(labels)
	}
	c.FaceService.URL = envString("FACE_SERVICE_URL", c.FaceService.URL)
	c.FaceService.TimeoutSeconds = envInt("FACE_SERVICE_TIMEOUT", c.FaceService.TimeoutSeconds)
	c.Embeddings.Backend = envString("LOOKALIKE_EMBEDDINGS_BACKEND", c.Embeddings.Backend)
	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Model.Method = envString("LOOKALIKE_INDEX_METHOD", c.Model.Method)
	c.Logging.Level = envString("LOOKALIKE_LOG_LEVEL", c.Logging.Level)
	c.Server.Host = envString("LOOKALIKE_HOST", c.Server.Host)
	c.Server.Port = envInt("LOOKALIKE_PORT", c.Server.Port)
	if origins := os.Getenv("LOOKALIKE_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the keys every pipeline stage relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.Images.Root == "" {
		errs = append(errs, errors.New("images.root is required"))
	}
	if c.Images.Width <= 0 || c.Images.Height <= 0 {
		errs = append(errs, fmt.Errorf("images size must be positive, got %dx%d", c.Images.Width, c.Images.Height))
	}
	switch c.Images.Mode {
	case "RGB", "RGBA", "L":
	default:
		errs = append(errs, fmt.Errorf("images.mode %q is not one of RGB, RGBA, L", c.Images.Mode))
	}
	if strings.TrimPrefix(c.Images.Extension, ".") == "" {
		errs = append(errs, errors.New("images.extension is required"))
	}
	if c.Duplicates.Similarity < 0 || c.Duplicates.Similarity > 100 {
		errs = append(errs, fmt.Errorf("duplicates.similarity must be within [0, 100], got %v", c.Duplicates.Similarity))
	}
	if c.Duplicates.HashSize < 2 {
		errs = append(errs, fmt.Errorf("duplicates.hash_size must be at least 2, got %d", c.Duplicates.HashSize))
	}
	if c.Faces.Allowed < 0 {
		errs = append(errs, fmt.Errorf("faces.allowed must not be negative, got %d", c.Faces.Allowed))
	}
	switch c.Embeddings.Backend {
	case "file":
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres embeddings backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("embeddings.backend %q is not one of file, postgres", c.Embeddings.Backend))
	}
	switch c.Model.Method {
	case "exact", "hnsw":
	default:
		errs = append(errs, fmt.Errorf("model.method %q is not one of exact, hnsw", c.Model.Method))
	}
	if c.Model.Dim <= 0 {
		errs = append(errs, fmt.Errorf("model.dim must be positive, got %d", c.Model.Dim))
	}
	return errors.Join(errs...)
}

// TargetExtension returns the configured extension without a leading dot, lowercased.
func (c *ImagesConfig) TargetExtension() string {
	return strings.ToLower(strings.TrimPrefix(c.Extension, "."))
}
