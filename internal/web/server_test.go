package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/lookalike/internal/config"
	"github.com/kozaktomas/lookalike/internal/database/mock"
	"github.com/kozaktomas/lookalike/internal/inference"
)

type nopRunner struct{}

func (nopRunner) Run(context.Context, string) (inference.Report, error) {
	return inference.Report{}, nil
}

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Images.Root = t.TempDir()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 9090
	cfg.Server.AllowedOrigins = []string{"https://faces.example.com"}
	if err := os.MkdirAll(filepath.Join(cfg.Images.Root, "Drake"), 0o755); err != nil {
		t.Fatal(err)
	}
	return NewServer(cfg, nopRunner{}, mock.NewMockEmbeddingStore(), nil)
}

func TestServer_Routes(t *testing.T) {
	s := testServer(t)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/api/v1/health", http.StatusOK},
		{http.MethodGet, "/api/v1/config", http.StatusOK},
		{http.MethodGet, "/api/v1/labels", http.StatusOK},
		{http.MethodGet, "/api/v1/labels/Drake", http.StatusOK},
		{http.MethodGet, "/api/v1/labels/Nobody", http.StatusNotFound},
		{http.MethodPost, "/api/v1/match", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/match", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d\nBody: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestServer_NotFoundIsJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer(t).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "not found" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestServer_Middleware(t *testing.T) {
	s := testServer(t)
	if s.Addr() != "127.0.0.1:9090" {
		t.Errorf("Addr() = %s", s.Addr())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://faces.example.com")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://faces.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}
