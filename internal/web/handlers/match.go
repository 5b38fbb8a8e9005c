package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kozaktomas/lookalike/internal/inference"
	"github.com/kozaktomas/lookalike/internal/logging"
)

const uploadField = "files"

// Runner matches the images of a folder against the trained dataset.
type Runner interface {
	Run(ctx context.Context, dir string) (inference.Report, error)
}

// MatchHandler accepts uploaded query images and returns their closest identities.
type MatchHandler struct {
	runner    Runner
	uploadDir string
	maxBytes  int64
	log       *slog.Logger

	// runs are serialized; the curator rewrites files in place and the matcher is shared
	mu sync.Mutex
}

func NewMatchHandler(runner Runner, uploadDir string, maxUploadMB int, log *slog.Logger) *MatchHandler {
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	return &MatchHandler{
		runner:    runner,
		uploadDir: uploadDir,
		maxBytes:  int64(maxUploadMB) << 20,
		log:       logging.OrDiscard(log),
	}
}

// MatchResponse reports paths relative to the request: query images by file name
// and dataset images as label/file.
type MatchResponse struct {
	RequestID string              `json:"request_id"`
	Results   []inference.Result  `json:"results"`
	Ignored   []inference.Ignored `json:"ignored"`
}

var errBadUpload = errors.New("bad upload")

// Match handles a multipart upload of one or more images under the "files" field.
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File[uploadField]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	id := uuid.NewString()
	dir := filepath.Join(h.uploadDir, "lookalike-"+id)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		h.log.Error("failed to create upload folder", "dir", dir, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			h.log.Warn("failed to remove upload folder", "dir", dir, "error", err)
		}
	}()

	if err := saveUploads(dir, files); err != nil {
		if errors.Is(err, errBadUpload) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("failed to store upload", "request_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	h.mu.Lock()
	report, err := h.runner.Run(r.Context(), dir)
	h.mu.Unlock()
	if err != nil {
		h.log.Error("matching failed", "request_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "matching failed")
		return
	}

	resp := MatchResponse{
		RequestID: id,
		Results:   make([]inference.Result, 0, len(report.Results)),
		Ignored:   make([]inference.Ignored, 0, len(report.Ignored)),
	}
	for _, res := range report.Results {
		res.Query = filepath.Base(res.Query)
		res.Match.Path = filepath.Join(res.Match.Label, filepath.Base(res.Match.Path))
		resp.Results = append(resp.Results, res)
	}
	for _, ig := range report.Ignored {
		ig.Path = filepath.Base(ig.Path)
		resp.Ignored = append(resp.Ignored, ig)
	}
	h.log.Info("matched upload", "request_id", id, "matched", len(resp.Results), "ignored", len(resp.Ignored))
	respondJSON(w, http.StatusOK, resp)
}

func saveUploads(dir string, files []*multipart.FileHeader) error {
	seen := make(map[string]bool, len(files))
	for _, fh := range files {
		name := filepath.Base(filepath.Clean("/" + fh.Filename))
		if name == "/" || strings.HasPrefix(name, ".") {
			return fmt.Errorf("%w: invalid file name %q", errBadUpload, sanitizeForLog(fh.Filename))
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate file name %q", errBadUpload, name)
		}
		seen[name] = true

		if err := saveUpload(filepath.Join(dir, name), fh); err != nil {
			return err
		}
	}
	return nil
}

func saveUpload(path string, fh *multipart.FileHeader) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return dst.Close()
}
