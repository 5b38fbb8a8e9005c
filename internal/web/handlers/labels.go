package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/lookalike/internal/catalog"
	"github.com/kozaktomas/lookalike/internal/database"
	"github.com/kozaktomas/lookalike/internal/logging"
)

// LabelsHandler lists the identities of the dataset.
type LabelsHandler struct {
	root  string
	store database.EmbeddingReader
	log   *slog.Logger
}

func NewLabelsHandler(root string, store database.EmbeddingReader, log *slog.Logger) *LabelsHandler {
	return &LabelsHandler{root: root, store: store, log: logging.OrDiscard(log)}
}

// LabelResponse describes one identity folder.
type LabelResponse struct {
	Name     string   `json:"name"`
	Images   int      `json:"images"`
	Embedded int      `json:"embedded"`
	Files    []string `json:"files,omitempty"`
}

// List returns every identity with its image and embedding counts.
func (h *LabelsHandler) List(w http.ResponseWriter, r *http.Request) {
	names, err := catalog.Labels(h.root)
	if err != nil {
		h.log.Error("failed to list labels", "root", h.root, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list labels")
		return
	}

	embedded, err := database.CountByLabels(r.Context(), h.store, names)
	if err != nil {
		h.log.Error("failed to count embeddings", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to count embeddings")
		return
	}

	result := make([]LabelResponse, 0, len(names))
	for _, name := range names {
		batch, err := catalog.LoadFolder(filepath.Join(h.root, name))
		if err != nil {
			h.log.Error("failed to list label images", "label", name, "error", err)
			respondError(w, http.StatusInternalServerError, "failed to list labels")
			return
		}
		result = append(result, LabelResponse{Name: name, Images: len(batch), Embedded: embedded[name]})
	}
	respondJSON(w, http.StatusOK, result)
}

func validLabel(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.HasPrefix(name, ".") && !strings.ContainsAny(name, `/\`)
}

// Get returns one identity with the names of its images.
func (h *LabelsHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !validLabel(name) {
		respondError(w, http.StatusBadRequest, "invalid label name")
		return
	}

	batch, err := catalog.LoadFolder(filepath.Join(h.root, name))
	if errors.Is(err, catalog.ErrFolderNotFound) {
		respondError(w, http.StatusNotFound, "label not found")
		return
	}
	if err != nil {
		h.log.Error("failed to list label images", "label", sanitizeForLog(name), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list label images")
		return
	}

	embedded, err := database.CountByLabels(r.Context(), h.store, []string{name})
	if err != nil {
		h.log.Error("failed to count embeddings", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to count embeddings")
		return
	}

	files := make([]string, len(batch))
	for i, p := range batch {
		files[i] = filepath.Base(p.Path)
	}
	respondJSON(w, http.StatusOK, LabelResponse{
		Name:     name,
		Images:   len(batch),
		Embedded: embedded[name],
		Files:    files,
	})
}
