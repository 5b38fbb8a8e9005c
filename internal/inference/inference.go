// Package inference matches the faces of a folder of query images against a
// trained dataset.
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kozaktomas/lookalike/internal/catalog"
	"github.com/kozaktomas/lookalike/internal/curator"
	"github.com/kozaktomas/lookalike/internal/database"
	"github.com/kozaktomas/lookalike/internal/faces"
	"github.com/kozaktomas/lookalike/internal/identity"
	"github.com/kozaktomas/lookalike/internal/logging"
)

// Filter prepares a query folder and reports the images that cannot be used.
type Filter interface {
	FilterInferenceImages(ctx context.Context, dir string) (curator.Report, error)
}

// FaceExtractor computes the embedding of the single face in an image.
type FaceExtractor interface {
	Extract(ctx context.Context, path string) (faces.Face, error)
}

// Result pairs a query image with its closest dataset image.
type Result struct {
	Query string         `json:"query"`
	Match identity.Match `json:"match"`
}

// Ignored is a query image that was not matched.
type Ignored struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type Report struct {
	Results []Result  `json:"results"`
	Ignored []Ignored `json:"ignored"`
}

type Runner struct {
	filter    Filter
	extractor FaceExtractor
	matcher   *identity.Matcher
	log       *slog.Logger
}

func NewRunner(filter Filter, extractor FaceExtractor, matcher *identity.Matcher, log *slog.Logger) *Runner {
	return &Runner{filter: filter, extractor: extractor, matcher: matcher, log: logging.OrDiscard(log)}
}

// Run curates dir, embeds every remaining image and matches them all at once.
func (r *Runner) Run(ctx context.Context, dir string) (Report, error) {
	var report Report

	filtered, err := r.filter.FilterInferenceImages(ctx, dir)
	if err != nil {
		return report, err
	}
	for _, p := range filtered.Invalid.Paths() {
		report.Ignored = append(report.Ignored, Ignored{Path: p, Reason: string(filtered.Invalid[p])})
	}

	var queries []string
	var embeddings [][]float32
	for _, p := range filtered.Valid {
		face, err := r.extractor.Extract(ctx, p)
		if err != nil {
			r.log.Warn("ignoring query image", "path", p, "error", err)
			report.Ignored = append(report.Ignored, Ignored{Path: p, Reason: err.Error()})
			continue
		}
		queries = append(queries, p)
		embeddings = append(embeddings, face.Embedding)
	}
	sort.Slice(report.Ignored, func(i, j int) bool { return report.Ignored[i].Path < report.Ignored[j].Path })

	if len(embeddings) == 0 {
		return report, nil
	}
	matches, err := r.matcher.Match(embeddings)
	if err != nil {
		return report, err
	}
	for i, m := range matches {
		report.Results = append(report.Results, Result{Query: queries[i], Match: m})
		r.log.Info("match", "query", queries[i], "label", m.Label, "closest", m.Path, "distance", m.Distance)
	}
	return report, nil
}

// LoadMatcher loads the index and encoder artifacts and binds them to the image
// paths of the stored embeddings, which are the rows the index was fitted on.
func LoadMatcher(ctx context.Context, store database.EmbeddingReader, indexPath, encoderPath string) (*identity.Matcher, error) {
	index, err := identity.LoadIndex(indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load index (run train first): %w", err)
	}
	encoder, err := identity.LoadLabelEncoder(encoderPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load label encoder (run train first): %w", err)
	}
	rows, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}

	paths := make([]string, len(rows))
	for i, r := range rows {
		paths[i] = r.Path
	}
	return identity.NewMatcher(index, encoder, catalog.FromPaths(paths))
}
