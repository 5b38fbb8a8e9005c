// Package trainer builds the identity artifacts of a dataset: one embedding per
// image, a label encoder over the identity folders and a nearest-neighbour index.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/lookalike/internal/catalog"
	"github.com/kozaktomas/lookalike/internal/database"
	"github.com/kozaktomas/lookalike/internal/faces"
	"github.com/kozaktomas/lookalike/internal/identity"
	"github.com/kozaktomas/lookalike/internal/logging"
)

// ErrEmptyTrainingSet is returned when no image of the dataset yields an embedding.
var ErrEmptyTrainingSet = errors.New("no images to train on")

// FaceExtractor computes the embedding of the single face in an image.
type FaceExtractor interface {
	Extract(ctx context.Context, path string) (faces.Face, error)
}

type Options struct {
	Root        string
	Labels      []string // empty means every identity folder under Root
	Method      identity.Method
	Dim         int
	IndexPath   string
	EncoderPath string
	// Reuse keeps stored embeddings of images that are still in the dataset instead
	// of asking the face service again.
	Reuse bool

	// OnImage, when set, is called after each dataset image.
	OnImage func(path string)
}

// Skipped is a dataset image left out of the index.
type Skipped struct {
	Path string
	Err  error
}

type Result struct {
	RunID    string
	Images   int
	Embedded int
	Reused   int
	Skipped  []Skipped
	Classes  []string
	Index    *identity.Index
	Encoder  *identity.LabelEncoder
	Duration time.Duration
}

type Trainer struct {
	opts      Options
	extractor FaceExtractor
	store     database.EmbeddingWriter
	log       *slog.Logger
}

func New(opts Options, extractor FaceExtractor, store database.EmbeddingWriter, log *slog.Logger) *Trainer {
	return &Trainer{opts: opts, extractor: extractor, store: store, log: logging.OrDiscard(log)}
}

func (t *Trainer) dataset() (catalog.Batch, error) {
	if len(t.opts.Labels) == 0 {
		return catalog.LoadDataset(t.opts.Root)
	}
	return catalog.LoadLabels(t.opts.Root, t.opts.Labels)
}

// Run embeds the dataset, stores the embeddings in dataset order and writes the
// encoder and index artifacts. Images without exactly one face are skipped and
// reported.
func (t *Trainer) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{RunID: uuid.NewString()}
	log := t.log.With("run", result.RunID)

	batch, err := t.dataset()
	if err != nil {
		return nil, err
	}
	result.Images = len(batch)

	cached := map[string]database.StoredEmbedding{}
	if t.opts.Reuse {
		stored, err := t.store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load stored embeddings: %w", err)
		}
		cached = database.ByPath(stored)
	}

	var rows []database.StoredEmbedding
	for _, img := range batch {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("training interrupted: %w", err)
		}

		if c, ok := cached[img.Path]; ok && c.Label == img.Label && len(c.Embedding) == t.opts.Dim {
			rows = append(rows, c)
			result.Reused++
		} else {
			face, err := t.extractor.Extract(ctx, img.Path)
			if err != nil {
				log.Warn("skipping image", "path", img.Path, "error", err)
				result.Skipped = append(result.Skipped, Skipped{Path: img.Path, Err: err})
			} else {
				rows = append(rows, database.StoredEmbedding{
					Path:      img.Path,
					Label:     img.Label,
					Embedding: face.Embedding,
					Model:     face.Model,
					Dim:       len(face.Embedding),
					CreatedAt: time.Now().UTC(),
				})
				result.Embedded++
			}
		}
		if t.opts.OnImage != nil {
			t.opts.OnImage(img.Path)
		}
	}

	if len(rows) == 0 {
		return nil, ErrEmptyTrainingSet
	}

	index, encoder, err := Fit(rows, t.opts.Method, t.opts.Dim)
	if err != nil {
		return nil, err
	}

	if err := t.store.Replace(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to store embeddings: %w", err)
	}
	if err := encoder.Save(t.opts.EncoderPath); err != nil {
		return nil, err
	}
	if err := index.Save(t.opts.IndexPath); err != nil {
		return nil, err
	}

	result.Classes = encoder.Classes()
	result.Index = index
	result.Encoder = encoder
	result.Duration = time.Since(start)
	log.Info("training finished",
		"images", result.Images,
		"embedded", result.Embedded,
		"reused", result.Reused,
		"skipped", len(result.Skipped),
		"classes", len(result.Classes),
		"duration", result.Duration)
	return result, nil
}

// Fit builds the encoder and index over stored embeddings, keeping their order.
// The index records the fingerprint of the embedded path list.
func Fit(rows []database.StoredEmbedding, method identity.Method, dim int) (*identity.Index, *identity.LabelEncoder, error) {
	if len(rows) == 0 {
		return nil, nil, ErrEmptyTrainingSet
	}

	labels := make([]string, len(rows))
	embeddings := make([][]float32, len(rows))
	paths := make([]string, len(rows))
	for i, r := range rows {
		labels[i] = r.Label
		embeddings[i] = r.Embedding
		paths[i] = r.Path
	}

	encoder := identity.FitLabelEncoder(labels)
	codes, err := encoder.Encode(labels)
	if err != nil {
		return nil, nil, err
	}

	index, err := identity.NewIndex(method, dim)
	if err != nil {
		return nil, nil, err
	}
	index.SetFingerprint(catalog.Fingerprint(catalog.FromPaths(paths)))
	if err := index.Fit(embeddings, codes); err != nil {
		return nil, nil, err
	}
	return index, encoder, nil
}
