package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/kozaktomas/lookalike/internal/catalog"
	"github.com/kozaktomas/lookalike/internal/config"
	"github.com/kozaktomas/lookalike/internal/curator"
	_ "github.com/kozaktomas/lookalike/internal/database/postgres" // registers the postgres embeddings backend
	"github.com/kozaktomas/lookalike/internal/dedup"
	"github.com/kozaktomas/lookalike/internal/facecount"
	"github.com/kozaktomas/lookalike/internal/fingerprint"
	"github.com/kozaktomas/lookalike/internal/imagebatch"
)

// loadDataset lists the configured identity folders, or every folder under the
// root when no labels are configured.
func loadDataset(cfg *config.Config) (catalog.Batch, error) {
	if len(cfg.Images.Labels) == 0 {
		return catalog.LoadDataset(cfg.Images.Root)
	}
	return catalog.LoadLabels(cfg.Images.Root, cfg.Images.Labels)
}

func newFaceClient(cfg *config.Config) *fingerprint.FaceClient {
	return fingerprint.NewFaceClient(
		cfg.FaceService.URL,
		cfg.FaceService.MaxImageSize,
		time.Duration(cfg.FaceService.TimeoutSeconds)*time.Second,
	)
}

func newDetector(cfg *config.Config, log *slog.Logger) *dedup.Detector {
	return dedup.NewDetector(
		cfg.Duplicates.Similarity,
		cfg.Duplicates.HashSize,
		fingerprint.Algorithm(cfg.Duplicates.Hash),
		log,
	)
}

// newCurator assembles the curation pipeline from config. onFolder may be nil.
func newCurator(cfg *config.Config, client *fingerprint.FaceClient, onFolder func(curator.Report), log *slog.Logger) (*curator.Curator, error) {
	mode, err := imagebatch.ParseMode(cfg.Images.Mode)
	if err != nil {
		return nil, err
	}
	dups := newDetector(cfg, log)
	faces := facecount.NewFilter(facecount.NewServiceCounter(client), log)

	return curator.New(curator.Options{
		Root:         cfg.Images.Root,
		Labels:       cfg.Images.Labels,
		Width:        cfg.Images.Width,
		Height:       cfg.Images.Height,
		Mode:         mode,
		Extension:    cfg.Images.TargetExtension(),
		FacesAllowed: cfg.Faces.Allowed,
		OnFolder:     onFolder,
	}, dups, faces, log), nil
}

// newProgressBar creates a progress bar, or nil when output is machine readable.
func newProgressBar(count int, description, unit string, quiet bool) *progressbar.ProgressBar {
	if quiet || count == 0 {
		return nil
	}
	return progressbar.NewOptions(count,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func advance(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Add(1)
	}
}

func finish(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
