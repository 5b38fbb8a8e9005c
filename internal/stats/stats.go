// Package stats computes per-channel pixel statistics of a dataset, used to
// normalize images before they reach an embedding network.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"

	"github.com/kozaktomas/lookalike/internal/logging"
)

// Stats holds the mean and standard deviation of the R, G and B channels, with
// pixel values scaled to [0, 1].
type Stats struct {
	Images int        `json:"images"`
	Pixels int64      `json:"pixels"`
	Mean   [3]float64 `json:"mean"`
	Std    [3]float64 `json:"std"`
}

// Calculator accumulates channel sums over images.
type Calculator struct {
	log *slog.Logger
}

func NewCalculator(log *slog.Logger) *Calculator {
	return &Calculator{log: logging.OrDiscard(log)}
}

// Compute reads every image and returns the pooled statistics. Images that cannot
// be decoded are logged and skipped.
func (c *Calculator) Compute(ctx context.Context, paths []string) (Stats, error) {
	var s Stats
	var sum, sumSq [3]float64

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return s, fmt.Errorf("stats interrupted: %w", err)
		}
		img, err := imaging.Open(p)
		if err != nil {
			c.log.Warn("skipping unreadable image", "path", p, "error", err)
			continue
		}
		nrgba := imaging.Clone(img)
		for i := 0; i < len(nrgba.Pix); i += 4 {
			for ch := range 3 {
				v := float64(nrgba.Pix[i+ch]) / 255
				sum[ch] += v
				sumSq[ch] += v * v
			}
		}
		s.Pixels += int64(len(nrgba.Pix) / 4)
		s.Images++
	}

	if s.Pixels == 0 {
		return s, nil
	}
	n := float64(s.Pixels)
	for ch := range 3 {
		mean := sum[ch] / n
		s.Mean[ch] = mean
		s.Std[ch] = math.Sqrt(math.Max(sumSq[ch]/n-mean*mean, 0))
	}
	return s, nil
}
