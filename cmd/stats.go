package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/lookalike/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Compute per-channel mean and standard deviation of the dataset",
	Long: `Compute the mean and standard deviation of the R, G and B channels over every
image of the dataset, with pixel values scaled to [0, 1]. The values are the
normalization constants an embedding network expects for this dataset.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	dataset, err := loadDataset(cfg)
	if err != nil {
		return err
	}

	s, err := stats.NewCalculator(log).Compute(cmd.Context(), dataset.Paths())
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(s)
	}

	fmt.Printf("Images: %d (%d pixels)\n", s.Images, s.Pixels)
	fmt.Printf("Mean:   [%.4f, %.4f, %.4f]\n", s.Mean[0], s.Mean[1], s.Mean[2])
	fmt.Printf("Std:    [%.4f, %.4f, %.4f]\n", s.Std[0], s.Std[1], s.Std[2])
	return nil
}
