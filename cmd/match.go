package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/lookalike/internal/config"
	"github.com/kozaktomas/lookalike/internal/database"
	"github.com/kozaktomas/lookalike/internal/faces"
	"github.com/kozaktomas/lookalike/internal/inference"
)

var matchCmd = &cobra.Command{
	Use:   "match [folder]",
	Short: "Find the closest known face for every image in a folder",
	Long: `Curate a folder of query images (defaults to inference.images_folder), embed
the remaining ones and report the dataset image and identity closest to each.

The folder is modified in place: images are normalized like the dataset and the
ones that cannot be matched (wrong face count, duplicates) are deleted and
reported as ignored.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

// newRunner loads the trained artifacts and builds the inference pipeline.
func newRunner(ctx context.Context, cfg *config.Config, store database.EmbeddingReader, log *slog.Logger) (*inference.Runner, error) {
	matcher, err := inference.LoadMatcher(ctx, store, cfg.Model.IndexPath, cfg.Model.EncoderPath)
	if err != nil {
		return nil, err
	}
	client := newFaceClient(cfg)
	c, err := newCurator(cfg, client, nil, log)
	if err != nil {
		return nil, err
	}
	return inference.NewRunner(c, faces.NewExtractor(client, cfg.Model.Dim), matcher, log), nil
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.Inference.ImagesFolder
	if len(args) == 1 {
		dir = args[0]
	}

	ctx := cmd.Context()
	store, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runner, err := newRunner(ctx, cfg, store, log)
	if err != nil {
		return err
	}
	report, err := runner.Run(ctx, dir)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(report)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "QUERY\tLABEL\tCLOSEST\tDISTANCE")
	for _, r := range report.Results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\n", r.Query, r.Match.Label, r.Match.Path, r.Match.Distance)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(report.Ignored) > 0 {
		fmt.Printf("\nIgnored %d images:\n", len(report.Ignored))
		for _, ig := range report.Ignored {
			fmt.Printf("  %s: %s\n", ig.Path, ig.Reason)
		}
	}
	return nil
}
