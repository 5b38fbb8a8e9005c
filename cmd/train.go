package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/lookalike/internal/database"
	"github.com/kozaktomas/lookalike/internal/faces"
	"github.com/kozaktomas/lookalike/internal/identity"
	"github.com/kozaktomas/lookalike/internal/trainer"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Embed the dataset and build the identity index",
	Long: `Compute one face embedding per dataset image, store the embeddings and
write the label encoder and nearest-neighbour index artifacts.

Images in which the face service does not find exactly one face are skipped.
With --reuse, stored embeddings of images that are still in the dataset are
kept instead of being computed again.`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().Bool("reuse", false, "Reuse stored embeddings of unchanged images")
	trainCmd.Flags().String("method", "", "Index method: exact or hnsw (overrides model.method)")
	trainCmd.Flags().Bool("json", false, "Output as JSON")
}

type trainSummary struct {
	RunID    string   `json:"run_id"`
	Images   int      `json:"images"`
	Embedded int      `json:"embedded"`
	Reused   int      `json:"reused"`
	Skipped  []string `json:"skipped"`
	Classes  []string `json:"classes"`
	Method   string   `json:"method"`
	Duration string   `json:"duration"`
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	jsonOutput := mustGetBool(cmd, "json")

	methodName := cfg.Model.Method
	if m := mustGetString(cmd, "method"); m != "" {
		methodName = m
	}
	method, err := identity.ParseMethod(methodName)
	if err != nil {
		return err
	}

	dataset, err := loadDataset(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	bar := newProgressBar(len(dataset), "Embedding faces", "images", jsonOutput)
	t := trainer.New(trainer.Options{
		Root:        cfg.Images.Root,
		Labels:      cfg.Images.Labels,
		Method:      method,
		Dim:         cfg.Model.Dim,
		IndexPath:   cfg.Model.IndexPath,
		EncoderPath: cfg.Model.EncoderPath,
		Reuse:       mustGetBool(cmd, "reuse"),
		OnImage:     func(string) { advance(bar) },
	}, faces.NewExtractor(newFaceClient(cfg), cfg.Model.Dim), store, log)

	result, err := t.Run(ctx)
	finish(bar)
	if err != nil {
		return err
	}

	summary := trainSummary{
		RunID:    result.RunID,
		Images:   result.Images,
		Embedded: result.Embedded,
		Reused:   result.Reused,
		Skipped:  make([]string, 0, len(result.Skipped)),
		Classes:  result.Classes,
		Method:   string(method),
		Duration: result.Duration.String(),
	}
	for _, s := range result.Skipped {
		summary.Skipped = append(summary.Skipped, s.Path)
	}
	if jsonOutput {
		return outputJSON(summary)
	}

	for _, s := range result.Skipped {
		fmt.Printf("skipped %s: %v\n", s.Path, s.Err)
	}
	fmt.Printf("Indexed %d of %d images (%d embedded, %d reused) across %d identities with the %s method in %s\n",
		result.Embedded+result.Reused, result.Images, result.Embedded, result.Reused,
		len(result.Classes), method, result.Duration.Round(time.Millisecond))
	fmt.Printf("Index:   %s\nEncoder: %s\n", cfg.Model.IndexPath, cfg.Model.EncoderPath)
	return nil
}
