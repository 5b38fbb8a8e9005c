package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/lookalike/internal/catalog"
	"github.com/kozaktomas/lookalike/internal/curator"
)

var cleanCmd = &cobra.Command{
	Use:   "clean [label...]",
	Short: "Curate identity folders of the dataset",
	Long: `Normalize every image of the given identity folders (or every configured
label when none is given) to the configured size, mode and extension, then
delete images that do not show exactly the allowed number of faces and
duplicates of images already kept.

Examples:
  lookalike clean
  lookalike clean Drake Eminem
  lookalike clean --keep-invalid --json Drake`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().Bool("keep-invalid", false, "Report invalid images without deleting them")
	cleanCmd.Flags().Float64("similarity", -1, "Override duplicates.similarity (percent)")
	cleanCmd.Flags().Bool("json", false, "Output as JSON")
}

type cleanSummary struct {
	Label   string            `json:"label"`
	Total   int               `json:"total"`
	Kept    int               `json:"kept"`
	Removed int               `json:"removed"`
	Deleted bool              `json:"deleted"`
	Invalid map[string]string `json:"invalid,omitempty"`
}

func summarize(r curator.Report) cleanSummary {
	s := cleanSummary{
		Label:   r.Label,
		Total:   r.Total,
		Kept:    len(r.Valid),
		Removed: r.Removed(),
		Deleted: r.Purged,
		Invalid: make(map[string]string, len(r.Invalid)),
	}
	for p, reason := range r.Invalid {
		s.Invalid[p] = string(reason)
	}
	return s
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	jsonOutput := mustGetBool(cmd, "json")
	keepInvalid := mustGetBool(cmd, "keep-invalid")
	if s := mustGetFloat64(cmd, "similarity"); s >= 0 {
		cfg.Duplicates.Similarity = s
	}

	labels := args
	if len(labels) == 0 {
		labels = cfg.Images.Labels
	}
	if len(labels) == 0 {
		if labels, err = catalog.Labels(cfg.Images.Root); err != nil {
			return err
		}
	}

	bar := newProgressBar(len(labels), "Cleaning folders", "folders", jsonOutput)
	c, err := newCurator(cfg, newFaceClient(cfg), nil, log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var reports []curator.Report
	for _, label := range labels {
		var r curator.Report
		if keepInvalid {
			r, err = c.CleanFolder(ctx, filepath.Join(cfg.Images.Root, label))
		} else {
			r, err = c.CleanLabel(ctx, label)
		}
		if err != nil {
			finish(bar)
			return fmt.Errorf("cleaning %s: %w", label, err)
		}
		reports = append(reports, r)
		advance(bar)
	}
	finish(bar)

	summaries := make([]cleanSummary, len(reports))
	for i, r := range reports {
		summaries[i] = summarize(r)
	}
	if jsonOutput {
		return outputJSON(summaries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tTOTAL\tKEPT\tREMOVED")
	removed := 0
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", s.Label, s.Total, s.Kept, s.Removed)
		removed += s.Removed
	}
	if err := w.Flush(); err != nil {
		return err
	}
	verb := "Removed"
	if keepInvalid {
		verb = "Found"
	}
	fmt.Printf("\n%s %d invalid images in %d folders\n", verb, removed, len(summaries))
	return nil
}
