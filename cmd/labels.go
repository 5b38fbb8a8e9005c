package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/lookalike/internal/catalog"
	"github.com/kozaktomas/lookalike/internal/database"
	"github.com/kozaktomas/lookalike/internal/labels"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List the identities of the dataset",
	Long: `List the configured identities with the number of images in each folder and
the number of stored embeddings. Folders found under the dataset root that
are not configured are listed too.`,
	RunE: runLabelsList,
}

var labelsCheckCmd = &cobra.Command{
	Use:   "check label...",
	Short: "Check whether labels would clash with configured identities",
	Long: `Print the comparison key of each label and whether extend would reject it.

Example:
  lookalike labels check "Jiri Suchy" "Kendrick Lamar"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLabelsCheck,
}

func init() {
	rootCmd.AddCommand(labelsCmd)
	labelsCmd.AddCommand(labelsCheckCmd)

	labelsCmd.Flags().Bool("json", false, "Output as JSON")
}

type labelInfo struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Images     int    `json:"images"`
	Embedded   int    `json:"embedded"`
	Missing    bool   `json:"missing,omitempty"`
}

func runLabelsList(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	configured := make(map[string]bool, len(cfg.Images.Labels))
	names := append([]string(nil), cfg.Images.Labels...)
	for _, l := range names {
		configured[l] = true
	}
	onDisk, err := catalog.Labels(cfg.Images.Root)
	if err != nil && !errors.Is(err, catalog.ErrFolderNotFound) {
		return err
	}
	for _, l := range onDisk {
		if !configured[l] {
			names = append(names, l)
		}
	}

	ctx := cmd.Context()
	store, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	embedded, err := database.CountByLabels(ctx, store, names)
	if err != nil {
		return err
	}

	infos := make([]labelInfo, 0, len(names))
	for _, name := range names {
		info := labelInfo{Name: name, Configured: configured[name] || len(cfg.Images.Labels) == 0, Embedded: embedded[name]}
		batch, err := catalog.LoadFolder(filepath.Join(cfg.Images.Root, name))
		switch {
		case errors.Is(err, catalog.ErrFolderNotFound):
			info.Missing = true
		case err != nil:
			return err
		default:
			info.Images = len(batch)
		}
		infos = append(infos, info)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(infos)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tIMAGES\tEMBEDDED\tSTATUS")
	for _, info := range infos {
		status := "ok"
		switch {
		case info.Missing:
			status = "folder missing"
		case !info.Configured:
			status = "not configured"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", info.Name, info.Images, info.Embedded, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nTotal: %d labels\n", len(infos))
	return nil
}

func runLabelsCheck(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	clashes := make(map[string]bool)
	for _, c := range labels.Conflicts(cfg.Images.Labels, args) {
		clashes[c] = true
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tKEY\tSTATUS")
	for _, name := range args {
		status := "new"
		if clashes[name] {
			status = "already configured"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, labels.Normalize(name), status)
	}
	return w.Flush()
}
