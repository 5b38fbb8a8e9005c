package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/lookalike/internal/config"
	"github.com/kozaktomas/lookalike/internal/curator"
)

var extendCmd = &cobra.Command{
	Use:   "extend label...",
	Short: "Add new identities to the dataset",
	Long: `Register new identity folders in the config file and curate them.

The images must already be placed in <images.root>/<label>/. Labels that match
an already configured identity (ignoring case, diacritics and separators) are
rejected and the config file is left unchanged. Run train afterwards to
include the new identities in the index.

Example:
  lookalike extend "Kendrick Lamar" "Jiří Suchý"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtend,
}

func init() {
	rootCmd.AddCommand(extendCmd)
}

func runExtend(cmd *cobra.Command, args []string) error {
	if _, _, err := loadConfig(); err != nil {
		return err
	}
	if err := config.AddLabels(configPath, args); err != nil {
		return err
	}

	// Reload so the curator sees the extended label list.
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	bar := newProgressBar(len(args), "Cleaning new folders", "folders", false)
	c, err := newCurator(cfg, newFaceClient(cfg), func(curator.Report) { advance(bar) }, log)
	if err != nil {
		return err
	}
	reports, err := c.CleanNewFolders(cmd.Context(), args)
	finish(bar)
	if err != nil {
		return err
	}

	for _, r := range reports {
		fmt.Printf("%s: kept %d of %d images\n", r.Label, len(r.Valid), r.Total)
	}
	fmt.Printf("Added %d labels to %s\n", len(args), configPath)
	return nil
}
