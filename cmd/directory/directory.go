package directory

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/8gabri8/TST-bioimage/internal/analysis"
	"github.com/8gabri8/TST-bioimage/internal/conf"
	"github.com/8gabri8/TST-bioimage/internal/errors"
)

// Command creates a new cobra.Command for directory analysis.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory [path]",
		Short: "Analyze every well of a data directory",
		Long: `Analyze every well subdirectory of a plate scan. Each well holds pairs of
TexasRed (nuclei) and YFP (reporter) images named "<L> - <N>(fld <F> wv <channel> - ...)".
The per-entry report, per-well summary, plots and run manifest are written to
the output directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The directory to analyze is passed as the first argument
			settings.Input.Path = args[0]

			rr, err := analysis.DirectoryAnalysis(cmd.Context(), settings)
			if rr != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Analyzed %d of %d entries in %d wells\n", rr.Processed, rr.Entries, len(rr.Wells))
				fmt.Fprintf(cmd.OutOrStdout(), "Report: %s\n", rr.ReportPath)
				if rr.SummaryPath != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Summary: %s\n", rr.SummaryPath)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Plots: %s\n", rr.PlotStatus)
			}
			if err != nil {
				return err
			}
			if rr.Cancelled {
				return errors.Newf("run cancelled after %d of %d entries", rr.Processed, rr.Entries).
					Category(errors.CategoryCancellation).
					Build()
			}
			return nil
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		conf.GetLogger().Warn(err.Error())
	}

	return cmd
}

// setupFlags defines flags specific to the directory command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVarP(&settings.Output.Path, "output", "o", viper.GetString("output.path"), "Path to output directory")
	cmd.Flags().BoolVar(&settings.Output.KeepTemp, "keep-temp", viper.GetBool("output.keeptemp"), "Keep intermediate artifacts after the run")
	cmd.Flags().BoolVar(&settings.Plots.Enabled, "plots", viper.GetBool("plots.enabled"), "Render plots after the report is written")

	return conf.BindFlags(cmd.Flags(), map[string]string{
		"output":    "output.path",
		"keep-temp": "output.keeptemp",
		"plots":     "plots.enabled",
	})
}
