package file

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/8gabri8/TST-bioimage/internal/analysis"
	"github.com/8gabri8/TST-bioimage/internal/conf"
)

// Command creates a new file command for analyzing a single image pair.
func Command(settings *conf.Settings) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "file [nuclear.tif] [reporter.tif]",
		Short: "Analyze one nuclear and reporter image pair",
		Long:  `Analyze a single TexasRed (nuclei) and YFP (reporter) image pair and print the entry result.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Artifacts are only kept when an output directory is given
			settings.Output.Path = output
			_, err := analysis.FileAnalysis(cmd.Context(), settings, args[0], args[1], cmd.OutOrStdout())
			return err
		},
	}

	// Set up flags specific to the 'file' command
	cmd.Flags().StringVarP(&output, "output", "o", "", "Directory receiving the region sets and localization table")
	if err := setupFlags(cmd, settings); err != nil {
		conf.GetLogger().Warn(err.Error())
	}

	return cmd
}

// setupFlags configures flags specific to the file command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVarP(&settings.Output.Format, "format", "f", viper.GetString("output.format"), "Output format: table, json")

	return conf.BindFlags(cmd.Flags(), map[string]string{
		"format": "output.format",
	})
}
