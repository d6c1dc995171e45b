package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/8gabri8/TST-bioimage/cmd/configcmd"
	"github.com/8gabri8/TST-bioimage/cmd/directory"
	"github.com/8gabri8/TST-bioimage/cmd/file"
	"github.com/8gabri8/TST-bioimage/cmd/index"
	"github.com/8gabri8/TST-bioimage/cmd/version"
	"github.com/8gabri8/TST-bioimage/internal/buildinfo"
	"github.com/8gabri8/TST-bioimage/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tf-analyzer",
		Short:         "Transcription factor localization analyzer",
		Long:          "Classify how a fluorescent reporter localizes relative to mitotic nuclei in plate scans.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		conf.GetLogger().Warn(err.Error())
	}

	versionCmd := version.Command(info)
	subcommands := []*cobra.Command{
		directory.Command(settings),
		file.Command(settings),
		index.Command(settings),
		configcmd.Command(settings),
		versionCmd,
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		// Sync the settings with viper so command line flags take precedence
		return conf.Sync(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	flags.StringVar(&settings.Python.EnvDir, "python-env", viper.GetString("python.envdir"), "Python environment holding the collaborator scripts")
	flags.StringVar(&settings.Segmentation.Engine, "segmenter", viper.GetString("segmentation.engine"), "Segmentation engine: stardist or contour")
	flags.StringVar(&settings.Classify.Engine, "classifier", viper.GetString("classify.engine"), "Stage classifier: randomforest or passthrough")
	flags.Float64Var(&settings.Preprocess.Sigma, "sigma", viper.GetFloat64("preprocess.sigma"), "Gaussian blur sigma of the nuclear channel")
	flags.Float64Var(&settings.Segmentation.Probability, "probability", viper.GetFloat64("segmentation.probability"), "StarDist probability threshold")
	flags.Float64Var(&settings.Segmentation.Overlap, "overlap", viper.GetFloat64("segmentation.overlap"), "StarDist overlap threshold")
	flags.Float64Var(&settings.Filter.NoiseStd, "noise-std", viper.GetFloat64("filter.noisestd"), "Minimum reporter standard deviation of a usable entry")
	flags.Float64Var(&settings.Filter.AreaMin, "area-min", viper.GetFloat64("filter.areamin"), "Minimum nucleus area in pixels")
	flags.Float64Var(&settings.Filter.AreaMax, "area-max", viper.GetFloat64("filter.areamax"), "Maximum nucleus area in pixels")
	flags.Float64Var(&settings.Filter.Circularity, "circularity", viper.GetFloat64("filter.circularity"), "Nuclei more circular than this are rejected")
	flags.Float64Var(&settings.Classify.Margin, "margin", viper.GetFloat64("classify.margin"), "Localization distance margin")

	return conf.BindFlags(flags, map[string]string{
		"debug":       "debug",
		"python-env":  "python.envdir",
		"segmenter":   "segmentation.engine",
		"classifier":  "classify.engine",
		"sigma":       "preprocess.sigma",
		"probability": "segmentation.probability",
		"overlap":     "segmentation.overlap",
		"noise-std":   "filter.noisestd",
		"area-min":    "filter.areamin",
		"area-max":    "filter.areamax",
		"circularity": "filter.circularity",
		"margin":      "classify.margin",
	})
}
