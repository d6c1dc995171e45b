// Package configcmd provides the config command for inspecting, validating
// and saving settings.
package configcmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/8gabri8/TST-bioimage/internal/conf"
)

// Command creates the config command with its show, validate and save subcommands
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect, validate and save the configuration",
	}

	cmd.AddCommand(
		showCommand(settings),
		validateCommand(settings),
		saveCommand(settings),
	)
	return cmd
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with credentials masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(settings.Redacted())
			if err != nil {
				return fmt.Errorf("error marshaling settings: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func validateCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.ValidateSettings(settings); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return err
		},
	}
}

func saveCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "save [path]",
		Short: "Write the effective configuration to a YAML file",
		Long:  "Write the effective configuration, including command line overrides, to path or to the default config location.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				var err error
				if path, err = conf.DefaultConfigFile(); err != nil {
					return err
				}
			}
			if err := conf.SaveYAMLConfig(path, settings); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "configuration saved to %s\n", path)
			return err
		},
	}
}
