package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/8gabri8/TST-bioimage/internal/buildinfo"
)

// Command creates a new cobra.Command to print the build version.
func Command(info *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of tf-analyzer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		},
	}
}
