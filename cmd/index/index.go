package index

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/8gabri8/TST-bioimage/internal/conf"
	"github.com/8gabri8/TST-bioimage/internal/well"
)

// Command creates the index command, listing what a directory analysis
// would process without analyzing anything.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "List the wells and entries of a data directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings.Input.Path = args[0]
			wells, err := well.NewIndexer(afero.NewOsFs()).Index(args[0])
			if err != nil {
				return err
			}
			return Print(cmd.OutOrStdout(), well.Ordered(wells))
		},
	}

	return cmd
}

// Print writes one line per well in report order
func Print(w io.Writer, wells []*well.Well) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WELL\tENTRIES\tPARTIAL\tDROPPED")
	total := 0
	for _, wl := range wells {
		keys := make([]string, 0, wl.Len())
		for _, e := range wl.Entries() {
			keys = append(keys, e.Key)
		}
		total += wl.Len()
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", wl.Name, strings.Join(keys, " "), wl.Partial, strings.Join(wl.DroppedKeys, " "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d wells, %d entries\n", len(wells), total)
	return err
}
