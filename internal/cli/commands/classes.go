package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"metabridge/internal/codec"
	"metabridge/internal/status"
)

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "List information classes and how each is served",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CLASS\tNAME\tQUERY\tSET")
		for _, d := range codec.Classes() {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", uint32(d.Class), d.Name, queryMode(d), setMode(d))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(classesCmd)
}

func queryMode(d *codec.Descriptor) string {
	if d.QueryStatus != status.Success {
		return d.QueryStatus.String()
	}
	if d.Source == codec.SourceNode {
		return "node"
	}
	return "record"
}

func setMode(d *codec.Descriptor) string {
	if d.SetStatus != status.Success {
		return d.SetStatus.String()
	}
	if d.SetLocal {
		return "local"
	}
	return "provider"
}
