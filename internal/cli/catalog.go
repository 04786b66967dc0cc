package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fitQuestAPI/internal/achievement"
)

func NewCatalogCommand(opts *RootOptions) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the achievement catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(opts, cmd)
			catalog, err := achievement.Default()
			if err != nil {
				return fail(f, ExitCommandError, "failed to load catalog", err)
			}

			defs := catalog.All()
			if activeOnly {
				defs = catalog.Active()
			}
			return f.Success(defs, func(w io.Writer) { writeCatalog(w, defs) })
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "only list active definitions")
	return cmd
}

func writeCatalog(w io.Writer, defs []achievement.Definition) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tMETRIC\tTHRESHOLD\tRARITY\tPOINTS")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%s\t%d\n", d.ID, d.Category, d.MetricType, d.Threshold, d.Rarity, d.Points)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d achievements\n", len(defs))
}
