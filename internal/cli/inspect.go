package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetload/internal/core"
)

func newInspectCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the columns, inferred types and leading rows of a file",
		Example: `  sheetload inspect --file orders.csv
  sheetload inspect --file report.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}

			insp, err := a.service().Inspect(file, data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d rows, %d columns\n\n", file, insp.Table.Rows, len(insp.Table.Columns))
			printPlan(out, insp.Plan)
			fmt.Fprintln(out)
			printPreview(out, insp.Preview)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV or Excel file (required)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func printPlan(w io.Writer, plan core.ColumnPlan) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCOLUMN\tTYPE\tINCLUDED")
	for i, s := range plan {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", i, s.Name, s.Type, s.Included)
	}
	tw.Flush()
}

func printPreview(w io.Writer, p core.Preview) {
	if len(p.Columns) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	names := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		names[i] = c.Name
	}
	fmt.Fprintln(tw, strings.Join(names, "\t"))
	for _, row := range p.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v != nil {
				cells[i] = *v
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	fmt.Fprintf(w, "Showing %d of %d rows\n", len(p.Rows), p.TotalRows)
}
