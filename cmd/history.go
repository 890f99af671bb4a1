package cmd

import (
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/serptrend/serptrend/internal/serp"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the collected result counts as a table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		rows, err := a.Store.LoadRows(ctx)
		if err != nil {
			return err
		}
		dates, err := a.Admin.ListColumns(ctx)
		if err != nil {
			return err
		}

		columns := make([]map[string]*int64, len(dates))
		for i, date := range dates {
			cells, err := a.Admin.ReadColumn(ctx, date)
			if err != nil {
				return err
			}
			columns[i] = cells
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
		header := []string{"query"}
		for _, date := range dates {
			header = append(header, displayDate(date))
		}
		writeRow(w, header)

		for _, q := range rows {
			line := []string{q.Text}
			for _, cells := range columns {
				line = append(line, formatCell(cells[q.RowID]))
			}
			writeRow(w, line)
		}
		return w.Flush()
	},
}

// displayDate renders a stored ISO date in the spreadsheet-style header
// format; unparseable values pass through untouched.
func displayDate(date string) string {
	t, err := time.Parse(serp.ColumnDateLayout, date)
	if err != nil {
		return date
	}
	return t.Format(serp.DisplayDateLayout)
}

func formatCell(count *int64) string {
	if count == nil {
		return "-"
	}
	return strconv.FormatInt(*count, 10)
}

func writeRow(w *tabwriter.Writer, cells []string) {
	_, _ = w.Write([]byte(strings.Join(cells, "\t") + "\n"))
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
