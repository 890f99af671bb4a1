package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/serptrend/serptrend/internal/run"
	"github.com/serptrend/serptrend/internal/serp"
)

var (
	runOverwrite bool
	runDate      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one collection run and commit a new dated column",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := run.Options{
			Overwrite: runOverwrite || a.Config.Run.OverwriteExistingColumn,
		}
		if runDate != "" {
			date, err := time.Parse(serp.ColumnDateLayout, runDate)
			if err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
			}
			opts.Date = date
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summary, err := a.Orchestrator().Run(ctx, opts)
		printSummary(cmd, summary)
		return err
	},
}

func printSummary(cmd *cobra.Command, s serp.RunSummary) {
	cmd.Printf("run %s: %s (column %s)\n", s.RunID, s.State, s.ColumnDate)
	cmd.Printf("  succeeded: %d  transient: %d  permanent: %d  parse failures: %d  skipped: %d\n",
		s.Succeeded, s.AbsentTransient, s.AbsentPermanent, s.ParseFailures, s.SkippedEmpty)
	if s.State == serp.RunStateFailed {
		cmd.Printf("  failed at %s: %s\n", s.FailedStage, s.ErrorText)
	} else if s.Degraded {
		cmd.Println("  column committed with absent cells")
	}
}

func init() {
	runCmd.Flags().BoolVar(&runOverwrite, "overwrite", false, "replace today's column if it already exists")
	runCmd.Flags().StringVar(&runDate, "date", "", "column date (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(runCmd)
}
