package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/brensch/sitereports/internal/db"

	"github.com/spf13/cobra"
)

var (
	stateLimit   int
	stateEvent   string
	stateRun     string
	stateLastRun bool
)

// stateCmd prints the delivery ledger.
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "View the delivery ledger",
	Long: `Queries the DuckDB delivery ledger and displays downloads, sends and run
outcomes, newest first. Filter by event type, by run ID, or use --last to
show only the most recent finished run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		conn := getDB()
		ctx := context.Background()

		f := db.Filter{RunID: stateRun, Event: stateEvent, Limit: stateLimit}
		if stateLastRun {
			runID, ended, err := db.LastRun(ctx, conn)
			if errors.Is(err, db.ErrNoRuns) {
				fmt.Fprintln(cmd.OutOrStdout(), "No run recorded yet.")
				return nil
			}
			if err != nil {
				return err
			}
			f.RunID = runID
			fmt.Fprintf(cmd.OutOrStdout(), "Last run %s ended %s\n", runID, ended.Local().Format("2006-01-02 15:04:05"))
		}

		logger.Debug("Querying delivery ledger", "run", f.RunID, "event_filter", f.Event, "limit", f.Limit)
		if err := db.DisplayHistory(ctx, conn, cmd.OutOrStdout(), f); err != nil {
			logger.Error("Failed to display delivery ledger", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "Limit the number of log records displayed")
	stateCmd.Flags().StringVarP(&stateEvent, "event", "e", "", "Filter records by event type (e.g., send_ok, send_error, download)")
	stateCmd.Flags().StringVar(&stateRun, "run", "", "Only show events of this run ID")
	stateCmd.Flags().BoolVar(&stateLastRun, "last", false, "Only show the most recent finished run")
}
