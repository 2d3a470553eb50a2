package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brensch/sitereports/internal/db"
	"github.com/brensch/sitereports/internal/inspector"
	"github.com/brensch/sitereports/internal/saver"

	"github.com/spf13/cobra"
)

var (
	saveOutput string
	saveSince  time.Duration
	saveRun    string
	saveSum    bool
)

// saveCmd exports the delivery ledger to Parquet.
var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Export the delivery ledger to a Parquet file",
	Long: `Reads the delivery ledger from DuckDB and writes it to
<output>/delivery_log.parquet, oldest event first. The output directory
defaults to the download directory. --summary reads the file back and prints
its schema, row counts and event totals.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		outDir := saveOutput
		if outDir == "" {
			outDir = cfg.Paths.DownloadDir
		}
		f := db.Filter{RunID: saveRun}
		if saveSince > 0 {
			f.Since = time.Now().Add(-saveSince)
		}

		logger.Info("Starting ledger export...", slog.String("db_path", cfg.Paths.DbPath), slog.String("output_dir", outDir))
		path, err := saver.SaveLedger(context.Background(), getDB(), outDir, f, logger)
		if err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		if !saveSum {
			return nil
		}
		summary, err := inspector.Inspect(context.Background(), getDB(), path, logger)
		if err != nil {
			return fmt.Errorf("inspect export: %w", err)
		}
		inspector.Print(cmd.OutOrStdout(), summary)
		return nil
	},
}

func init() {
	saveCmd.Flags().StringVarP(&saveOutput, "output", "o", "", "Directory for the Parquet file (defaults to the download directory)")
	saveCmd.Flags().DurationVar(&saveSince, "since", 0, "Only export events newer than this (e.g. 720h)")
	saveCmd.Flags().StringVar(&saveRun, "run", "", "Only export events of this run ID")
	saveCmd.Flags().BoolVar(&saveSum, "summary", false, "Print a summary of the written file")
}
