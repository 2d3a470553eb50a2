package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/brensch/sitereports/internal/app"
	"github.com/brensch/sitereports/internal/mailer"
	"github.com/brensch/sitereports/internal/orchestrator"
	"github.com/brensch/sitereports/internal/portal"

	"github.com/spf13/cobra"
)

var (
	runTUI     bool
	runOffline bool
	runResend  bool
)

// runCmd performs one complete cycle.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Retrieve the latest bundle and mail every report it contains",
	Long: `Performs one complete cycle:
1. Logs into the portal and downloads bundles not yet in the download history.
2. Selects the most recent bundle in the download directory and extracts it.
3. Lists the reports it contains.
4. Mails them in batches, pausing between batches, and records every attempt.
Reports already sent for this bundle are skipped unless --resend is given.
Use --offline to work only on bundles already on disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		if err := cfg.ValidateDelivery(!runOffline); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		enrichment, closeEnrichment := orchestrator.BuildEnrichment(cfg.Enrichment, logger)
		defer func() {
			if err := closeEnrichment(); err != nil {
				logger.Warn("Failed to release enrichment resources.", "error", err)
			}
		}()

		p := &orchestrator.Pipeline{
			Cfg:        cfg,
			DB:         getDB(),
			Transport:  mailer.New(cfg.SMTP, logger),
			Enrichment: enrichment,
			Logger:     logger,
			Resend:     runResend,
		}
		switch {
		case runOffline:
			logger.Info("Offline run, portal retrieval disabled.")
		case !cfg.Portal.Enabled:
			logger.Info("Portal retrieval disabled in configuration.")
		default:
			client, err := portal.New(cfg.Portal, logger)
			if err != nil {
				return fmt.Errorf("portal client: %w", err)
			}
			p.Source = client
		}

		logger.Info("Starting delivery cycle...", slog.Int("recipients", len(cfg.Delivery.Recipients)), slog.Int("batch_size", cfg.Delivery.BatchSize))

		if runTUI {
			return app.Run(ctx, "Site reports", func(ctx context.Context, r *app.Reporter) (string, error) {
				p.Observer = r
				p.OnStage = r.Stage
				res, err := p.RunCycle(ctx)
				return describeResult(res), err
			})
		}

		res, err := p.RunCycle(ctx)
		printResult(cmd.OutOrStdout(), res)
		if err != nil {
			return fmt.Errorf("run failed: %w", err)
		}
		return nil
	},
}

func describeResult(res *orchestrator.Result) string {
	if res == nil {
		return ""
	}
	if res.Bundle == "" {
		return fmt.Sprintf("run %s: no bundle delivered", res.RunID)
	}
	s := fmt.Sprintf("%s: %s", res.Bundle, res.Tally.Summary())
	if res.AlreadyDelivered > 0 {
		s += fmt.Sprintf(", %d already delivered", res.AlreadyDelivered)
	}
	if res.NotAttempted > 0 {
		s += fmt.Sprintf(", %d not attempted", res.NotAttempted)
	}
	return s
}

func printResult(w io.Writer, res *orchestrator.Result) {
	if res == nil {
		return
	}
	fmt.Fprintln(w, describeResult(res))
	if res.Downloads.New > 0 || res.Downloads.Skipped > 0 {
		fmt.Fprintf(w, "downloads: %d new, %d already known\n", res.Downloads.New, res.Downloads.Skipped)
	}
	if report := res.Tally.FailureReport(); report != "" {
		fmt.Fprintln(w, report)
	}
}

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show a progress view; logs go to <download_dir>/sitereports.log")
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "Skip portal retrieval and use bundles already on disk")
	runCmd.Flags().BoolVar(&runResend, "resend", false, "Deliver every report even if the ledger records it as sent")
}
