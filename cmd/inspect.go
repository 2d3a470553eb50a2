package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/brensch/sitereports/internal/catalog"
	"github.com/brensch/sitereports/internal/db"
	"github.com/brensch/sitereports/internal/delivery"
	"github.com/brensch/sitereports/internal/orchestrator"
	"github.com/brensch/sitereports/internal/render"

	"github.com/spf13/cobra"
)

var previewDir string

// inspectCmd shows what the next run would deliver without sending anything.
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the latest bundle, its reports and their batches",
	Long: `Selects and extracts the latest bundle exactly as 'run' would, then lists
every report with its label, batch number and ledger status. Nothing is sent.
With --preview DIR each rendered message is written to DIR for review.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		ctx := context.Background()

		prepared, err := orchestrator.Prepare(cfg, logger)
		if err != nil {
			return fmt.Errorf("inspection failed: %w", err)
		}
		bundleName := prepared.Bundle.Name()

		names := make([]string, len(prepared.Artifacts))
		for i, a := range prepared.Artifacts {
			names[i] = a.Name
		}
		delivered, err := db.DeliveredArtifacts(ctx, getDB(), bundleName, names)
		if err != nil {
			logger.Warn("Could not read delivery status from the ledger.", "error", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "bundle: %s (date %s)\nextracted to: %s\n\n", bundleName, prepared.Bundle.DateToken, prepared.Extracted.Dir)
		var rows [][]string
		for i, batch := range delivery.Partition(prepared.Artifacts, cfg.Delivery.BatchSize) {
			for _, a := range batch {
				status := "pending"
				if delivered[a.Name] {
					status = "delivered"
				}
				rows = append(rows, []string{strconv.Itoa(i + 1), a.Name, a.Label, status})
			}
		}
		fmt.Fprintln(out, renderTable([]string{"Batch", "Report", "Label", "Status"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))

		if previewDir == "" {
			return nil
		}
		return writePreviews(ctx, previewDir, prepared.Artifacts, logger)
	},
}

func writePreviews(ctx context.Context, dir string, artifacts []catalog.Artifact, logger *slog.Logger) error {
	cfg := getConfig()
	provider, closeProvider := orchestrator.BuildEnrichment(cfg.Enrichment, logger)
	defer closeProvider()
	renderer := orchestrator.NewRenderer(cfg, provider, logger)

	for _, a := range artifacts {
		msg := renderer.Render(ctx, a)
		files, err := render.WritePreview(dir, msg)
		if err != nil {
			return fmt.Errorf("preview %s: %w", a.Name, err)
		}
		logger.Info("Preview written.", slog.String("report", a.Name), slog.Int("files", len(files)), slog.Bool("degraded", msg.Degraded))
	}
	return nil
}

func init() {
	inspectCmd.Flags().StringVar(&previewDir, "preview", "", "Write rendered messages to this directory")
}
