package orchestrator

import (
	"log/slog"

	"github.com/brensch/sitereports/internal/analyser"
	"github.com/brensch/sitereports/internal/chart"
	"github.com/brensch/sitereports/internal/config"
	"github.com/brensch/sitereports/internal/render"
	"github.com/brensch/sitereports/internal/workbook"
)

// BuildEnrichment selects the enrichment capabilities allowed by cfg. A
// capability that cannot start is left out and rendering falls back. The
// returned func releases resources held by the provider.
func BuildEnrichment(cfg config.Enrichment, logger *slog.Logger) (render.EnrichmentProvider, func() error) {
	noClose := func() error { return nil }
	if !cfg.Enabled {
		return render.NoEnrichment(), noClose
	}

	var charter render.Charter
	if cfg.Charts {
		charter = chart.New(cfg.Animated, cfg.FrameDuration)
	}

	a, err := analyser.New(logger)
	if err != nil {
		logger.Warn("Numeric analysis unavailable, summaries will use the placeholder.", "error", err)
		return render.NewEnrichment(workbook.Reader{}, nil, charter), noClose
	}
	return render.NewEnrichment(workbook.Reader{}, a, charter), a.Close
}
