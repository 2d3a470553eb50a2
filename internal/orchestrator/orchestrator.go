// Package orchestrator runs one complete ingest and delivery cycle.
package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brensch/sitereports/internal/bundle"
	"github.com/brensch/sitereports/internal/catalog"
	"github.com/brensch/sitereports/internal/config"
	"github.com/brensch/sitereports/internal/db"
	"github.com/brensch/sitereports/internal/delivery"
	"github.com/brensch/sitereports/internal/history"
	"github.com/brensch/sitereports/internal/metrics"
	"github.com/brensch/sitereports/internal/portal"
	"github.com/brensch/sitereports/internal/render"

	"github.com/google/uuid"
)

// Stage names reported to StageFunc.
const (
	StageIngest   = "ingest"
	StageResolve  = "resolve"
	StageCatalog  = "catalog"
	StageDeliver  = "deliver"
	StageFinished = "finished"
)

// StageFunc is told when the cycle enters a stage.
type StageFunc func(stage, detail string)

// Pipeline wires the components of a cycle. Source may be nil to work on
// local bundles only.
type Pipeline struct {
	Cfg        *config.Config
	DB         *sql.DB
	Source     portal.Source
	Transport  delivery.Transport
	Enrichment render.EnrichmentProvider
	Logger     *slog.Logger

	// Resend ignores ledger bookkeeping and delivers the whole catalog.
	Resend bool
	// Sleep overrides the inter-batch wait, mostly for tests.
	Sleep    func(time.Duration)
	Observer delivery.Observer
	OnStage  StageFunc
}

// Result describes a finished cycle.
type Result struct {
	RunID            string
	Bundle           string
	Downloads        IngestStats
	Catalog          int
	AlreadyDelivered int
	// NotAttempted counts pending reports skipped because the run was interrupted.
	NotAttempted     int
	Tally            *delivery.Tally
}

// Prepared is a resolved, extracted and listed bundle.
type Prepared struct {
	Bundle    bundle.Candidate
	Extracted bundle.Extracted
	Artifacts []catalog.Artifact
}

// Prepare selects the latest bundle in the download directory, extracts it
// and lists its reports. Every error is fatal to a cycle.
func Prepare(cfg *config.Config, logger *slog.Logger) (Prepared, error) {
	candidates, err := bundle.Discover(cfg.Paths.DownloadDir, cfg.Bundle.Prefix)
	if err != nil {
		return Prepared{}, err
	}
	latest, err := bundle.SelectLatest(candidates)
	if err != nil {
		return Prepared{}, fmt.Errorf("%w in %s", err, cfg.Paths.DownloadDir)
	}
	logger.Info("Selected latest bundle.", slog.String("bundle", latest.Name()), slog.String("date", latest.DateToken), slog.Int("candidates", len(candidates)))

	extracted, err := bundle.Extract(latest, logger)
	if err != nil {
		return Prepared{}, err
	}
	artifacts, err := catalog.List(extracted.Dir, catalog.Labeler{Prefix: cfg.Bundle.Prefix, Suffix: cfg.Bundle.ReportSuffix})
	if err != nil {
		return Prepared{}, err
	}
	logger.Info("Listed reports.", slog.String("dir", extracted.Dir), slog.Int("count", len(artifacts)))
	return Prepared{Bundle: latest, Extracted: extracted, Artifacts: artifacts}, nil
}

// NewRenderer builds the message renderer from configuration.
func NewRenderer(cfg *config.Config, provider render.EnrichmentProvider, logger *slog.Logger) *render.Renderer {
	return render.New(render.Options{
		Recipients:     cfg.Delivery.Recipients,
		SubjectPrefix:  cfg.Delivery.SubjectPrefix,
		Greeting:       cfg.Delivery.Greeting,
		Signature:      cfg.Delivery.Signature,
		HTML:           cfg.Enrichment.Enabled,
		MaxSheets:      cfg.Enrichment.MaxSheets,
		MaxTailRows:    cfg.Enrichment.MaxTailRows,
		MaxTrendPoints: cfg.Enrichment.MaxTrendPoints,
	}, provider, logger.With(slog.String("component", "renderer")))
}

func (p *Pipeline) stage(stage, detail string) {
	if p.OnStage != nil {
		p.OnStage(stage, detail)
	}
}

// RunCycle executes one cycle: ingest, resolve, catalog, deliver, aggregate.
// The returned error is non-nil when no bundle was found, the catalog was
// empty, or every delivery attempt failed. The Result is always non-nil.
func (p *Pipeline) RunCycle(ctx context.Context) (res *Result, err error) {
	started := time.Now()
	runID := uuid.NewString()
	logger := p.Logger.With(slog.String("run_id", runID))
	res = &Result{RunID: runID, Tally: &delivery.Tally{}}

	lock, err := acquireLock(p.Cfg.Paths.LockFile)
	if err != nil {
		return res, err
	}
	defer lock.Unlock()

	runMetrics := metrics.NewRun()
	rec := db.NewRecorder(ctx, p.DB, runID, "", logger)
	defer func() {
		runMetrics.Finish(started, err)
		if path := p.Cfg.Paths.MetricsFile; path != "" {
			if werr := runMetrics.WriteTextfile(path); werr != nil {
				logger.Warn("Failed to write metrics textfile.", "error", werr)
			}
		}
		elapsed := time.Since(started)
		if err != nil {
			rec.Log(db.EventRunFailed, "", err.Error(), &elapsed)
		} else {
			rec.Log(db.EventRunEnd, "", res.Tally.Summary(), &elapsed)
		}
		p.stage(StageFinished, res.Tally.Summary())
	}()

	store := history.NewStore(p.Cfg.Paths.HistoryFile, logger)
	set := store.Load()
	defer func() {
		if perr := store.Persist(set); perr != nil {
			logger.Error("Failed to persist download history.", "error", perr)
			err = errors.Join(err, perr)
		}
	}()

	if p.Source != nil {
		p.stage(StageIngest, "retrieving bundles")
		stats, ierr := Ingest(ctx, p.Source, p.Cfg.Paths.DownloadDir, set, rec, logger)
		res.Downloads = stats
		runMetrics.Downloads.WithLabelValues("new").Add(float64(stats.New))
		runMetrics.Downloads.WithLabelValues("skipped").Add(float64(stats.Skipped))
		if ierr != nil {
			logger.Warn("Retrieval finished with errors, continuing with local bundles.", "error", ierr)
		}
		logger.Info("Retrieval complete.", slog.Int("new", stats.New), slog.Int("skipped", stats.Skipped))
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	p.stage(StageResolve, "selecting latest bundle")
	prepared, err := Prepare(p.Cfg, logger)
	if err != nil {
		logger.Error("Cannot prepare delivery.", "error", err)
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	res.Bundle = prepared.Bundle.Name()
	res.Catalog = len(prepared.Artifacts)
	rec.SetBundle(res.Bundle)
	logger = logger.With(slog.String("bundle", res.Bundle))

	p.stage(StageCatalog, fmt.Sprintf("%d reports in %s", len(prepared.Artifacts), res.Bundle))
	todo := prepared.Artifacts
	if p.Cfg.Delivery.SkipDelivered && !p.Resend {
		todo, err = p.pending(ctx, res.Bundle, prepared.Artifacts, rec)
		if err != nil {
			return res, err
		}
		res.AlreadyDelivered = len(prepared.Artifacts) - len(todo)
		runMetrics.Deliveries.WithLabelValues("skipped").Add(float64(res.AlreadyDelivered))
		if len(todo) == 0 {
			logger.Info("Every report of this bundle was already delivered.", slog.Int("reports", len(prepared.Artifacts)))
			return res, nil
		}
	}

	p.stage(StageDeliver, fmt.Sprintf("%d reports", len(todo)))
	batcher := &delivery.Batcher{
		Transport: p.Transport,
		Renderer:  NewRenderer(p.Cfg, p.Enrichment, logger),
		BatchSize: p.Cfg.Delivery.BatchSize,
		Delay:     p.Cfg.Delivery.BatchDelay,
		Sleep:     p.Sleep,
		Observer:  delivery.Observers(rec, runMetrics, p.Observer),
		Logger:    logger,
	}
	res.Tally = batcher.Deliver(ctx, todo)
	res.NotAttempted = len(todo) - res.Tally.Attempted

	if cerr := ctx.Err(); cerr != nil && res.NotAttempted > 0 {
		logger.Warn("Delivery interrupted.", slog.String("summary", res.Tally.Summary()), slog.Int("not_attempted", res.NotAttempted))
		return res, errors.Join(fmt.Errorf("delivery interrupted, %d reports not attempted: %w", res.NotAttempted, cerr), res.Tally.Outcome())
	}

	if err := res.Tally.Outcome(); err != nil {
		logger.Error("No report was delivered.", slog.String("summary", res.Tally.Summary()), slog.String("failures", res.Tally.FailureReport()))
		return res, err
	}
	if res.Tally.Failed > 0 {
		logger.Warn("Delivery finished with failures.", slog.String("summary", res.Tally.Summary()), slog.String("failures", res.Tally.FailureReport()))
	} else {
		logger.Info("Delivery finished.", slog.String("summary", res.Tally.Summary()))
	}
	return res, nil
}

// pending drops artifacts the ledger already records as sent for bundle.
func (p *Pipeline) pending(ctx context.Context, bundleName string, artifacts []catalog.Artifact, rec *db.Recorder) ([]catalog.Artifact, error) {
	names := make([]string, len(artifacts))
	for i, a := range artifacts {
		names[i] = a.Name
	}
	delivered, err := db.DeliveredArtifacts(ctx, p.DB, bundleName, names)
	if err != nil {
		return nil, fmt.Errorf("check delivered reports: %w", err)
	}
	todo := make([]catalog.Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		if delivered[a.Name] {
			rec.Log(db.EventSkipDelivered, a.Name, "already sent for this bundle", nil)
			continue
		}
		todo = append(todo, a)
	}
	return todo, nil
}
