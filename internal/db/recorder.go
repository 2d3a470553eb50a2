package db

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/brensch/sitereports/internal/catalog"
	"github.com/brensch/sitereports/internal/delivery"
)

// Recorder writes delivery progress to the ledger as it happens. Write
// failures are logged and never interrupt delivery.
type Recorder struct {
	ctx    context.Context
	db     *sql.DB
	runID  string
	bundle string
	logger *slog.Logger
}

// NewRecorder returns an observer bound to one run and bundle. Rows are still
// written after ctx is cancelled: a send accepted by the server must reach
// the ledger or the next cycle mails it again.
func NewRecorder(ctx context.Context, db *sql.DB, runID, bundle string, logger *slog.Logger) *Recorder {
	return &Recorder{ctx: context.WithoutCancel(ctx), db: db, runID: runID, bundle: bundle, logger: logger}
}

// Log writes an arbitrary event for this run.
func (r *Recorder) Log(event, artifact, message string, d *time.Duration) {
	err := LogEvent(r.ctx, r.db, Event{
		RunID:    r.runID,
		Bundle:   r.bundle,
		Artifact: artifact,
		Event:    event,
		Message:  message,
		Duration: d,
	})
	if err != nil {
		r.logger.Warn("Failed to write ledger event.", "event", event, "error", err)
	}
}

// SetBundle changes the bundle stamped on subsequent rows.
func (r *Recorder) SetBundle(bundle string) { r.bundle = bundle }

func (r *Recorder) BatchStarted(int, int, []catalog.Artifact) {}

func (r *Recorder) Pausing(time.Duration) {}

func (r *Recorder) AttemptFinished(a delivery.Attempt) {
	e := Event{
		RunID:      r.runID,
		Bundle:     r.bundle,
		Artifact:   a.Artifact.Name,
		Event:      EventSendOK,
		Recipients: a.Recipients,
		Duration:   &a.Duration,
	}
	if !a.OK() {
		e.Event = EventSendError
		e.Message = a.Err.Error()
	} else if a.Degraded {
		e.Message = "degraded"
	}
	if err := LogEvent(r.ctx, r.db, e); err != nil {
		r.logger.Warn("Failed to write ledger event.", "event", e.Event, "artifact", a.Artifact.Name, "error", err)
	}
}
