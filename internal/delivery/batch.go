// Package delivery sends rendered reports in throttled batches and tallies
// the outcome of a run.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brensch/sitereports/internal/catalog"
	"github.com/brensch/sitereports/internal/render"
)

// Session is a connection to the mail transport owned by one batch.
type Session interface {
	Send(ctx context.Context, msg render.Message) error
	Close() error
}

// Transport opens sessions.
type Transport interface {
	Open(ctx context.Context) (Session, error)
}

// Renderer builds the message for one artifact. It must not fail.
type Renderer interface {
	Render(ctx context.Context, a catalog.Artifact) render.Message
}

// Attempt is the outcome of delivering one artifact.
type Attempt struct {
	Artifact   catalog.Artifact
	Batch      int
	Recipients []string
	Degraded   bool
	Err        error
	Duration   time.Duration
}

// OK reports whether the message was sent.
func (a Attempt) OK() bool { return a.Err == nil }

// Partition splits items into consecutive slices of at most size elements.
// A size below one yields a single batch.
func Partition[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size < 1 {
		size = len(items)
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end:end])
	}
	return batches
}

// Batcher delivers a catalog batch by batch, one session per batch.
type Batcher struct {
	Transport Transport
	Renderer  Renderer
	BatchSize int
	Delay     time.Duration
	// Sleep waits between batches. Defaults to time.Sleep.
	Sleep    func(time.Duration)
	Observer Observer
	Logger   *slog.Logger
}

// Deliver sends every artifact and returns the tally. Individual failures are
// recorded, never returned. Cancelling ctx stops before the next batch.
func (b *Batcher) Deliver(ctx context.Context, artifacts []catalog.Artifact) *Tally {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := b.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	obs := b.Observer
	if obs == nil {
		obs = NopObserver{}
	}

	tally := &Tally{}
	batches := Partition(artifacts, b.BatchSize)
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			logger.Warn("Delivery interrupted.", "error", err, slog.Int("remaining_batches", len(batches)-i))
			break
		}
		obs.BatchStarted(i+1, len(batches), batch)
		b.runBatch(ctx, i+1, batch, tally, obs, logger.With(slog.Int("batch", i+1)))

		if i < len(batches)-1 && b.Delay > 0 {
			logger.Info("Pausing between batches.", slog.Duration("delay", b.Delay))
			obs.Pausing(b.Delay)
			sleep(b.Delay)
		}
	}
	return tally
}

func (b *Batcher) runBatch(ctx context.Context, index int, batch []catalog.Artifact, tally *Tally, obs Observer, logger *slog.Logger) {
	logger.Info("Starting batch.", slog.Int("size", len(batch)))
	session, err := b.Transport.Open(ctx)
	if err != nil {
		logger.Error("Failed to open mail session, batch marked failed.", "error", err)
		for _, a := range batch {
			b.record(Attempt{Artifact: a, Batch: index, Err: fmt.Errorf("open session: %w", err)}, tally, obs, logger)
		}
		return
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("Failed to close mail session.", "error", err)
		}
	}()

	for _, a := range batch {
		start := time.Now()
		attempt := b.sendOne(ctx, session, a)
		attempt.Batch = index
		attempt.Duration = time.Since(start)
		b.record(attempt, tally, obs, logger)
	}
}

// sendOne renders and sends one artifact, converting a panic into a failure.
func (b *Batcher) sendOne(ctx context.Context, session Session, a catalog.Artifact) (attempt Attempt) {
	attempt.Artifact = a
	defer func() {
		if p := recover(); p != nil {
			attempt.Err = fmt.Errorf("panic while delivering %s: %v", a.Name, p)
		}
	}()
	msg := b.Renderer.Render(ctx, a)
	attempt.Recipients = msg.To
	attempt.Degraded = msg.Degraded
	if err := session.Send(ctx, msg); err != nil {
		attempt.Err = err
	}
	return attempt
}

func (b *Batcher) record(a Attempt, tally *Tally, obs Observer, logger *slog.Logger) {
	tally.Record(a)
	obs.AttemptFinished(a)
	l := logger.With(slog.String("artifact", a.Artifact.Name), slog.String("label", a.Artifact.Label))
	if a.OK() {
		l.Info("Report sent.", slog.Duration("duration", a.Duration), slog.Bool("degraded", a.Degraded))
	} else {
		l.Error("Report delivery failed.", "error", a.Err)
	}
}
