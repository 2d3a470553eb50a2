// Package metrics records one pipeline cycle in a Prometheus registry and
// writes it as a node-exporter textfile.
package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/brensch/sitereports/internal/catalog"
	"github.com/brensch/sitereports/internal/delivery"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "sitereports"

// Run holds the metrics of a single cycle. It implements delivery.Observer.
type Run struct {
	Registry *prometheus.Registry

	Downloads     *prometheus.CounterVec
	Deliveries    *prometheus.CounterVec
	Batches       prometheus.Counter
	Pauses        prometheus.Counter
	Duration      prometheus.Gauge
	Success       prometheus.Gauge
	LastSuccessTs prometheus.Gauge
	SendSeconds   prometheus.Histogram
}

// NewRun returns a fresh registry with every metric registered.
func NewRun() *Run {
	r := &Run{
		Registry: prometheus.NewRegistry(),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Portal downloads in this cycle by result.",
		}, []string{"result"}), // new | skipped
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Delivery attempts in this cycle by outcome.",
		}, []string{"outcome"}), // sent | failed | skipped
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Mail batches started in this cycle.",
		}),
		Pauses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_pauses_total",
			Help:      "Inter-batch delays taken in this cycle.",
		}),
		Duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last cycle.",
		}),
		Success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success",
			Help:      "1 when the last cycle succeeded, 0 otherwise.",
		}),
		LastSuccessTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful cycle.",
		}),
		SendSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Time to render and send one report.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	r.Registry.MustRegister(r.Downloads, r.Deliveries, r.Batches, r.Pauses, r.Duration, r.Success, r.LastSuccessTs, r.SendSeconds)
	return r
}

func (r *Run) BatchStarted(int, int, []catalog.Artifact) { r.Batches.Inc() }

func (r *Run) Pausing(time.Duration) { r.Pauses.Inc() }

func (r *Run) AttemptFinished(a delivery.Attempt) {
	r.SendSeconds.Observe(a.Duration.Seconds())
	if a.OK() {
		r.Deliveries.WithLabelValues("sent").Inc()
	} else {
		r.Deliveries.WithLabelValues("failed").Inc()
	}
}

// Finish stamps the cycle outcome.
func (r *Run) Finish(started time.Time, err error) {
	r.Duration.Set(time.Since(started).Seconds())
	if err != nil {
		r.Success.Set(0)
		return
	}
	r.Success.Set(1)
	r.LastSuccessTs.SetToCurrentTime()
}

// WritePrometheus writes the text exposition format to w.
func (r *Run) WritePrometheus(w io.Writer) error {
	families, err := r.Registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// WriteTextfile replaces path atomically so a collector never reads a
// partial file.
func (r *Run) WriteTextfile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".sitereports-metrics-*")
	if err != nil {
		return fmt.Errorf("create temp metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := r.WritePrometheus(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("encode metrics: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp metrics file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod metrics file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace metrics file: %w", err)
	}
	return nil
}
