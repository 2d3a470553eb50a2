package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brensch/sitereports/internal/delivery"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunObservesDelivery(t *testing.T) {
	r := NewRun()
	var obs delivery.Observer = r

	obs.BatchStarted(1, 2, nil)
	obs.AttemptFinished(delivery.Attempt{Duration: time.Second})
	obs.AttemptFinished(delivery.Attempt{Err: errors.New("x")})
	obs.Pausing(time.Second)
	obs.BatchStarted(2, 2, nil)
	r.Downloads.WithLabelValues("new").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Batches))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Pauses))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Deliveries.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Deliveries.WithLabelValues("failed")))
}

func TestFinish(t *testing.T) {
	r := NewRun()
	r.Finish(time.Now().Add(-time.Second), nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Success))
	assert.Greater(t, testutil.ToFloat64(r.LastSuccessTs), 0.0)

	failed := NewRun()
	failed.Finish(time.Now(), errors.New("boom"))
	assert.Equal(t, 0.0, testutil.ToFloat64(failed.Success))
	assert.Equal(t, 0.0, testutil.ToFloat64(failed.LastSuccessTs))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRun()
	r.Deliveries.WithLabelValues("sent").Add(3)
	r.Finish(time.Now(), nil)

	path := filepath.Join(t.TempDir(), "textfile", "sitereports.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `sitereports_deliveries_total{outcome="sent"} 3`)
	assert.Contains(t, out, "sitereports_run_success 1")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
