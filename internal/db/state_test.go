package db

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brensch/sitereports/internal/catalog"
	"github.com/brensch/sitereports/internal/delivery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, InitializeSchema(conn))
	return conn
}

func TestInitializeSchemaIsRepeatable(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, InitializeSchema(conn))
}

func TestLogAndListEvents(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	d := 1500 * time.Millisecond
	base := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)

	require.NoError(t, LogEvent(ctx, conn, Event{RunID: "r1", Bundle: "b.zip", Artifact: "b.zip", Event: EventDownload, Timestamp: base}))
	require.NoError(t, LogEvent(ctx, conn, Event{RunID: "r1", Bundle: "b.zip", Artifact: "a.xlsx", Event: EventSendOK, Timestamp: base.Add(time.Minute), Recipients: []string{"x@example.com", "y@example.com"}, Duration: &d}))
	require.NoError(t, LogEvent(ctx, conn, Event{RunID: "r2", Event: EventRunEnd, Timestamp: base.Add(time.Hour)}))

	all, err := ListEvents(ctx, conn, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, EventRunEnd, all[0].Event)

	sends, err := ListEvents(ctx, conn, Filter{RunID: "r1", Event: EventSendOK, Limit: 10})
	require.NoError(t, err)
	require.Len(t, sends, 1)
	assert.Equal(t, []string{"x@example.com", "y@example.com"}, sends[0].Recipients)
	require.NotNil(t, sends[0].Duration)
	assert.Equal(t, d, *sends[0].Duration)

	latest, found, err := GetLatestEvent(ctx, conn, "a.xlsx")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, EventSendOK, latest.Event)

	_, found, err = GetLatestEvent(ctx, conn, "nope.xlsx")
	require.NoError(t, err)
	assert.False(t, found)

	runID, _, err := LastRun(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, "r2", runID)
}

func TestLastRunEmpty(t *testing.T) {
	_, _, err := LastRun(context.Background(), openTestDB(t))
	require.ErrorIs(t, err, ErrNoRuns)
}

func TestDeliveredArtifacts(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	for _, e := range []Event{
		{RunID: "r1", Bundle: "b1.zip", Artifact: "a.xlsx", Event: EventSendOK},
		{RunID: "r1", Bundle: "b1.zip", Artifact: "b.xlsx", Event: EventSendError},
		{RunID: "r1", Bundle: "b0.zip", Artifact: "c.xlsx", Event: EventSendOK},
	} {
		require.NoError(t, LogEvent(ctx, conn, e))
	}

	got, err := DeliveredArtifacts(ctx, conn, "b1.zip", []string{"a.xlsx", "b.xlsx", "c.xlsx", "a.xlsx"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a.xlsx": true}, got)

	got, err = DeliveredArtifacts(ctx, conn, "b1.zip", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecorder(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	rec := NewRecorder(ctx, conn, "run-1", "b.zip", slog.New(slog.NewTextHandler(io.Discard, nil)))

	var obs delivery.Observer = rec
	obs.AttemptFinished(delivery.Attempt{Artifact: catalog.Artifact{Name: "a.xlsx"}, Recipients: []string{"x@example.com"}})
	obs.AttemptFinished(delivery.Attempt{Artifact: catalog.Artifact{Name: "b.xlsx"}, Err: errors.New("554 rejected")})
	rec.Log(EventRunEnd, "", "1 sent", nil)

	events, err := ListEvents(ctx, conn, Filter{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, events, 3)

	byArtifact := map[string]Event{}
	for _, e := range events {
		byArtifact[e.Artifact] = e
	}
	assert.Equal(t, EventSendOK, byArtifact["a.xlsx"].Event)
	assert.Equal(t, EventSendError, byArtifact["b.xlsx"].Event)
	assert.Equal(t, "554 rejected", byArtifact["b.xlsx"].Message)
	assert.Equal(t, "b.zip", byArtifact["b.xlsx"].Bundle)

	var buf bytes.Buffer
	require.NoError(t, DisplayHistory(ctx, conn, &buf, Filter{Limit: 5}))
	assert.Contains(t, buf.String(), "a.xlsx")
	assert.Contains(t, buf.String(), "Displayed 3 records.")
}
