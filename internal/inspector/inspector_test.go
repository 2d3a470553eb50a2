package inspector

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brensch/sitereports/internal/db"
	"github.com/brensch/sitereports/internal/saver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectExportedLedger(t *testing.T) {
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, db.InitializeSchema(conn))

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)
	events := []db.Event{
		{RunID: "r1", Artifact: "a.xlsx", Event: db.EventSendOK, Timestamp: base},
		{RunID: "r1", Artifact: "b.xlsx", Event: db.EventSendError, Timestamp: base.Add(time.Second)},
		{RunID: "r2", Artifact: "b.xlsx", Event: db.EventSendOK, Timestamp: base.Add(time.Hour)},
	}
	for _, e := range events {
		require.NoError(t, db.LogEvent(ctx, conn, e))
	}
	path, err := saver.SaveLedger(ctx, conn, t.TempDir(), db.Filter{}, logger)
	require.NoError(t, err)

	s, err := Inspect(ctx, conn, path, logger)
	require.NoError(t, err)
	assert.EqualValues(t, 3, s.Rows)
	assert.EqualValues(t, 2, s.Runs)
	require.True(t, s.First.Valid)
	assert.True(t, s.First.Time.Equal(base))
	assert.True(t, s.Last.Time.Equal(base.Add(time.Hour)))
	assert.Equal(t, []EventCount{{db.EventSendError, 1}, {db.EventSendOK, 2}}, s.Events)

	var names []string
	for _, c := range s.Schema {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "artifact")
	assert.Contains(t, names, "duration_ms")

	var buf bytes.Buffer
	Print(&buf, s)
	assert.Contains(t, buf.String(), "rows: 3, runs: 2")
}

func TestInspectMissingFile(t *testing.T) {
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer conn.Close()

	_, err = Inspect(context.Background(), conn, t.TempDir()+"/nope.parquet", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
