package saver

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brensch/sitereports/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

func TestSaveLedger(t *testing.T) {
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, db.InitializeSchema(conn))

	ctx := context.Background()
	base := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)
	d := 250 * time.Millisecond
	require.NoError(t, db.LogEvent(ctx, conn, db.Event{RunID: "r1", Bundle: "b.zip", Artifact: "b.zip", Event: db.EventDownload, Timestamp: base}))
	require.NoError(t, db.LogEvent(ctx, conn, db.Event{RunID: "r1", Bundle: "b.zip", Artifact: "a.xlsx", Event: db.EventSendOK, Timestamp: base.Add(time.Second), Recipients: []string{"x@example.com"}, Duration: &d}))

	path, err := SaveLedger(ctx, conn, t.TempDir(), db.Filter{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(Row), 4)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.EqualValues(t, 2, pr.GetNumRows())
	rows := make([]Row, 2)
	require.NoError(t, pr.Read(&rows))

	assert.Equal(t, db.EventDownload, rows[0].Event)
	assert.Nil(t, rows[0].DurationMs)
	assert.Equal(t, "a.xlsx", rows[1].Artifact)
	assert.Equal(t, "x@example.com", rows[1].Recipients)
	assert.Equal(t, base.Add(time.Second).UnixMilli(), rows[1].TimestampMs)
	require.NotNil(t, rows[1].DurationMs)
	assert.EqualValues(t, 250, *rows[1].DurationMs)
}
