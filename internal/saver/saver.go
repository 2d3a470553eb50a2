// Package saver exports the delivery ledger to Parquet.
package saver

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/brensch/sitereports/internal/db"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// LedgerFileName is the export file written into the output directory.
const LedgerFileName = "delivery_log.parquet"

// Row is the Parquet layout of one ledger event.
type Row struct {
	LogID       int64  `parquet:"name=log_id, type=INT64"`
	RunID       string `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Bundle      string `parquet:"name=bundle, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Artifact    string `parquet:"name=artifact, type=BYTE_ARRAY, convertedtype=UTF8"`
	Event       string `parquet:"name=event, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	TimestampMs int64  `parquet:"name=event_timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Recipients  string `parquet:"name=recipients, type=BYTE_ARRAY, convertedtype=UTF8"`
	Message     string `parquet:"name=message, type=BYTE_ARRAY, convertedtype=UTF8"`
	DurationMs  *int64 `parquet:"name=duration_ms, type=INT64, repetitiontype=OPTIONAL"`
}

func toRow(e db.Event) Row {
	r := Row{
		LogID:       e.ID,
		RunID:       e.RunID,
		Bundle:      e.Bundle,
		Artifact:    e.Artifact,
		Event:       e.Event,
		TimestampMs: e.Timestamp.UnixMilli(),
		Recipients:  strings.Join(e.Recipients, ","),
		Message:     e.Message,
	}
	if e.Duration != nil {
		ms := e.Duration.Milliseconds()
		r.DurationMs = &ms
	}
	return r
}

// SaveLedger writes every event matching f, oldest first, to
// outDir/delivery_log.parquet and returns the file path.
func SaveLedger(ctx context.Context, conn *sql.DB, outDir string, f db.Filter, logger *slog.Logger) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory '%s': %w", outDir, err)
	}
	events, err := db.ListEvents(ctx, conn, f)
	if err != nil {
		return "", err
	}

	path := filepath.Join(outDir, LedgerFileName)
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return "", fmt.Errorf("create parquet: %w", err)
	}
	pw, err := writer.NewParquetWriter(fw, new(Row), 4)
	if err != nil {
		fw.Close()
		return "", fmt.Errorf("init writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := len(events) - 1; i >= 0; i-- {
		if err := pw.Write(toRow(events[i])); err != nil {
			pw.WriteStop()
			fw.Close()
			return "", fmt.Errorf("write row %d: %w", events[i].ID, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return "", fmt.Errorf("finalize parquet: %w", err)
	}
	if err := fw.Close(); err != nil {
		return "", fmt.Errorf("close parquet: %w", err)
	}
	logger.Info("Saved delivery log to Parquet.", slog.String("output_path", path), slog.Int("rows", len(events)))
	return path, nil
}
