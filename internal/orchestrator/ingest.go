package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/brensch/sitereports/internal/db"
	"github.com/brensch/sitereports/internal/history"
	"github.com/brensch/sitereports/internal/portal"
)

// IngestStats counts the downloads of one retrieval session.
type IngestStats struct {
	New     int
	Skipped int
}

// Ingest stores every download whose name is not yet in set and records it.
// Known names are skipped. Retrieval errors are returned after all
// downloads were handled.
func Ingest(ctx context.Context, src portal.Source, dir string, set *history.Set, rec *db.Recorder, logger *slog.Logger) (IngestStats, error) {
	var stats IngestStats
	err := src.Fetch(ctx, func(d portal.Download) error {
		l := logger.With(slog.String("filename", d.Filename))
		if set.Contains(d.Filename) {
			stats.Skipped++
			l.Info("Already downloaded, skipping.")
			rec.Log(db.EventSkipDownload, d.Filename, "already in history", nil)
			return nil
		}
		path := filepath.Join(dir, filepath.Base(d.Filename))
		if err := writeFileAtomic(path, d.Data); err != nil {
			return err
		}
		set.Add(d.Filename)
		stats.New++
		l.Info("Downloaded new file.", slog.String("path", path), slog.Int("bytes", len(d.Data)))
		rec.Log(db.EventDownload, d.Filename, d.URL, nil)
		return nil
	})
	return stats, err
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("store %s: %w", filepath.Base(path), err)
	}
	return nil
}
