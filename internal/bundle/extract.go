package bundle

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Extracted is the directory holding the content of a bundle.
type Extracted struct {
	Bundle Candidate
	Dir    string
	Fresh  bool // false when the directory already existed
}

// TargetDir returns the extraction directory of c: the archive path without
// its extension.
func TargetDir(c Candidate) string {
	return strings.TrimSuffix(c.Path, filepath.Ext(c.Path))
}

// Extract unpacks c into TargetDir(c). An existing target directory is taken
// as already extracted and left untouched.
func Extract(c Candidate, logger *slog.Logger) (Extracted, error) {
	target := TargetDir(c)
	l := logger.With(slog.String("bundle", c.Name()), slog.String("target", target))

	if info, err := os.Stat(target); err == nil {
		if !info.IsDir() {
			return Extracted{}, fmt.Errorf("extraction target %s exists and is not a directory", target)
		}
		l.Info("Bundle already extracted.")
		return Extracted{Bundle: c, Dir: target}, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Extracted{}, fmt.Errorf("stat extraction target %s: %w", target, err)
	}

	start := time.Now()
	zr, err := zip.OpenReader(c.Path)
	if err != nil {
		return Extracted{}, fmt.Errorf("open bundle %s: %w", c.Path, err)
	}
	defer zr.Close()

	// Unpack next to the target and rename at the end so an interrupted
	// extraction never leaves a directory that later cycles would trust.
	staging, err := os.MkdirTemp(filepath.Dir(target), ".extract-*")
	if err != nil {
		return Extracted{}, fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	count := 0
	for _, f := range zr.File {
		written, err := extractFile(f, staging)
		if err != nil {
			return Extracted{}, fmt.Errorf("extract %s from %s: %w", f.Name, c.Name(), err)
		}
		if written {
			count++
		}
	}

	if err := os.Rename(staging, target); err != nil {
		return Extracted{}, fmt.Errorf("move extracted bundle into %s: %w", target, err)
	}
	l.Info("Bundle extracted.", slog.Int("files", count), slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return Extracted{Bundle: c, Dir: target, Fresh: true}, nil
}

func extractFile(f *zip.File, root string) (bool, error) {
	dest := filepath.Join(root, filepath.FromSlash(f.Name))
	rel, err := filepath.Rel(root, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, fmt.Errorf("entry escapes extraction directory")
	}

	if f.FileInfo().IsDir() {
		return false, os.MkdirAll(dest, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, err
	}

	rc, err := f.Open()
	if err != nil {
		return false, err
	}
	out, err := os.Create(dest)
	if err != nil {
		rc.Close()
		return false, err
	}
	_, copyErr := io.Copy(out, rc)
	closeOutErr := out.Close()
	closeRcErr := rc.Close()
	if err := errors.Join(copyErr, closeOutErr, closeRcErr); err != nil {
		return false, err
	}
	return true, nil
}
