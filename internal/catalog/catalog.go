// Package catalog lists the report workbooks of an extracted bundle.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrEmptyCatalog is returned when an extracted bundle holds no report.
var ErrEmptyCatalog = errors.New("no report found in bundle")

// Separator is replaced by spaces when deriving labels.
const Separator = "_"

// Artifact is one report workbook ready for delivery.
type Artifact struct {
	Path  string
	Name  string // file name, unique within a bundle
	Label string // recipient-facing site name, not guaranteed unique
}

// Labeler derives display labels from report file names.
type Labeler struct {
	Prefix string
	Suffix string
}

// Label strips the report prefix and suffix from name and turns separators
// into spaces.
func (l Labeler) Label(name string) string {
	label := strings.TrimPrefix(name, l.Prefix)
	if n := len(label) - len(l.Suffix); n >= 0 && strings.EqualFold(label[n:], l.Suffix) {
		label = label[:n]
	}
	label = strings.ReplaceAll(label, Separator, " ")
	return strings.TrimSpace(label)
}

// List returns the reports found directly under dir whose names end with the
// labeler suffix, sorted by file name.
func List(dir string, labeler Labeler) ([]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read extracted bundle %s: %w", dir, err)
	}

	var out []Artifact
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(name), strings.ToLower(labeler.Suffix)) {
			continue
		}
		// Office lock files left behind by an open workbook.
		if strings.HasPrefix(name, "~$") {
			continue
		}
		out = append(out, Artifact{
			Path:  filepath.Join(dir, name),
			Name:  name,
			Label: labeler.Label(name),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCatalog, dir)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
