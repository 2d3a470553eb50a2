// Package bundle locates downloaded report bundles, picks the most recent one
// and extracts it next to the archive.
package bundle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ErrNoBundleFound is returned when no candidate archive exists.
var ErrNoBundleFound = errors.New("no bundle found")

// Extension is the archive extension of a bundle.
const Extension = ".zip"

// dateTokenRegex matches the YYYY_MM_DD token embedded in bundle names.
var dateTokenRegex = regexp.MustCompile(`\d{4}_\d{2}_\d{2}`)

// Candidate is a bundle archive on disk and its authoritative date token.
type Candidate struct {
	Path      string
	DateToken string // empty when the name carries no token
}

// Name returns the archive file name.
func (c Candidate) Name() string { return filepath.Base(c.Path) }

// DateToken returns the last date token in name, or "" when there is none.
func DateToken(name string) string {
	matches := dateTokenRegex.FindAllString(name, -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1]
}

// NewCandidate builds a candidate from an archive path.
func NewCandidate(path string) Candidate {
	return Candidate{Path: path, DateToken: DateToken(filepath.Base(path))}
}

// Discover lists archives in dir named prefix*.zip, sorted by file name.
func Discover(dir, prefix string) ([]Candidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read bundle directory %s: %w", dir, err)
	}
	var out []Candidate
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.EqualFold(filepath.Ext(name), Extension) {
			continue
		}
		out = append(out, NewCandidate(filepath.Join(dir, name)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// SelectLatest returns the candidate with the greatest date token. Tokens are
// fixed width so string order is chronological. On ties the candidate seen
// last wins.
func SelectLatest(candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNoBundleFound
	}
	latest := candidates[0]
	for _, c := range candidates[1:] {
		if c.DateToken >= latest.DateToken {
			latest = c
		}
	}
	return latest, nil
}
