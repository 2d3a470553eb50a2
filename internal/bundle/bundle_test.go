package bundle

import (
	"archive/zip"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prefix = "Sunelia_Rapports_indiv_pour_groupe_"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestDateTokenUsesLastOccurrence(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{prefix + "2024_05_01.zip", "2024_05_01"},
		{prefix + "2023_01_01_export_2024_06_15.zip", "2024_06_15"},
		{prefix + "sans_date.zip", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DateToken(tt.name))
		})
	}
}

func TestSelectLatestPicksGreatestToken(t *testing.T) {
	candidates := []Candidate{
		NewCandidate("/d/" + prefix + "2024_05_01.zip"),
		NewCandidate("/d/" + prefix + "2024_06_15.zip"),
		NewCandidate("/d/" + prefix + "2024_06_02.zip"),
	}
	latest, err := SelectLatest(candidates)
	require.NoError(t, err)
	assert.Equal(t, "2024_06_15", latest.DateToken)
	assert.Equal(t, prefix+"2024_06_15.zip", latest.Name())
}

func TestSelectLatestTieGoesToLastSeen(t *testing.T) {
	candidates := []Candidate{
		NewCandidate("/d/" + prefix + "a_2024_06_15.zip"),
		NewCandidate("/d/" + prefix + "b_2024_06_15.zip"),
		NewCandidate("/d/" + prefix + "c_2024_01_01.zip"),
	}
	latest, err := SelectLatest(candidates)
	require.NoError(t, err)
	assert.Equal(t, prefix+"b_2024_06_15.zip", latest.Name())
}

func TestSelectLatestEmpty(t *testing.T) {
	_, err := SelectLatest(nil)
	require.ErrorIs(t, err, ErrNoBundleFound)
}

func TestDiscoverFiltersByPrefixAndExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		prefix + "2024_06_02.zip",
		prefix + "2024_05_01.ZIP",
		"other_2024_07_01.zip",
		prefix + "2024_06_03.xlsx",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, prefix+"2024_06_02"), 0o755))

	got, err := Discover(dir, prefix)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, prefix+"2024_05_01.ZIP", got[0].Name())
	assert.Equal(t, prefix+"2024_06_02.zip", got[1].Name())
}

func TestExtractIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, prefix+"2024_06_15.zip")
	writeZip(t, archive, map[string]string{
		prefix + "Camping_Soleil.xlsx": "a",
		prefix + "Camping_Mer.xlsx":    "b",
	})
	c := NewCandidate(archive)

	first, err := Extract(c, discardLogger())
	require.NoError(t, err)
	assert.True(t, first.Fresh)
	assert.Equal(t, filepath.Join(dir, prefix+"2024_06_15"), first.Dir)
	assert.FileExists(t, filepath.Join(first.Dir, prefix+"Camping_Soleil.xlsx"))

	// Existing directories are trusted as-is, even when incomplete.
	require.NoError(t, os.Remove(filepath.Join(first.Dir, prefix+"Camping_Mer.xlsx")))

	second, err := Extract(c, discardLogger())
	require.NoError(t, err)
	assert.False(t, second.Fresh)
	assert.Equal(t, first.Dir, second.Dir)
	assert.NoFileExists(t, filepath.Join(second.Dir, prefix+"Camping_Mer.xlsx"))
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, prefix+"2024_06_15.zip")
	writeZip(t, archive, map[string]string{"../evil.xlsx": "x"})

	_, err := Extract(NewCandidate(archive), discardLogger())
	require.Error(t, err)
	assert.NoDirExists(t, TargetDir(NewCandidate(archive)))
	assert.NoFileExists(t, filepath.Join(dir, "evil.xlsx"))
}
