package analyser

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/brensch/sitereports/internal/workbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAnalyst(t *testing.T) *Analyst {
	t.Helper()
	a, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestCompute(t *testing.T) {
	a := newAnalyst(t)
	s, err := a.Compute(context.Background(), []float64{2, 4, 9, 6})
	require.NoError(t, err)

	assert.EqualValues(t, 4, s.Count)
	assert.InDelta(t, 5.25, s.Mean, 1e-9)
	assert.InDelta(t, 2, s.Min, 1e-9)
	assert.InDelta(t, 9, s.Max, 1e-9)
	assert.InDelta(t, 6, s.Last, 1e-9)
	assert.EqualValues(t, 2, s.PeakRow)
	assert.Greater(t, s.Slope, 0.0)
}

func TestTrend(t *testing.T) {
	assert.Equal(t, "hausse", Stats{Mean: 10, Slope: 1}.Trend())
	assert.Equal(t, "baisse", Stats{Mean: 10, Slope: -1}.Trend())
	assert.Equal(t, "stable", Stats{Mean: 10, Slope: 0.05}.Trend())
	assert.Equal(t, "stable", Stats{}.Trend())
}

func TestSummarize(t *testing.T) {
	a := newAnalyst(t)
	sheet := workbook.Sheet{
		Name:   "Occupation",
		Header: []string{"Mois", "Taux"},
		Rows: [][]string{
			{"janvier", "40"},
			{"février", "55,5"},
			{"mars", "70"},
		},
	}
	sum, err := a.Summarize(context.Background(), sheet)
	require.NoError(t, err)
	assert.Contains(t, sum.Metric, "Taux")
	assert.Contains(t, sum.Metric, "dernière valeur 70")
	assert.Contains(t, sum.Metric, "moyenne 55,17")
	assert.Contains(t, sum.Observation, "hausse")
	assert.Contains(t, sum.Observation, "ligne 3")
}

func TestSummarizeWithoutNumbers(t *testing.T) {
	a := newAnalyst(t)
	sheet := workbook.Sheet{Name: "Notes", Header: []string{"Texte"}, Rows: [][]string{{"a"}, {"b"}}}
	_, err := a.Summarize(context.Background(), sheet)
	require.ErrorIs(t, err, ErrNoNumericColumn)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "1234,5", formatNumber(1234.5))
	assert.Equal(t, "3", formatNumber(3.0))
	assert.Equal(t, "0", formatNumber(-0.001))
	assert.Equal(t, "-2,25", formatNumber(-2.25))
}
