// Package analyser computes worksheet summaries with an in-memory DuckDB.
package analyser

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/brensch/sitereports/internal/render"
	"github.com/brensch/sitereports/internal/workbook"

	_ "github.com/marcboeker/go-duckdb"
)

// ErrNoNumericColumn is returned for sheets without a usable numeric column.
var ErrNoNumericColumn = errors.New("no numeric column")

// flatThreshold is the relative slope under which a series is called stable.
const flatThreshold = 0.01

// Stats are the aggregates computed for one numeric series.
type Stats struct {
	Count   int64
	Mean    float64
	Min     float64
	Max     float64
	Last    float64
	Slope   float64
	PeakRow int64
}

// Analyst summarizes worksheets. It holds one in-memory DuckDB connection
// pool for its lifetime.
type Analyst struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens the in-memory database.
func New(logger *slog.Logger) (*Analyst, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping in-memory duckdb: %w", err)
	}
	return &Analyst{db: db, logger: logger.With(slog.String("component", "analyser"))}, nil
}

// Close releases the database.
func (a *Analyst) Close() error {
	return a.db.Close()
}

// Summarize implements render.Analyst.
func (a *Analyst) Summarize(ctx context.Context, sheet workbook.Sheet) (render.Summary, error) {
	column, values, ok := sheet.NumericSeries()
	if !ok {
		return render.Summary{}, fmt.Errorf("sheet %q: %w", sheet.Name, ErrNoNumericColumn)
	}
	stats, err := a.Compute(ctx, values)
	if err != nil {
		return render.Summary{}, fmt.Errorf("sheet %q: %w", sheet.Name, err)
	}
	a.logger.Debug("Computed sheet statistics.", slog.String("sheet", sheet.Name), slog.String("column", column), slog.Int64("count", stats.Count))
	return describe(column, stats), nil
}

// Compute aggregates values in row order.
func (a *Analyst) Compute(ctx context.Context, values []float64) (Stats, error) {
	if len(values) == 0 {
		return Stats{}, ErrNoNumericColumn
	}
	rows := make([]string, len(values))
	args := make([]any, 0, 2*len(values))
	for i, v := range values {
		rows[i] = "(CAST(? AS BIGINT), CAST(? AS DOUBLE))"
		args = append(args, int64(i), v)
	}
	query := fmt.Sprintf(`
    WITH series(i, v) AS (VALUES %s)
    SELECT COUNT(*), AVG(v), MIN(v), MAX(v), ARG_MAX(v, i),
        COALESCE(REGR_SLOPE(v, i), 0.0), ARG_MAX(i, v)
    FROM series;`, strings.Join(rows, ", "))

	var s Stats
	err := a.db.QueryRowContext(ctx, query, args...).Scan(&s.Count, &s.Mean, &s.Min, &s.Max, &s.Last, &s.Slope, &s.PeakRow)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregate series: %w", err)
	}
	return s, nil
}

// Trend classifies the slope relative to the mean magnitude.
func (s Stats) Trend() string {
	scale := math.Max(math.Abs(s.Mean), 1e-9)
	switch rel := s.Slope / scale; {
	case rel > flatThreshold:
		return "hausse"
	case rel < -flatThreshold:
		return "baisse"
	default:
		return "stable"
	}
}

func describe(column string, s Stats) render.Summary {
	metric := fmt.Sprintf("%s : dernière valeur %s (moyenne %s, min %s, max %s, %d valeurs)",
		column, formatNumber(s.Last), formatNumber(s.Mean), formatNumber(s.Min), formatNumber(s.Max), s.Count)

	var obs string
	switch s.Trend() {
	case "hausse":
		obs = "Tendance à la hausse"
	case "baisse":
		obs = "Tendance à la baisse"
	default:
		obs = "Tendance stable"
	}
	if s.Count > 1 && s.Max != s.Min {
		obs += fmt.Sprintf(", pic à la ligne %d", s.PeakRow+1)
	}
	return render.Summary{Metric: metric, Observation: obs + "."}
}

// formatNumber writes v with a decimal comma and at most two decimals.
func formatNumber(v float64) string {
	out := fmt.Sprintf("%.2f", v)
	out = strings.TrimRight(strings.TrimRight(out, "0"), ".")
	if out == "-0" {
		out = "0"
	}
	return strings.Replace(out, ".", ",", 1)
}
