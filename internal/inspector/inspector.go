// Package inspector summarizes exported ledger Parquet files with DuckDB.
package inspector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

// Column is one entry of a Parquet file schema.
type Column struct {
	Name string
	Type string
}

// EventCount is the number of rows carrying one event type.
type EventCount struct {
	Event string
	Count int64
}

// Summary describes one exported ledger file.
type Summary struct {
	Path   string
	Schema []Column
	Rows   int64
	Runs   int64
	First  sql.NullTime
	Last   sql.NullTime
	Events []EventCount
}

// quotePath makes path usable inside a DuckDB string literal.
func quotePath(path string) string {
	p := strings.ReplaceAll(path, `\`, `/`)
	return "'" + strings.ReplaceAll(p, "'", "''") + "'"
}

// Inspect reads the schema and aggregate statistics of the Parquet file at
// path. conn may be any DuckDB handle; nothing is written to it.
func Inspect(ctx context.Context, conn *sql.DB, path string, logger *slog.Logger) (Summary, error) {
	s := Summary{Path: path}
	source := fmt.Sprintf("read_parquet(%s)", quotePath(path))

	schema, err := describe(ctx, conn, source)
	if err != nil {
		return s, err
	}
	s.Schema = schema

	statsSQL := fmt.Sprintf(`SELECT COUNT(*), COUNT(DISTINCT run_id), MIN(event_timestamp), MAX(event_timestamp) FROM %s;`, source)
	logger.Debug("Executing stats query", slog.String("sql", statsSQL))
	if err := conn.QueryRowContext(ctx, statsSQL).Scan(&s.Rows, &s.Runs, &s.First, &s.Last); err != nil {
		return s, fmt.Errorf("query statistics for %s: %w", path, err)
	}

	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`SELECT event, COUNT(*) FROM %s GROUP BY event ORDER BY event;`, source))
	if err != nil {
		return s, fmt.Errorf("query event counts for %s: %w", path, err)
	}
	defer rows.Close()
	for rows.Next() {
		var ec EventCount
		if err := rows.Scan(&ec.Event, &ec.Count); err != nil {
			return s, fmt.Errorf("scan event count for %s: %w", path, err)
		}
		s.Events = append(s.Events, ec)
	}
	if err := rows.Err(); err != nil {
		return s, fmt.Errorf("iterate event counts for %s: %w", path, err)
	}
	logger.Info("Statistics gathered.", slog.String("path", path), slog.Int64("rows", s.Rows), slog.Int64("runs", s.Runs))
	return s, nil
}

func describe(ctx context.Context, conn *sql.DB, source string) ([]Column, error) {
	schemaRows, err := conn.QueryContext(ctx, fmt.Sprintf("DESCRIBE SELECT * FROM %s;", source))
	if err != nil {
		return nil, fmt.Errorf("query schema: %w", err)
	}
	defer schemaRows.Close()
	var cols []Column
	for schemaRows.Next() {
		var colName, colType, nullVal, keyVal, defaultVal, extraVal sql.NullString
		if err := schemaRows.Scan(&colName, &colType, &nullVal, &keyVal, &defaultVal, &extraVal); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}
		cols = append(cols, Column{Name: colName.String, Type: colType.String})
	}
	if err := schemaRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema rows: %w", err)
	}
	if len(cols) == 0 {
		return nil, errors.New("no columns found")
	}
	return cols, nil
}

// Print writes s in the same tabular style as the ledger view.
func Print(w io.Writer, s Summary) {
	fmt.Fprintf(w, "\n=== %s ===\n", s.Path)
	fmt.Fprintf(w, "  %-20s | %s\n", "Column Name", "Column Type")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 45))
	for _, c := range s.Schema {
		fmt.Fprintf(w, "  %-20s | %s\n", c.Name, c.Type)
	}

	first, last := "N/A", "N/A"
	if s.First.Valid {
		first = s.First.Time.UTC().Format(time.RFC3339)
	}
	if s.Last.Valid {
		last = s.Last.Time.UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(w, "\n  rows: %d, runs: %d, from %s to %s\n", s.Rows, s.Runs, first, last)
	for _, ec := range s.Events {
		fmt.Fprintf(w, "  %-16s %d\n", ec.Event, ec.Count)
	}
}
