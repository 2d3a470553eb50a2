// Package db is the DuckDB delivery ledger: one row per download, skip and
// send attempt, keyed by run.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // Driver
)

// Event types.
const (
	EventDownload      = "download"
	EventSkipDownload  = "skip_download"
	EventSendOK        = "send_ok"
	EventSendError     = "send_error"
	EventSkipDelivered = "skip_delivered"
	EventRunEnd        = "run_end"
	EventRunFailed     = "run_failed"
)

const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS delivery_log_id_seq;`
const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS delivery_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('delivery_log_id_seq'),
    run_id          VARCHAR NOT NULL,
    bundle          VARCHAR,               -- bundle file name
    artifact        VARCHAR,               -- downloaded or delivered file name
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    recipients      VARCHAR,               -- comma separated
    message         VARCHAR,
    duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_delivery_log_bundle ON delivery_log (bundle, artifact);
CREATE INDEX IF NOT EXISTS idx_delivery_log_event_time ON delivery_log (event, event_timestamp);
`

// InitializeSchema creates the sequence and tables in the correct order.
func InitializeSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSequenceSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	_, err = db.Exec(schemaTableSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}

// Event is one ledger row.
type Event struct {
	ID         int64
	RunID      string
	Bundle     string
	Artifact   string
	Event      string
	Timestamp  time.Time
	Recipients []string
	Message    string
	Duration   *time.Duration
}

// LogEvent inserts e. A zero Timestamp is replaced by the current time.
func LogEvent(ctx context.Context, db *sql.DB, e Event) error {
	query := `
        INSERT INTO delivery_log (run_id, bundle, artifact, event, event_timestamp, recipients, message, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?);
    `
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	var durationMs sql.NullInt64
	if e.Duration != nil {
		durationMs = sql.NullInt64{Int64: e.Duration.Milliseconds(), Valid: true}
	}
	recipients := strings.Join(e.Recipients, ",")

	_, err := db.ExecContext(ctx, query,
		e.RunID,
		sql.NullString{String: e.Bundle, Valid: e.Bundle != ""},
		sql.NullString{String: e.Artifact, Valid: e.Artifact != ""},
		e.Event,
		e.Timestamp,
		sql.NullString{String: recipients, Valid: recipients != ""},
		sql.NullString{String: e.Message, Valid: e.Message != ""},
		durationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to log event '%s' for '%s': %w", e.Event, e.Artifact, err)
	}
	return nil
}

// GetLatestEvent retrieves the most recent event recorded for an artifact.
func GetLatestEvent(ctx context.Context, db *sql.DB, artifact string) (Event, bool, error) {
	query := selectEventsSQL + ` WHERE artifact = ? ORDER BY event_timestamp DESC, log_id DESC LIMIT 1;`
	rows, err := db.QueryContext(ctx, query, artifact)
	if err != nil {
		return Event{}, false, fmt.Errorf("failed query latest event for '%s': %w", artifact, err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return Event{}, false, err
	}
	if len(events) == 0 {
		return Event{}, false, nil
	}
	return events[0], true, nil
}

// Filter narrows ListEvents. Zero values match everything.
type Filter struct {
	RunID string
	Event string
	Since time.Time
	Limit int
}

const selectEventsSQL = `
        SELECT log_id, run_id, bundle, artifact, event, event_timestamp, recipients, message, duration_ms
        FROM delivery_log`

// ListEvents returns matching rows, newest first.
func ListEvents(ctx context.Context, db *sql.DB, f Filter) ([]Event, error) {
	query := selectEventsSQL
	conditions := []string{}
	args := []any{}
	argCounter := 1

	if f.RunID != "" {
		conditions = append(conditions, fmt.Sprintf("run_id = $%d", argCounter))
		args = append(args, f.RunID)
		argCounter++
	}
	if f.Event != "" {
		conditions = append(conditions, fmt.Sprintf("event = $%d", argCounter))
		args = append(args, f.Event)
		argCounter++
	}
	if !f.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("event_timestamp >= $%d", argCounter))
		args = append(args, f.Since.UTC())
		argCounter++
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY event_timestamp DESC, log_id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCounter)
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery log: %w \n Query: %s \n Args: %v", err, query, args)
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		var bundle, artifact, recipients, message sql.NullString
		var durationMs sql.NullInt64
		if err := rows.Scan(&e.ID, &e.RunID, &bundle, &artifact, &e.Event, &e.Timestamp, &recipients, &message, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan delivery log row: %w", err)
		}
		e.Bundle, e.Artifact, e.Message = bundle.String, artifact.String, message.String
		if recipients.String != "" {
			e.Recipients = strings.Split(recipients.String, ",")
		}
		if durationMs.Valid {
			d := time.Duration(durationMs.Int64) * time.Millisecond
			e.Duration = &d
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delivery log rows: %w", err)
	}
	return out, nil
}

// DisplayHistory prints the most recent ledger rows as a table.
func DisplayHistory(ctx context.Context, db *sql.DB, w io.Writer, f Filter) error {
	events, err := ListEvents(ctx, db, f)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "--- Delivery Log (Limit %d) ---\n", f.Limit)
	fmt.Fprintf(w, "%-25s | %-14s | %-55s | %-10s | %s\n", "Timestamp (UTC)", "Event", "Artifact", "DurationMS", "Message/Details")
	fmt.Fprintln(w, strings.Repeat("-", 150))
	for _, e := range events {
		durationStr := ""
		if e.Duration != nil {
			durationStr = fmt.Sprintf("%d", e.Duration.Milliseconds())
		}
		details := e.Message
		if len(e.Recipients) > 0 {
			details += fmt.Sprintf(" (To: %s)", strings.Join(e.Recipients, ", "))
		}
		if e.Bundle != "" && e.Bundle != e.Artifact {
			details += fmt.Sprintf(" (Bundle: %s)", e.Bundle)
		}
		fmt.Fprintf(w, "%-25s | %-14s | %-55s | %-10s | %s\n",
			e.Timestamp.UTC().Format(time.RFC3339), e.Event, e.Artifact, durationStr, strings.TrimSpace(details))
	}
	fmt.Fprintf(w, "Displayed %d records.\n", len(events))
	return nil
}

// ErrNoRuns is returned by LastRun on an empty ledger.
var ErrNoRuns = errors.New("no run recorded")

// LastRun returns the id and end time of the most recent finished run.
func LastRun(ctx context.Context, db *sql.DB) (string, time.Time, error) {
	query := `
        SELECT run_id, event_timestamp FROM delivery_log
        WHERE event IN (?, ?)
        ORDER BY event_timestamp DESC, log_id DESC LIMIT 1;`
	var runID string
	var ts time.Time
	err := db.QueryRowContext(ctx, query, EventRunEnd, EventRunFailed).Scan(&runID, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, ErrNoRuns
		}
		return "", time.Time{}, fmt.Errorf("failed query last run: %w", err)
	}
	return runID, ts, nil
}
