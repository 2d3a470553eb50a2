package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DeliveredArtifacts checks which of the given artifacts already have a
// successful send recorded for bundle. It loads the names into a temporary
// table and joins it against the log.
func DeliveredArtifacts(ctx context.Context, db *sql.DB, bundle string, artifacts []string) (map[string]bool, error) {
	delivered := make(map[string]bool)
	if len(artifacts) == 0 {
		return delivered, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for delivered check: %w", err)
	}
	defer tx.Rollback()

	tempTableName := fmt.Sprintf("temp_artifacts_to_check_%d", time.Now().UnixNano())
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`CREATE TEMP TABLE %s (artifact TEXT PRIMARY KEY);`, tempTableName))
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return nil, fmt.Errorf("failed to create temp table %s: %w", tempTableName, err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT OR IGNORE INTO %s (artifact) VALUES (?)`, tempTableName))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert statement for temp table %s: %w", tempTableName, err)
	}
	for _, name := range artifacts {
		if err := ctx.Err(); err != nil {
			stmt.Close()
			return nil, err
		}
		if _, err := stmt.ExecContext(ctx, name); err != nil {
			stmt.Close()
			return nil, fmt.Errorf("failed to insert artifact '%s' into temp table %s: %w", name, tempTableName, err)
		}
	}
	if err := stmt.Close(); err != nil {
		return nil, fmt.Errorf("failed to close insert statement for %s: %w", tempTableName, err)
	}

	query := fmt.Sprintf(`
        SELECT DISTINCT dl.artifact
        FROM delivery_log dl
        JOIN %s t ON dl.artifact = t.artifact
        WHERE dl.bundle = ?
          AND dl.event = ?;
    `, tempTableName)
	rows, err := tx.QueryContext(ctx, query, bundle, EventSendOK)
	if err != nil {
		return nil, fmt.Errorf("failed delivered query joining temp table %s: %w", tempTableName, err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed scanning delivered row: %w", err)
		}
		delivered[name] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating delivered results: %w", err)
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction for delivered check: %w", err)
	}
	return delivered, nil
}
