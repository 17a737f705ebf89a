package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a RunStore backed by an embedded SQLite database via
// the pure-Go modernc.org/sqlite driver (no cgo).
//
// The database runs in WAL mode with a busy timeout, so concurrent runs
// can write step records without SQLITE_BUSY failures. Payloads are
// stored as JSON text.
//
// Use ":memory:" as the path for an ephemeral database in tests.
type SQLiteStore[S any] struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite database at path
// and prepares the schema.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS run_steps (
			run_id   TEXT NOT NULL,
			step     INTEGER NOT NULL,
			state    TEXT NOT NULL,
			payload  TEXT NOT NULL,
			saved_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, step)
		);

		CREATE TABLE IF NOT EXISTS run_results (
			run_id        TEXT PRIMARY KEY,
			status        TEXT NOT NULL,
			trace         TEXT NOT NULL,
			steps         INTEGER NOT NULL,
			final_payload TEXT NOT NULL,
			error         TEXT NOT NULL DEFAULT '',
			saved_at      TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore[S]{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore[S]) Close() error {
	return s.db.Close()
}

// SaveStep persists a step record, replacing any earlier record for the
// same runID and step.
func (s *SQLiteStore[S]) SaveStep(ctx context.Context, runID string, step int, state string, payload S) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO run_steps (run_id, step, state, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, step) DO UPDATE SET
			state = excluded.state,
			payload = excluded.payload
	`
	if _, err := s.db.ExecContext(ctx, query, runID, step, state, string(payloadJSON)); err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// SaveRun persists a run's final outcome, replacing any earlier record
// for the same run ID.
func (s *SQLiteStore[S]) SaveRun(ctx context.Context, rec RunRecord[S]) error {
	payloadJSON, err := json.Marshal(rec.FinalPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO run_results (run_id, status, trace, steps, final_payload, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			trace = excluded.trace,
			steps = excluded.steps,
			final_payload = excluded.final_payload,
			error = excluded.error
	`
	trace := strings.Join(rec.Trace, ",")
	if _, err := s.db.ExecContext(ctx, query, rec.RunID, rec.Status, trace, rec.Steps, string(payloadJSON), rec.Err); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// LoadRun retrieves a run's final outcome. Returns ErrNotFound for
// unknown run IDs.
func (s *SQLiteStore[S]) LoadRun(ctx context.Context, runID string) (RunRecord[S], error) {
	var zero RunRecord[S]

	query := `
		SELECT status, trace, steps, final_payload, error
		FROM run_results
		WHERE run_id = ?
	`
	var (
		rec         RunRecord[S]
		trace       string
		payloadJSON string
	)
	rec.RunID = runID
	err := s.db.QueryRowContext(ctx, query, runID).Scan(&rec.Status, &trace, &rec.Steps, &payloadJSON, &rec.Err)
	if err == sql.ErrNoRows {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load run: %w", err)
	}

	if trace != "" {
		rec.Trace = strings.Split(trace, ",")
	}
	if err := json.Unmarshal([]byte(payloadJSON), &rec.FinalPayload); err != nil {
		return zero, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return rec, nil
}

// ListSteps retrieves a run's step history in step order.
func (s *SQLiteStore[S]) ListSteps(ctx context.Context, runID string) ([]StepRecord[S], error) {
	query := `
		SELECT step, state, payload
		FROM run_steps
		WHERE run_id = ?
		ORDER BY step ASC
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	records := []StepRecord[S]{}
	for rows.Next() {
		var (
			rec         StepRecord[S]
			payloadJSON string
		)
		if err := rows.Scan(&rec.Step, &rec.State, &payloadJSON); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate steps: %w", err)
	}
	return records, nil
}
