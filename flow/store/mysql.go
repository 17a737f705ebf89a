package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a RunStore backed by a MySQL server, for deployments
// where several processes share run history.
//
// DSN format (github.com/go-sql-driver/mysql):
//
//	user:password@tcp(127.0.0.1:3306)/flowline?parseTime=true
//
// Payloads are stored as JSON text.
type MySQLStore[S any] struct {
	db *sql.DB
}

// NewMySQLStore connects to MySQL using the given DSN and prepares the
// schema.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}

	stepsSchema := `
		CREATE TABLE IF NOT EXISTS run_steps (
			run_id   VARCHAR(255) NOT NULL,
			step     INT NOT NULL,
			state    VARCHAR(255) NOT NULL,
			payload  LONGTEXT NOT NULL,
			saved_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, step)
		)
	`
	resultsSchema := `
		CREATE TABLE IF NOT EXISTS run_results (
			run_id        VARCHAR(255) PRIMARY KEY,
			status        VARCHAR(32) NOT NULL,
			trace         TEXT NOT NULL,
			steps         INT NOT NULL,
			final_payload LONGTEXT NOT NULL,
			error         TEXT,
			saved_at      TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	for _, schema := range []string{stepsSchema, resultsSchema} {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &MySQLStore[S]{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *MySQLStore[S]) Close() error {
	return s.db.Close()
}

// SaveStep persists a step record, replacing any earlier record for the
// same runID and step.
func (s *MySQLStore[S]) SaveStep(ctx context.Context, runID string, step int, state string, payload S) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO run_steps (run_id, step, state, payload)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			state = VALUES(state),
			payload = VALUES(payload)
	`
	if _, err := s.db.ExecContext(ctx, query, runID, step, state, string(payloadJSON)); err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// SaveRun persists a run's final outcome, replacing any earlier record
// for the same run ID.
func (s *MySQLStore[S]) SaveRun(ctx context.Context, rec RunRecord[S]) error {
	payloadJSON, err := json.Marshal(rec.FinalPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO run_results (run_id, status, trace, steps, final_payload, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			trace = VALUES(trace),
			steps = VALUES(steps),
			final_payload = VALUES(final_payload),
			error = VALUES(error)
	`
	trace := strings.Join(rec.Trace, ",")
	if _, err := s.db.ExecContext(ctx, query, rec.RunID, rec.Status, trace, rec.Steps, string(payloadJSON), rec.Err); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// LoadRun retrieves a run's final outcome. Returns ErrNotFound for
// unknown run IDs.
func (s *MySQLStore[S]) LoadRun(ctx context.Context, runID string) (RunRecord[S], error) {
	var zero RunRecord[S]

	query := `
		SELECT status, trace, steps, final_payload, COALESCE(error, '')
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
func (s *MySQLStore[S]) ListSteps(ctx context.Context, runID string) ([]StepRecord[S], error) {
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
