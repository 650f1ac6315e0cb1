package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Batch represents one run request: a plugin, a category or the whole catalog.
type Batch struct {
	ID        string
	Target    string
	Params    json.RawMessage
	CreatedAt time.Time
}

// Run represents a single plugin launch stored in the database.
type Run struct {
	ID         string
	BatchID    string
	Plugin     string
	Argv       []string
	Proxy      string
	Success    bool
	ExitCode   int
	Reason     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// BatchRepository provides access to batches.
type BatchRepository struct {
	db *sql.DB
}

// Batches returns the batch repository for this store.
func (s *Store) Batches() *BatchRepository {
	return &BatchRepository{db: s.db}
}

// Create inserts a new batch. A zero CreatedAt is set to now.
func (r *BatchRepository) Create(b *Batch) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}

	params := b.Params
	if params == nil {
		params = json.RawMessage("{}")
	}

	_, err := r.db.Exec(
		`INSERT INTO batches (id, target, params, created_at) VALUES (?, ?, ?, ?)`,
		b.ID, b.Target, string(params), b.CreatedAt,
	)
	return err
}

// GetByID retrieves a batch by its ID.
func (r *BatchRepository) GetByID(id string) (*Batch, error) {
	b := &Batch{}
	var params string

	err := r.db.QueryRow(
		`SELECT id, target, params, created_at FROM batches WHERE id = ?`,
		id,
	).Scan(&b.ID, &b.Target, &params, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	b.Params = json.RawMessage(params)
	return b, nil
}

// RunRepository provides CRUD operations for runs.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

const runColumns = `id, batch_id, plugin, argv, proxy, success, exit_code, reason, started_at, finished_at`

// Create inserts a new run. The referenced batch must exist.
func (r *RunRepository) Create(run *Run) error {
	argv, err := json.Marshal(run.Argv)
	if err != nil {
		return fmt.Errorf("failed to marshal argv: %w", err)
	}

	success := 0
	if run.Success {
		success = 1
	}

	_, err = r.db.Exec(
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.BatchID, run.Plugin, string(argv), run.Proxy, success,
		run.ExitCode, run.Reason, run.StartedAt, run.FinishedAt,
	)
	return err
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	row := r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List retrieves the most recent runs, newest first. limit <= 0 means no limit.
func (r *RunRepository) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRuns(rows)
}

// ListByBatch retrieves the runs of one batch in launch order.
func (r *RunRepository) ListByBatch(batchID string) ([]*Run, error) {
	rows, err := r.db.Query(
		`SELECT `+runColumns+` FROM runs WHERE batch_id = ? ORDER BY started_at ASC, rowid ASC`,
		batchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRuns(rows)
}

// ListByPlugin retrieves the runs of one plugin, newest first.
func (r *RunRepository) ListByPlugin(plugin string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT `+runColumns+` FROM runs WHERE plugin = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		plugin, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRuns(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var argv string
	var success int

	err := row.Scan(
		&run.ID, &run.BatchID, &run.Plugin, &argv, &run.Proxy, &success,
		&run.ExitCode, &run.Reason, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(argv), &run.Argv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal argv: %w", err)
	}
	run.Success = success != 0
	return run, nil
}

func collectRuns(rows *sql.Rows) ([]*Run, error) {
	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}
