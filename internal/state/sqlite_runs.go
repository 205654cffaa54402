package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leappipe/pkg/core"
)

const defaultListLimit = 20

// CreateRun records a new run in the running state.
func (s *SQLiteStore) CreateRun(ctx context.Context, id string, nodeCount int, startedAt time.Time) (*core.Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	if id == "" {
		id = generateID()
	}
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	run := &core.Run{
		ID:        id,
		Status:    core.RunStatusRunning,
		NodeCount: nodeCount,
		StartedAt: startedAt.UTC(),
	}

	s.logger.Debug("creating run", "id", id, "nodes", nodeCount)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, node_count, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Status), run.NodeCount, run.StartedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*core.Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, node_count, started_at, completed_at, error FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves the most recent runs, newest first. A limit <= 0 uses
// a default of 20.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*core.Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, node_count, started_at, completed_at, error
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status core.RunStatus, errMsg string) error {
	if s.db == nil {
		return errNotOpened
	}

	var errValue sql.NullString
	if errMsg != "" {
		errValue = sql.NullString{String: errMsg, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), time.Now().UTC().UnixNano(), errValue, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*core.Run, error) {
	var (
		run         core.Run
		status      string
		startedAt   int64
		completedAt sql.NullInt64
		errMsg      sql.NullString
	)
	if err := row.Scan(&run.ID, &status, &run.NodeCount, &startedAt, &completedAt, &errMsg); err != nil {
		return nil, err
	}

	run.Status = core.RunStatus(status)
	run.StartedAt = time.Unix(0, startedAt).UTC()
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64).UTC()
		run.CompletedAt = &t
	}
	run.Error = errMsg.String
	return &run, nil
}
