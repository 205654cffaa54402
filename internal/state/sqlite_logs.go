package state

import (
	"context"
	"fmt"
	"time"

	"github.com/leapstack-labs/leappipe/pkg/core"
)

// AppendLogs stores logs after the run's existing entries, in order.
func (s *SQLiteStore) AppendLogs(ctx context.Context, runID string, logs []core.ExecutionLog) error {
	if s.db == nil {
		return errNotOpened
	}
	if len(logs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM run_logs WHERE run_id = ?`, runID,
	).Scan(&next); err != nil {
		return fmt.Errorf("failed to read log sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_logs (run_id, seq, log_id, ts, node_id, node_name, message, severity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare log insert: %w", err)
	}
	defer stmt.Close()

	for i, l := range logs {
		if _, err := stmt.ExecContext(ctx,
			runID, next+i, l.ID, l.Timestamp.UTC().UnixNano(), l.NodeID, l.NodeName, l.Message, string(l.Severity),
		); err != nil {
			return fmt.Errorf("failed to insert log %d: %w", next+i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit logs: %w", err)
	}
	return nil
}

// GetRunLogs returns a run's logs in emission order.
func (s *SQLiteStore) GetRunLogs(ctx context.Context, runID string) ([]core.ExecutionLog, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT log_id, ts, node_id, node_name, message, severity
		 FROM run_logs WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run logs: %w", err)
	}
	defer rows.Close()

	logs := []core.ExecutionLog{}
	for rows.Next() {
		var (
			l        core.ExecutionLog
			ts       int64
			severity string
		)
		if err := rows.Scan(&l.ID, &ts, &l.NodeID, &l.NodeName, &l.Message, &severity); err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		l.Timestamp = time.Unix(0, ts).UTC()
		l.Severity = core.Severity(severity)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get run logs: %w", err)
	}
	return logs, nil
}
