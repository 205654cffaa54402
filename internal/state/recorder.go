package state

import (
	"context"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leappipe/internal/engine"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

// Recorder persists finished runs. Its RunFinished method is meant for
// engine.Config.OnFinish.
type Recorder struct {
	store   core.Store
	logger  *slog.Logger
	timeout time.Duration
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store core.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{store: store, logger: logger, timeout: 5 * time.Second}
}

// RunFinished writes the run, its logs and its terminal status.
// Failures are logged; execution state is never affected.
func (r *Recorder) RunFinished(report engine.RunReport) {
	if err := r.Record(context.Background(), report); err != nil {
		r.logger.Error("failed to record run", "run_id", report.ID, "error", err)
	}
}

// Record writes report to the store.
func (r *Recorder) Record(ctx context.Context, report engine.RunReport) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.store.CreateRun(ctx, report.ID, report.NodeCount, report.StartedAt); err != nil {
		return err
	}
	if err := r.store.AppendLogs(ctx, report.ID, report.Logs); err != nil {
		return err
	}

	errMsg := ""
	switch {
	case report.Err != nil:
		errMsg = report.Err.Error()
	case report.Discarded:
		errMsg = "discarded by reset"
	}
	if err := r.store.CompleteRun(ctx, report.ID, report.Status, errMsg); err != nil {
		return err
	}

	r.logger.Debug("recorded run", "run_id", report.ID, "status", report.Status, "logs", len(report.Logs))
	return nil
}
