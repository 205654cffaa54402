// Package state persists pipeline run history in SQLite.
// It records each run's terminal status and its full execution log.
package state

import (
	"errors"

	"github.com/leapstack-labs/leappipe/pkg/core"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// errNotOpened is returned by every operation before Open or OpenDB.
var errNotOpened = errors.New("database not opened")

// Store is implemented by SQLiteStore.
type Store = core.Store

var _ Store = (*SQLiteStore)(nil)
