package engine

import (
	"context"

	"github.com/leapstack-labs/leappipe/pkg/core"
)

// Cursor marks a position in a controller's log stream. The zero Cursor
// reads from the beginning.
type Cursor struct {
	// Generation changes whenever Reset clears the logs.
	Generation uint64 `json:"generation"`
	Offset     int    `json:"offset"`
}

// LogsSince returns the log entries after cur and the cursor to pass next
// time. If the logs were reset since cur was taken, all current entries are
// returned and reset is true.
func (c *Controller) LogsSince(cur Cursor) (logs []core.ExecutionLog, next Cursor, reset bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logsSince(cur)
}

func (c *Controller) logsSince(cur Cursor) ([]core.ExecutionLog, Cursor, bool) {
	offset := cur.Offset
	reset := cur.Generation != c.gen || offset > len(c.state.Logs)
	if reset {
		offset = 0
	}

	logs := make([]core.ExecutionLog, len(c.state.Logs)-offset)
	copy(logs, c.state.Logs[offset:])
	return logs, Cursor{Generation: c.gen, Offset: len(c.state.Logs)}, reset
}

// Update is one observation delivered by Watch.
type Update struct {
	State    core.ExecutionState
	Statuses []core.NodeStatusEntry
	Phase    Phase
	// Logs holds only the entries not delivered before.
	Logs []core.ExecutionLog
	// Reset is set when the controller was reset since the previous update.
	Reset bool
}

// Observe returns a consistent view of state, statuses and the logs after cur.
func (c *Controller) Observe(cur Cursor) (Update, Cursor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logs, next, reset := c.logsSince(cur)
	return Update{
		State:    c.state.Clone(),
		Statuses: c.statusEntries(),
		Phase:    c.phase,
		Logs:     logs,
		Reset:    reset,
	}, next
}

// Watch calls fn with an Update on every state change until ctx is done.
// Every log entry is delivered exactly once, in emission order. An initial
// update is delivered immediately, and a final one is pulled when ctx ends
// so that nothing emitted before cancellation is lost.
func Watch(ctx context.Context, c *Controller, fn func(Update)) error {
	ping, unsubscribe := c.Subscribe()
	defer unsubscribe()

	c.mu.Lock()
	cur := Cursor{Generation: c.gen}
	c.mu.Unlock()

	deliver := func() {
		var u Update
		u, cur = c.Observe(cur)
		fn(u)
	}

	deliver()
	for {
		select {
		case <-ping:
			deliver()
		case <-ctx.Done():
			deliver()
			return ctx.Err()
		}
	}
}
