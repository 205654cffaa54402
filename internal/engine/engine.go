// Package engine executes pipeline graphs.
//
// A Controller is the single writer of execution state: it validates a graph,
// computes its order, runs every node's work unit in dependency order and
// publishes status changes and logs to any number of observers.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leappipe/internal/dag"
	"github.com/leapstack-labs/leappipe/internal/notifier"
	"github.com/leapstack-labs/leappipe/internal/validate"
	"github.com/leapstack-labs/leappipe/internal/work"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

// Pipeline-level log messages.
const (
	MsgStarting = "Starting pipeline execution..."
	MsgStarted  = "Started processing..."
	MsgStopped  = "Pipeline execution stopped."
)

// Phase is the coarse lifecycle state of a controller.
type Phase int

// Controller phases.
const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseStopping
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// Config holds controller configuration.
type Config struct {
	// WorkUnit performs each node's work (optional, defaults to a simulated unit)
	WorkUnit core.WorkUnit
	// Workers bounds how many independent nodes run at once. Values below 2
	// run strictly one node at a time.
	Workers int
	// StrictCycles makes validation reject cyclic graphs up front.
	StrictCycles bool
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// OnFinish is called once per started run, after its terminal state is
	// published. It runs on the executor goroutine without the lock held.
	OnFinish func(RunReport)
}

// Controller owns one pipeline's execution state.
type Controller struct {
	unit     core.WorkUnit
	workers  int
	strict   bool
	logger   *slog.Logger
	onFinish func(RunReport)
	// afterNode runs on the executor goroutine once a node has completed,
	// before the next boundary check. Tests use it to act between nodes.
	afterNode func(id string)
	notifier *notifier.Notifier

	mu       sync.Mutex
	gen      uint64
	phase    Phase
	state    core.ExecutionState
	statuses map[string]core.NodeStatus
	order    []string // status insertion order
	active   int      // executor goroutines not yet exited
	current  *run
	inflight []string // labels of nodes whose work unit is running
}

// New creates a controller.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	unit := cfg.WorkUnit
	if unit == nil {
		unit = work.NewSimulated(1, uint64(time.Now().UnixNano()))
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	return &Controller{
		unit:     unit,
		workers:  workers,
		strict:   cfg.StrictCycles,
		logger:   logger,
		onFinish: cfg.OnFinish,
		notifier: notifier.New(),
		state:    emptyState(),
		statuses: make(map[string]core.NodeStatus),
	}
}

func emptyState() core.ExecutionState {
	return core.ExecutionState{CompletedNodes: []string{}, Logs: []core.ExecutionLog{}}
}

// Execute validates g and starts running it in the background.
//
// It returns ErrAlreadyRunning while a run is in flight, *ValidationError
// when g is invalid and *StructuralError when g cannot be ordered. In the
// latter two cases a single error log is emitted and the run never starts.
// The run is detached from ctx's cancellation; use Stop or Reset.
func (c *Controller) Execute(ctx context.Context, g core.Graph) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseIdle {
		return ErrAlreadyRunning
	}

	result, err := validate.Check(g, validate.Options{StrictCycles: c.strict})
	if err != nil {
		c.logger.Debug("pipeline rejected", "errors", result.Errors)
		c.appendLog(nil, "", core.PipelineLogName,
			"Execution failed: "+strings.Join(result.Errors, ", "), core.SeverityError)
		c.notifier.Broadcast()
		return &ValidationError{Result: result, Err: err.(*validate.Error)}
	}

	levels, err := c.plan(g)
	if err != nil {
		c.logger.Debug("pipeline has no execution order", "error", err)
		c.appendLog(nil, "", core.PipelineLogName, "Structural error: "+err.Error(), core.SeverityError)
		c.notifier.Broadcast()
		return &StructuralError{Err: err}
	}

	r := &run{
		id:        uuid.NewString(),
		gen:       c.gen,
		nodes:     g.NodeIndex(),
		levels:    levels,
		startedAt: time.Now(),
		results:   make(map[string]core.WorkResult),
	}
	for _, level := range levels {
		r.nodeCount += len(level)
	}

	c.statuses = make(map[string]core.NodeStatus, len(g.Nodes))
	c.order = c.order[:0]
	for _, id := range g.NodeIDs() {
		c.setStatus(id, core.StatusIdle)
	}
	c.state.CompletedNodes = []string{}
	c.state.CurrentNode = ""
	c.state.IsExecuting = true
	c.inflight = nil
	c.phase = PhaseRunning
	c.current = r
	c.active++

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	c.logger.Info("starting pipeline execution", "run_id", r.id, "nodes", r.nodeCount, "workers", c.workers)
	c.appendLog(r, "", core.PipelineLogName, MsgStarting, core.SeverityInfo)
	c.notifier.Broadcast()

	go c.execute(runCtx, r)
	return nil
}

// plan returns the execution levels of g. In sequential mode every level
// holds exactly one node, in scheduler order.
func (c *Controller) plan(g core.Graph) ([][]string, error) {
	if c.workers > 1 {
		return dag.Levels(g.Nodes, g.Edges)
	}

	order, err := dag.Order(g.Nodes, g.Edges)
	if err != nil {
		return nil, err
	}
	levels := make([][]string, len(order))
	for i, id := range order {
		levels[i] = []string{id}
	}
	return levels, nil
}

// Stop asks the current run to stop at the next node boundary. In-flight
// work is not interrupted. It reports whether a run was signalled.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseRunning {
		return false
	}
	c.current.stop = true
	c.phase = PhaseStopping
	c.logger.Debug("stop requested", "run_id", c.current.id)
	c.notifier.Broadcast()
	return true
}

// Reset clears execution state, statuses and logs regardless of phase.
// An in-flight run is cancelled and its later writes are discarded.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	if c.current != nil {
		c.logger.Debug("discarding in-flight run", "run_id", c.current.id)
		c.current.cancel()
		c.current = nil
	}
	c.phase = PhaseIdle
	c.state = emptyState()
	c.statuses = make(map[string]core.NodeStatus)
	c.order = nil
	c.inflight = nil
	c.notifier.Broadcast()
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Snapshot returns a copy of the execution state.
func (c *Controller) Snapshot() core.ExecutionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Statuses returns node statuses in insertion order.
func (c *Controller) Statuses() []core.NodeStatusEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusEntries()
}

// StatusOf returns a node's status. Unknown ids report idle and false.
func (c *Controller) StatusOf(id string) (core.NodeStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[id]
	if !ok {
		return core.StatusIdle, false
	}
	return s, true
}

// Subscribe returns a channel pinged after every state change, and a func
// that unsubscribes. Pings coalesce; pull with Snapshot or LogsSince.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	return c.notifier.Subscribe()
}

// Wait blocks until the controller is idle and no executor goroutine,
// including ones discarded by Reset, is still running.
func (c *Controller) Wait(ctx context.Context) error {
	ping, unsubscribe := c.Subscribe()
	defer unsubscribe()

	for {
		c.mu.Lock()
		done := c.phase == PhaseIdle && c.active == 0
		c.mu.Unlock()
		if done {
			return nil
		}

		select {
		case <-ping:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// =============================================================================
// Locked helpers
// =============================================================================

func (c *Controller) statusEntries() []core.NodeStatusEntry {
	out := make([]core.NodeStatusEntry, len(c.order))
	for i, id := range c.order {
		out[i] = core.NodeStatusEntry{NodeID: id, Status: c.statuses[id]}
	}
	return out
}

func (c *Controller) setStatus(id string, s core.NodeStatus) {
	if _, ok := c.statuses[id]; !ok {
		c.order = append(c.order, id)
	}
	c.statuses[id] = s
}

// appendLog adds a log entry. Entries of a run are also kept on the run for
// its report.
func (c *Controller) appendLog(r *run, nodeID, nodeName, msg string, sev core.Severity) {
	entry := core.ExecutionLog{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		NodeID:    nodeID,
		NodeName:  nodeName,
		Message:   msg,
		Severity:  sev,
	}
	c.state.Logs = append(c.state.Logs, entry)
	if r != nil {
		r.logs = append(r.logs, entry)
	}
}
