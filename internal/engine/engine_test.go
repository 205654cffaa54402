package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leappipe/internal/dag"
	"github.com/leapstack-labs/leappipe/internal/testutil"
	"github.com/leapstack-labs/leappipe/internal/work"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

// newController builds a controller whose runs are always drained before the
// test ends.
func newController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testutil.NewTestLogger(t)
	}
	c := New(cfg)
	t.Cleanup(func() {
		c.Reset()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, c.Wait(ctx))
	})
	return c
}

func wait(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

// echo succeeds immediately with "done <id>".
var echo = work.Func(func(_ context.Context, n core.PipelineNode) (core.WorkResult, error) {
	return core.WorkResult{Message: "done " + n.ID}, nil
})

// blockUntil returns a unit that blocks every node until release is closed.
func blockUntil(release <-chan struct{}) work.Func {
	return func(ctx context.Context, n core.PipelineNode) (core.WorkResult, error) {
		select {
		case <-release:
			return core.WorkResult{Message: "done " + n.ID}, nil
		case <-ctx.Done():
			return core.WorkResult{}, ctx.Err()
		}
	}
}

type logLine struct {
	NodeID   string
	Message  string
	Severity core.Severity
}

func lines(logs []core.ExecutionLog) []logLine {
	out := make([]logLine, len(logs))
	for i, l := range logs {
		out[i] = logLine{l.NodeID, l.Message, l.Severity}
	}
	return out
}

func waitForStatus(t *testing.T, c *Controller, id string, want core.NodeStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, _ := c.StatusOf(id)
		return s == want
	}, 5*time.Second, time.Millisecond)
}

func TestExecute_AlreadyRunning(t *testing.T) {
	release := make(chan struct{})
	c := newController(t, Config{WorkUnit: blockUntil(release)})

	require.NoError(t, c.Execute(context.Background(), testutil.Chain()))
	assert.Equal(t, PhaseRunning, c.Phase())

	err := c.Execute(context.Background(), testutil.Chain())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	wait(t, c)

	snap := c.Snapshot()
	assert.False(t, snap.IsExecuting)
	assert.Equal(t, []string{"A", "B", "C"}, snap.CompletedNodes)
	assert.Equal(t, PhaseIdle, c.Phase())
}

func TestExecute_StructuralError(t *testing.T) {
	c := newController(t, Config{WorkUnit: echo})

	g := core.Graph{
		Nodes: []core.PipelineNode{
			testutil.Node("s", core.KindDataSource),
			testutil.Node("t", core.KindTransformer),
			testutil.Node("k", core.KindSink),
		},
		Edges: []core.PipelineEdge{
			testutil.Edge("s", "t"),
			testutil.Edge("t", "k"),
			testutil.Edge("k", "t"),
		},
	}

	err := c.Execute(context.Background(), g)
	require.Error(t, err)

	var structErr *StructuralError
	require.ErrorAs(t, err, &structErr)
	var cycleErr *dag.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"t", "k"}, cycleErr.Remaining)

	snap := c.Snapshot()
	assert.False(t, snap.IsExecuting)
	require.Len(t, snap.Logs, 1)
	assert.Equal(t, core.SeverityError, snap.Logs[0].Severity)
	assert.Contains(t, snap.Logs[0].Message, "Structural error: ")
	assert.Empty(t, c.Statuses())
}

func TestExecute_StrictCyclesRejectsUpFront(t *testing.T) {
	c := newController(t, Config{WorkUnit: echo, StrictCycles: true})

	g := core.Graph{
		Nodes: []core.PipelineNode{testutil.Node("s", core.KindDataSource), testutil.Node("k", core.KindSink)},
		Edges: []core.PipelineEdge{testutil.Edge("s", "k"), testutil.Edge("k", "s")},
	}

	err := c.Execute(context.Background(), g)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"Pipeline contains a cycle: s -> k -> s."}, verr.Result.Errors)
}

func TestExecute_EmptyMessageFallsBack(t *testing.T) {
	unit := work.Func(func(context.Context, core.PipelineNode) (core.WorkResult, error) {
		return core.WorkResult{}, nil
	})
	c := newController(t, Config{WorkUnit: unit})

	require.NoError(t, c.Execute(context.Background(), testutil.Chain()))
	wait(t, c)

	logs := c.Snapshot().Logs
	assert.Equal(t, "Processing completed", logs[2].Message)
	assert.Equal(t, core.SeveritySuccess, logs[2].Severity)
}

func TestExecute_PanicIsNodeFailure(t *testing.T) {
	unit := work.Func(func(_ context.Context, n core.PipelineNode) (core.WorkResult, error) {
		if n.ID == "B" {
			panic("boom")
		}
		return core.WorkResult{Message: "ok"}, nil
	})

	var reports []RunReport
	c := newController(t, Config{WorkUnit: unit, OnFinish: func(r RunReport) { reports = append(reports, r) }})

	require.NoError(t, c.Execute(context.Background(), testutil.Chain()))
	wait(t, c)

	s, _ := c.StatusOf("B")
	assert.Equal(t, core.StatusError, s)

	logs := c.Snapshot().Logs
	last := logs[len(logs)-1]
	assert.Equal(t, "Execution error: work unit panicked: boom", last.Message)

	require.Len(t, reports, 1)
	assert.Equal(t, core.RunStatusFailed, reports[0].Status)
	var nodeErr *NodeError
	require.ErrorAs(t, reports[0].Err, &nodeErr)
	assert.Equal(t, "B", nodeErr.NodeID)
	var panicErr *PanicError
	assert.ErrorAs(t, reports[0].Err, &panicErr)
}

func TestStop_Idle(t *testing.T) {
	c := newController(t, Config{WorkUnit: echo})
	assert.False(t, c.Stop())
	assert.Empty(t, c.Snapshot().Logs)
}

func TestStop_WhileNodeInFlight(t *testing.T) {
	release := make(chan struct{})
	c := newController(t, Config{WorkUnit: blockUntil(release)})

	require.NoError(t, c.Execute(context.Background(), testutil.Chain()))
	waitForStatus(t, c, "A", core.StatusRunning)

	require.True(t, c.Stop())
	assert.Equal(t, PhaseStopping, c.Phase())
	assert.False(t, c.Stop(), "second stop is a no-op")

	// in-flight work is not interrupted
	close(release)
	wait(t, c)

	snap := c.Snapshot()
	assert.False(t, snap.IsExecuting)
	assert.Empty(t, snap.CurrentNode)
	assert.Equal(t, []string{"A"}, snap.CompletedNodes)
	assert.Equal(t, logLine{"", MsgStopped, core.SeverityWarning}, lines(snap.Logs)[len(snap.Logs)-1])
}

func TestStop_DuringLastNodeStillCompletes(t *testing.T) {
	var c *Controller
	stopped := false
	unit := work.Func(func(_ context.Context, n core.PipelineNode) (core.WorkResult, error) {
		if n.ID == "C" {
			stopped = c.Stop()
		}
		return core.WorkResult{Message: "done " + n.ID}, nil
	})

	var report RunReport
	c = newController(t, Config{WorkUnit: unit, OnFinish: func(r RunReport) { report = r }})
	require.NoError(t, c.Execute(context.Background(), testutil.Chain()))
	wait(t, c)

	require.True(t, stopped)
	snap := c.Snapshot()
	assert.Equal(t, []string{"A", "B", "C"}, snap.CompletedNodes)
	assert.Equal(t,
		logLine{"", "Pipeline execution completed successfully. Processed 3 nodes.", core.SeveritySuccess},
		lines(snap.Logs)[len(snap.Logs)-1])
	for _, l := range snap.Logs {
		assert.NotEqual(t, MsgStopped, l.Message)
	}
	assert.Equal(t, core.RunStatusCompleted, report.Status)
	assert.Equal(t, PhaseIdle, c.Phase())
}

func TestReset_Idempotent(t *testing.T) {
	c := newController(t, Config{WorkUnit: echo})
	require.NoError(t, c.Execute(context.Background(), testutil.Chain()))
	wait(t, c)

	c.Reset()
	once := c.Snapshot()
	onceStatuses := c.Statuses()

	c.Reset()
	assert.Equal(t, once, c.Snapshot())
	assert.Equal(t, onceStatuses, c.Statuses())

	assert.Equal(t, core.ExecutionState{CompletedNodes: []string{}, Logs: []core.ExecutionLog{}}, once)
	assert.Empty(t, onceStatuses)
}

func TestReset_DiscardsInFlightRun(t *testing.T) {
	started := make(chan struct{})
	unit := work.Func(func(ctx context.Context, n core.PipelineNode) (core.WorkResult, error) {
		close(started)
		<-ctx.Done()
		// a late success must not be applied
		return core.WorkResult{Message: "late"}, nil
	})

	reports := make(chan RunReport, 1)
	c := newController(t, Config{WorkUnit: unit, OnFinish: func(r RunReport) { reports <- r }})

	require.NoError(t, c.Execute(context.Background(), testutil.Chain()))
	<-started

	c.Reset()
	assert.Equal(t, PhaseIdle, c.Phase())
	wait(t, c)

	snap := c.Snapshot()
	assert.Empty(t, snap.Logs)
	assert.Empty(t, snap.CompletedNodes)
	assert.False(t, snap.IsExecuting)
	assert.Empty(t, c.Statuses())

	r := <-reports
	assert.True(t, r.Discarded)
	assert.Equal(t, core.RunStatusStopped, r.Status)
	assert.Len(t, r.Logs, 2, "start log and A's start log")
}

func TestReset_ThenExecuteAgain(t *testing.T) {
	c := newController(t, Config{WorkUnit: echo})
	require.NoError(t, c.Execute(context.Background(), testutil.Chain()))
	wait(t, c)
	c.Reset()

	require.NoError(t, c.Execute(context.Background(), testutil.Chain()))
	wait(t, c)
	assert.Equal(t, []string{"A", "B", "C"}, c.Snapshot().CompletedNodes)
	assert.Len(t, c.Snapshot().Logs, 8)
}

func TestExecute_DetachedFromCallerContext(t *testing.T) {
	release := make(chan struct{})
	c := newController(t, Config{WorkUnit: blockUntil(release)})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Execute(ctx, testutil.Chain()))
	cancel()

	close(release)
	wait(t, c)
	assert.Equal(t, []string{"A", "B", "C"}, c.Snapshot().CompletedNodes)
}

func TestLogsSince(t *testing.T) {
	c := newController(t, Config{WorkUnit: echo})
	require.NoError(t, c.Execute(context.Background(), testutil.Chain()))
	wait(t, c)

	logs, cur, reset := c.LogsSince(Cursor{})
	assert.False(t, reset)
	assert.Len(t, logs, 8)

	logs, cur, reset = c.LogsSince(cur)
	assert.False(t, reset)
	assert.Empty(t, logs)

	c.Reset()
	require.Error(t, c.Execute(context.Background(), core.Graph{}))

	logs, _, reset = c.LogsSince(cur)
	assert.True(t, reset)
	require.Len(t, logs, 1)
	assert.Equal(t, "Execution failed: Pipeline is empty. Add some nodes to get started.", logs[0].Message)
}

func TestWatch_DeliversEveryLogOnce(t *testing.T) {
	c := newController(t, Config{WorkUnit: work.NewInstant(1)})

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu       sync.Mutex
		received []core.ExecutionLog
	)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, c, func(u Update) {
			mu.Lock()
			received = append(received, u.Logs...)
			mu.Unlock()
		})
	}()

	g := testutil.Linear(6)
	require.NoError(t, c.Execute(context.Background(), g))
	wait(t, c)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, c.Snapshot().Logs, received)
}

func TestWorkers_RunIndependentNodesConcurrently(t *testing.T) {
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	barrier := make(chan struct{})
	var once sync.Once

	unit := work.Func(func(ctx context.Context, n core.PipelineNode) (core.WorkResult, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		if running == 2 {
			once.Do(func() { close(barrier) })
		}
		mu.Unlock()

		if n.ID == "left" || n.ID == "right" {
			select {
			case <-barrier:
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
			}
		}

		mu.Lock()
		running--
		mu.Unlock()
		return core.WorkResult{Message: "done"}, nil
	})

	c := newController(t, Config{WorkUnit: unit, Workers: 2})
	g := core.Graph{
		Nodes: []core.PipelineNode{
			testutil.Node("src", core.KindDataSource),
			testutil.Node("left", core.KindTransformer),
			testutil.Node("right", core.KindModel),
			testutil.Node("sink", core.KindSink),
		},
		Edges: []core.PipelineEdge{
			testutil.Edge("src", "left"),
			testutil.Edge("src", "right"),
			testutil.Edge("left", "sink"),
			testutil.Edge("right", "sink"),
		},
	}

	require.NoError(t, c.Execute(context.Background(), g))
	wait(t, c)

	mu.Lock()
	assert.Equal(t, 2, peak)
	mu.Unlock()

	snap := c.Snapshot()
	assert.ElementsMatch(t, []string{"src", "left", "right", "sink"}, snap.CompletedNodes)

	// a node starts only after all its dependencies completed
	pos := map[string]int{}
	for i, l := range snap.Logs {
		key := l.NodeID + "/" + string(l.Severity)
		if _, seen := pos[key]; !seen {
			pos[key] = i
		}
	}
	for _, e := range g.Edges {
		assert.Less(t, pos[e.Source+"/success"], pos[e.Target+"/info"], "%s -> %s", e.Source, e.Target)
	}
	assert.Equal(t, "Pipeline execution completed successfully. Processed 4 nodes.", snap.Logs[len(snap.Logs)-1].Message)
}

func TestWorkers_FailureStopsLaterLevels(t *testing.T) {
	unit := work.Func(func(_ context.Context, n core.PipelineNode) (core.WorkResult, error) {
		if n.ID == "left" {
			return core.WorkResult{}, errors.New("bad input")
		}
		return core.WorkResult{Message: "ok"}, nil
	})

	c := newController(t, Config{WorkUnit: unit, Workers: 4})
	g := core.Graph{
		Nodes: []core.PipelineNode{
			testutil.Node("src", core.KindDataSource),
			testutil.Node("left", core.KindTransformer),
			testutil.Node("sink", core.KindSink),
		},
		Edges: []core.PipelineEdge{testutil.Edge("src", "left"), testutil.Edge("left", "sink")},
	}

	require.NoError(t, c.Execute(context.Background(), g))
	wait(t, c)

	s, _ := c.StatusOf("sink")
	assert.Equal(t, core.StatusIdle, s)
	logs := c.Snapshot().Logs
	assert.Equal(t, "Execution error: bad input", logs[len(logs)-1].Message)
}
