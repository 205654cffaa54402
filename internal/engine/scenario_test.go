package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leappipe/internal/testutil"
	"github.com/leapstack-labs/leappipe/internal/validate"
	"github.com/leapstack-labs/leappipe/internal/work"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

// Scenario: A(Data Source) -> B(Transformer) -> C(Sink) with instant success.
func TestScenario_ChainRunsToCompletion(t *testing.T) {
	var reports []RunReport
	c := newController(t, Config{WorkUnit: echo, OnFinish: func(r RunReport) { reports = append(reports, r) }})

	result := validate.Validate(testutil.Chain())
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Warnings)

	require.NoError(t, c.Execute(context.Background(), testutil.Chain()))
	wait(t, c)

	snap := c.Snapshot()
	assert.Equal(t, []logLine{
		{"", MsgStarting, core.SeverityInfo},
		{"A", MsgStarted, core.SeverityInfo},
		{"A", "done A", core.SeveritySuccess},
		{"B", MsgStarted, core.SeverityInfo},
		{"B", "done B", core.SeveritySuccess},
		{"C", MsgStarted, core.SeverityInfo},
		{"C", "done C", core.SeveritySuccess},
		{"", "Pipeline execution completed successfully. Processed 3 nodes.", core.SeveritySuccess},
	}, lines(snap.Logs))

	assert.False(t, snap.IsExecuting)
	assert.Empty(t, snap.CurrentNode)
	assert.Equal(t, []string{"A", "B", "C"}, snap.CompletedNodes)
	assert.Equal(t, []core.NodeStatusEntry{
		{NodeID: "A", Status: core.StatusCompleted},
		{NodeID: "B", Status: core.StatusCompleted},
		{NodeID: "C", Status: core.StatusCompleted},
	}, c.Statuses())

	for _, l := range snap.Logs {
		assert.NotEmpty(t, l.ID)
		if l.NodeID == "" {
			assert.Equal(t, core.PipelineLogName, l.NodeName)
		} else {
			assert.Equal(t, l.NodeID, l.NodeName)
		}
	}

	require.Len(t, reports, 1)
	assert.Equal(t, core.RunStatusCompleted, reports[0].Status)
	assert.Equal(t, 3, reports[0].NodeCount)
	assert.Equal(t, snap.Logs, reports[0].Logs)
	assert.Len(t, reports[0].Results, 3)
}

// Scenario: a lone Transformer never starts.
func TestScenario_InvalidGraphNeverRuns(t *testing.T) {
	var reports []RunReport
	c := newController(t, Config{WorkUnit: echo, OnFinish: func(r RunReport) { reports = append(reports, r) }})

	ping, unsubscribe := c.Subscribe()
	defer unsubscribe()

	g := core.Graph{Nodes: []core.PipelineNode{testutil.Node("T", core.KindTransformer)}}
	err := c.Execute(context.Background(), g)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	var inner *validate.Error
	assert.ErrorAs(t, err, &inner)

	snap := c.Snapshot()
	assert.False(t, snap.IsExecuting)
	assert.Equal(t, []logLine{
		{"", "Execution failed: Pipeline must have at least one Data Source node.", core.SeverityError},
	}, lines(snap.Logs))
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Empty(t, reports)

	<-ping
	assert.Empty(t, c.Statuses())
}

// Scenario: stop after A completes and before B starts.
func TestScenario_StopBetweenNodes(t *testing.T) {
	c := newController(t, Config{WorkUnit: echo})
	c.afterNode = func(id string) {
		if id != "A" {
			return
		}
		s, _ := c.StatusOf("A")
		assert.Equal(t, core.StatusCompleted, s)
		assert.Equal(t, []string{"A"}, c.Snapshot().CompletedNodes)
		assert.True(t, c.Stop())
	}

	var seen []core.NodeStatus
	ctx, cancel := context.WithCancel(context.Background())
	watched := make(chan error, 1)
	go func() {
		watched <- Watch(ctx, c, func(u Update) {
			for _, s := range u.Statuses {
				if s.NodeID != "A" {
					seen = append(seen, s.Status)
				}
			}
		})
	}()

	require.NoError(t, c.Execute(context.Background(), testutil.Chain()))
	wait(t, c)
	cancel()
	<-watched

	snap := c.Snapshot()
	assert.False(t, snap.IsExecuting)
	assert.Equal(t, []string{"A"}, snap.CompletedNodes)

	for _, id := range []string{"B", "C"} {
		s, ok := c.StatusOf(id)
		assert.True(t, ok)
		assert.Equal(t, core.StatusIdle, s)
	}
	for _, l := range snap.Logs {
		assert.NotContains(t, []string{"B", "C"}, l.NodeID)
	}
	assert.NotContains(t, seen, core.StatusRunning)
	assert.Equal(t, MsgStopped, snap.Logs[len(snap.Logs)-1].Message)
}

// Scenario: B's work unit fails.
func TestScenario_NodeFailureAborts(t *testing.T) {
	unit := work.Func(func(_ context.Context, n core.PipelineNode) (core.WorkResult, error) {
		if n.ID == "B" {
			return core.WorkResult{}, errors.New("connection refused")
		}
		return core.WorkResult{Message: "done " + n.ID}, nil
	})
	c := newController(t, Config{WorkUnit: unit})

	require.NoError(t, c.Execute(context.Background(), testutil.Chain()))
	wait(t, c)

	snap := c.Snapshot()
	assert.Equal(t, []string{"A"}, snap.CompletedNodes)
	assert.False(t, snap.IsExecuting)

	b, _ := c.StatusOf("B")
	assert.Equal(t, core.StatusError, b)
	cs, _ := c.StatusOf("C")
	assert.Equal(t, core.StatusIdle, cs)

	var bErrors []logLine
	for _, l := range lines(snap.Logs) {
		if l.NodeID == "B" && l.Severity == core.SeverityError {
			bErrors = append(bErrors, l)
		}
		assert.NotEqual(t, "C", l.NodeID)
	}
	assert.Equal(t, []logLine{{"B", "connection refused", core.SeverityError}}, bErrors)
	assert.Equal(t, logLine{"", "Execution error: connection refused", core.SeverityError}, lines(snap.Logs)[len(snap.Logs)-1])
}
