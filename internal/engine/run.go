package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leappipe/pkg/core"
)

// run is the bookkeeping of one started execution.
type run struct {
	id        string
	gen       uint64
	nodes     map[string]core.PipelineNode
	levels    [][]string
	nodeCount int
	startedAt time.Time
	cancel    context.CancelFunc

	// guarded by Controller.mu
	stop    bool
	failed  bool
	logs    []core.ExecutionLog
	results map[string]core.WorkResult
}

// RunReport summarizes a finished run for OnFinish.
type RunReport struct {
	ID          string
	Status      core.RunStatus
	NodeCount   int
	StartedAt   time.Time
	CompletedAt time.Time
	// Err is the failure cause for failed runs.
	Err error
	// Discarded is set when Reset abandoned the run; its state was dropped.
	Discarded bool
	Logs      []core.ExecutionLog
	Results   map[string]core.WorkResult
}

// execute walks the run's levels. With one worker every level holds a
// single node, which makes this the sequential executor.
func (c *Controller) execute(ctx context.Context, r *run) {
	err := c.walk(ctx, r)
	c.finish(r, err)
}

func (c *Controller) walk(ctx context.Context, r *run) error {
	for _, level := range r.levels {
		if len(level) == 1 {
			if err := c.step(ctx, r, level[0]); err != nil {
				return err
			}
		} else {
			g := new(errgroup.Group)
			g.SetLimit(c.workers)
			for _, id := range level {
				g.Go(func() error { return c.step(ctx, r, id) })
			}
			if err := g.Wait(); err != nil {
				return err
			}
		}

		if !c.live(r) {
			return nil
		}
	}
	return nil
}

// step runs one node. It returns *NodeError on failure and nil when the
// node was skipped at its boundary.
func (c *Controller) step(ctx context.Context, r *run, id string) error {
	node := r.nodes[id]
	if !c.beginNode(r, node) {
		return nil
	}

	result, err := c.invoke(ctx, node)
	if err != nil {
		nodeErr := &NodeError{NodeID: node.ID, Label: node.DisplayLabel(), Err: err}
		c.failNode(r, node, err)
		return nodeErr
	}

	c.completeNode(r, node, result)
	if c.afterNode != nil {
		c.afterNode(node.ID)
	}
	return nil
}

// live reports whether the run may start more nodes.
func (c *Controller) live(r *run) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return r.gen == c.gen && !r.stop && !r.failed
}

// beginNode is the cancellation checkpoint. It marks the node running and
// logs its start, or reports false when the run must not start it.
func (c *Controller) beginNode(r *run, node core.PipelineNode) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.gen != c.gen || r.stop || r.failed {
		return false
	}

	label := node.DisplayLabel()
	c.setStatus(node.ID, core.StatusRunning)
	c.inflight = append(c.inflight, label)
	c.state.CurrentNode = label
	c.appendLog(r, node.ID, label, MsgStarted, core.SeverityInfo)
	c.logger.Debug("node started", "run_id", r.id, "node_id", node.ID, "label", label)
	c.notifier.Broadcast()
	return true
}

// invoke calls the work unit, converting a panic into an error.
func (c *Controller) invoke(ctx context.Context, node core.PipelineNode) (result core.WorkResult, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v}
		}
	}()
	return c.unit.Process(ctx, node)
}

func (c *Controller) completeNode(r *run, node core.PipelineNode, result core.WorkResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.gen != c.gen {
		return
	}

	label := node.DisplayLabel()
	msg := result.Message
	if msg == "" {
		msg = core.DefaultCompletionMessage
	}

	c.setStatus(node.ID, core.StatusCompleted)
	c.state.CompletedNodes = append(c.state.CompletedNodes, node.ID)
	c.leave(label)
	r.results[node.ID] = result
	c.appendLog(r, node.ID, label, msg, core.SeveritySuccess)
	c.logger.Debug("node completed", "run_id", r.id, "node_id", node.ID)
	c.notifier.Broadcast()
}

func (c *Controller) failNode(r *run, node core.PipelineNode, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.gen != c.gen {
		return
	}

	label := node.DisplayLabel()
	r.failed = true
	c.setStatus(node.ID, core.StatusError)
	c.leave(label)
	c.appendLog(r, node.ID, label, err.Error(), core.SeverityError)
	c.logger.Warn("node failed", "run_id", r.id, "node_id", node.ID, "error", err)
	c.notifier.Broadcast()
}

// leave removes label from the in-flight set; currentNode falls back to the
// most recently started node still running.
func (c *Controller) leave(label string) {
	for i, l := range c.inflight {
		if l == label {
			c.inflight = append(c.inflight[:i], c.inflight[i+1:]...)
			break
		}
	}
	c.state.CurrentNode = ""
	if n := len(c.inflight); n > 0 {
		c.state.CurrentNode = c.inflight[n-1]
	}
}

// finish publishes the terminal state of r and reports it.
func (c *Controller) finish(r *run, err error) {
	c.mu.Lock()

	report := RunReport{
		ID:          r.id,
		NodeCount:   r.nodeCount,
		StartedAt:   r.startedAt,
		CompletedAt: time.Now(),
		Results:     r.results,
	}

	switch {
	case r.gen != c.gen:
		report.Status = core.RunStatusStopped
		report.Discarded = true
	case err != nil:
		report.Status = core.RunStatusFailed
		report.Err = err
		reason := err
		var nodeErr *NodeError
		if errors.As(err, &nodeErr) {
			reason = nodeErr.Err
		}
		c.appendLog(r, "", core.PipelineLogName, "Execution error: "+reason.Error(), core.SeverityError)
	case r.stop && len(c.state.CompletedNodes) < r.nodeCount:
		// a stop that lands during the last node leaves nothing to skip
		report.Status = core.RunStatusStopped
		for _, id := range c.order {
			if c.statuses[id] == core.StatusRunning {
				c.statuses[id] = core.StatusIdle
			}
		}
		c.appendLog(r, "", core.PipelineLogName, MsgStopped, core.SeverityWarning)
	default:
		report.Status = core.RunStatusCompleted
		c.appendLog(r, "", core.PipelineLogName,
			fmt.Sprintf("Pipeline execution completed successfully. Processed %d nodes.", len(c.state.CompletedNodes)),
			core.SeveritySuccess)
	}

	if !report.Discarded {
		c.state.IsExecuting = false
		c.state.CurrentNode = ""
		c.inflight = nil
		c.phase = PhaseIdle
		c.current = nil
	}
	r.cancel()
	report.Logs = append([]core.ExecutionLog(nil), r.logs...)

	c.logger.Info("pipeline execution finished", "run_id", r.id, "status", report.Status,
		"duration", report.CompletedAt.Sub(report.StartedAt))
	c.notifier.Broadcast()
	c.mu.Unlock()

	if c.onFinish != nil {
		c.onFinish(report)
	}

	c.mu.Lock()
	c.active--
	c.mu.Unlock()
	c.notifier.Broadcast()
}
