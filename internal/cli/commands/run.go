package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leappipe/internal/cli/output"
	"github.com/leapstack-labs/leappipe/internal/engine"
	"github.com/leapstack-labs/leappipe/internal/state"
	"github.com/leapstack-labs/leappipe/internal/tui"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

// ErrRunStopped is returned when a run was stopped before completing.
var ErrRunStopped = errors.New("run was stopped")

// RunOptions holds options for the run command.
type RunOptions struct {
	TUI        bool
	JSONOutput bool
	NoRecord   bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <graph-file>",
		Short: "Execute a pipeline",
		Long: `Validate a pipeline and execute its nodes in dependency order.

Each node's work is simulated (see work.mode and work.speed). Logs stream as
the run progresses. Interrupting the command stops the run at the next node
boundary. Finished runs are recorded in the state database unless
--no-record is given; list them with 'leappipe runs'.`,
		Example: `  # Run a pipeline
  leappipe run pipeline.yaml

  # Run fast, four independent nodes at a time
  leappipe run pipeline.yaml --speed 10 --workers 4

  # Interactive terminal UI
  leappipe run pipeline.yaml --tui

  # JSON lines for CI/CD integration
  leappipe run pipeline.yaml --json`,
		Aliases: []string{"execute"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.TUI, "tui", false, "Show an interactive terminal UI")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Output as JSON lines for progress tracking")
	cmd.Flags().BoolVar(&opts.NoRecord, "no-record", false, "Do not record the run in the state database")
	cmd.Flags().Int("workers", 0, "Run up to this many independent nodes at once")
	cmd.Flags().Bool("strict-cycles", false, "Reject cyclic graphs during validation")
	cmd.Flags().String("work-mode", "", "Work unit: simulated or instant")
	cmd.Flags().Float64("speed", 0, "Divide simulated durations by this factor")
	cmd.Flags().Duration("timeout", 0, "Fail a node whose work takes longer than this")
	cmd.Flags().Uint64("seed", 0, "Seed for simulated durations and metrics")

	_ = cmd.RegisterFlagCompletionFunc("work-mode", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"simulated", "instant"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runRun(cmd *cobra.Command, path string, opts *RunOptions) error {
	cmdCtx := NewCommandContext(cmd)
	cfg, logger, r := cmdCtx.Cfg, cmdCtx.Logger, cmdCtx.Renderer
	ctx := cmd.Context()

	g, err := loadGraph(cmd, path)
	if err != nil {
		return err
	}

	var recorder *state.Recorder
	if !opts.NoRecord {
		store, cleanup, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		recorder = state.NewRecorder(store, logger)
	}

	var report engine.RunReport
	c, err := newController(cfg, logger, func(rep engine.RunReport) {
		report = rep
		if recorder != nil {
			recorder.RunFinished(rep)
		}
	})
	if err != nil {
		return err
	}

	if opts.TUI {
		return runTUI(ctx, c, g)
	}

	if opts.JSONOutput {
		r = output.NewRendererWithTTY(cmd.OutOrStdout(), cmd.ErrOrStderr(), false, output.ModeJSON)
	}
	return runStream(ctx, r, c, g, &report)
}

// runStream executes g and prints logs as they arrive.
func runStream(ctx context.Context, r *output.Renderer, c *engine.Controller, g core.Graph, report *engine.RunReport) error {
	jsonMode := r.EffectiveMode() == output.ModeJSON
	if jsonMode {
		if err := r.JSONLine(output.RunEvent{Event: "run_start", Nodes: g.NodeIDs()}); err != nil {
			return err
		}
	}

	// The watcher is detached from ctx so that logs emitted while stopping
	// after an interrupt are still printed.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		_ = engine.Watch(watchCtx, c, func(u engine.Update) {
			for i := range u.Logs {
				printLog(r, &u.Logs[i])
			}
		})
	}()

	execErr := c.Execute(ctx, g)
	if execErr == nil {
		if err := c.Wait(ctx); err != nil {
			c.Stop()
			_ = c.Wait(context.Background())
		}
	}

	stopWatch()
	<-watchDone

	if execErr != nil {
		if jsonMode {
			_ = r.JSONLine(output.RunEvent{Event: "run_end", Status: core.RunStatusFailed, Error: execErr.Error()})
		}
		return execErr
	}

	completed := len(c.Snapshot().CompletedNodes)
	summarizeRun(r, report, completed, c.Statuses())

	switch report.Status {
	case core.RunStatusFailed:
		return fmt.Errorf("run %s failed: %w", report.ID, report.Err)
	case core.RunStatusStopped:
		return ErrRunStopped
	}
	return nil
}

func printLog(r *output.Renderer, l *core.ExecutionLog) {
	switch r.EffectiveMode() {
	case output.ModeJSON:
		_ = r.JSONLine(output.RunEvent{Event: "log", Log: l})
	case output.ModeMarkdown:
		r.Printf("- `%s` **%s**: %s\n", output.FormatLogTime(l.Timestamp), l.NodeName, l.Message)
	default:
		styles := r.Styles()
		r.Printf("%s %s %s\n",
			styles.Muted.Render(output.FormatLogTime(l.Timestamp)),
			styles.Bold.Render(l.NodeName),
			styles.Severity(l.Severity).Render(l.Message))
	}
}

func summarizeRun(r *output.Renderer, report *engine.RunReport, completed int, statuses []core.NodeStatusEntry) {
	duration := report.CompletedAt.Sub(report.StartedAt)

	switch r.EffectiveMode() {
	case output.ModeJSON:
		evt := output.RunEvent{
			Event:     "run_end",
			RunID:     report.ID,
			Status:    report.Status,
			Completed: completed,
			Duration:  duration.Seconds(),
			Statuses:  statuses,
		}
		if report.Err != nil {
			evt.Error = report.Err.Error()
		}
		_ = r.JSONLine(evt)
	case output.ModeMarkdown:
		r.Println("")
		r.Println(output.FormatHeader(2, "Run "+report.ID))
		r.Println(output.FormatKeyValue("Status", string(report.Status)))
		r.Println(output.FormatKeyValue("Completed", fmt.Sprintf("%d/%d", completed, report.NodeCount)))
		r.Println(output.FormatKeyValue("Duration", duration.Round(time.Millisecond).String()))
	default:
		r.Println("")
		msg := fmt.Sprintf("Run %s %s: %d/%d nodes in %s",
			report.ID, report.Status, completed, report.NodeCount, duration.Round(time.Millisecond))
		switch report.Status {
		case core.RunStatusCompleted:
			r.Success(msg)
		case core.RunStatusStopped:
			r.Warning(msg)
		default:
			r.Error(msg)
		}
	}
}

// runTUI runs the interactive UI and stops any run still in flight on exit.
func runTUI(ctx context.Context, c *engine.Controller, g core.Graph) error {
	err := tui.Run(ctx, c, g)
	if c.Stop() {
		_ = c.Wait(context.Background())
	}
	return err
}
