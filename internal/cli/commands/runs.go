package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leappipe/internal/cli/output"
	"github.com/leapstack-labs/leappipe/internal/state"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

// RunsOptions holds options for the runs command.
type RunsOptions struct {
	Limit    int
	Severity []string
}

type runDetailJSON struct {
	*core.Run
	Logs []core.ExecutionLog `json:"logs"`
}

// NewRunsCommand creates the runs command and its show subcommand.
func NewRunsCommand() *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded pipeline runs",
		Long:  `List finished runs from the state database, most recent first.`,
		Example: `  # Ten most recent runs
  leappipe runs --limit 10

  # One run with its log
  leappipe runs show 3f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runListRuns(cmd, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to list")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a recorded run and its log",
		Example: `  # Only failures and warnings
  leappipe runs show 3f1c... --severity error,warning`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShowRun(cmd, args[0], opts)
		},
	}
	show.Flags().StringSliceVar(&opts.Severity, "severity", nil, "Only show log entries of these severities (info|success|warning|error)")
	_ = show.RegisterFlagCompletionFunc("severity", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"info", "success", "warning", "error"}, cobra.ShellCompDirectiveNoFileComp
	})
	cmd.AddCommand(show)

	return cmd
}

func runListRuns(cmd *cobra.Command, opts *RunsOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer
	ctx := cmd.Context()

	store, cleanup, err := openStore(ctx, cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer cleanup()

	runs, err := store.ListRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		if runs == nil {
			runs = []*core.Run{}
		}
		return r.JSON(runs)
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			string(run.Status),
			strconv.Itoa(run.NodeCount),
			run.StartedAt.Local().Format(time.DateTime),
			formatRunDuration(run),
		})
	}
	r.Header(1, "Runs")
	r.Table([]string{"ID", "STATUS", "NODES", "STARTED", "DURATION"}, rows)
	return nil
}

func runShowRun(cmd *cobra.Command, id string, opts *RunsOptions) error {
	keep, err := severityFilter(opts.Severity)
	if err != nil {
		return err
	}

	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer
	ctx := cmd.Context()

	store, cleanup, err := openStore(ctx, cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer cleanup()

	run, err := store.GetRun(ctx, id)
	if errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("run %q not found", id)
	}
	if err != nil {
		return err
	}
	logs, err := store.GetRunLogs(ctx, id)
	if err != nil {
		return err
	}
	logs = filterLogs(logs, keep)

	if r.EffectiveMode() == output.ModeJSON {
		if logs == nil {
			logs = []core.ExecutionLog{}
		}
		return r.JSON(runDetailJSON{Run: run, Logs: logs})
	}

	r.Header(1, "Run "+run.ID)
	r.Println(output.FormatKeyValue("Status", string(run.Status)))
	r.Println(output.FormatKeyValue("Nodes", strconv.Itoa(run.NodeCount)))
	r.Println(output.FormatKeyValue("Started", run.StartedAt.Local().Format(time.DateTime)))
	r.Println(output.FormatKeyValue("Duration", formatRunDuration(run)))
	if run.Error != "" {
		r.Println(output.FormatKeyValue("Error", run.Error))
	}
	r.Println("")
	r.Header(2, "Log")
	for i := range logs {
		printLog(r, &logs[i])
	}
	return nil
}

func formatRunDuration(run *core.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.Duration().Round(time.Millisecond).String()
}

// severityFilter parses severity names into a set. An empty list keeps everything.
func severityFilter(names []string) (map[core.Severity]bool, error) {
	if len(names) == 0 {
		return nil, nil
	}
	keep := make(map[core.Severity]bool, len(names))
	for _, name := range names {
		sev, ok := core.ParseSeverity(name)
		if !ok {
			return nil, fmt.Errorf("unknown severity %q (want info, success, warning or error)", name)
		}
		keep[sev] = true
	}
	return keep, nil
}

func filterLogs(logs []core.ExecutionLog, keep map[core.Severity]bool) []core.ExecutionLog {
	if keep == nil {
		return logs
	}
	out := logs[:0:0]
	for _, l := range logs {
		if keep[l.Severity] {
			out = append(out, l)
		}
	}
	return out
}
