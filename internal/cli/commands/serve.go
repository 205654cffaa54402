package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leappipe/internal/catalog"
	"github.com/leapstack-labs/leappipe/internal/server"
	"github.com/leapstack-labs/leappipe/internal/state"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pipeline API server",
		Long: `Start an HTTP server exposing pipeline validation, ordering, execution
control and the node-type catalog.

Execution progress streams to browsers over server-sent events at
/api/pipeline/events. Finished runs are recorded in the state database and
listed at /api/runs.`,
		Example: `  # Serve on the default address
  leappipe serve

  # Serve on another port and answer catalog requests without delay
  leappipe serve --addr :9000 --catalog-latency 0`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "Listen address")
	cmd.Flags().Duration("catalog-latency", 0, "Artificial delay before answering catalog requests")
	cmd.Flags().Int("workers", 0, "Run up to this many independent nodes at once")
	cmd.Flags().Bool("strict-cycles", false, "Reject cyclic graphs during validation")
	cmd.Flags().String("work-mode", "", "Work unit: simulated or instant")
	cmd.Flags().Float64("speed", 0, "Divide simulated durations by this factor")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cmdCtx := NewCommandContext(cmd)
	cfg, logger := cmdCtx.Cfg, cmdCtx.Logger
	ctx := cmd.Context()

	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	recorder := state.NewRecorder(store, logger)

	c, err := newController(cfg, logger, recorder.RunFinished)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:         cfg.Server.Addr,
		Controller:   c,
		Store:        store,
		Catalog:      catalog.NewHandler(nil, cfg.Server.CatalogLatency, logger),
		StrictCycles: cfg.Engine.StrictCycles,
		Logger:       logger,
	})

	cmdCtx.Renderer.Muted("Listening on " + cfg.Server.Addr)
	err = srv.Serve(ctx)

	if c.Stop() {
		logger.Info("stopping in-flight run")
	}
	c.Reset()
	waitCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
	defer cancel()
	if werr := c.Wait(waitCtx); werr != nil {
		logger.Debug("run still draining at shutdown", "error", werr)
	}
	return err
}
