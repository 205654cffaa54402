package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leappipe/internal/cli/config"
	"github.com/leapstack-labs/leappipe/internal/cli/output"
	"github.com/leapstack-labs/leappipe/internal/engine"
	"github.com/leapstack-labs/leappipe/internal/loader"
	"github.com/leapstack-labs/leappipe/internal/state"
	"github.com/leapstack-labs/leappipe/internal/work"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext for cmd.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, or the defaults when the
// command runs outside the root command (tests).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return config.Default()
}

// loadGraph reads a graph snapshot from path, or from stdin when path is "-".
func loadGraph(cmd *cobra.Command, path string) (core.Graph, error) {
	if path != "-" {
		return loader.Load(path)
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return core.Graph{}, fmt.Errorf("failed to read graph from stdin: %w", err)
	}
	return loader.Parse(data)
}

// newWorkUnit builds the configured work unit. A zero seed draws from the clock.
func newWorkUnit(cfg *config.Config) (core.WorkUnit, error) {
	seed := cfg.Work.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return work.New(cfg.Work.Mode, cfg.Work.Speed, seed, cfg.Work.Timeout)
}

// newController creates an execution controller from the configuration.
func newController(cfg *config.Config, logger *slog.Logger, onFinish func(engine.RunReport)) (*engine.Controller, error) {
	unit, err := newWorkUnit(cfg)
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Config{
		WorkUnit:     unit,
		Workers:      cfg.Engine.Workers,
		StrictCycles: cfg.Engine.StrictCycles,
		Logger:       logger,
		OnFinish:     onFinish,
	}), nil
}

// openStore opens and migrates the run history database.
// Returns the store and a cleanup function that must be called (typically via defer).
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*state.SQLiteStore, func(), error) {
	// Ensure state directory exists
	stateDir := filepath.Dir(cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close state database", "error", err)
		}
	}
	return store, cleanup, nil
}
