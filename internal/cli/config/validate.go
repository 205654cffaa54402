package config

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/leappipe/internal/work"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	switch c.OutputFormat {
	case "", "auto", "text", "markdown", "json":
	default:
		errs = append(errs, fmt.Errorf("output must be one of auto, text, markdown, json (got %q)", c.OutputFormat))
	}

	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json (got %q)", c.LogFormat))
	}

	switch c.Work.Mode {
	case "", work.ModeSimulated, work.ModeInstant:
	default:
		errs = append(errs, fmt.Errorf("work.mode must be %s or %s (got %q)", work.ModeSimulated, work.ModeInstant, c.Work.Mode))
	}

	if c.Engine.Workers < 0 {
		errs = append(errs, fmt.Errorf("engine.workers must not be negative (got %d)", c.Engine.Workers))
	}
	if c.Work.Speed < 0 {
		errs = append(errs, fmt.Errorf("work.speed must not be negative (got %g)", c.Work.Speed))
	}
	if c.Work.Timeout < 0 {
		errs = append(errs, fmt.Errorf("work.timeout must not be negative (got %s)", c.Work.Timeout))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
