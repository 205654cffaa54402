package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leappipe/internal/cli/output"
	"github.com/leapstack-labs/leappipe/internal/loader"
	"github.com/leapstack-labs/leappipe/internal/validate"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

// ErrInvalidPipeline is returned when validation reports errors.
var ErrInvalidPipeline = errors.New("pipeline is invalid")

// ValidateOptions holds options for the validate command.
type ValidateOptions struct {
	Watch bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate <graph-file>",
		Short: "Check a pipeline graph for errors and warnings",
		Long: `Validate a pipeline graph snapshot (YAML or JSON).

Errors make the pipeline unrunnable: an empty graph, no Data Source node,
duplicate node ids or edges pointing at unknown nodes. Warnings are advisory:
no Sink node, or nodes not connected to any edge.

With --strict-cycles, cyclic graphs are rejected here instead of at
execution time.`,
		Example: `  # Validate a graph file
  leappipe validate pipeline.yaml

  # Re-validate whenever the file changes
  leappipe validate pipeline.yaml --watch

  # Read from stdin and print JSON
  cat pipeline.json | leappipe validate - -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-validate when the file changes")
	cmd.Flags().Bool("strict-cycles", false, "Reject cyclic graphs during validation")

	return cmd
}

func runValidate(cmd *cobra.Command, path string, opts *ValidateOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer
	vopts := validate.Options{StrictCycles: cmdCtx.Cfg.Engine.StrictCycles}

	if opts.Watch {
		if path == "-" {
			return errors.New("--watch needs a file path, not stdin")
		}
		return loader.Watch(cmd.Context(), path, cmdCtx.Logger, func(g core.Graph, err error) {
			if err != nil {
				r.Error(err.Error())
				return
			}
			renderValidation(r, validate.ValidateWithOptions(g, vopts))
		})
	}

	g, err := loadGraph(cmd, path)
	if err != nil {
		return err
	}

	result := validate.ValidateWithOptions(g, vopts)
	if err := renderValidation(r, result); err != nil {
		return err
	}
	if !result.IsValid {
		return ErrInvalidPipeline
	}
	return nil
}

func renderValidation(r *output.Renderer, result core.ValidationResult) error {
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(result)
	case output.ModeMarkdown:
		validationMarkdown(r, result)
	default:
		validationText(r, result)
	}
	return nil
}

func validationText(r *output.Renderer, result core.ValidationResult) {
	for _, msg := range result.Errors {
		r.Error(msg)
	}
	for _, msg := range result.Warnings {
		r.Warning(msg)
	}
	if result.IsValid {
		r.Success(validSummary(result))
	}
}

func validationMarkdown(r *output.Renderer, result core.ValidationResult) {
	status := "valid"
	if !result.IsValid {
		status = "invalid"
	}
	r.Println(output.FormatHeader(1, "Validation"))
	r.Println("")
	r.Println(output.FormatKeyValue("Status", status))
	if len(result.Errors) > 0 {
		r.Println("")
		r.Println(output.FormatHeader(2, "Errors"))
		r.Println(output.FormatList(result.Errors))
	}
	if len(result.Warnings) > 0 {
		r.Println("")
		r.Println(output.FormatHeader(2, "Warnings"))
		r.Println(output.FormatList(result.Warnings))
	}
}

func validSummary(result core.ValidationResult) string {
	if n := len(result.Warnings); n > 0 {
		return fmt.Sprintf("Pipeline is valid (%d warning(s))", n)
	}
	return "Pipeline is valid"
}
