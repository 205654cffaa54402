package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leappipe/internal/catalog"
	"github.com/leapstack-labs/leappipe/internal/cli/output"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

type catalogJSON struct {
	Source string          `json:"source"`
	Types  []core.NodeType `json:"types"`
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List available node types",
		Long: `Fetch the node-type catalog from a running node service.

When the service cannot be reached, the built-in catalog is shown instead.`,
		Example: `  # Ask the local server
  leappipe catalog

  # Ask another server
  leappipe catalog --catalog-url http://pipelines.internal:8080 -o json`,
		Args: cobra.NoArgs,
		RunE: runCatalog,
	}

	cmd.Flags().String("catalog-url", "", "Base URL of the node service")
	return cmd
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	cmdCtx := NewCommandContext(cmd)
	cfg, r := cmdCtx.Cfg, cmdCtx.Renderer

	client := catalog.NewClient(cfg.Catalog.URL, cfg.Catalog.Timeout, cmdCtx.Logger)
	types, fromService := client.FetchWithFallback(cmd.Context())

	source := "built-in"
	if fromService {
		source = cfg.Catalog.URL
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(catalogJSON{Source: source, Types: types})
	}

	if !fromService {
		r.Warning("Node service unavailable, showing built-in catalog")
	}
	r.Header(1, "Node types")
	rows := make([][]string, 0, len(types))
	for _, t := range types {
		rows = append(rows, []string{t.ID, t.Name})
	}
	r.Table([]string{"ID", "NAME"}, rows)
	return nil
}
