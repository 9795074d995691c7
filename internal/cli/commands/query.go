package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "query [querystring]",
		Short: "Print one page of transactions for a grid location",
		Long: `Decode a grid location and print the matching page of transactions.

The argument uses the same query string as the web explorer, so a URL
copied from the browser prints the page it shows. Unknown or malformed
parameters fall back to their defaults.

Parameters (repeat a parameter to pass several values):
  page=N              1-based page number
  size=N              Rows per page
  sort=col:dir        Sort keys in priority order
  f.<col>=value       Accepted values of a filterable column
  show=col hide=col   Column visibility
  sel=id              Selected row ids

Output adapts to environment:
  - Terminal: Styled table
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # First page with the default size
  leapgrid query

  # Failed deploys, newest first, as JSON
  leapgrid query "f.status=failed&f.type=deploy&sort=timestamp:desc" -o json

  # Value first, then newest
  leapgrid query "sort=value:desc&sort=timestamp:desc"

  # A location copied from the browser
  leapgrid query "/transactions?page=3&size=50"`,
		Args: cobra.MaximumNArgs(1),
		RunE: runQuery,
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	st, err := cc.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	var location string
	if len(args) > 0 {
		location = args[0]
	}
	g, err := cc.NewLocalGrid(ctx, st.Fetcher(), location)
	if err != nil {
		return err
	}
	defer g.state.Unmount()

	if err := g.settle(ctx); err != nil {
		return err
	}
	if err := g.render(cc.Renderer); err != nil {
		return err
	}

	if vm := g.state.View(); vm.Err != nil {
		return fmt.Errorf("failed to load transactions: %w", vm.Err)
	}
	return nil
}
