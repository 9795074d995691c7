package commands

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgrid/internal/tui"
)

// BrowseOptions holds options for the browse command.
type BrowseOptions struct {
	NoColor bool
}

// NewBrowseCommand creates the browse command.
func NewBrowseCommand() *cobra.Command {
	opts := &BrowseOptions{}

	cmd := &cobra.Command{
		Use:   "browse [querystring]",
		Short: "Browse transactions in an interactive terminal grid",
		Long: `Open the transaction grid in the terminal.

The optional argument is a grid location, either a query string such as
"page=3&sort=value:desc" or a path copied from the web explorer. Press ?
inside the grid for key bindings.`,
		Example: `  leapgrid browse
  leapgrid browse "f.status=failed&sort=timestamp:desc"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoColor, "no-color", false, "Disable colors")

	return cmd
}

func runBrowse(cmd *cobra.Command, args []string, opts *BrowseOptions) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	if opts.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

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

	m := tui.New(tui.Config{
		Grid:      g.state,
		History:   g.history,
		PageSizes: cc.Cfg.Grid.PageSizes,
	})
	defer m.Close()

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("terminal grid failed: %w", err)
	}
	return nil
}
