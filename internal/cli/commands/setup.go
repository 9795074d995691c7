package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgrid/internal/cli/config"
	"github.com/leapstack-labs/leapgrid/internal/cli/output"
	"github.com/leapstack-labs/leapgrid/internal/explorer"
	"github.com/leapstack-labs/leapgrid/internal/navigation"
	"github.com/leapstack-labs/leapgrid/internal/store"
	"github.com/leapstack-labs/leapgrid/pkg/grid"
)

// gridPath is the location path local grids navigate under. It matches the
// web explorer's page so locations can be pasted between the two.
const gridPath = "/transactions"

// fetchTimeout bounds how long one-shot commands wait for a page.
const fetchTimeout = 30 * time.Second

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext collects the config, logger and renderer for cmd.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := config.GetConfig(cmd.Context())
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output)),
	}
}

// OpenStore opens and migrates the configured store. The caller closes it.
func (c *CommandContext) OpenStore(ctx context.Context) (*store.Store, error) {
	sc := c.Cfg.Store
	if sc.Type != config.StorePostgres && sc.Path != "" && sc.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(sc.Path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	st, err := store.Open(ctx, store.Config{
		Driver: sc.Type,
		Path:   sc.Path,
		DSN:    sc.DSN,
		Logger: c.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// GridDefaults returns the grid defaults from the config.
func (c *CommandContext) GridDefaults() grid.Defaults {
	return grid.Defaults{PageSize: c.Cfg.Grid.DefaultPageSize}
}

// localGrid is a mounted grid over an in-memory history.
type localGrid struct {
	state   *grid.State[explorer.Transaction]
	history *navigation.History
}

// NewLocalGrid mounts a transaction grid on fetch, starting at location.
// location may be a query string ("page=2&size=50", "?page=2") or a full
// path ("/transactions?page=2"). The grid stops when ctx is done.
func (c *CommandContext) NewLocalGrid(ctx context.Context, fetch grid.Fetcher[explorer.Transaction], location string) (*localGrid, error) {
	hist, err := parseLocation(location)
	if err != nil {
		return nil, err
	}

	st, err := grid.New(grid.Options[explorer.Transaction]{
		Codec:     grid.Codec{Defaults: c.GridDefaults(), Prefix: c.Cfg.Grid.ParamPrefix},
		Navigator: hist,
		Fetch:     fetch,
		Columns:   explorer.Columns(nil),
		RowID:     explorer.ID,
		Logger:    c.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Mount(ctx); err != nil {
		return nil, err
	}
	return &localGrid{state: st, history: hist}, nil
}

func parseLocation(location string) (*navigation.History, error) {
	location = strings.TrimSpace(location)
	if strings.HasPrefix(location, "/") {
		return navigation.Parse(location), nil
	}
	params, err := queryParams(location)
	if err != nil {
		return nil, err
	}
	return navigation.New(gridPath, params), nil
}

// settle waits for the grid's page, up to fetchTimeout.
func (g *localGrid) settle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	if err := g.state.Settle(ctx); err != nil {
		return fmt.Errorf("timed out waiting for transactions: %w", err)
	}
	return nil
}

// render writes the current page.
func (g *localGrid) render(r *output.Renderer) error {
	return output.Page(r, g.state.View(), g.history.Location())
}
