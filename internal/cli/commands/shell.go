package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgrid/internal/cli/config"
	"github.com/leapstack-labs/leapgrid/internal/cli/output"
	"github.com/leapstack-labs/leapgrid/internal/explorer"
	"github.com/leapstack-labs/leapgrid/pkg/grid"
)

const shellPrompt = "leapgrid> "

// errQuit ends the shell loop.
var errQuit = errors.New("quit")

// NewShellCommand creates the shell command.
func NewShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell [querystring]",
		Short: "Drive the transaction grid from a line-oriented shell",
		Long: `Start an interactive shell over the transaction grid.

Every command changes the grid through its location, exactly like the
browser does, and prints the resulting page. Type .help for commands.`,
		Example: `  leapgrid shell
  leapgrid shell "size=50&f.type=deploy"`,
		Args: cobra.MaximumNArgs(1),
		RunE: runShell,
	}
}

func runShell(cmd *cobra.Command, args []string) error {
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

	sh := newShell(g, cc.Renderer, cc.Cfg.Grid.PageSizes)

	// History lives next to the store; in-memory and remote stores get none.
	var historyFile string
	if cc.Cfg.Store.Type != config.StorePostgres && cc.Cfg.Store.Path != ":memory:" {
		historyFile = filepath.Join(filepath.Dir(cc.Cfg.Store.Path), "shell_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          shellPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    sh.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdin:           io.NopCloser(cmd.InOrStdin()),
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize shell: %w", err)
	}
	defer func() { _ = rl.Close() }()

	cc.Renderer.Printf("LeapGrid shell (store: %s)\n", storeLabel(cc.Cfg))
	cc.Renderer.Muted("Type .help for commands, .quit to exit")
	cc.Renderer.Println()

	if err := sh.show(ctx); err != nil {
		cc.Renderer.Error(err.Error())
	}

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}

		err = sh.exec(ctx, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			cc.Renderer.Error(err.Error())
		}
		cc.Renderer.Println()
	}
}

func storeLabel(cfg *config.Config) string {
	if cfg.Store.Type == config.StorePostgres {
		return "postgres"
	}
	return cfg.Store.Path
}

// shell interprets grid commands against a local grid.
type shell struct {
	grid      *localGrid
	r         *output.Renderer
	pageSizes []int
	columns   []grid.Column[explorer.Transaction]
}

func newShell(g *localGrid, r *output.Renderer, pageSizes []int) *shell {
	return &shell{
		grid:      g,
		r:         r,
		pageSizes: pageSizes,
		columns:   explorer.Columns(nil),
	}
}

// exec runs one shell line. It returns errQuit for .quit and .exit.
func (s *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	if strings.HasPrefix(name, ".") {
		return s.dotCommand(name)
	}

	var in grid.Intent
	vm := s.grid.state.View()

	switch name {
	case "page":
		n, err := positiveArg(args, "page <number>")
		if err != nil {
			return err
		}
		in = grid.GotoPage(n - 1)
	case "next", "n":
		if !vm.HasNext {
			return errors.New("already on the last page")
		}
		in = grid.GotoPage(vm.Page)
	case "prev", "p":
		if !vm.HasPrev {
			return errors.New("already on the first page")
		}
		in = grid.GotoPage(vm.Page - 2)
	case "first":
		in = grid.GotoPage(0)
	case "last":
		in = grid.GotoPage(max(vm.PageCount-1, 0))
	case "size":
		n, err := positiveArg(args, "size <rows>")
		if err != nil {
			return err
		}
		if len(s.pageSizes) > 0 && !slices.Contains(s.pageSizes, n) {
			return fmt.Errorf("page size %d is not one of %v", n, s.pageSizes)
		}
		in = grid.SetPageSize(n)
	case "sort":
		keys, err := s.sortKeys(args)
		if err != nil {
			return err
		}
		in = grid.SortBy(keys...)
	case "filter":
		if len(args) == 0 {
			return errors.New("usage: filter <column> [value...]")
		}
		c, err := s.column(args[0])
		if err != nil {
			return err
		}
		if !c.Filterable {
			return fmt.Errorf("%s cannot be filtered", args[0])
		}
		in = grid.SetFilter(c.ID, args[1:]...)
	case "clear":
		in = grid.ClearFilters()
	case "select", "deselect":
		ids, err := s.rowIDs(vm, args)
		if err != nil {
			return err
		}
		switch {
		case name == "select":
			in = grid.SelectRows(ids...)
		case len(args) == 1 && args[0] == "all":
			in = grid.ClearSelection()
		default:
			in = grid.DeselectRows(ids...)
		}
	case "hide", "show":
		if len(args) == 0 {
			return fmt.Errorf("usage: %s <column>...", name)
		}
		var intents []grid.Intent
		for _, id := range args {
			c, err := s.column(id)
			if err != nil {
				return err
			}
			if name == "hide" && !c.Hideable {
				return fmt.Errorf("%s cannot be hidden", id)
			}
			intents = append(intents, grid.SetColumnVisible(c.ID, name == "show"))
		}
		in = grid.Combine(intents...)
	case "back":
		if !s.grid.history.Back() {
			return errors.New("no earlier location")
		}
		return s.show(ctx)
	case "forward":
		if !s.grid.history.Forward() {
			return errors.New("no later location")
		}
		return s.show(ctx)
	case "retry":
		if err := s.grid.state.Retry(); err != nil {
			return err
		}
		return s.show(ctx)
	case "refresh":
		if err := s.grid.state.Refresh(); err != nil {
			return err
		}
		return s.show(ctx)
	case "goto":
		if len(args) != 1 {
			return errors.New("usage: goto <querystring>")
		}
		params, err := queryParams(args[0])
		if err != nil {
			return err
		}
		s.grid.history.Navigate(params)
		return s.show(ctx)
	case "location", "loc":
		s.r.Println(s.grid.history.Location())
		return nil
	case "ls", "columns":
		s.listColumns(vm)
		return nil
	default:
		return fmt.Errorf("unknown command: %s (type .help for commands)", name)
	}

	if err := s.grid.state.ApplyIntent(in); err != nil {
		return err
	}
	return s.show(ctx)
}

func (s *shell) dotCommand(name string) error {
	switch name {
	case ".quit", ".exit":
		return errQuit
	case ".help":
		s.printHelp()
	case ".clear":
		s.r.Printf("\033[H\033[2J")
	default:
		return fmt.Errorf("unknown command: %s (type .help for commands)", name)
	}
	return nil
}

// show waits for the current page and prints it.
func (s *shell) show(ctx context.Context) error {
	if err := s.grid.settle(ctx); err != nil {
		return err
	}
	return s.grid.render(s.r)
}

func (s *shell) column(id string) (grid.Column[explorer.Transaction], error) {
	for _, c := range s.columns {
		if c.ID == id {
			return c, nil
		}
	}
	return grid.Column[explorer.Transaction]{}, fmt.Errorf("unknown column %q", id)
}

// sortKeys parses "col[:asc|desc]" arguments. No arguments clears sorting.
func (s *shell) sortKeys(args []string) ([]grid.SortKey, error) {
	keys := make([]grid.SortKey, 0, len(args))
	for _, arg := range args {
		id, dir, _ := strings.Cut(arg, ":")
		c, err := s.column(id)
		if err != nil {
			return nil, err
		}
		if !c.Sortable {
			return nil, fmt.Errorf("%s is not sortable", id)
		}
		d := grid.Asc
		if dir != "" {
			d = grid.Direction(strings.ToLower(dir))
			if !d.Valid() {
				return nil, fmt.Errorf("invalid sort direction %q", dir)
			}
		}
		keys = append(keys, grid.SortKey{ColumnID: c.ID, Direction: d})
	}
	return keys, nil
}

// rowIDs expands "all" to the rows of the current page.
func (s *shell) rowIDs(vm grid.ViewModel[explorer.Transaction], args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, errors.New("usage: select|deselect <hash>... | all")
	}
	if len(args) == 1 && args[0] == "all" {
		ids := make([]string, 0, len(vm.Rows))
		for _, r := range vm.Rows {
			ids = append(ids, r.ID)
		}
		return ids, nil
	}
	return args, nil
}

func (s *shell) listColumns(vm grid.ViewModel[explorer.Transaction]) {
	for _, c := range s.columns {
		var traits []string
		if c.Sortable {
			traits = append(traits, "sortable")
		}
		if c.Filterable {
			traits = append(traits, "filterable")
		}
		if !c.Hideable {
			traits = append(traits, "always shown")
		}
		status := "success"
		if !vm.Query.IsVisible(c.ID) {
			status = "skipped"
			traits = append(traits, "hidden")
		}
		s.r.StatusLine(c.ID, status, strings.Join(traits, ", "))
	}
}

func (s *shell) printHelp() {
	s.r.Println(`Grid commands:
  page <n>                  Go to page n
  next, prev, first, last   Move between pages
  size <rows>               Change the page size
  sort [col[:asc|desc]...]  Sort by columns; no columns clears sorting
  filter <col> [value...]   Filter a column; no values removes the filter
  clear                     Remove every filter
  select <hash>... | all    Select rows
  deselect <hash>... | all  Deselect rows
  hide <col>...             Hide columns
  show <col>...             Show columns
  back, forward             Move through the location history
  retry, refresh            Fetch the current page again
  goto <querystring>        Replace the location
  location                  Print the current location
  ls                        List columns

Shell commands:
  .help     Show this help
  .clear    Clear the screen
  .quit     Exit the shell`)
}

func (s *shell) completer() *readline.PrefixCompleter {
	ids := func(filter func(grid.Column[explorer.Transaction]) bool) readline.DynamicCompleteFunc {
		return func(string) []string {
			var out []string
			for _, c := range s.columns {
				if filter(c) {
					out = append(out, c.ID)
				}
			}
			return out
		}
	}
	every := func(grid.Column[explorer.Transaction]) bool { return true }
	sizes := make([]readline.PrefixCompleterInterface, 0, len(s.pageSizes))
	for _, n := range s.pageSizes {
		sizes = append(sizes, readline.PcItem(strconv.Itoa(n)))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem("page"),
		readline.PcItem("next"),
		readline.PcItem("prev"),
		readline.PcItem("first"),
		readline.PcItem("last"),
		readline.PcItem("size", sizes...),
		readline.PcItem("sort", readline.PcItemDynamic(ids(func(c grid.Column[explorer.Transaction]) bool { return c.Sortable }))),
		readline.PcItem("filter", readline.PcItemDynamic(ids(func(c grid.Column[explorer.Transaction]) bool { return c.Filterable }))),
		readline.PcItem("clear"),
		readline.PcItem("select", readline.PcItem("all")),
		readline.PcItem("deselect", readline.PcItem("all")),
		readline.PcItem("hide", readline.PcItemDynamic(ids(func(c grid.Column[explorer.Transaction]) bool { return c.Hideable }))),
		readline.PcItem("show", readline.PcItemDynamic(ids(every))),
		readline.PcItem("back"),
		readline.PcItem("forward"),
		readline.PcItem("retry"),
		readline.PcItem("refresh"),
		readline.PcItem("goto"),
		readline.PcItem("location"),
		readline.PcItem("ls"),
		readline.PcItem(".help"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
	)
}

func positiveArg(args []string, usage string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("expected a positive number, got %q", args[0])
	}
	return n, nil
}

// queryParams accepts "a=1&b=2", "?a=1" or "/path?a=1".
func queryParams(raw string) (url.Values, error) {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[i+1:]
	} else if strings.HasPrefix(raw, "/") {
		raw = ""
	}
	params, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid query string: %w", err)
	}
	return params, nil
}
