// Package tui is the terminal transaction browser. It drives a grid.State
// over an in-memory history, so paging, sorting and filtering behave the
// same as in the web explorer, including back and forward.
package tui

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/leapstack-labs/leapgrid/internal/explorer"
	"github.com/leapstack-labs/leapgrid/internal/navigation"
	"github.com/leapstack-labs/leapgrid/pkg/grid"
)

const (
	// chromeLines is the number of lines View draws around the table body.
	chromeLines = 8
	maxColWidth = 24
)

// Config configures the browser model.
type Config struct {
	// Grid must be mounted on History.
	Grid      *grid.State[explorer.Transaction]
	History   *navigation.History
	PageSizes []int
}

type updateMsg struct{}

// Model is the bubbletea model of the browser.
type Model struct {
	grid      *grid.State[explorer.Transaction]
	history   *navigation.History
	pageSizes []int

	updates     chan struct{}
	unsubscribe func()

	table      table.Model
	keys       keyMap
	filterKeys filterKeyMap
	help       help.Model

	vm grid.ViewModel[explorer.Transaction]

	// focus indexes vm.Headers.
	focus       int
	filtering   bool
	facetCursor int

	width  int
	height int
	status string
}

// New creates the model and subscribes it to grid updates. Call Close when
// the program exits.
func New(cfg Config) Model {
	updates := make(chan struct{}, 1)
	unsubscribe := cfg.Grid.OnUpdate(func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	})

	t := table.New(table.WithFocused(true), table.WithHeight(12), table.WithWidth(120))
	t.SetStyles(tableStyles())
	// The model handles paging keys itself.
	km := table.DefaultKeyMap()
	km.PageUp = key.NewBinding(key.WithKeys("pgup"))
	km.PageDown = key.NewBinding(key.WithKeys("pgdown"))
	km.HalfPageUp = key.NewBinding(key.WithKeys("ctrl+u"))
	km.HalfPageDown = key.NewBinding(key.WithKeys("ctrl+d"))
	km.GotoTop = key.NewBinding(key.WithKeys("ctrl+home"))
	km.GotoBottom = key.NewBinding(key.WithKeys("ctrl+end"))
	t.KeyMap = km

	m := Model{
		grid:        cfg.Grid,
		history:     cfg.History,
		pageSizes:   cfg.PageSizes,
		updates:     updates,
		unsubscribe: unsubscribe,
		table:       t,
		keys:        defaultKeyMap(),
		filterKeys:  defaultFilterKeyMap(),
		help:        help.New(),
	}
	m.refresh()
	return m
}

// Close stops listening for grid updates.
func (m Model) Close() {
	m.unsubscribe()
}

// ViewModel returns the view model the screen was last drawn from.
func (m Model) ViewModel() grid.ViewModel[explorer.Transaction] {
	return m.vm
}

func waitForUpdate(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-updates
		return updateMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return waitForUpdate(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		m.refresh()
		return m, waitForUpdate(m.updates)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.table.SetWidth(msg.Width)
		m.table.SetHeight(max(msg.Height-chromeLines, 3))
		return m, nil

	case tea.KeyMsg:
		m.status = ""
		if m.filtering {
			return m.updateFilter(msg)
		}
		return m.updateGrid(msg)
	}
	return m, nil
}

func (m Model) updateGrid(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	vm := m.vm
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.NextPage):
		if vm.HasNext {
			m.apply(grid.GotoPage(vm.Page))
		}
	case key.Matches(msg, m.keys.PrevPage):
		if vm.HasPrev {
			m.apply(grid.GotoPage(vm.Page - 2))
		}
	case key.Matches(msg, m.keys.FirstPage):
		m.apply(grid.GotoPage(0))
	case key.Matches(msg, m.keys.LastPage):
		m.apply(grid.GotoPage(vm.PageCount - 1))
	case key.Matches(msg, m.keys.Larger):
		m.stepPageSize(1)
	case key.Matches(msg, m.keys.Smaller):
		m.stepPageSize(-1)

	case key.Matches(msg, m.keys.FocusLeft):
		m.focus = max(m.focus-1, 0)
		m.refresh()
	case key.Matches(msg, m.keys.FocusRight):
		m.focus = min(m.focus+1, max(len(vm.Headers)-1, 0))
		m.refresh()
	case key.Matches(msg, m.keys.Sort), key.Matches(msg, m.keys.MultiSort):
		if h, ok := m.focused(); ok {
			if !h.Sortable {
				m.status = h.Label + " is not sortable"
				break
			}
			m.apply(grid.ToggleSort(h.ID, key.Matches(msg, m.keys.MultiSort)))
		}
	case key.Matches(msg, m.keys.Filter):
		if h, ok := m.focused(); ok {
			if !h.Filterable {
				m.status = h.Label + " cannot be filtered"
				break
			}
			m.filtering, m.facetCursor = true, 0
		}
	case key.Matches(msg, m.keys.Clear):
		m.apply(grid.ClearFilters())
	case key.Matches(msg, m.keys.Hide):
		if h, ok := m.focused(); ok {
			if !h.Hideable {
				m.status = h.Label + " cannot be hidden"
				break
			}
			m.apply(grid.SetColumnVisible(h.ID, false))
		}
	case key.Matches(msg, m.keys.ShowAll):
		var show []grid.Intent
		for _, c := range vm.Columns {
			if !c.Visible {
				show = append(show, grid.SetColumnVisible(c.ID, true))
			}
		}
		if len(show) > 0 {
			m.apply(grid.Combine(show...))
		}

	case key.Matches(msg, m.keys.Select):
		if c := m.table.Cursor(); c >= 0 && c < len(vm.Rows) {
			m.apply(grid.ToggleRows(vm.Rows[c].ID))
		}
	case key.Matches(msg, m.keys.SelectPage):
		ids := make([]string, 0, len(vm.Rows))
		for _, r := range vm.Rows {
			ids = append(ids, r.ID)
		}
		if vm.PageAllSelected {
			m.apply(grid.DeselectRows(ids...))
		} else {
			m.apply(grid.SelectRows(ids...))
		}
	case key.Matches(msg, m.keys.ClearSelect):
		m.apply(grid.ClearSelection())

	case key.Matches(msg, m.keys.Back):
		if !m.history.Back() {
			m.status = "no earlier location"
		}
		m.refresh()
	case key.Matches(msg, m.keys.Forward):
		if !m.history.Forward() {
			m.status = "no later location"
		}
		m.refresh()
	case key.Matches(msg, m.keys.Retry):
		var err error
		if vm.Status == grid.StatusFailed {
			err = m.grid.Retry()
		} else {
			err = m.grid.Refresh()
		}
		if err != nil {
			m.status = err.Error()
		}
		m.refresh()

	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	h, _ := m.focused()
	facet := m.facet(h.ID)
	switch {
	case key.Matches(msg, m.filterKeys.Close):
		m.filtering = false
	case key.Matches(msg, m.filterKeys.Up):
		m.facetCursor = max(m.facetCursor-1, 0)
	case key.Matches(msg, m.filterKeys.Down):
		m.facetCursor = min(m.facetCursor+1, max(len(facet.Values)-1, 0))
	case key.Matches(msg, m.filterKeys.Toggle):
		if m.facetCursor < len(facet.Values) {
			m.apply(grid.ToggleFilter(h.ID, facet.Values[m.facetCursor].Value))
		}
	case key.Matches(msg, m.filterKeys.Clear):
		m.apply(grid.SetFilter(h.ID))
	}
	return m, nil
}

// apply sends an intent to the grid and redraws from the new query.
func (m *Model) apply(in grid.Intent) {
	if err := m.grid.ApplyIntent(in); err != nil {
		m.status = err.Error()
	}
	m.refresh()
}

func (m *Model) stepPageSize(delta int) {
	if len(m.pageSizes) == 0 {
		return
	}
	cur := m.vm.Query.PageSize
	i := slices.Index(m.pageSizes, cur)
	switch {
	case i < 0:
		// Not an offered size: jump to the nearest one in that direction.
		i = 0
		for i < len(m.pageSizes)-1 && m.pageSizes[i] < cur {
			i++
		}
		if delta < 0 && m.pageSizes[i] > cur {
			i--
		}
	default:
		i += delta
	}
	if i < 0 || i >= len(m.pageSizes) {
		return
	}
	m.apply(grid.SetPageSize(m.pageSizes[i]))
}

func (m Model) focused() (grid.Header, bool) {
	if m.focus < 0 || m.focus >= len(m.vm.Headers) {
		return grid.Header{}, false
	}
	return m.vm.Headers[m.focus], true
}

func (m Model) facet(col string) grid.Facet {
	for _, f := range m.vm.Facets {
		if f.ColumnID == col {
			return f
		}
	}
	return grid.Facet{ColumnID: col}
}

// refresh rebuilds the table from the grid's current view model.
func (m *Model) refresh() {
	m.vm = m.grid.View()
	vm := m.vm

	m.focus = min(m.focus, max(len(vm.Headers)-1, 0))

	cols := []table.Column{{Title: " ", Width: 1}}
	widths := make([]int, len(vm.Headers))
	for i, h := range vm.Headers {
		widths[i] = lipgloss.Width(m.title(i, h))
	}
	for _, r := range vm.Rows {
		for i, c := range r.Cells {
			widths[i] = max(widths[i], lipgloss.Width(c.Text))
		}
	}
	for i, h := range vm.Headers {
		cols = append(cols, table.Column{Title: m.title(i, h), Width: min(widths[i], maxColWidth)})
	}

	rows := make([]table.Row, 0, len(vm.Rows))
	if vm.Status == grid.StatusReady {
		for _, r := range vm.Rows {
			row := table.Row{" "}
			if r.Selected {
				row[0] = "✓"
			}
			for _, c := range r.Cells {
				row = append(row, c.Text)
			}
			rows = append(rows, row)
		}
	}

	// Clear rows first: the table renders existing rows against new columns.
	cursor := m.table.Cursor()
	m.table.SetRows(nil)
	m.table.SetColumns(cols)
	m.table.SetRows(rows)
	m.table.SetCursor(min(cursor, max(len(rows)-1, 0)))
}

func (m Model) title(i int, h grid.Header) string {
	t := h.Label
	if h.Sorted {
		arrow := "↑"
		if h.Direction == grid.Desc {
			arrow = "↓"
		}
		t += arrow + strconv.Itoa(h.Priority+1)
	}
	if len(h.Filter) > 0 {
		t += "*"
	}
	if i == m.focus {
		t = "[" + t + "]"
	}
	return t
}

func (m Model) View() string {
	var b strings.Builder
	vm := m.vm

	b.WriteString(titleStyle.Render(" LeapGrid · transactions"))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render(m.history.Location()))
	b.WriteString("\n\n")

	b.WriteString(m.table.View())
	b.WriteString("\n")
	if msg := placeholder(vm); msg != "" {
		style := dimStyle
		if vm.Status == grid.StatusFailed {
			style = errorStyle
		}
		b.WriteString(style.Render(" "+msg) + "\n")
	}

	if m.filtering {
		b.WriteString(m.filterView())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(statusStyle.Render(" " + footer(vm)))
	if vm.SelectedCount > 0 {
		b.WriteString(selectedStyle.Render(fmt.Sprintf(" · %d selected", vm.SelectedCount)))
	}
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(errorStyle.Render(" "+m.status) + "\n")
	}
	b.WriteString(" " + m.help.View(m.keys))
	return b.String()
}

func (m Model) filterView() string {
	h, _ := m.focused()
	facet := m.facet(h.ID)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Filter " + h.Label))
	for i, v := range facet.Values {
		mark := "[ ]"
		if v.Selected {
			mark = "[x]"
		}
		line := fmt.Sprintf("%s %s (%d)", mark, v.Label, v.Count)
		if i == m.facetCursor {
			line = "> " + line
		} else {
			line = "  " + line
		}
		b.WriteString("\n" + line)
	}
	b.WriteString("\n" + dimStyle.Render("space toggle · c clear · esc close"))
	return panelStyle.Render(b.String())
}

func placeholder(vm grid.ViewModel[explorer.Transaction]) string {
	switch vm.Status {
	case grid.StatusLoading:
		return "Loading…"
	case grid.StatusFailed:
		msg := "Failed to load transactions"
		if vm.Err != nil {
			msg += ": " + vm.Err.Error()
		}
		return msg + " (r to retry)"
	case grid.StatusEmpty:
		if vm.OutOfRange {
			return fmt.Sprintf("Page %d is past the last page (g for the first page)", vm.Page)
		}
		return "No results."
	}
	return ""
}

func footer(vm grid.ViewModel[explorer.Transaction]) string {
	return fmt.Sprintf("Page %d of %d · %d rows · %d per page",
		vm.Page, max(vm.PageCount, 1), vm.Total, vm.Query.PageSize)
}
