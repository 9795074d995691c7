package output

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/leapstack-labs/leapgrid/pkg/grid"
)

// PageOutput is the JSON form of one grid page.
type PageOutput struct {
	Location  string              `json:"location"`
	Page      int                 `json:"page"`
	PageCount int                 `json:"page_count"`
	PageSize  int                 `json:"page_size"`
	Total     int                 `json:"total"`
	Status    string              `json:"status"`
	Error     string              `json:"error,omitempty"`
	Sort      []SortOutput        `json:"sort,omitempty"`
	Filters   map[string][]string `json:"filters,omitempty"`
	Selected  []string            `json:"selected,omitempty"`
	Columns   []string            `json:"columns"`
	Rows      []RowOutput         `json:"rows"`
}

// SortOutput is one sort key.
type SortOutput struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

// RowOutput is one row keyed by column id.
type RowOutput struct {
	ID       string            `json:"id"`
	Selected bool              `json:"selected,omitempty"`
	Cells    map[string]string `json:"cells"`
}

// NewPageOutput converts a view model to its JSON form.
func NewPageOutput[T any](vm grid.ViewModel[T], location string) PageOutput {
	out := PageOutput{
		Location:  location,
		Page:      vm.Page,
		PageCount: vm.PageCount,
		PageSize:  vm.Query.PageSize,
		Total:     vm.Total,
		Status:    vm.Status.String(),
		Filters:   vm.Query.Filters,
		Selected:  vm.Query.RowSelection,
		Columns:   make([]string, 0, len(vm.Headers)),
		Rows:      make([]RowOutput, 0, len(vm.Rows)),
	}
	if vm.Err != nil {
		out.Error = vm.Err.Error()
	}
	for _, k := range vm.Query.Sort {
		out.Sort = append(out.Sort, SortOutput{Column: k.ColumnID, Direction: string(k.Direction)})
	}
	for _, h := range vm.Headers {
		out.Columns = append(out.Columns, h.ID)
	}
	for _, row := range vm.Rows {
		cells := make(map[string]string, len(row.Cells))
		for _, c := range row.Cells {
			cells[c.ColumnID] = c.Text
		}
		out.Rows = append(out.Rows, RowOutput{ID: row.ID, Selected: row.Selected, Cells: cells})
	}
	return out
}

// Page renders one grid page in the renderer's effective mode.
func Page[T any](r *Renderer, vm grid.ViewModel[T], location string) error {
	switch r.EffectiveMode() {
	case ModeJSON:
		return r.JSON(NewPageOutput(vm, location))
	case ModeMarkdown:
		pageMarkdown(r, vm, location)
	default:
		pageText(r, vm, location)
	}
	return nil
}

func pageText[T any](r *Renderer, vm grid.ViewModel[T], location string) {
	r.Println(r.Styles.Muted.Render(location))
	if msg, ok := placeholder(vm); ok {
		if vm.Status == grid.StatusFailed {
			r.Println(r.Styles.Error.Render(msg))
		} else {
			r.Println(msg)
		}
	} else {
		r.Println(pageTable(vm, r.Styles.Sorted.Render, true).Render())
	}
	r.Println(summary(vm))
}

func pageMarkdown[T any](r *Renderer, vm grid.ViewModel[T], location string) {
	r.Println(FormatHeader(2, "Transactions"))
	r.Println("")
	r.Println(FormatKeyValue("Location", "`"+location+"`"))
	if len(vm.Query.Sort) > 0 {
		r.Println(FormatKeyValue("Sort", sortText(vm.Query.Sort)))
	}
	if vm.Filtered {
		r.Println(FormatKeyValue("Filters", filterText(vm.Query.Filters)))
	}
	r.Println("")
	if msg, ok := placeholder(vm); ok {
		r.Println("_" + msg + "_")
	} else {
		r.Println(pageTable(vm, plain, false).RenderMarkdown())
	}
	r.Println("")
	r.Println(summary(vm))
}

// placeholder returns the message shown instead of rows.
func placeholder[T any](vm grid.ViewModel[T]) (string, bool) {
	switch vm.Status {
	case grid.StatusLoading:
		return "Loading…", true
	case grid.StatusFailed:
		msg := "Failed to load transactions"
		if vm.Err != nil {
			msg += ": " + vm.Err.Error()
		}
		return msg, true
	case grid.StatusEmpty:
		if vm.OutOfRange {
			return fmt.Sprintf("Page %d is past the last page.", vm.Page), true
		}
		return "No results.", true
	}
	return "", false
}

func plain(s ...string) string { return strings.Join(s, " ") }

// pageTable builds the row table. With groups set, grouped columns get a
// merged header cell above their own headers.
func pageTable[T any](vm grid.ViewModel[T], sorted func(...string) string, groups bool) table.Writer {
	t := table.NewWriter()
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	t.SetStyle(style)

	if groups && len(vm.Groups) > 0 {
		top := table.Row{""}
		for _, g := range vm.Groups {
			for range g.Span {
				top = append(top, g.Label)
			}
		}
		t.AppendHeader(top, table.RowConfig{AutoMerge: true})
	}

	header := table.Row{""}
	for _, h := range vm.Headers {
		label := h.Label
		if h.Sorted {
			label += " " + sorted(arrow(h.Direction)+strconv.Itoa(h.Priority+1))
		}
		header = append(header, label)
	}
	t.AppendHeader(header)

	for _, row := range vm.Rows {
		mark := ""
		if row.Selected {
			mark = "*"
		}
		r := table.Row{mark}
		for _, c := range row.Cells {
			r = append(r, c.Text)
		}
		t.AppendRow(r)
	}
	return t
}

func arrow(d grid.Direction) string {
	if d == grid.Desc {
		return "↓"
	}
	return "↑"
}

// summary returns the footer line, e.g. "Page 1 of 3 · 42 rows · 2 selected".
func summary[T any](vm grid.ViewModel[T]) string {
	parts := []string{
		fmt.Sprintf("Page %d of %d", vm.Page, max(vm.PageCount, 1)),
		fmt.Sprintf("%d rows", vm.Total),
	}
	if vm.SelectedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d selected", vm.SelectedCount))
	}
	return strings.Join(parts, " · ")
}

func sortText(keys []grid.SortKey) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k.ColumnID+" "+string(k.Direction))
	}
	return strings.Join(parts, ", ")
}

func filterText(filters map[string][]string) string {
	cols := slices.Sorted(maps.Keys(filters))
	parts := make([]string, 0, len(cols))
	for _, col := range cols {
		parts = append(parts, col+" in ("+strings.Join(filters[col], ", ")+")")
	}
	return strings.Join(parts, "; ")
}
