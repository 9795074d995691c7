package grid

import (
	"cmp"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Option is a fixed filter choice offered for a column.
type Option struct {
	Label string
	Value string
}

// Column describes how a grid presents one field of T.
type Column[T any] struct {
	ID string
	// Label defaults to TitleLabel(ID).
	Label string
	// Group places the column under a shared top-level header.
	Group string

	// Value renders the cell text. It is also the facet key.
	Value func(T) string

	Sortable   bool
	Filterable bool
	Hideable   bool

	// Options lists the filter choices shown even when the loaded page
	// does not contain them.
	Options []Option
}

func (c Column[T]) label() string {
	if c.Label != "" {
		return c.Label
	}
	return TitleLabel(c.ID)
}

// TitleLabel turns a column id such as "batch_height" into "Batch Height".
func TitleLabel(id string) string {
	id = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(id)
	// A Caser keeps state and must not be shared between goroutines.
	return cases.Title(language.English).String(strings.TrimSpace(id))
}

// Status summarizes what a host should render in place of the rows.
type Status int

// View statuses.
const (
	StatusLoading Status = iota
	StatusFailed
	StatusEmpty
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusFailed:
		return "failed"
	case StatusEmpty:
		return "empty"
	default:
		return "ready"
	}
}

// Header is one visible leaf column header.
type Header struct {
	ID         string
	Label      string
	Group      string
	Sortable   bool
	Filterable bool
	Hideable   bool

	// Sorted is true when the column is part of the sort order; Direction
	// and Priority (0-based) are set only then.
	Sorted    bool
	Direction Direction
	Priority  int

	// Filter is the set of accepted values for the column.
	Filter  []string
	Options []Option
}

// HeaderGroup is a cell of the top header row. It spans Span consecutive
// visible headers. Columns without a group get a group with an empty label.
type HeaderGroup struct {
	Label string
	Span  int
}

// ColumnToggle is an entry of the column visibility menu.
type ColumnToggle struct {
	ID       string
	Label    string
	Visible  bool
	Hideable bool
}

// Cell is one rendered cell.
type Cell struct {
	ColumnID string
	Text     string
}

// Row is one rendered row.
type Row[T any] struct {
	ID       string
	Selected bool
	Cells    []Cell
	Item     T
}

// FacetValue is a distinct value of a filterable column.
type FacetValue struct {
	Value    string
	Label    string
	Count    int
	Selected bool
}

// Facet holds the distinct values of one filterable column. Counts are
// computed from the loaded page only.
type Facet struct {
	ColumnID string
	Title    string
	Values   []FacetValue
}

// Snapshot is everything Project needs from a State.
type Snapshot[T any] struct {
	Query   Query
	Page    RowPage[T]
	Loaded  bool
	Loading bool
	Err     error
}

// ViewModel is the render-ready projection of a grid. It is derived on
// demand and never stored.
type ViewModel[T any] struct {
	Query Query

	Groups  []HeaderGroup
	Headers []Header
	Columns []ColumnToggle
	Rows    []Row[T]
	Facets  []Facet

	Total     int
	Page      int // 1-based
	PageCount int
	HasPrev   bool
	HasNext   bool
	// OutOfRange is set when the page index points past the last row.
	OutOfRange bool

	SelectedCount   int
	PageAllSelected bool
	Filtered        bool

	Loading bool
	Err     error
	Status  Status
}

// Project builds the view model for s. It does not sort or filter rows;
// that is the fetcher's job. It applies column visibility, annotates
// selection by row id and computes page-scoped facets.
func Project[T any](s Snapshot[T], cols []Column[T], rowID func(T) string) ViewModel[T] {
	q := s.Query.Normalize()
	vm := ViewModel[T]{
		Query:         q,
		Total:         s.Page.Total,
		Page:          q.PageIndex + 1,
		Loading:       s.Loading,
		Err:           s.Err,
		SelectedCount: len(q.RowSelection),
		Filtered:      len(q.Filters) > 0,
	}

	var visible []Column[T]
	for _, c := range cols {
		vm.Columns = append(vm.Columns, ColumnToggle{
			ID:       c.ID,
			Label:    c.label(),
			Visible:  q.IsVisible(c.ID),
			Hideable: c.Hideable,
		})
		if q.IsVisible(c.ID) {
			visible = append(visible, c)
		}
	}

	grouped := false
	for _, c := range visible {
		h := Header{
			ID:         c.ID,
			Label:      c.label(),
			Group:      c.Group,
			Sortable:   c.Sortable,
			Filterable: c.Filterable,
			Hideable:   c.Hideable,
			Priority:   -1,
			Filter:     q.Filters[c.ID],
			Options:    c.Options,
		}
		if dir, prio, ok := q.SortFor(c.ID); ok {
			h.Sorted, h.Direction, h.Priority = true, dir, prio
		}
		vm.Headers = append(vm.Headers, h)

		if c.Group != "" {
			grouped = true
		}
		if n := len(vm.Groups); n > 0 && vm.Groups[n-1].Label == c.Group {
			vm.Groups[n-1].Span++
		} else {
			vm.Groups = append(vm.Groups, HeaderGroup{Label: c.Group, Span: 1})
		}
	}
	if !grouped {
		vm.Groups = nil
	}

	vm.PageAllSelected = len(s.Page.Rows) > 0
	for _, item := range s.Page.Rows {
		id := rowID(item)
		row := Row[T]{ID: id, Selected: q.IsSelected(id), Item: item}
		for _, c := range visible {
			row.Cells = append(row.Cells, Cell{ColumnID: c.ID, Text: cellText(c, item)})
		}
		if !row.Selected {
			vm.PageAllSelected = false
		}
		vm.Rows = append(vm.Rows, row)
	}

	for _, c := range cols {
		if c.Filterable {
			vm.Facets = append(vm.Facets, facet(c, s.Page.Rows, q.Filters[c.ID]))
		}
	}

	if q.PageSize > 0 && vm.Total > 0 {
		vm.PageCount = (vm.Total-1)/q.PageSize + 1
	}
	vm.HasPrev = q.PageIndex > 0
	vm.HasNext = q.PageSize > 0 && q.Offset() < vm.Total-q.PageSize
	vm.OutOfRange = s.Loaded && q.PageIndex > 0 && q.Offset() >= vm.Total

	switch {
	case s.Loading:
		vm.Status = StatusLoading
	case s.Err != nil:
		vm.Status = StatusFailed
	case len(vm.Rows) == 0:
		vm.Status = StatusEmpty
	default:
		vm.Status = StatusReady
	}
	return vm
}

func cellText[T any](c Column[T], item T) string {
	if c.Value == nil {
		return ""
	}
	return c.Value(item)
}

func facet[T any](c Column[T], rows []T, selected []string) Facet {
	counts := make(map[string]int)
	for _, item := range rows {
		counts[cellText(c, item)]++
	}
	for _, o := range c.Options {
		if _, ok := counts[o.Value]; !ok {
			counts[o.Value] = 0
		}
	}
	for _, v := range selected {
		if _, ok := counts[v]; !ok {
			counts[v] = 0
		}
	}
	delete(counts, "")

	f := Facet{ColumnID: c.ID, Title: c.label()}
	for v, n := range counts {
		label := v
		if i := slices.IndexFunc(c.Options, func(o Option) bool { return o.Value == v }); i >= 0 {
			label = c.Options[i].Label
		}
		f.Values = append(f.Values, FacetValue{
			Value:    v,
			Label:    label,
			Count:    n,
			Selected: slices.Contains(selected, v),
		})
	}
	slices.SortFunc(f.Values, func(a, b FacetValue) int {
		return cmp.Compare(a.Value, b.Value)
	})
	return f
}
