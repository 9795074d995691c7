package grid

import (
	"maps"
	"math"
	"math/bits"
	"slices"
)

// Direction is the sort direction of a column.
type Direction string

// Sort directions.
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Asc || d == Desc
}

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d == Desc {
		return Asc
	}
	return Desc
}

// SortKey orders rows by a single column.
type SortKey struct {
	ColumnID  string
	Direction Direction
}

// Query is the complete, URL-serializable description of what a grid shows.
//
// Filters and RowSelection are sets. Use Normalize to obtain the canonical
// representation (sorted, de-duplicated, empty entries removed).
type Query struct {
	PageIndex        int
	PageSize         int
	Sort             []SortKey
	Filters          map[string][]string
	ColumnVisibility map[string]bool
	RowSelection     []string
}

// Defaults holds the fallback values used when the URL does not carry a
// usable page index or page size.
type Defaults struct {
	PageIndex int
	PageSize  int
}

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 20

// StandardDefaults returns page index 0 and DefaultPageSize.
func StandardDefaults() Defaults {
	return Defaults{PageIndex: 0, PageSize: DefaultPageSize}
}

// Query returns the empty query for these defaults.
func (d Defaults) Query() Query {
	return Query{PageIndex: d.PageIndex, PageSize: d.PageSize}
}

func (d Defaults) normalized() Defaults {
	if d.PageIndex < 0 {
		d.PageIndex = 0
	}
	if d.PageSize < 1 {
		d.PageSize = DefaultPageSize
	}
	return d
}

// Normalize returns the canonical form of q. Filter value sets and the
// selection set are sorted and de-duplicated. Empty ids, empty values and
// filters without values are dropped. Sort keys keep their priority order.
// A sort key with an invalid direction or a repeated column is dropped.
func (q Query) Normalize() Query {
	out := Query{
		PageIndex: q.PageIndex,
		PageSize:  q.PageSize,
	}

	seen := make(map[string]struct{}, len(q.Sort))
	for _, k := range q.Sort {
		if k.ColumnID == "" || !k.Direction.Valid() {
			continue
		}
		if _, dup := seen[k.ColumnID]; dup {
			continue
		}
		seen[k.ColumnID] = struct{}{}
		out.Sort = append(out.Sort, k)
	}

	for col, values := range q.Filters {
		if col == "" {
			continue
		}
		set := normalizeSet(values)
		if len(set) == 0 {
			continue
		}
		if out.Filters == nil {
			out.Filters = make(map[string][]string)
		}
		out.Filters[col] = set
	}

	for col, visible := range q.ColumnVisibility {
		if col == "" {
			continue
		}
		if out.ColumnVisibility == nil {
			out.ColumnVisibility = make(map[string]bool)
		}
		out.ColumnVisibility[col] = visible
	}

	out.RowSelection = normalizeSet(q.RowSelection)
	return out
}

// Clone returns a deep copy of q.
func (q Query) Clone() Query {
	out := q
	out.Sort = slices.Clone(q.Sort)
	if q.Filters != nil {
		out.Filters = make(map[string][]string, len(q.Filters))
		for k, v := range q.Filters {
			out.Filters[k] = slices.Clone(v)
		}
	}
	out.ColumnVisibility = maps.Clone(q.ColumnVisibility)
	out.RowSelection = slices.Clone(q.RowSelection)
	return out
}

// Equal reports whether q and other describe the same grid view.
// Nil and empty collections compare equal.
func (q Query) Equal(other Query) bool {
	a, b := q.Normalize(), other.Normalize()
	if a.PageIndex != b.PageIndex || a.PageSize != b.PageSize {
		return false
	}
	if !slices.Equal(a.Sort, b.Sort) {
		return false
	}
	if !maps.EqualFunc(a.Filters, b.Filters, slices.Equal[[]string]) {
		return false
	}
	if !maps.Equal(a.ColumnVisibility, b.ColumnVisibility) {
		return false
	}
	return slices.Equal(a.RowSelection, b.RowSelection)
}

// SameResultSet reports whether q and other select the same rows, ignoring
// pagination and presentation.
func (q Query) SameResultSet(other Query) bool {
	a, b := q.Normalize(), other.Normalize()
	return slices.Equal(a.Sort, b.Sort) &&
		maps.EqualFunc(a.Filters, b.Filters, slices.Equal[[]string])
}

// SameFetch reports whether q and other require the same page of rows from
// the data source. Column visibility and row selection are presentation
// state and do not affect the fetch.
func (q Query) SameFetch(other Query) bool {
	return q.PageIndex == other.PageIndex &&
		q.PageSize == other.PageSize &&
		q.SameResultSet(other)
}

// SortFor returns the direction and priority (0-based) of col in the sort
// order. ok is false when the column is not sorted.
func (q Query) SortFor(col string) (dir Direction, priority int, ok bool) {
	for i, k := range q.Sort {
		if k.ColumnID == col {
			return k.Direction, i, true
		}
	}
	return "", -1, false
}

// IsSelected reports whether rowID is in the selection set.
func (q Query) IsSelected(rowID string) bool {
	return slices.Contains(q.RowSelection, rowID)
}

// IsVisible reports whether col is visible. Columns default to visible.
func (q Query) IsVisible(col string) bool {
	visible, ok := q.ColumnVisibility[col]
	return !ok || visible
}

// Offset is the index of the first row on the current page. It saturates
// at math.MaxInt for page indexes too large to address.
func (q Query) Offset() int {
	if q.PageIndex <= 0 || q.PageSize <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(q.PageIndex), uint64(q.PageSize))
	if hi != 0 || lo > math.MaxInt {
		return math.MaxInt
	}
	return int(lo)
}

// maxPageIndex is the largest page index whose 1-based page number fits in
// an int.
const maxPageIndex = math.MaxInt - 1

// rescalePage returns floor(index*oldSize/newSize) without overflowing,
// clamped to [0, maxPageIndex].
func rescalePage(index, oldSize, newSize int) int {
	if index <= 0 || oldSize <= 0 || newSize <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(index), uint64(oldSize))
	if hi >= uint64(newSize) {
		return maxPageIndex
	}
	quo, _ := bits.Div64(hi, lo, uint64(newSize))
	if quo > maxPageIndex {
		return maxPageIndex
	}
	return int(quo)
}

func normalizeSet(values []string) []string {
	var out []string
	for _, v := range values {
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return slices.Compact(out)
}
