package grid

import "slices"

// Intent is a partial change requested by a UI control. Build intents with
// the constructor functions and merge several with Combine.
type Intent struct {
	pageIndex *int
	pageSize  *int

	sort    []SortKey
	setSort bool

	toggleSort     string
	toggleMultiple bool

	filters       map[string][]string
	toggleFilters map[string][]string
	clearFilters  bool

	visibility map[string]bool

	selectRows     []string
	deselectRows   []string
	toggleRows     []string
	clearSelection bool
}

// GotoPage moves to the 0-based page index. Negative values are treated as 0.
func GotoPage(index int) Intent {
	index = min(max(index, 0), maxPageIndex)
	return Intent{pageIndex: &index}
}

// SetPageSize changes the page size. Values below 1 are ignored.
func SetPageSize(size int) Intent {
	if size < 1 {
		return Intent{}
	}
	return Intent{pageSize: &size}
}

// SortBy replaces the whole sort order. SortBy() clears sorting.
func SortBy(keys ...SortKey) Intent {
	return Intent{sort: slices.Clone(keys), setSort: true}
}

// ToggleSort cycles a column through asc, desc and unsorted, like a header
// click. With multi set, other sorted columns are kept.
func ToggleSort(col string, multi bool) Intent {
	return Intent{toggleSort: col, toggleMultiple: multi}
}

// SetFilter replaces the accepted values of col. SetFilter(col) with no
// values removes the filter.
func SetFilter(col string, values ...string) Intent {
	return Intent{filters: map[string][]string{col: slices.Clone(values)}}
}

// ToggleFilter adds value to the filter on col, or removes it when it is
// already accepted.
func ToggleFilter(col, value string) Intent {
	return Intent{toggleFilters: map[string][]string{col: {value}}}
}

// ClearFilters removes every filter.
func ClearFilters() Intent {
	return Intent{clearFilters: true}
}

// SetColumnVisible shows or hides col.
func SetColumnVisible(col string, visible bool) Intent {
	return Intent{visibility: map[string]bool{col: visible}}
}

// SelectRows adds rows to the selection.
func SelectRows(ids ...string) Intent {
	return Intent{selectRows: slices.Clone(ids)}
}

// DeselectRows removes rows from the selection.
func DeselectRows(ids ...string) Intent {
	return Intent{deselectRows: slices.Clone(ids)}
}

// ToggleRows flips the selected state of each row.
func ToggleRows(ids ...string) Intent {
	return Intent{toggleRows: slices.Clone(ids)}
}

// ClearSelection empties the selection.
func ClearSelection() Intent {
	return Intent{clearSelection: true}
}

// Combine merges intents left to right into a single intent. Later intents
// override earlier ones for the same field.
func Combine(intents ...Intent) Intent {
	var out Intent
	for _, in := range intents {
		if in.pageIndex != nil {
			out.pageIndex = in.pageIndex
		}
		if in.pageSize != nil {
			out.pageSize = in.pageSize
		}
		if in.setSort {
			out.sort, out.setSort = in.sort, true
			out.toggleSort = ""
		}
		if in.toggleSort != "" {
			out.toggleSort, out.toggleMultiple = in.toggleSort, in.toggleMultiple
		}
		if in.clearFilters {
			out.clearFilters = true
			out.filters, out.toggleFilters = nil, nil
		}
		for col, values := range in.filters {
			if out.filters == nil {
				out.filters = make(map[string][]string)
			}
			out.filters[col] = values
			delete(out.toggleFilters, col)
		}
		for col, values := range in.toggleFilters {
			if out.toggleFilters == nil {
				out.toggleFilters = make(map[string][]string)
			}
			out.toggleFilters[col] = append(out.toggleFilters[col], values...)
		}
		for col, visible := range in.visibility {
			if out.visibility == nil {
				out.visibility = make(map[string]bool)
			}
			out.visibility[col] = visible
		}
		if in.clearSelection {
			out.clearSelection = true
			out.selectRows, out.deselectRows, out.toggleRows = nil, nil, nil
		}
		out.selectRows = append(out.selectRows, in.selectRows...)
		out.deselectRows = append(out.deselectRows, in.deselectRows...)
		out.toggleRows = append(out.toggleRows, in.toggleRows...)
	}
	return out
}

// IsZero reports whether the intent changes nothing.
func (in Intent) IsZero() bool {
	return in.pageIndex == nil && in.pageSize == nil && !in.setSort &&
		in.toggleSort == "" && len(in.filters) == 0 && len(in.toggleFilters) == 0 && !in.clearFilters &&
		len(in.visibility) == 0 && len(in.selectRows) == 0 &&
		len(in.deselectRows) == 0 && len(in.toggleRows) == 0 && !in.clearSelection
}

// Apply merges the intent into q and applies the page reset rules:
//
//   - a change to filters or sort moves to page 0, even when the intent
//     also names a page;
//   - otherwise an explicit page index in the intent is used;
//   - a change to the page size alone keeps the first visible row on the
//     page: newIndex = oldIndex*oldSize/newSize.
func (in Intent) Apply(q Query) Query {
	prev := q.Normalize()
	next := prev.Clone()

	switch {
	case in.setSort:
		next.Sort = slices.Clone(in.sort)
	case in.toggleSort != "":
		next.Sort = toggle(next.Sort, in.toggleSort, in.toggleMultiple)
	}

	if in.clearFilters {
		next.Filters = nil
	}
	for col, values := range in.filters {
		if next.Filters == nil {
			next.Filters = make(map[string][]string)
		}
		next.Filters[col] = slices.Clone(values)
	}
	for col, values := range in.toggleFilters {
		if next.Filters == nil {
			next.Filters = make(map[string][]string)
		}
		for _, v := range values {
			if i := slices.Index(next.Filters[col], v); i >= 0 {
				next.Filters[col] = slices.Delete(next.Filters[col], i, i+1)
			} else {
				next.Filters[col] = append(next.Filters[col], v)
			}
		}
	}

	for col, visible := range in.visibility {
		if next.ColumnVisibility == nil {
			next.ColumnVisibility = make(map[string]bool)
		}
		next.ColumnVisibility[col] = visible
	}

	if in.clearSelection {
		next.RowSelection = nil
	}
	next.RowSelection = append(next.RowSelection, in.selectRows...)
	if len(in.deselectRows) > 0 {
		next.RowSelection = slices.DeleteFunc(next.RowSelection, func(id string) bool {
			return slices.Contains(in.deselectRows, id)
		})
	}
	for _, id := range in.toggleRows {
		if i := slices.Index(next.RowSelection, id); i >= 0 {
			next.RowSelection = slices.Delete(next.RowSelection, i, i+1)
		} else {
			next.RowSelection = append(next.RowSelection, id)
		}
	}

	if in.pageSize != nil {
		next.PageSize = *in.pageSize
	}

	next = next.Normalize()

	switch {
	case !next.SameResultSet(prev):
		next.PageIndex = 0
	case in.pageIndex != nil:
		next.PageIndex = *in.pageIndex
	case next.PageSize != prev.PageSize && prev.PageSize > 0:
		next.PageIndex = rescalePage(prev.PageIndex, prev.PageSize, next.PageSize)
	}

	return next
}

// toggle cycles col through asc → desc → unsorted.
func toggle(keys []SortKey, col string, multi bool) []SortKey {
	i := slices.IndexFunc(keys, func(k SortKey) bool { return k.ColumnID == col })

	var next Direction
	switch {
	case i < 0:
		next = Asc
	case keys[i].Direction == Asc:
		next = Desc
	default:
		next = ""
	}

	if !multi {
		if next == "" {
			return nil
		}
		return []SortKey{{ColumnID: col, Direction: next}}
	}

	out := slices.Clone(keys)
	switch {
	case i < 0:
		out = append(out, SortKey{ColumnID: col, Direction: next})
	case next == "":
		out = slices.Delete(out, i, i+1)
	default:
		out[i].Direction = next
	}
	return out
}
