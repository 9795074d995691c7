// Package components renders the transaction grid as HTML fragments that
// datastar patches into the page. The templates live in *.templ files;
// run templ generate after editing them.
package components

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapgrid/internal/explorer"
	"github.com/leapstack-labs/leapgrid/pkg/grid"
)

// GridID is the element id the grid fragment replaces.
const GridID = "grid"

// skeletonRows caps the number of placeholder rows shown while loading.
const skeletonRows = 10

// GridData is everything the grid fragment needs.
type GridData struct {
	// Base is the action prefix of the view, e.g. /transactions/<id>.
	Base      string
	View      grid.ViewModel[explorer.Transaction]
	PageSizes []int
}

// PageData holds the full transactions page.
type PageData struct {
	Title string
	IsDev bool
	Grid  GridData
}

// post builds a datastar action posting to path.
func post(path string) string {
	return "@post('" + path + "')"
}

func get(path string) string {
	return "@get('" + path + "')"
}

// pathJoin appends escaped segments to base.
func pathJoin(base string, parts ...string) string {
	var b strings.Builder
	b.WriteString(base)
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

func filterAction(base, col, value string) string {
	return post(pathJoin(base, "filter", col) + "?value=" + url.QueryEscape(value))
}

// sortAction keeps the other sort keys when shift is held.
func sortAction(base, col string) string {
	return "@post('" + pathJoin(base, "sort", col) + "' + (evt.shiftKey ? '?multi=1' : ''))"
}

func pageAction(base string, page int) string {
	return post(pathJoin(base, "page", strconv.Itoa(page)))
}

func pageSignals(pageSize int) string {
	return "{pageSize: " + strconv.Itoa(pageSize) + ", location: ''}"
}

func popstateAction(base string) string {
	return "$location = window.location.search; " + post(base+"/location")
}

func ariaSort(d grid.Direction) string {
	if d == grid.Desc {
		return "descending"
	}
	return "ascending"
}

func arrow(d grid.Direction) string {
	if d == grid.Desc {
		return "↓"
	}
	return "↑"
}

// colspan covers the selection column and every visible column.
func colspan(vm grid.ViewModel[explorer.Transaction]) string {
	return strconv.Itoa(len(vm.Headers) + 1)
}

func skeletonCount(vm grid.ViewModel[explorer.Transaction]) int {
	return min(vm.Query.PageSize, skeletonRows)
}

func pageCount(vm grid.ViewModel[explorer.Transaction]) int {
	return max(vm.PageCount, 1)
}

// pageSizes lists the offered sizes plus the current one when the URL
// carries a size that is not offered.
func pageSizes(d GridData) []int {
	sizes := d.PageSizes
	if !slices.Contains(sizes, d.View.Query.PageSize) {
		sizes = append(slices.Clone(sizes), d.View.Query.PageSize)
		slices.Sort(sizes)
	}
	return sizes
}

func countSelected(values []grid.FacetValue) int {
	n := 0
	for _, v := range values {
		if v.Selected {
			n++
		}
	}
	return n
}
