package grid

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transfer struct {
	Hash   string
	From   string
	To     string
	Status string
}

var transferColumns = []Column[transfer]{
	{ID: "hash", Value: func(t transfer) string { return t.Hash }, Sortable: true},
	{ID: "from", Group: "Parties", Value: func(t transfer) string { return t.From }, Hideable: true},
	{ID: "to", Group: "Parties", Value: func(t transfer) string { return t.To }, Hideable: true},
	{
		ID:         "status",
		Value:      func(t transfer) string { return t.Status },
		Sortable:   true,
		Filterable: true,
		Options: []Option{
			{Label: "Success", Value: "success"},
			{Label: "Failed", Value: "failed"},
			{Label: "Pending", Value: "pending"},
		},
	},
}

func transferID(t transfer) string { return t.Hash }

func transferPage() RowPage[transfer] {
	return RowPage[transfer]{
		Total: 45,
		Rows: []transfer{
			{Hash: "0x1", From: "a", To: "b", Status: "success"},
			{Hash: "0x2", From: "b", To: "c", Status: "failed"},
			{Hash: "0x3", From: "c", To: "a", Status: "success"},
		},
	}
}

func TestProject_HeadersAndGroups(t *testing.T) {
	vm := Project(Snapshot[transfer]{
		Query:  Query{PageSize: 10, Sort: []SortKey{{ColumnID: "status", Direction: Desc}}},
		Page:   transferPage(),
		Loaded: true,
	}, transferColumns, transferID)

	require.Len(t, vm.Headers, 4)
	assert.Equal(t, "Hash", vm.Headers[0].Label)
	assert.False(t, vm.Headers[0].Sorted)
	assert.Equal(t, -1, vm.Headers[0].Priority)
	assert.True(t, vm.Headers[3].Sorted)
	assert.Equal(t, Desc, vm.Headers[3].Direction)
	assert.Equal(t, 0, vm.Headers[3].Priority)

	assert.Equal(t, []HeaderGroup{
		{Label: "", Span: 1},
		{Label: "Parties", Span: 2},
		{Label: "", Span: 1},
	}, vm.Groups)
}

func TestProject_HiddenColumns(t *testing.T) {
	vm := Project(Snapshot[transfer]{
		Query:  Query{PageSize: 10, ColumnVisibility: map[string]bool{"from": false, "to": false}},
		Page:   transferPage(),
		Loaded: true,
	}, transferColumns, transferID)

	require.Len(t, vm.Headers, 2)
	assert.Nil(t, vm.Groups, "no groups once the grouped columns are hidden")
	require.Len(t, vm.Rows[0].Cells, 2)
	assert.Equal(t, "0x1", vm.Rows[0].Cells[0].Text)
	assert.Equal(t, "success", vm.Rows[0].Cells[1].Text)

	require.Len(t, vm.Columns, 4)
	assert.False(t, vm.Columns[1].Visible)
	assert.True(t, vm.Columns[1].Hideable)
}

func TestProject_Selection(t *testing.T) {
	vm := Project(Snapshot[transfer]{
		Query:  Query{PageSize: 10, RowSelection: []string{"0x2", "0x99"}},
		Page:   transferPage(),
		Loaded: true,
	}, transferColumns, transferID)

	assert.False(t, vm.Rows[0].Selected)
	assert.True(t, vm.Rows[1].Selected)
	assert.Equal(t, 2, vm.SelectedCount, "selection off the page still counts")
	assert.False(t, vm.PageAllSelected)

	all := Project(Snapshot[transfer]{
		Query:  Query{PageSize: 10, RowSelection: []string{"0x1", "0x2", "0x3"}},
		Page:   transferPage(),
		Loaded: true,
	}, transferColumns, transferID)
	assert.True(t, all.PageAllSelected)
}

func TestProject_Facets(t *testing.T) {
	vm := Project(Snapshot[transfer]{
		Query:  Query{PageSize: 10, Filters: map[string][]string{"status": {"failed", "reverted"}}},
		Page:   transferPage(),
		Loaded: true,
	}, transferColumns, transferID)

	require.Len(t, vm.Facets, 1)
	f := vm.Facets[0]
	assert.Equal(t, "status", f.ColumnID)
	assert.Equal(t, "Status", f.Title)
	assert.Equal(t, []FacetValue{
		{Value: "failed", Label: "Failed", Count: 1, Selected: true},
		{Value: "pending", Label: "Pending", Count: 0},
		{Value: "reverted", Label: "reverted", Count: 0, Selected: true},
		{Value: "success", Label: "Success", Count: 2},
	}, f.Values)
	assert.True(t, vm.Filtered)
	assert.Equal(t, []string{"failed", "reverted"}, vm.Headers[3].Filter)
}

func TestProject_Pagination(t *testing.T) {
	tests := []struct {
		name       string
		query      Query
		total      int
		rows       int
		wantCount  int
		wantPrev   bool
		wantNext   bool
		wantOutOfR bool
		wantStatus Status
	}{
		{"first page", Query{PageIndex: 0, PageSize: 10}, 45, 10, 5, false, true, false, StatusReady},
		{"middle page", Query{PageIndex: 2, PageSize: 10}, 45, 10, 5, true, true, false, StatusReady},
		{"last page", Query{PageIndex: 4, PageSize: 10}, 45, 5, 5, true, false, false, StatusReady},
		{"past the end", Query{PageIndex: 9, PageSize: 10}, 45, 0, 5, true, false, true, StatusEmpty},
		{"no rows", Query{PageIndex: 0, PageSize: 10}, 0, 0, 0, false, false, false, StatusEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := RowPage[transfer]{Total: tt.total}
			for i := range tt.rows {
				page.Rows = append(page.Rows, transfer{Hash: string(rune('a' + i))})
			}

			vm := Project(Snapshot[transfer]{Query: tt.query, Page: page, Loaded: true}, transferColumns, transferID)

			assert.Equal(t, tt.wantCount, vm.PageCount)
			assert.Equal(t, tt.wantPrev, vm.HasPrev)
			assert.Equal(t, tt.wantNext, vm.HasNext)
			assert.Equal(t, tt.wantOutOfR, vm.OutOfRange)
			assert.Equal(t, tt.wantStatus, vm.Status)
			assert.Equal(t, tt.query.PageIndex+1, vm.Page)
		})
	}
}

func TestProject_HugePageIndex(t *testing.T) {
	// PageIndex*PageSize is 2^64 here and would wrap to 0.
	q := Query{PageIndex: 1 << 62, PageSize: 4}

	vm := Project(Snapshot[transfer]{Query: q, Page: RowPage[transfer]{Total: 25}, Loaded: true}, transferColumns, transferID)

	assert.True(t, vm.OutOfRange)
	assert.False(t, vm.HasNext)
	assert.True(t, vm.HasPrev)
	assert.Equal(t, 7, vm.PageCount)
	assert.Equal(t, StatusEmpty, vm.Status)
}

func TestQuery_Offset(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  int
	}{
		{"first page", Query{PageIndex: 0, PageSize: 20}, 0},
		{"third page", Query{PageIndex: 2, PageSize: 20}, 40},
		{"product overflows", Query{PageIndex: 1 << 62, PageSize: 4}, math.MaxInt},
		{"past int range", Query{PageIndex: math.MaxInt / 2, PageSize: 3}, math.MaxInt},
		{"largest exact", Query{PageIndex: math.MaxInt, PageSize: 1}, math.MaxInt},
		{"negative index", Query{PageIndex: -1, PageSize: 20}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.query.Offset())
		})
	}
}

func TestProject_Status(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name string
		snap Snapshot[transfer]
		want Status
	}{
		{"loading wins", Snapshot[transfer]{Loading: true, Err: boom}, StatusLoading},
		{"failed", Snapshot[transfer]{Err: boom, Page: transferPage(), Loaded: true}, StatusFailed},
		{"empty", Snapshot[transfer]{Loaded: true}, StatusEmpty},
		{"ready", Snapshot[transfer]{Page: transferPage(), Loaded: true}, StatusReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.snap.Query.PageSize = 10
			vm := Project(tt.snap, transferColumns, transferID)
			assert.Equal(t, tt.want, vm.Status)
			assert.Equal(t, tt.want.String(), vm.Status.String())
		})
	}
}

func TestTitleLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hash", "Hash"},
		{"batch_height", "Batch Height"},
		{"block-number", "Block Number"},
		{"fee.total", "Fee Total"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, TitleLabel(tt.in))
		})
	}
}
