package grid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntent_PageResetRules(t *testing.T) {
	filtered := Query{
		PageIndex: 4,
		PageSize:  10,
		Filters:   map[string][]string{"status": {"failed"}},
	}

	tests := []struct {
		name      string
		query     Query
		intent    Intent
		wantIndex int
		wantSize  int
	}{
		{
			name:      "filter change resets page",
			query:     Query{PageIndex: 4, PageSize: 10},
			intent:    SetFilter("status", "failed"),
			wantIndex: 0,
			wantSize:  10,
		},
		{
			name:      "clearing filters resets page",
			query:     filtered,
			intent:    ClearFilters(),
			wantIndex: 0,
			wantSize:  10,
		},
		{
			name:      "sort change resets page",
			query:     Query{PageIndex: 4, PageSize: 10},
			intent:    ToggleSort("batch", false),
			wantIndex: 0,
			wantSize:  10,
		},
		{
			name:      "size change keeps first visible row",
			query:     Query{PageIndex: 2, PageSize: 10},
			intent:    SetPageSize(20),
			wantIndex: 1,
			wantSize:  20,
		},
		{
			name:      "size shrink keeps first visible row",
			query:     Query{PageIndex: 1, PageSize: 50},
			intent:    SetPageSize(20),
			wantIndex: 2,
			wantSize:  20,
		},
		{
			name:      "size change while filtered",
			query:     filtered,
			intent:    SetPageSize(20),
			wantIndex: 2,
			wantSize:  20,
		},
		{
			name:      "filter reset wins over explicit page",
			query:     Query{PageIndex: 4, PageSize: 10},
			intent:    Combine(SetFilter("status", "failed"), GotoPage(3)),
			wantIndex: 0,
			wantSize:  10,
		},
		{
			name:      "explicit page with unchanged filters",
			query:     filtered,
			intent:    Combine(SetFilter("status", "failed"), GotoPage(3)),
			wantIndex: 3,
			wantSize:  10,
		},
		{
			name:      "explicit page wins over size reindex",
			query:     Query{PageIndex: 4, PageSize: 10},
			intent:    Combine(SetPageSize(20), GotoPage(0)),
			wantIndex: 0,
			wantSize:  20,
		},
		{
			name:      "size change on a huge page index",
			query:     Query{PageIndex: math.MaxInt / 10, PageSize: 100},
			intent:    SetPageSize(50),
			wantIndex: 2 * (math.MaxInt / 10),
			wantSize:  50,
		},
		{
			name:      "size shrink past the largest index",
			query:     Query{PageIndex: math.MaxInt / 2, PageSize: 100},
			intent:    SetPageSize(10),
			wantIndex: math.MaxInt - 1,
			wantSize:  10,
		},
		{
			name:      "visibility keeps page",
			query:     Query{PageIndex: 4, PageSize: 10},
			intent:    SetColumnVisible("from", false),
			wantIndex: 4,
			wantSize:  10,
		},
		{
			name:      "selection keeps page",
			query:     Query{PageIndex: 4, PageSize: 10},
			intent:    SelectRows("0xa"),
			wantIndex: 4,
			wantSize:  10,
		},
		{
			name:      "setting an identical filter keeps page",
			query:     filtered,
			intent:    SetFilter("status", "failed"),
			wantIndex: 4,
			wantSize:  10,
		},
		{
			name:      "invalid size is ignored",
			query:     Query{PageIndex: 4, PageSize: 10},
			intent:    SetPageSize(0),
			wantIndex: 4,
			wantSize:  10,
		},
		{
			name:      "largest page keeps its page number in range",
			query:     Query{PageIndex: 4, PageSize: 10},
			intent:    GotoPage(math.MaxInt),
			wantIndex: math.MaxInt - 1,
			wantSize:  10,
		},
		{
			name:      "negative page clamps to first",
			query:     Query{PageIndex: 4, PageSize: 10},
			intent:    GotoPage(-2),
			wantIndex: 0,
			wantSize:  10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.intent.Apply(tt.query)
			assert.Equal(t, tt.wantIndex, got.PageIndex)
			assert.Equal(t, tt.wantSize, got.PageSize)
		})
	}
}

func TestIntent_SizeChangeKeepsFilterAndSort(t *testing.T) {
	q := Query{
		PageIndex: 2,
		PageSize:  10,
		Sort:      []SortKey{{ColumnID: "batch", Direction: Desc}},
		Filters:   map[string][]string{"status": {"failed"}},
	}

	got := SetPageSize(20).Apply(q)

	assert.Equal(t, q.Sort, got.Sort)
	assert.Equal(t, q.Filters, got.Filters)
}

func TestIntent_ToggleSort(t *testing.T) {
	q := Query{PageSize: 10}

	q = ToggleSort("batch", false).Apply(q)
	assert.Equal(t, []SortKey{{ColumnID: "batch", Direction: Asc}}, q.Sort)

	q = ToggleSort("batch", false).Apply(q)
	assert.Equal(t, []SortKey{{ColumnID: "batch", Direction: Desc}}, q.Sort)

	q = ToggleSort("batch", false).Apply(q)
	assert.Empty(t, q.Sort)
}

func TestIntent_ToggleSortMulti(t *testing.T) {
	q := Query{PageSize: 10, Sort: []SortKey{{ColumnID: "batch", Direction: Desc}}}

	q = ToggleSort("hash", true).Apply(q)
	assert.Equal(t, []SortKey{
		{ColumnID: "batch", Direction: Desc},
		{ColumnID: "hash", Direction: Asc},
	}, q.Sort)

	q = ToggleSort("batch", true).Apply(q)
	assert.Equal(t, []SortKey{{ColumnID: "hash", Direction: Asc}}, q.Sort)

	single := ToggleSort("value", false).Apply(q)
	assert.Equal(t, []SortKey{{ColumnID: "value", Direction: Asc}}, single.Sort)
}

func TestIntent_Selection(t *testing.T) {
	q := Query{PageSize: 10}

	q = SelectRows("c", "a").Apply(q)
	assert.Equal(t, []string{"a", "c"}, q.RowSelection)

	q = ToggleRows("a", "b").Apply(q)
	assert.Equal(t, []string{"b", "c"}, q.RowSelection)

	q = DeselectRows("c").Apply(q)
	assert.Equal(t, []string{"b"}, q.RowSelection)

	q = Combine(ClearSelection(), SelectRows("z")).Apply(q)
	assert.Equal(t, []string{"z"}, q.RowSelection)
}

func TestIntent_FilterRemoval(t *testing.T) {
	q := Query{PageSize: 10, Filters: map[string][]string{"status": {"failed"}, "type": {"deploy"}}}

	got := SetFilter("status").Apply(q)

	assert.Equal(t, map[string][]string{"type": {"deploy"}}, got.Filters)
}

func TestIntent_ToggleFilter(t *testing.T) {
	q := Query{PageIndex: 3, PageSize: 10, Filters: map[string][]string{"status": {"failed"}}}

	q = ToggleFilter("status", "pending").Apply(q)
	assert.Equal(t, []string{"failed", "pending"}, q.Filters["status"])
	assert.Equal(t, 0, q.PageIndex)

	q = Combine(ToggleFilter("status", "failed"), ToggleFilter("status", "pending")).Apply(q)
	assert.Empty(t, q.Filters, "removing the last value drops the filter")
}

func TestIntent_ApplyDoesNotMutateInput(t *testing.T) {
	q := Query{
		PageSize:     10,
		Filters:      map[string][]string{"status": {"failed"}},
		RowSelection: []string{"a"},
	}

	_ = Combine(SetFilter("status", "success"), SelectRows("b")).Apply(q)

	assert.Equal(t, []string{"failed"}, q.Filters["status"])
	assert.Equal(t, []string{"a"}, q.RowSelection)
}

func TestIntent_IsZero(t *testing.T) {
	assert.True(t, Intent{}.IsZero())
	assert.True(t, SetPageSize(-1).IsZero())
	assert.False(t, GotoPage(0).IsZero())
	assert.False(t, ClearSelection().IsZero())
}
