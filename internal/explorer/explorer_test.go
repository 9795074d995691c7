package explorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgrid/pkg/grid"
)

func TestFormatGwei(t *testing.T) {
	tests := []struct {
		gwei int64
		want string
	}{
		{0, "0 ETH"},
		{1_000_000_000, "1.0 ETH"},
		{1_500_000_000, "1.5 ETH"},
		{123_456_789, "0.123456 ETH"},
		{42_000_000_000_000, "42000.0 ETH"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatGwei(tt.gwei))
		})
	}
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "0xabcd…7890", ShortHash("0xabcdef0123456789012345678901234567890"))
	assert.Equal(t, "0x1234", ShortHash("0x1234"))
}

func TestAge(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{-time.Second, "just now"},
		{42 * time.Second, "42s ago"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Age(now.Add(-tt.ago), now))
		})
	}
}

func TestColumns(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cols := Columns(func() time.Time { return now })

	ids := make([]string, 0, len(cols))
	for _, c := range cols {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"hash", "batch", "from", "to", "type", "status", "value", "timestamp"}, ids)

	tx := Transaction{
		Hash:        "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		BatchHeight: 1042,
		Type:        TxDeploy,
		Status:      StatusFailed,
		Value:       2_000_000_000,
		Timestamp:   now.Add(-90 * time.Second),
	}

	vm := grid.Project(grid.Snapshot[Transaction]{
		Query:  grid.Query{PageSize: 20},
		Page:   grid.RowPage[Transaction]{Rows: []Transaction{tx}, Total: 1},
		Loaded: true,
	}, cols, ID)

	require.Len(t, vm.Rows, 1)
	texts := map[string]string{}
	for _, c := range vm.Rows[0].Cells {
		texts[c.ColumnID] = c.Text
	}
	assert.Equal(t, "1042", texts[ColBatch])
	assert.Equal(t, "deploy", texts[ColType])
	assert.Equal(t, "2.0 ETH", texts[ColValue])
	assert.Equal(t, "1m ago", texts[ColTimestamp])
	assert.Equal(t, "Age", vm.Headers[7].Label)
	assert.Equal(t, []grid.HeaderGroup{{Span: 2}, {Label: "Parties", Span: 2}, {Span: 4}}, vm.Groups)

	require.Len(t, vm.Facets, 2)
	assert.Equal(t, "type", vm.Facets[0].ColumnID)
	assert.Len(t, vm.Facets[0].Values, 3)
	assert.Equal(t, "Failed", vm.Facets[1].Values[0].Label)
}
