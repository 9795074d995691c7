package grid

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodec_DefaultQuery(t *testing.T) {
	c := NewCodec(StandardDefaults())

	q := c.Decode(url.Values{})

	assert.True(t, q.Equal(Query{PageIndex: 0, PageSize: 20}))
	assert.Empty(t, q.Sort)
	assert.Empty(t, q.Filters)
	assert.Empty(t, q.ColumnVisibility)
	assert.Empty(t, q.RowSelection)
	assert.Equal(t, "page=1&size=20", c.Encode(q).Encode())
}

func TestCodec_DecodeFallbacks(t *testing.T) {
	c := NewCodec(StandardDefaults())

	tests := []struct {
		name      string
		raw       string
		wantIndex int
		wantSize  int
	}{
		{"valid", "page=3&size=50", 2, 50},
		{"missing page", "size=50", 0, 50},
		{"missing size", "page=4", 3, 20},
		{"non-numeric page", "page=abc&size=10", 0, 10},
		{"non-numeric size", "page=2&size=lots", 1, 20},
		{"zero page", "page=0", 0, 20},
		{"negative page", "page=-3", 0, 20},
		{"zero size", "size=0", 0, 20},
		{"whitespace", "page=%202%20&size=%2010", 1, 10},
		{"bad escape", "page=%zz", 0, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := c.DecodeString(tt.raw)
			assert.Equal(t, tt.wantIndex, q.PageIndex)
			assert.Equal(t, tt.wantSize, q.PageSize)
		})
	}
}

func TestCodec_DecodeCustomDefaults(t *testing.T) {
	c := NewCodec(Defaults{PageSize: 50})
	q := c.DecodeString("page=x")
	assert.Equal(t, 0, q.PageIndex)
	assert.Equal(t, 50, q.PageSize)
}

func TestCodec_DecodeSort(t *testing.T) {
	c := NewCodec(StandardDefaults())

	q := c.DecodeString("sort=batch:desc&sort=hash:ASC&sort=bad&sort=:asc&sort=value:up&sort=batch:asc")

	assert.Equal(t, []SortKey{
		{ColumnID: "batch", Direction: Desc},
		{ColumnID: "hash", Direction: Asc},
	}, q.Sort)
}

func TestCodec_DecodeFiltersAndSets(t *testing.T) {
	c := NewCodec(StandardDefaults())

	q := c.DecodeString("f.status=success&f.status=failed&f.status=success&f.type=&f.=x&sel=b&sel=a&sel=b&sel=")

	assert.Equal(t, map[string][]string{"status": {"failed", "success"}}, q.Filters)
	assert.Equal(t, []string{"a", "b"}, q.RowSelection)
}

func TestCodec_DecodeVisibility(t *testing.T) {
	c := NewCodec(StandardDefaults())

	q := c.DecodeString("show=hash&hide=from&show=from")

	assert.True(t, q.IsVisible("hash"))
	assert.False(t, q.IsVisible("from"), "hide wins over show")
	assert.True(t, q.IsVisible("batch"), "unlisted columns are visible")
}

func TestCodec_DecodeIsOrderIndependent(t *testing.T) {
	c := NewCodec(StandardDefaults())

	a := c.DecodeString("size=50&f.status=failed&page=2&f.status=success&sel=y&sel=x")
	b := c.DecodeString("sel=x&f.status=success&page=2&sel=y&f.status=failed&size=50")

	assert.True(t, a.Equal(b))
}

func TestCodec_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		codec Codec
		query Query
	}{
		{
			name:  "defaults",
			codec: NewCodec(StandardDefaults()),
			query: Query{PageSize: 20},
		},
		{
			name:  "everything",
			codec: NewCodec(StandardDefaults()),
			query: Query{
				PageIndex: 4,
				PageSize:  50,
				Sort:      []SortKey{{ColumnID: "batch", Direction: Desc}, {ColumnID: "hash", Direction: Asc}},
				Filters: map[string][]string{
					"status": {"success", "failed"},
					"type":   {"deploy"},
				},
				ColumnVisibility: map[string]bool{"from": false, "hash": true},
				RowSelection:     []string{"0xb", "0xa"},
			},
		},
		{
			name:  "values needing escapes",
			codec: NewCodec(StandardDefaults()),
			query: Query{
				PageSize: 10,
				Filters:  map[string][]string{"memo": {"a&b=c", "100%"}},
			},
		},
		{
			name:  "column ids with colons and spaces",
			codec: NewCodec(StandardDefaults()),
			query: Query{
				PageSize: 10,
				Sort: []SortKey{
					{ColumnID: "meta:height", Direction: Desc},
					{ColumnID: " fee", Direction: Asc},
					{ColumnID: "a:asc", Direction: Desc},
				},
			},
		},
		{
			name:  "prefixed",
			codec: Codec{Defaults: StandardDefaults(), Prefix: "tx."},
			query: Query{
				PageIndex: 1,
				PageSize:  10,
				Sort:      []SortKey{{ColumnID: "value", Direction: Asc}},
				Filters:   map[string][]string{"status": {"pending"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.codec.Decode(tt.codec.Encode(tt.query))
			assert.True(t, got.Equal(tt.query), "got %+v", got)
		})
	}
}

func FuzzCodec_RoundTrip(f *testing.F) {
	f.Add("batch", "failed", "0xa", uint16(0), uint16(19), false, "")
	f.Add("meta:height", "a&b=c", "0x1;2", uint16(7), uint16(0), true, "tx.")
	f.Add(" fee ", "100%", " ", uint16(65535), uint16(65535), false, "f.")
	f.Add("x:asc:", "\xff", "sel", uint16(3), uint16(4), true, "page")

	f.Fuzz(func(t *testing.T, col, value, id string, page, size uint16, desc bool, prefix string) {
		dir := Asc
		if desc {
			dir = Desc
		}
		q := Query{
			PageIndex:        int(page),
			PageSize:         int(size) + 1,
			Sort:             []SortKey{{ColumnID: col, Direction: dir}},
			Filters:          map[string][]string{col: {value}},
			ColumnVisibility: map[string]bool{col: desc},
			RowSelection:     []string{id},
		}
		c := Codec{Defaults: StandardDefaults(), Prefix: prefix}

		v := c.Encode(q)
		got := c.Decode(v)
		assert.True(t, got.Equal(q), "decoded %+v from %s", got, v.Encode())

		got = c.DecodeString(v.Encode())
		assert.True(t, got.Equal(q), "decoded %+v from %q", got, v.Encode())
	})
}

func TestCodec_EncodeShape(t *testing.T) {
	c := NewCodec(StandardDefaults())

	v := c.Encode(Query{
		PageIndex: 1,
		PageSize:  10,
		Sort:      []SortKey{{ColumnID: "batch", Direction: Desc}, {ColumnID: "hash", Direction: Asc}},
		Filters:   map[string][]string{"status": {"success", "failed"}},
	})

	assert.Equal(t, "2", v.Get("page"))
	assert.Equal(t, "10", v.Get("size"))
	assert.Equal(t, []string{"batch:desc", "hash:asc"}, v["sort"])
	assert.Equal(t, []string{"failed", "success"}, v["f.status"])
}

func TestCodec_ApplyKeepsForeignParameters(t *testing.T) {
	c := NewCodec(StandardDefaults())
	base := url.Values{
		"tab":      {"transactions"},
		"page":     {"7"},
		"f.status": {"failed"},
		"sort":     {"hash:asc"},
	}

	got := c.Apply(base, Query{PageIndex: 0, PageSize: 20, Filters: map[string][]string{"type": {"deploy"}}})

	assert.Equal(t, "transactions", got.Get("tab"))
	assert.Equal(t, "1", got.Get("page"))
	assert.Equal(t, []string{"deploy"}, got["f.type"])
	assert.NotContains(t, got, "f.status", "removed filters must not survive from the old location")
	assert.NotContains(t, got, "sort")
	assert.Equal(t, "failed", base.Get("f.status"), "base is not modified")
}

func TestCodec_PrefixIsolatesGrids(t *testing.T) {
	txs := Codec{Defaults: StandardDefaults(), Prefix: "tx."}
	batches := Codec{Defaults: StandardDefaults(), Prefix: "b."}

	v := txs.Apply(url.Values{}, Query{PageIndex: 2, PageSize: 10})
	v = batches.Apply(v, Query{PageIndex: 0, PageSize: 50})

	assert.Equal(t, 2, txs.Decode(v).PageIndex)
	assert.Equal(t, 10, txs.Decode(v).PageSize)
	assert.Equal(t, 50, batches.Decode(v).PageSize)
	assert.True(t, txs.Owns("tx.f.status"))
	assert.False(t, txs.Owns("b.page"))
	assert.False(t, txs.Owns("tx.f."))
}
