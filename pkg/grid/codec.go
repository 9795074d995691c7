package grid

import (
	"net/url"
	"strconv"
	"strings"
)

// Parameter names used in the URL query string.
const (
	ParamPage   = "page"
	ParamSize   = "size"
	ParamSort   = "sort"
	ParamShow   = "show"
	ParamHide   = "hide"
	ParamSelect = "sel"

	// FilterPrefix prefixes one parameter per filtered column, e.g. f.status=failed.
	FilterPrefix = "f."
)

// Codec converts between a Query and its URL query-string representation.
//
// The external page number is 1-based; the internal PageIndex is 0-based.
// The conversion happens here and nowhere else.
type Codec struct {
	Defaults Defaults

	// Prefix namespaces every parameter so several grids can share a URL.
	Prefix string
}

// NewCodec returns a codec with the given defaults and no prefix.
func NewCodec(defaults Defaults) Codec {
	return Codec{Defaults: defaults.normalized()}
}

func (c Codec) key(name string) string {
	return c.Prefix + name
}

// Owns reports whether the parameter key belongs to this grid.
func (c Codec) Owns(key string) bool {
	if !strings.HasPrefix(key, c.Prefix) {
		return false
	}
	name := strings.TrimPrefix(key, c.Prefix)
	switch name {
	case ParamPage, ParamSize, ParamSort, ParamShow, ParamHide, ParamSelect:
		return true
	}
	return strings.HasPrefix(name, FilterPrefix) && len(name) > len(FilterPrefix)
}

// Encode returns the parameters for q. page and size are always present.
func (c Codec) Encode(q Query) url.Values {
	q = q.Normalize()
	v := url.Values{}

	v.Set(c.key(ParamPage), strconv.Itoa(q.PageIndex+1))
	v.Set(c.key(ParamSize), strconv.Itoa(q.PageSize))

	for _, k := range q.Sort {
		v.Add(c.key(ParamSort), k.ColumnID+":"+string(k.Direction))
	}

	for col, values := range q.Filters {
		for _, value := range values {
			v.Add(c.key(FilterPrefix+col), value)
		}
	}

	for col, visible := range q.ColumnVisibility {
		if visible {
			v.Add(c.key(ParamShow), col)
		} else {
			v.Add(c.key(ParamHide), col)
		}
	}

	for _, id := range q.RowSelection {
		v.Add(c.key(ParamSelect), id)
	}

	return v
}

// Decode parses v into a Query. It never fails: each parameter that is
// missing or malformed falls back to its default independently.
func (c Codec) Decode(v url.Values) Query {
	d := c.Defaults.normalized()
	q := Query{
		PageIndex: d.PageIndex,
		PageSize:  d.PageSize,
	}

	if page, ok := positiveInt(v.Get(c.key(ParamPage))); ok {
		q.PageIndex = page - 1
	}
	if size, ok := positiveInt(v.Get(c.key(ParamSize))); ok {
		q.PageSize = size
	}

	for _, raw := range v[c.key(ParamSort)] {
		// Column ids may contain ':'; the direction follows the last one.
		i := strings.LastIndex(raw, ":")
		if i < 0 {
			continue
		}
		col := raw[:i]
		d := Direction(strings.ToLower(strings.TrimSpace(raw[i+1:])))
		if col == "" || !d.Valid() {
			continue
		}
		q.Sort = append(q.Sort, SortKey{ColumnID: col, Direction: d})
	}

	filterKey := c.key(FilterPrefix)
	for key, values := range v {
		if !strings.HasPrefix(key, filterKey) {
			continue
		}
		col := strings.TrimPrefix(key, filterKey)
		if col == "" {
			continue
		}
		if q.Filters == nil {
			q.Filters = make(map[string][]string)
		}
		q.Filters[col] = append(q.Filters[col], values...)
	}

	// hide wins over show when a column appears in both.
	for _, col := range v[c.key(ParamShow)] {
		if q.ColumnVisibility == nil {
			q.ColumnVisibility = make(map[string]bool)
		}
		q.ColumnVisibility[col] = true
	}
	for _, col := range v[c.key(ParamHide)] {
		if q.ColumnVisibility == nil {
			q.ColumnVisibility = make(map[string]bool)
		}
		q.ColumnVisibility[col] = false
	}

	q.RowSelection = v[c.key(ParamSelect)]

	return q.Normalize()
}

// Apply returns base with every parameter owned by this grid replaced by the
// encoding of q. Parameters that belong to the host page are preserved.
func (c Codec) Apply(base url.Values, q Query) url.Values {
	out := url.Values{}
	for key, values := range base {
		if c.Owns(key) {
			continue
		}
		out[key] = append([]string(nil), values...)
	}
	for key, values := range c.Encode(q) {
		out[key] = values
	}
	return out
}

// DecodeString parses a raw query string such as "page=2&size=50".
// Unparsable input decodes to the defaults.
func (c Codec) DecodeString(raw string) Query {
	v, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil && v == nil {
		return c.Decode(nil)
	}
	return c.Decode(v)
}

func positiveInt(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
