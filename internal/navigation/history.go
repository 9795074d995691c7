// Package navigation provides an in-memory browser history that grids can
// navigate. The terminal browser, the shell and tests use it in place of a
// real browser location.
package navigation

import (
	"net/url"
	"sync"
)

// History is a stack of locations with a cursor, like a browser tab.
// Subscribers are called synchronously, without the lock held, whenever
// the current location changes.
type History struct {
	mu        sync.Mutex
	path      string
	entries   []url.Values
	index     int
	listeners map[int]func(url.Values)
	nextID    int
}

// New returns a history whose single entry is path?initial.
func New(path string, initial url.Values) *History {
	return &History{
		path:      path,
		entries:   []url.Values{clone(initial)},
		listeners: make(map[int]func(url.Values)),
	}
}

// Parse returns a history for a location such as "/transactions?page=2".
// Malformed query strings yield an empty parameter set.
func Parse(location string) *History {
	u, err := url.Parse(location)
	if err != nil {
		return New(location, nil)
	}
	return New(u.Path, u.Query())
}

// CurrentParameters returns a copy of the current parameters.
func (h *History) CurrentParameters() url.Values {
	h.mu.Lock()
	defer h.mu.Unlock()
	return clone(h.entries[h.index])
}

// Location returns the current location as path?query.
func (h *History) Location() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries[h.index]) == 0 {
		return h.path
	}
	return h.path + "?" + h.entries[h.index].Encode()
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Navigate pushes params as a new entry and drops any forward entries.
// Navigating to the current location notifies without pushing.
func (h *History) Navigate(params url.Values) {
	h.mu.Lock()
	if params.Encode() != h.entries[h.index].Encode() {
		h.entries = append(h.entries[:h.index+1], clone(params))
		h.index++
	}
	h.mu.Unlock()
	h.notify()
}

// Replace overwrites the current entry.
func (h *History) Replace(params url.Values) {
	h.mu.Lock()
	h.entries[h.index] = clone(params)
	h.mu.Unlock()
	h.notify()
}

// Back moves to the previous entry. It reports false at the first entry.
func (h *History) Back() bool {
	return h.move(-1)
}

// Forward moves to the next entry. It reports false at the last entry.
func (h *History) Forward() bool {
	return h.move(1)
}

// Reload notifies subscribers of the current location again.
func (h *History) Reload() {
	h.notify()
}

// Subscribe registers fn for location changes.
func (h *History) Subscribe(fn func(url.Values)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners, id)
	}
}

func (h *History) move(delta int) bool {
	h.mu.Lock()
	i := h.index + delta
	if i < 0 || i >= len(h.entries) {
		h.mu.Unlock()
		return false
	}
	h.index = i
	h.mu.Unlock()
	h.notify()
	return true
}

func (h *History) notify() {
	h.mu.Lock()
	params := h.entries[h.index]
	fns := make([]func(url.Values), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(clone(params))
	}
}

func clone(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
