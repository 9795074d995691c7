package grid_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgrid/internal/navigation"
	"github.com/leapstack-labs/leapgrid/internal/testutil"
	"github.com/leapstack-labs/leapgrid/pkg/grid"
)

type row struct {
	ID     string
	Status string
}

// fetchCall is one blocked fetch; the test resolves it by sending on done.
type fetchCall struct {
	query grid.Query
	done  chan fetchResult
}

type fetchResult struct {
	page grid.RowPage[row]
	err  error
}

func (c *fetchCall) resolve() {
	c.done <- fetchResult{page: pageFor(c.query)}
}

func (c *fetchCall) fail(err error) {
	c.done <- fetchResult{err: err}
}

type source struct {
	calls chan *fetchCall
}

func newSource() *source {
	return &source{calls: make(chan *fetchCall, 16)}
}

func (s *source) fetch(_ context.Context, q grid.Query) (grid.RowPage[row], error) {
	c := &fetchCall{query: q, done: make(chan fetchResult, 1)}
	s.calls <- c
	r := <-c.done
	return r.page, r.err
}

// take waits for n fetches and returns them ordered by page index.
func (s *source) take(t *testing.T, n int) []*fetchCall {
	t.Helper()
	var out []*fetchCall
	for range n {
		select {
		case c := <-s.calls:
			out = append(out, c)
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d fetches, got %d", n, len(out))
		}
	}
	slices.SortFunc(out, func(a, b *fetchCall) int {
		return a.query.PageIndex - b.query.PageIndex
	})
	return out
}

func (s *source) next(t *testing.T) *fetchCall {
	t.Helper()
	return s.take(t, 1)[0]
}

// pageFor returns three rows whose ids encode the page number.
func pageFor(q grid.Query) grid.RowPage[row] {
	page := grid.RowPage[row]{Total: 100}
	for i := range 3 {
		page.Rows = append(page.Rows, row{
			ID:     fmt.Sprintf("p%d-%d", q.PageIndex+1, i),
			Status: "success",
		})
	}
	return page
}

type recorder struct {
	mu     sync.Mutex
	events []grid.FetchEvent
}

func (r *recorder) observe(ev grid.FetchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(o grid.FetchOutcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Outcome == o {
			n++
		}
	}
	return n
}

var testColumns = []grid.Column[row]{
	{ID: "id", Value: func(r row) string { return r.ID }, Sortable: true},
	{ID: "status", Value: func(r row) string { return r.Status }, Filterable: true, Hideable: true},
}

type harness struct {
	state *grid.State[row]
	src   *source
	rec   *recorder
}

func newHarness(t *testing.T, nav grid.Navigator) *harness {
	t.Helper()
	h := &harness{src: newSource(), rec: &recorder{}}
	st, err := grid.New(grid.Options[row]{
		Codec:     grid.NewCodec(grid.StandardDefaults()),
		Navigator: nav,
		Fetch:     h.src.fetch,
		Columns:   testColumns,
		RowID:     func(r row) string { return r.ID },
		Logger:    testutil.NewTestLogger(t),
		Observer:  h.rec.observe,
	})
	require.NoError(t, err)
	h.state = st
	t.Cleanup(st.Unmount)
	return h
}

func (h *harness) mount(t *testing.T) {
	t.Helper()
	require.NoError(t, h.state.Mount(context.Background()))
}

func (h *harness) waitStatus(t *testing.T, want grid.Status) grid.ViewModel[row] {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.state.View().Status == want
	}, 2*time.Second, 5*time.Millisecond, "status never became %s", want)
	return h.state.View()
}

func rowIDs(vm grid.ViewModel[row]) []string {
	var ids []string
	for _, r := range vm.Rows {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := grid.New(grid.Options[row]{})
	assert.Error(t, err)
}

func TestState_DefaultMount(t *testing.T) {
	nav := navigation.New("/transactions", nil)
	h := newHarness(t, nav)

	h.mount(t)

	q := h.state.Query()
	assert.True(t, q.Equal(grid.Query{PageIndex: 0, PageSize: 20}))
	assert.Equal(t, "page=1&size=20", h.state.Codec().Encode(q).Encode())
	assert.Equal(t, grid.StatusLoading, h.state.View().Status)

	call := h.src.next(t)
	assert.True(t, call.query.Equal(q))
	call.resolve()

	vm := h.waitStatus(t, grid.StatusReady)
	assert.Equal(t, []string{"p1-0", "p1-1", "p1-2"}, rowIDs(vm))
	assert.Equal(t, 100, vm.Total)
	assert.Equal(t, 5, vm.PageCount)
	assert.Equal(t, 1, nav.Len(), "mounting does not navigate")
}

func TestState_MountDecodesLocation(t *testing.T) {
	nav := navigation.Parse("/transactions?page=3&size=10&sort=batch:desc&f.status=failed")
	h := newHarness(t, nav)

	h.mount(t)

	call := h.src.next(t)
	assert.Equal(t, 2, call.query.PageIndex)
	assert.Equal(t, 10, call.query.PageSize)
	assert.Equal(t, []grid.SortKey{{ColumnID: "batch", Direction: grid.Desc}}, call.query.Sort)
	assert.Equal(t, []string{"failed"}, call.query.Filters["status"])
}

func TestState_IntentRoundTripsThroughNavigator(t *testing.T) {
	nav := navigation.Parse("/transactions?tab=txs&page=3&size=10")
	h := newHarness(t, nav)
	h.mount(t)
	h.src.next(t).resolve()
	h.waitStatus(t, grid.StatusReady)

	var changes []grid.Query
	h.state.OnQueryChanged(func(q grid.Query) { changes = append(changes, q) })

	require.NoError(t, h.state.ApplyIntent(grid.SetFilter("status", "failed")))

	params := nav.CurrentParameters()
	assert.Equal(t, "txs", params.Get("tab"), "host parameters are preserved")
	assert.Equal(t, "1", params.Get("page"), "filter change resets to the first page")
	assert.Equal(t, "10", params.Get("size"))
	assert.Equal(t, "failed", params.Get("f.status"))
	assert.Equal(t, 2, nav.Len())

	require.Len(t, changes, 1)
	assert.Equal(t, 0, changes[0].PageIndex)

	call := h.src.next(t)
	assert.Equal(t, []string{"failed"}, call.query.Filters["status"])
}

func TestState_ApplyExternalQueryIsIdempotent(t *testing.T) {
	nav := navigation.New("/", nil)
	h := newHarness(t, nav)
	h.mount(t)
	h.src.next(t).resolve()
	h.waitStatus(t, grid.StatusReady)

	changes := 0
	h.state.OnQueryChanged(func(grid.Query) { changes++ })

	nav.Navigate(url.Values{"page": {"3"}, "size": {"20"}})
	nav.Reload()
	nav.Navigate(url.Values{"size": {"20"}, "page": {"3"}})
	h.state.ApplyExternalQuery(h.state.Query())

	assert.Equal(t, 2, h.state.Query().PageIndex)

	assert.Equal(t, 1, changes)
	assert.Equal(t, 2, h.rec.count(grid.FetchIssued), "mount plus one change")
	h.src.next(t).resolve()
	h.waitStatus(t, grid.StatusReady)
}

func TestState_StaleFetchDiscarded(t *testing.T) {
	tests := []struct {
		name        string
		newestFirst bool
	}{
		{"newest resolves first", true},
		{"oldest resolves first", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nav := navigation.New("/", nil)
			h := newHarness(t, nav)
			h.mount(t)
			h.src.next(t).resolve()
			h.waitStatus(t, grid.StatusReady)

			require.NoError(t, h.state.ApplyIntent(grid.GotoPage(1)))
			require.NoError(t, h.state.ApplyIntent(grid.GotoPage(2)))
			calls := h.src.take(t, 2)
			older, newer := calls[0], calls[1]
			require.Equal(t, 1, older.query.PageIndex)
			require.Equal(t, 2, newer.query.PageIndex)

			if tt.newestFirst {
				newer.resolve()
				h.waitStatus(t, grid.StatusReady)
				older.resolve()
				require.Eventually(t, func() bool {
					return h.rec.count(grid.FetchDiscarded) == 1
				}, 2*time.Second, 5*time.Millisecond)
			} else {
				older.resolve()
				require.Eventually(t, func() bool {
					return h.rec.count(grid.FetchDiscarded) == 1
				}, 2*time.Second, 5*time.Millisecond)
				vm := h.state.View()
				assert.Equal(t, grid.StatusLoading, vm.Status, "stale result must not clear loading")
				assert.Equal(t, []string{"p1-0", "p1-1", "p1-2"}, rowIDs(vm), "stale rows are never shown")
				newer.resolve()
				h.waitStatus(t, grid.StatusReady)
			}

			vm := h.state.View()
			assert.Equal(t, []string{"p3-0", "p3-1", "p3-2"}, rowIDs(vm))
			assert.Equal(t, 3, vm.Page)
			assert.False(t, vm.Loading)
		})
	}
}

func TestState_SelectionPersistsAcrossPages(t *testing.T) {
	nav := navigation.New("/", nil)
	h := newHarness(t, nav)
	h.mount(t)
	h.src.next(t).resolve()
	h.waitStatus(t, grid.StatusReady)

	require.NoError(t, h.state.ApplyIntent(grid.SelectRows("p1-1")))
	vm := h.state.View()
	assert.True(t, vm.Rows[1].Selected)
	assert.Equal(t, 1, h.rec.count(grid.FetchIssued), "selection does not refetch")

	require.NoError(t, h.state.ApplyIntent(grid.GotoPage(1)))
	h.src.next(t).resolve()
	vm = h.waitStatus(t, grid.StatusReady)
	assert.Equal(t, "p2-0", vm.Rows[0].ID)
	for _, r := range vm.Rows {
		assert.False(t, r.Selected)
	}
	assert.Equal(t, 1, vm.SelectedCount)

	require.True(t, nav.Back())
	h.src.next(t).resolve()
	vm = h.waitStatus(t, grid.StatusReady)
	assert.Equal(t, "p1-1", vm.Rows[1].ID)
	assert.True(t, vm.Rows[1].Selected)
}

func TestState_VisibilityDoesNotRefetch(t *testing.T) {
	nav := navigation.New("/", nil)
	h := newHarness(t, nav)
	h.mount(t)
	h.src.next(t).resolve()
	h.waitStatus(t, grid.StatusReady)

	require.NoError(t, h.state.ApplyIntent(grid.SetColumnVisible("status", false)))

	vm := h.state.View()
	assert.Equal(t, 1, h.rec.count(grid.FetchIssued))
	require.Len(t, vm.Headers, 1)
	assert.Equal(t, "id", vm.Headers[0].ID)
	assert.Equal(t, "status", nav.CurrentParameters().Get("hide"))
}

func TestState_BackNavigationRefetches(t *testing.T) {
	nav := navigation.New("/", nil)
	h := newHarness(t, nav)
	h.mount(t)
	h.src.next(t).resolve()
	h.waitStatus(t, grid.StatusReady)

	require.NoError(t, h.state.ApplyIntent(grid.ToggleSort("id", false)))
	h.src.next(t).resolve()
	h.waitStatus(t, grid.StatusReady)
	require.Len(t, h.state.Query().Sort, 1)

	require.True(t, nav.Back())
	assert.Empty(t, h.state.Query().Sort)
	call := h.src.next(t)
	assert.Empty(t, call.query.Sort)

	require.True(t, nav.Forward())
	assert.Len(t, h.state.Query().Sort, 1)
}

// deferredNavigator delivers location changes only when flushed, like a
// browser router that updates asynchronously.
type deferredNavigator struct {
	mu       sync.Mutex
	current  url.Values
	queue    []url.Values
	listener func(url.Values)
}

func (n *deferredNavigator) CurrentParameters() url.Values {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *deferredNavigator) Navigate(params url.Values) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queue = append(n.queue, params)
}

func (n *deferredNavigator) Subscribe(fn func(url.Values)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listener = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.listener = nil
	}
}

func (n *deferredNavigator) flush() {
	n.mu.Lock()
	queue := n.queue
	n.queue = nil
	fn := n.listener
	n.mu.Unlock()

	for _, params := range queue {
		n.mu.Lock()
		n.current = params
		n.mu.Unlock()
		if fn != nil {
			fn(params)
		}
	}
}

func TestState_IntentsMergeOntoPendingNavigation(t *testing.T) {
	nav := &deferredNavigator{current: url.Values{}}
	h := newHarness(t, nav)
	h.mount(t)
	h.src.next(t).resolve()
	h.waitStatus(t, grid.StatusReady)

	require.NoError(t, h.state.ApplyIntent(grid.SetFilter("status", "failed")))
	require.NoError(t, h.state.ApplyIntent(grid.SetPageSize(50)))

	assert.Equal(t, 20, h.state.Query().PageSize, "query changes only after the round trip")
	require.Len(t, nav.queue, 2)
	second := nav.queue[1]
	assert.Equal(t, "failed", second.Get("f.status"), "second intent builds on the first")
	assert.Equal(t, "50", second.Get("size"))

	nav.flush()

	q := h.state.Query()
	assert.Equal(t, 50, q.PageSize)
	assert.Equal(t, []string{"failed"}, q.Filters["status"])
}

func TestState_FailureAndRetry(t *testing.T) {
	nav := navigation.New("/", nil)
	h := newHarness(t, nav)
	h.mount(t)

	h.src.next(t).fail(errors.New("connection refused"))
	vm := h.waitStatus(t, grid.StatusFailed)
	require.Error(t, vm.Err)
	assert.Contains(t, vm.Err.Error(), "connection refused")
	assert.Empty(t, vm.Rows)

	require.NoError(t, h.state.Retry())
	assert.Equal(t, grid.StatusLoading, h.state.View().Status)
	h.src.next(t).resolve()
	vm = h.waitStatus(t, grid.StatusReady)
	assert.NoError(t, vm.Err)
	assert.Equal(t, 1, h.rec.count(grid.FetchFailed))
	assert.Equal(t, 1, h.rec.count(grid.FetchCommitted))
}

func TestState_EmptyResultIsNotFailure(t *testing.T) {
	nav := navigation.New("/", nil)
	h := newHarness(t, nav)
	h.mount(t)

	h.src.next(t).done <- fetchResult{page: grid.RowPage[row]{Total: 0}}

	vm := h.waitStatus(t, grid.StatusEmpty)
	assert.NoError(t, vm.Err)
	assert.False(t, vm.OutOfRange)
}

func TestState_Unmount(t *testing.T) {
	nav := navigation.New("/", nil)
	h := newHarness(t, nav)
	h.mount(t)
	call := h.src.next(t)

	h.state.Unmount()
	call.resolve()

	require.Eventually(t, func() bool {
		return h.rec.count(grid.FetchDiscarded) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, h.state.View().Rows)

	nav.Navigate(url.Values{"page": {"4"}})
	assert.Equal(t, 0, h.state.Query().PageIndex, "unmounted state ignores navigation")
	assert.ErrorIs(t, h.state.ApplyIntent(grid.GotoPage(1)), grid.ErrNotMounted)
	assert.ErrorIs(t, h.state.Retry(), grid.ErrNotMounted)
}

func TestState_OnUpdateUnsubscribe(t *testing.T) {
	nav := navigation.New("/", nil)
	h := newHarness(t, nav)

	var mu sync.Mutex
	updates := 0
	unsub := h.state.OnUpdate(func() {
		mu.Lock()
		updates++
		mu.Unlock()
	})

	h.mount(t)
	h.src.next(t).resolve()
	h.waitStatus(t, grid.StatusReady)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return updates == 2
	}, 2*time.Second, 5*time.Millisecond)

	unsub()
	require.NoError(t, h.state.Refresh())
	h.src.next(t).resolve()
	h.waitStatus(t, grid.StatusReady)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, updates)
}

func TestState_Settle(t *testing.T) {
	nav := navigation.New("/", nil)
	h := newHarness(t, nav)
	h.mount(t)
	call := h.src.next(t)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.state.Settle(short), context.DeadlineExceeded)

	settled := make(chan error, 1)
	go func() { settled <- h.state.Settle(context.Background()) }()
	call.resolve()

	select {
	case err := <-settled:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Settle did not return after the fetch committed")
	}
	assert.Equal(t, grid.StatusReady, h.state.View().Status)
}
