package explorer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgrid/internal/explorer"
	"github.com/leapstack-labs/leapgrid/internal/testutil"
	"github.com/leapstack-labs/leapgrid/internal/ui/features"
	"github.com/leapstack-labs/leapgrid/internal/ui/notifier"
	"github.com/leapstack-labs/leapgrid/pkg/grid"
)

// =============================================================================
// Test Setup Helpers
// =============================================================================

var viewPattern = regexp.MustCompile(`/transactions/([0-9a-f-]{36})/updates`)

type testServer struct {
	t        *testing.T
	handlers *Handlers
	router   chi.Router
	fixture  *features.TestFixture
}

func setupTestServer(t *testing.T, n int, opts ...func(*Config)) *testServer {
	t.Helper()

	fixture := features.SetupTestFixture(t, features.Transactions(n)...)
	cfg := Config{
		Fetch:         fixture.Store.Fetcher(),
		SessionStore:  fixture.SessionStore,
		Notifier:      fixture.Notifier,
		Metrics:       fixture.Metrics,
		SettleTimeout: 2 * time.Second,
		Logger:        testutil.NewTestLogger(t),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := NewHandlers(fixture.Ctx, cfg)
	r := chi.NewMux()
	h.mount(r)

	return &testServer{t: t, handlers: h, router: r, fixture: fixture}
}

func (s *testServer) do(req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// open loads the page at target and returns the body, the session
// cookies and the created view.
func (s *testServer) open(target string) (string, []*http.Cookie, *view) {
	s.t.Helper()

	rec := s.do(httptest.NewRequest(http.MethodGet, target, nil), nil)
	require.Equal(s.t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	m := viewPattern.FindStringSubmatch(body)
	require.Len(s.t, m, 2, "page should reference its update stream")

	s.handlers.registry.mu.Lock()
	v, ok := s.handlers.registry.views[m[1]]
	s.handlers.registry.mu.Unlock()
	require.True(s.t, ok, "page should register its view")
	return body, rec.Result().Cookies(), v
}

func (s *testServer) post(v *view, action string, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(http.MethodPost, BasePath+"/"+v.id+action, nil)
	} else {
		req = httptest.NewRequest(http.MethodPost, BasePath+"/"+v.id+action, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	return s.do(req, cookies)
}

// =============================================================================
// TransactionsPage Tests
// =============================================================================

func TestTransactionsPage(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		wantBody []string
	}{
		{
			name:   "default location shows the newest rows",
			target: "/transactions",
			wantBody: []string{
				"<!doctype html>",
				"<title>Transactions - LeapGrid</title>",
				`data-row="0x24"`,
				"Page 1 of 2",
				"0 of 25 row(s) selected.",
				`<option value="20" selected>`,
			},
		},
		{
			name:   "location decodes into the query",
			target: "/transactions?page=2&size=10&sort=batch:asc",
			wantBody: []string{
				`data-row="0x10"`,
				"Page 2 of 3",
				`aria-sort="ascending"`,
				`<option value="10" selected>`,
			},
		},
		{
			name:   "filtered location",
			target: "/transactions?size=5&f.status=failed",
			wantBody: []string{
				`data-row="0x24"`,
				"Page 1 of 2",
				"Reset</button>",
			},
		},
		{
			name:   "page past the end",
			target: "/transactions?page=9&size=10",
			wantBody: []string{
				"Page 9 is past the last page.",
				"Go to first page",
			},
		},
		{
			name:   "malformed parameters fall back to defaults",
			target: "/transactions?page=abc&size=-3&sort=nope",
			wantBody: []string{
				"Page 1 of 2",
				`data-row="0x24"`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t, 25)

			body, cookies, _ := s.open(tt.target)

			for _, want := range tt.wantBody {
				assert.Contains(t, body, want, "response should contain %q", want)
			}
			assert.NotEmpty(t, cookies, "first visit should set the session cookie")
		})
	}
}

func TestTransactionsPage_EmptyStore(t *testing.T) {
	s := setupTestServer(t, 0)

	body, _, v := s.open("/transactions")

	assert.Contains(t, body, "No results.")
	assert.Equal(t, grid.StatusEmpty, v.state.View().Status)
}

func TestTransactionsPage_FetchFailure(t *testing.T) {
	s := setupTestServer(t, 0, func(cfg *Config) {
		cfg.Fetch = func(context.Context, grid.Query) (grid.RowPage[explorer.Transaction], error) {
			return grid.RowPage[explorer.Transaction]{}, errors.New("database is locked")
		}
	})

	body, _, _ := s.open("/transactions")

	assert.Contains(t, body, "Failed to load transactions: database is locked")
	assert.Contains(t, body, "/retry&#39;)")
}

func TestRootRedirects(t *testing.T) {
	s := setupTestServer(t, 0)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/", nil), nil)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, BasePath, rec.Header().Get("Location"))
}

// =============================================================================
// Action Tests
// =============================================================================

func TestActions(t *testing.T) {
	tests := []struct {
		name       string
		action     string
		wantStatus int
		check      func(t *testing.T, q grid.Query)
	}{
		{
			name:       "goto page",
			action:     "/page/2",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, q grid.Query) {
				assert.Equal(t, 1, q.PageIndex)
			},
		},
		{
			name:       "sort",
			action:     "/sort/batch",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, q grid.Query) {
				assert.Equal(t, []grid.SortKey{{ColumnID: "batch", Direction: grid.Asc}}, q.Sort)
			},
		},
		{
			name:       "filter",
			action:     "/filter/status?value=failed",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, q grid.Query) {
				assert.Equal(t, []string{"failed"}, q.Filters["status"])
			},
		},
		{
			name:       "hide column",
			action:     "/columns/from/toggle",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, q grid.Query) {
				assert.False(t, q.IsVisible("from"))
			},
		},
		{
			name:       "select row",
			action:     "/rows/0x03/toggle",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, q grid.Query) {
				assert.Equal(t, []string{"0x03"}, q.RowSelection)
			},
		},
		{
			name:       "select page",
			action:     "/rows/toggle-page",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, q grid.Query) {
				assert.Len(t, q.RowSelection, 5, "the last page holds five rows")
			},
		},
		{name: "page zero", action: "/page/0", wantStatus: http.StatusBadRequest},
		{name: "sort on unsortable column", action: "/sort/from", wantStatus: http.StatusBadRequest},
		{name: "sort on unknown column", action: "/sort/nope", wantStatus: http.StatusBadRequest},
		{name: "hide fixed column", action: "/columns/hash/toggle", wantStatus: http.StatusBadRequest},
		{name: "filter without value", action: "/filter/status", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t, 25)
			_, cookies, v := s.open("/transactions?page=3&size=10")
			before := v.state.Query()

			rec := s.post(v, tt.action, "", cookies)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.check == nil {
				assert.True(t, before.Equal(v.state.Query()), "rejected actions leave the query alone")
				return
			}
			tt.check(t, v.state.Query())
		})
	}
}

func TestActions_SelectPage(t *testing.T) {
	s := setupTestServer(t, 25)
	_, cookies, v := s.open("/transactions")

	rec := s.post(v, "/rows/toggle-page", "", cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, v.state.Query().RowSelection, 20)
	assert.Contains(t, v.nav.Location(), "sel=")

	rec = s.post(v, "/rows/toggle-page", "", cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, v.state.Query().RowSelection)
}

func TestActions_PushLocation(t *testing.T) {
	s := setupTestServer(t, 25)
	_, cookies, v := s.open("/transactions?tab=all")

	rec := s.post(v, "/page/2", "", cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "/transactions?page=2&size=20&tab=all", v.nav.Location(), "foreign parameters survive")
	assert.Equal(t, 2, v.nav.Len())
	select {
	case loc := <-v.nav.Pushes():
		assert.Equal(t, "/transactions?page=2&size=20&tab=all", loc)
	default:
		t.Fatal("navigation should queue a history push")
	}
}

func TestActions_UnknownView(t *testing.T) {
	s := setupTestServer(t, 5)
	_, cookies, v := s.open("/transactions")

	rec := s.do(httptest.NewRequest(http.MethodPost, BasePath+"/not-a-view/page/2", nil), cookies)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Without the session cookie the view belongs to someone else.
	rec = s.post(v, "/page/2", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetPageSize(t *testing.T) {
	s := setupTestServer(t, 25)
	_, cookies, v := s.open("/transactions?page=3&size=10")

	rec := s.post(v, "/size", `{"pageSize":50}`, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	q := v.state.Query()
	assert.Equal(t, 50, q.PageSize)
	assert.Equal(t, 0, q.PageIndex, "first visible row 20 is on page 0 at size 50")

	// The preference becomes the default of the next page load.
	updated := rec.Result().Cookies()
	require.NotEmpty(t, updated)
	body, _, _ := s.open("/transactions")
	assert.NotContains(t, body, `<option value="50" selected>`, "a new browser keeps the standard size")

	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	page := s.do(req, updated)
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), `<option value="50" selected>`)
}

func TestSetPageSize_Rejected(t *testing.T) {
	s := setupTestServer(t, 25)
	_, cookies, v := s.open("/transactions")

	rec := s.post(v, "/size", `{"pageSize":7}`, cookies)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.post(v, "/size", `not json`, cookies)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, grid.DefaultPageSize, v.state.Query().PageSize)
}

func TestReportLocation(t *testing.T) {
	s := setupTestServer(t, 25)
	_, cookies, v := s.open("/transactions")

	rec := s.post(v, "/location", `{"location":"?page=3&size=10&f.status=failed"}`, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	q := v.state.Query()
	assert.Equal(t, 2, q.PageIndex)
	assert.Equal(t, 10, q.PageSize)
	assert.Equal(t, []string{"failed"}, q.Filters["status"])
	assert.Equal(t, 1, v.nav.Len(), "the browser already moved, nothing is pushed")

	select {
	case loc := <-v.nav.Pushes():
		t.Fatalf("reported location was echoed: %s", loc)
	default:
	}
}

func TestRetry(t *testing.T) {
	var calls atomic.Int32
	s := setupTestServer(t, 0, func(cfg *Config) {
		cfg.Fetch = func(context.Context, grid.Query) (grid.RowPage[explorer.Transaction], error) {
			if calls.Add(1) == 1 {
				return grid.RowPage[explorer.Transaction]{}, errors.New("timeout")
			}
			return grid.RowPage[explorer.Transaction]{Rows: features.Transactions(1), Total: 1}, nil
		}
	})
	_, cookies, v := s.open("/transactions")
	require.Equal(t, grid.StatusFailed, v.state.View().Status)

	rec := s.post(v, "/retry", "", cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		return v.state.View().Status == grid.StatusReady
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

// =============================================================================
// Updates Tests - SSE stream per view
// =============================================================================

func TestUpdates_SendsGridAndHistoryPush(t *testing.T) {
	s := setupTestServer(t, 25)
	_, cookies, v := s.open("/transactions")

	req := httptest.NewRequest(http.MethodGet, BasePath+"/"+v.id+"/updates", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	ctx, cancel := context.WithTimeout(req.Context(), 300*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		s.router.ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	post := s.post(v, "/page/2", "", cookies)
	require.Equal(t, http.StatusOK, post.Code)

	<-done

	body := rec.Body.String()
	assert.GreaterOrEqual(t, strings.Count(body, "event:"), 3, "initial grid, push and at least one update")
	assert.Contains(t, body, `id="grid"`)
	assert.Contains(t, body, "history.pushState")
	assert.Contains(t, body, "page=2")
	assert.Contains(t, body, "Page 2 of 2")
}

func TestUpdates_DetachedStreamAllowsSweep(t *testing.T) {
	s := setupTestServer(t, 5)
	_, cookies, v := s.open("/transactions")

	req := httptest.NewRequest(http.MethodGet, BasePath+"/"+v.id+"/updates", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	ctx, cancel := context.WithTimeout(req.Context(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.router.ServeHTTP(httptest.NewRecorder(), req.WithContext(ctx))
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	future := time.Now().Add(time.Hour)
	assert.Equal(t, 0, s.handlers.registry.sweep(future), "a view with a stream is never swept")

	<-done
	assert.Equal(t, 1, s.handlers.registry.sweep(future))
	assert.Equal(t, 0, s.handlers.registry.count())
}

// =============================================================================
// Registry Tests
// =============================================================================

func TestRegistry_RefreshOnStoreChange(t *testing.T) {
	s := setupTestServer(t, 5)
	_, _, v := s.open("/transactions")
	require.Equal(t, 5, v.state.View().Total)

	go s.handlers.registry.run(s.fixture.Ctx, s.fixture.Notifier)
	require.Eventually(t, func() bool {
		return s.fixture.Notifier.Listeners() == 1
	}, time.Second, 5*time.Millisecond)

	extra := features.Transactions(8)[5:]
	_, err := s.fixture.Store.Insert(s.fixture.Ctx, extra)
	require.NoError(t, err)
	s.fixture.Notifier.Publish(notifier.Change{Source: "test"})

	require.Eventually(t, func() bool {
		return v.state.View().Total == 8
	}, time.Second, 10*time.Millisecond)
}

func TestRegistry_CloseOnShutdown(t *testing.T) {
	s := setupTestServer(t, 5)
	s.open("/transactions")
	s.open("/transactions?page=2")
	require.Equal(t, 2, s.handlers.registry.count())

	ctx, cancel := context.WithCancel(s.fixture.Ctx)
	done := make(chan struct{})
	go func() {
		s.handlers.registry.run(ctx, s.fixture.Notifier)
		close(done)
	}()
	cancel()
	<-done

	assert.Equal(t, 0, s.handlers.registry.count())
}

func TestPushStateScript(t *testing.T) {
	got := pushStateScript(`/transactions?page=2&x="y"`)
	assert.Equal(t, `history.pushState(null, '', "/transactions?page=2&x=\"y\"")`, got)
}
