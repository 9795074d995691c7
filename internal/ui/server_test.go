package ui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgrid/internal/store"
	"github.com/leapstack-labs/leapgrid/internal/testutil"
	"github.com/leapstack-labs/leapgrid/internal/ui/features"
)

func setupTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()

	fixture := features.SetupTestFixture(t, features.Transactions(12)...)
	s := NewServer(Config{
		Store:         fixture.Store,
		Port:          0,
		SessionSecret: "test-secret-key-32-bytes-long!!",
		Logger:        testutil.NewTestLogger(t),
	})

	h, err := s.Handler(fixture.Ctx)
	require.NoError(t, err)
	return s, h
}

func TestServer_Routes(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "root redirects", path: "/", wantStatus: http.StatusFound},
		{name: "transactions page", path: "/transactions?size=10", wantStatus: http.StatusOK, wantBody: `data-row="0x11"`},
		{name: "stylesheet", path: "/static/app.css", wantStatus: http.StatusOK, wantBody: ".grid-table"},
		{name: "metrics", path: "/metrics", wantStatus: http.StatusOK, wantBody: "leapgrid_active_views"},
		{name: "unknown view", path: "/transactions/nope/updates", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := setupTestServer(t)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestServer_MetricsCountViews(t *testing.T) {
	s, h := setupTestServer(t)

	for range 2 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transactions", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	scrape := func() string {
		rec := httptest.NewRecorder()
		s.Metrics().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rec.Body.String()
	}
	assert.Contains(t, scrape(), "leapgrid_active_views 2")
	assert.Eventually(t, func() bool {
		return strings.Contains(scrape(), `leapgrid_fetches_total{outcome="committed"} 2`)
	}, time.Second, 10*time.Millisecond)
}

func TestServer_HandlerRequiresStore(t *testing.T) {
	s := NewServer(Config{SessionSecret: "x"})

	_, err := s.Handler(context.Background())

	assert.Error(t, err)
}

func TestServer_WatchLoop(t *testing.T) {
	s := NewServer(Config{Logger: testutil.NewTestLogger(t)})
	changes, unsubscribe := s.Notifier().Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan fsnotify.Event)
	errs := make(chan error)
	done := make(chan struct{})
	go func() {
		_ = s.watchLoop(ctx, events, errs, storeFiles("/data/explorer.db"))
		close(done)
	}()

	// Unrelated files and non-write events are ignored.
	events <- fsnotify.Event{Name: "/data/other.db", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: "/data/explorer.db", Op: fsnotify.Chmod}
	select {
	case c := <-changes:
		t.Fatalf("unexpected change from %s", c.Source)
	case <-time.After(200 * time.Millisecond):
	}

	// A burst of writes collapses into one change.
	events <- fsnotify.Event{Name: "/data/explorer.db", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: "/data/explorer.db-wal", Op: fsnotify.Write}
	select {
	case c := <-changes:
		assert.Equal(t, "/data/explorer.db-wal", c.Source)
	case <-time.After(time.Second):
		t.Fatal("write did not publish a change")
	}
	assert.Equal(t, uint64(1), s.Notifier().Published())

	cancel()
	<-done
}

func TestServer_WatchSkipsMemoryStore(t *testing.T) {
	fixture := features.SetupTestFixture(t)
	s := NewServer(Config{Store: fixture.Store, Watch: true})

	assert.NoError(t, s.watchStore(context.Background()), "in-memory stores return immediately")
	assert.Equal(t, store.DriverSQLite, fixture.Store.Driver())
}
