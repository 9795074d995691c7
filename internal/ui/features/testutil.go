// Package features provides shared test utilities for UI feature tests.
package features

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgrid/internal/explorer"
	"github.com/leapstack-labs/leapgrid/internal/store"
	"github.com/leapstack-labs/leapgrid/internal/testutil"
	"github.com/leapstack-labs/leapgrid/internal/ui/metrics"
	"github.com/leapstack-labs/leapgrid/internal/ui/notifier"
)

// FixtureStart is the timestamp of the oldest fixture transaction.
var FixtureStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// TestFixture holds all dependencies needed for UI handler tests.
type TestFixture struct {
	Store        *store.Store
	Notifier     *notifier.Notifier
	Metrics      *metrics.Metrics
	SessionStore *sessions.CookieStore
	// Ctx is cancelled when the test ends.
	Ctx context.Context
}

// SetupTestFixture creates an in-memory store holding txs, plus a notifier,
// metrics and a session store.
func SetupTestFixture(t *testing.T, txs ...explorer.Transaction) *TestFixture {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s, err := store.Open(ctx, store.Config{
		Driver: store.DriverSQLite,
		Path:   ":memory:",
		Logger: testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))
	if len(txs) > 0 {
		_, err = s.Insert(ctx, txs)
		require.NoError(t, err)
	}

	return &TestFixture{
		Store:        s,
		Notifier:     notifier.New(),
		Metrics:      metrics.New(),
		SessionStore: NewTestSessionStore(),
		Ctx:          ctx,
	}
}

// Transactions returns n transactions with hashes 0x00, 0x01, ... one
// minute apart. Every third is failed.
func Transactions(n int) []explorer.Transaction {
	txs := make([]explorer.Transaction, n)
	for i := range txs {
		status := explorer.StatusSuccess
		if i%3 == 0 {
			status = explorer.StatusFailed
		}
		txs[i] = explorer.Transaction{
			Hash:        fmt.Sprintf("0x%02d", i),
			BatchHeight: int64(i/5 + 1),
			From:        "0xfrom",
			To:          "0xto",
			Type:        explorer.TxTransfer,
			Status:      status,
			Value:       int64(i) * 1_000_000_000,
			Fee:         21_000,
			Timestamp:   FixtureStart.Add(time.Duration(i) * time.Minute),
		}
	}
	return txs
}

// RequestWithPathParams wraps a request with chi URL params given as
// key/value pairs.
func RequestWithPathParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// NewTestSessionStore creates a session store for testing.
func NewTestSessionStore() *sessions.CookieStore {
	return sessions.NewCookieStore([]byte("test-secret-key-32-bytes-long!!"))
}
