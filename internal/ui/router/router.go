// Package router sets up HTTP routes for the UI server.
package router

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	explorerFeature "github.com/leapstack-labs/leapgrid/internal/ui/features/explorer"
	"github.com/leapstack-labs/leapgrid/internal/ui/metrics"
	"github.com/leapstack-labs/leapgrid/internal/ui/resources"
)

// SetupRoutes configures all routes for the UI server. Long-lived state
// created by the features stops when ctx is cancelled.
func SetupRoutes(
	ctx context.Context,
	router chi.Router,
	explorerCfg explorerFeature.Config,
	m *metrics.Metrics,
	isDev bool,
) error {
	// Hot reload endpoint for dev mode
	if isDev {
		setupReload(router)
	}

	router.Handle("/static/*", resources.Handler())
	if m != nil {
		router.Handle("/metrics", m.Handler())
	}

	explorerCfg.IsDev = isDev
	explorerCfg.Metrics = m
	return explorerFeature.SetupRoutes(ctx, router, explorerCfg)
}

func setupReload(router chi.Router) {
	reloadChan := make(chan struct{}, 1)
	var hotReloadOnce sync.Once

	router.Get("/reload", func(w http.ResponseWriter, r *http.Request) {
		sse := datastar.NewSSE(w, r)
		reload := func() { _ = sse.ExecuteScript("window.location.reload()") }
		hotReloadOnce.Do(reload)
		select {
		case <-reloadChan:
			reload()
		case <-r.Context().Done():
		}
	})

	router.Get("/hotreload", func(w http.ResponseWriter, _ *http.Request) {
		select {
		case reloadChan <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}
