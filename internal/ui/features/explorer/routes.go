package explorer

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes registers the transaction grid routes. Views live until ctx
// is cancelled.
func SetupRoutes(ctx context.Context, router chi.Router, cfg Config) error {
	handlers := NewHandlers(ctx, cfg)
	if cfg.Notifier != nil {
		go handlers.registry.run(ctx, cfg.Notifier)
	}

	handlers.mount(router)
	return nil
}

func (h *Handlers) mount(router chi.Router) {
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, BasePath, http.StatusFound)
	})

	router.Get(BasePath, h.TransactionsPage)
	router.Route(BasePath+"/{view}", func(r chi.Router) {
		r.Get("/updates", h.Updates)
		r.Post("/page/{page}", h.GotoPage)
		r.Post("/size", h.SetPageSize)
		r.Post("/sort/{column}", h.ToggleSort)
		r.Post("/filter/{column}", h.ToggleFilter)
		r.Post("/filters/clear", h.ClearFilters)
		r.Post("/columns/{column}/toggle", h.ToggleColumn)
		r.Post("/rows/toggle-page", h.TogglePageRows)
		r.Post("/rows/{row}/toggle", h.ToggleRow)
		r.Post("/selection/clear", h.ClearSelection)
		r.Post("/retry", h.Retry)
		r.Post("/location", h.ReportLocation)
	})
}
