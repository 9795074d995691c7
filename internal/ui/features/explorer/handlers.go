// Package explorer serves the transaction grid. Each page load creates a
// server-side view whose grid state follows the browser tab's location;
// actions post intents to the view and an SSE stream pushes the rendered
// grid and history updates back.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/leapgrid/internal/explorer"
	"github.com/leapstack-labs/leapgrid/internal/ui/features/explorer/components"
	"github.com/leapstack-labs/leapgrid/internal/ui/metrics"
	"github.com/leapstack-labs/leapgrid/internal/ui/notifier"
	"github.com/leapstack-labs/leapgrid/pkg/grid"
)

const (
	// BasePath is where the transactions page lives.
	BasePath = "/transactions"

	sessionName    = "leapgrid"
	keyBrowser     = "browser"
	keyPageSize    = "page_size"
	defaultSettle  = 500 * time.Millisecond
	defaultViewTTL = 10 * time.Minute
)

// DefaultPageSizes are the choices of the rows-per-page menu.
var DefaultPageSizes = []int{10, 20, 30, 40, 50}

// Config configures the explorer feature.
type Config struct {
	Fetch        grid.Fetcher[explorer.Transaction]
	Columns      []grid.Column[explorer.Transaction]
	SessionStore sessions.Store
	Notifier     *notifier.Notifier
	Metrics      *metrics.Metrics

	Defaults  grid.Defaults
	PageSizes []int
	// Prefix namespaces the grid's query parameters.
	Prefix string

	// ViewTTL is how long a view without a connected stream survives.
	ViewTTL time.Duration
	// SettleTimeout bounds how long the page render waits for the first
	// fetch before rendering the loading state.
	SettleTimeout time.Duration

	IsDev  bool
	Logger *slog.Logger
}

// Handlers provides HTTP handlers for the explorer feature.
type Handlers struct {
	cfg      Config
	registry *registry
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance. Views are mounted on ctx
// and stop when it is cancelled.
func NewHandlers(ctx context.Context, cfg Config) *Handlers {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Columns == nil {
		cfg.Columns = explorer.Columns(time.Now)
	}
	if len(cfg.PageSizes) == 0 {
		cfg.PageSizes = DefaultPageSizes
	}
	if cfg.Defaults.PageSize <= 0 {
		cfg.Defaults = grid.StandardDefaults()
	}
	if cfg.ViewTTL <= 0 {
		cfg.ViewTTL = defaultViewTTL
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = defaultSettle
	}

	return &Handlers{
		cfg:    cfg,
		logger: cfg.Logger,
		registry: newRegistry(ctx, registryConfig{
			Path:    BasePath,
			Fetch:   cfg.Fetch,
			Columns: cfg.Columns,
			Prefix:  cfg.Prefix,
			TTL:     cfg.ViewTTL,
			Metrics: cfg.Metrics,
			Logger:  cfg.Logger,
		}),
	}
}

// TransactionsPage creates a view for the requested location and renders
// the full page.
func (h *Handlers) TransactionsPage(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	owner, err := h.browserID(w, r, sess)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	defaults := h.cfg.Defaults
	if size, ok := sess.Values[keyPageSize].(int); ok && slices.Contains(h.cfg.PageSizes, size) {
		defaults.PageSize = size
	}

	v, err := h.registry.create(owner, r.URL.Query(), defaults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	awaitSettled(r.Context(), v.state, h.cfg.SettleTimeout)

	page := components.PageData{
		Title: "Transactions",
		IsDev: h.cfg.IsDev,
		Grid:  h.gridData(v),
	}
	if err := components.Page(page).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Updates is the long-lived SSE stream of a view. It sends the grid on
// connect and after every state change, and pushes locations the browser
// should add to its history.
func (h *Handlers) Updates(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}
	detach := v.attach()
	defer detach()

	updates := make(chan struct{}, 1)
	unsubscribe := v.state.OnUpdate(func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	sse := datastar.NewSSE(w, r)
	if err := sse.PatchElementTempl(components.Grid(h.gridData(v))); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			if err := sse.PatchElementTempl(components.Grid(h.gridData(v))); err != nil {
				_ = sse.ConsoleError(err)
			}
		case loc := <-v.nav.Pushes():
			if err := sse.ExecuteScript(pushStateScript(loc)); err != nil {
				_ = sse.ConsoleError(err)
			}
		}
	}
}

// GotoPage navigates to the 1-based page in the path.
func (h *Handlers) GotoPage(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(*view) (grid.Intent, error) {
		n, err := strconv.Atoi(chi.URLParam(r, "page"))
		if err != nil || n < 1 {
			return grid.Intent{}, fmt.Errorf("invalid page %q", chi.URLParam(r, "page"))
		}
		return grid.GotoPage(n - 1), nil
	})
}

// PageSizeSignals are the signals posted by the rows-per-page menu.
type PageSizeSignals struct {
	PageSize int `json:"pageSize"`
}

// SetPageSize changes the page size and remembers it for the session.
func (h *Handlers) SetPageSize(w http.ResponseWriter, r *http.Request) {
	// Read signals BEFORE creating SSE (SSE consumes the request body)
	var signals PageSizeSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		http.Error(w, "failed to read signals: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !slices.Contains(h.cfg.PageSizes, signals.PageSize) {
		http.Error(w, fmt.Sprintf("unsupported page size %d", signals.PageSize), http.StatusBadRequest)
		return
	}

	// The cookie must be written before the SSE response starts.
	sess := h.session(r)
	sess.Values[keyPageSize] = signals.PageSize
	if err := sess.Save(r, w); err != nil {
		h.logger.Warn("failed to save session", "error", err)
	}

	h.apply(w, r, func(*view) (grid.Intent, error) {
		return grid.SetPageSize(signals.PageSize), nil
	})
}

// ToggleSort cycles the sort of a column. ?multi=1 keeps the other keys.
func (h *Handlers) ToggleSort(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(*view) (grid.Intent, error) {
		col, err := h.column(chi.URLParam(r, "column"), func(c grid.Column[explorer.Transaction]) bool {
			return c.Sortable
		})
		if err != nil {
			return grid.Intent{}, err
		}
		return grid.ToggleSort(col, r.URL.Query().Get("multi") == "1"), nil
	})
}

// ToggleFilter adds or removes ?value= from a column filter.
func (h *Handlers) ToggleFilter(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(*view) (grid.Intent, error) {
		col, err := h.column(chi.URLParam(r, "column"), func(c grid.Column[explorer.Transaction]) bool {
			return c.Filterable
		})
		if err != nil {
			return grid.Intent{}, err
		}
		value := r.URL.Query().Get("value")
		if value == "" {
			return grid.Intent{}, errors.New("missing filter value")
		}
		return grid.ToggleFilter(col, value), nil
	})
}

// ClearFilters removes every column filter.
func (h *Handlers) ClearFilters(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(*view) (grid.Intent, error) {
		return grid.ClearFilters(), nil
	})
}

// ToggleColumn shows or hides a hideable column.
func (h *Handlers) ToggleColumn(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(v *view) (grid.Intent, error) {
		col, err := h.column(chi.URLParam(r, "column"), func(c grid.Column[explorer.Transaction]) bool {
			return c.Hideable
		})
		if err != nil {
			return grid.Intent{}, err
		}
		return grid.SetColumnVisible(col, !v.state.Query().IsVisible(col)), nil
	})
}

// ToggleRow flips the selection of one row.
func (h *Handlers) ToggleRow(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(*view) (grid.Intent, error) {
		return grid.ToggleRows(chi.URLParam(r, "row")), nil
	})
}

// TogglePageRows selects every row of the current page, or deselects them
// all when they are already selected.
func (h *Handlers) TogglePageRows(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(v *view) (grid.Intent, error) {
		vm := v.state.View()
		ids := make([]string, 0, len(vm.Rows))
		for _, row := range vm.Rows {
			ids = append(ids, row.ID)
		}
		if vm.PageAllSelected {
			return grid.DeselectRows(ids...), nil
		}
		return grid.SelectRows(ids...), nil
	})
}

// ClearSelection deselects every row.
func (h *Handlers) ClearSelection(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(*view) (grid.Intent, error) {
		return grid.ClearSelection(), nil
	})
}

// Retry re-issues the fetch for the current query.
func (h *Handlers) Retry(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}
	sse := datastar.NewSSE(w, r)
	if err := v.state.Retry(); err != nil {
		_ = sse.ConsoleError(err)
	}
}

// LocationSignals carry the browser's location after back/forward.
type LocationSignals struct {
	Location string `json:"location"`
}

// ReportLocation applies a location the browser moved to on its own.
func (h *Handlers) ReportLocation(w http.ResponseWriter, r *http.Request) {
	var signals LocationSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		http.Error(w, "failed to read signals: "+err.Error(), http.StatusBadRequest)
		return
	}
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := v.nav.Report(signals.Location); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.Navigated("history")
	}
	datastar.NewSSE(w, r)
}

// apply resolves the view, builds an intent and applies it. Errors
// building the intent are client errors.
func (h *Handlers) apply(w http.ResponseWriter, r *http.Request, build func(*view) (grid.Intent, error)) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}
	in, err := build(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sse := datastar.NewSSE(w, r)
	if err := v.state.ApplyIntent(in); err != nil {
		_ = sse.ConsoleError(err)
		return
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.Navigated("intent")
	}
}

// lookup returns the view named in the path, writing 404 when the view
// does not exist or belongs to another browser.
func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (*view, bool) {
	owner, _ := h.session(r).Values[keyBrowser].(string)
	v, err := h.registry.get(chi.URLParam(r, "view"), owner)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return v, true
}

func (h *Handlers) session(r *http.Request) *sessions.Session {
	sess, err := h.cfg.SessionStore.Get(r, sessionName)
	if err != nil {
		// A cookie signed with another key; Get still returns a fresh session.
		h.logger.Debug("discarding invalid session", "error", err)
	}
	return sess
}

// browserID returns the id that owns this browser's views, creating and
// saving one on first visit.
func (h *Handlers) browserID(w http.ResponseWriter, r *http.Request, sess *sessions.Session) (string, error) {
	if id, ok := sess.Values[keyBrowser].(string); ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	sess.Values[keyBrowser] = id
	if err := sess.Save(r, w); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	return id, nil
}

func (h *Handlers) column(id string, allowed func(grid.Column[explorer.Transaction]) bool) (string, error) {
	for _, c := range h.cfg.Columns {
		if c.ID == id {
			if !allowed(c) {
				return "", fmt.Errorf("column %q does not support this action", id)
			}
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown column %q", id)
}

func (h *Handlers) gridData(v *view) components.GridData {
	return components.GridData{
		Base:      BasePath + "/" + v.id,
		View:      v.state.View(),
		PageSizes: h.cfg.PageSizes,
	}
}

func pushStateScript(location string) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(location)
	return "history.pushState(null, '', " + strings.TrimSpace(b.String()) + ")"
}

// awaitSettled blocks until st is not loading, the timeout passes or ctx
// is done.
func awaitSettled[T any](ctx context.Context, st *grid.State[T], timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_ = st.Settle(ctx)
}
