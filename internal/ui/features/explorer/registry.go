package explorer

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapgrid/internal/explorer"
	"github.com/leapstack-labs/leapgrid/internal/ui/metrics"
	"github.com/leapstack-labs/leapgrid/internal/ui/notifier"
	"github.com/leapstack-labs/leapgrid/pkg/grid"
)

var errViewNotFound = errors.New("view not found")

// view is the server half of one open grid page: the tab's location and
// the grid state mounted on it.
type view struct {
	id    string
	owner string
	nav   *browserNavigator
	state *grid.State[explorer.Transaction]

	mu       sync.Mutex
	lastSeen time.Time
	streams  int
}

func (v *view) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

// attach marks an update stream as connected and returns the matching
// detach function.
func (v *view) attach() func() {
	v.mu.Lock()
	v.streams++
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			v.streams--
			v.lastSeen = time.Now()
			v.mu.Unlock()
		})
	}
}

func (v *view) idle(cutoff time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.streams == 0 && v.lastSeen.Before(cutoff)
}

// registryConfig holds what every view is built from.
type registryConfig struct {
	Path    string
	Fetch   grid.Fetcher[explorer.Transaction]
	Columns []grid.Column[explorer.Transaction]
	Prefix  string
	TTL     time.Duration
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// registry owns every live view. Views are mounted on the registry's
// context, not on a request context, so they outlive the page request
// that created them.
type registry struct {
	cfg registryConfig
	ctx context.Context

	mu    sync.Mutex
	views map[string]*view
}

func newRegistry(ctx context.Context, cfg registryConfig) *registry {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &registry{
		cfg:   cfg,
		ctx:   ctx,
		views: make(map[string]*view),
	}
}

// create mounts a new view for owner at the given location.
func (r *registry) create(owner string, params url.Values, defaults grid.Defaults) (*view, error) {
	nav := newBrowserNavigator(r.cfg.Path, params)

	codec := grid.NewCodec(defaults)
	codec.Prefix = r.cfg.Prefix

	var observer func(grid.FetchEvent)
	if r.cfg.Metrics != nil {
		observer = r.cfg.Metrics.ObserveFetch
	}

	id := uuid.NewString()
	state, err := grid.New(grid.Options[explorer.Transaction]{
		Codec:     codec,
		Navigator: nav,
		Fetch:     r.cfg.Fetch,
		Columns:   r.cfg.Columns,
		RowID:     explorer.ID,
		Logger:    r.cfg.Logger.With("view", id),
		Observer:  observer,
	})
	if err != nil {
		return nil, err
	}

	v := &view{
		id:       id,
		owner:    owner,
		nav:      nav,
		state:    state,
		lastSeen: time.Now(),
	}
	if err := state.Mount(r.ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.views[id] = v
	r.mu.Unlock()

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.ViewOpened()
	}
	return v, nil
}

// get returns the view with the given id if owner created it.
func (r *registry) get(id, owner string) (*view, error) {
	r.mu.Lock()
	v, ok := r.views[id]
	r.mu.Unlock()
	if !ok || v.owner != owner {
		return nil, errViewNotFound
	}
	v.touch(time.Now())
	return v, nil
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	v, ok := r.views[id]
	delete(r.views, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	v.state.Unmount()
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.ViewClosed()
	}
}

// sweep removes views without a connected stream that were last used
// before now-TTL. It returns the number removed.
func (r *registry) sweep(now time.Time) int {
	cutoff := now.Add(-r.cfg.TTL)

	r.mu.Lock()
	var stale []string
	for id, v := range r.views {
		if v.idle(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.remove(id)
	}
	if len(stale) > 0 {
		r.cfg.Logger.Debug("swept idle views", "count", len(stale))
	}
	return len(stale)
}

func (r *registry) snapshot() []*view {
	r.mu.Lock()
	defer r.mu.Unlock()
	views := make([]*view, 0, len(r.views))
	for _, v := range r.views {
		views = append(views, v)
	}
	return views
}

// refreshAll reloads the current page of every view.
func (r *registry) refreshAll() {
	for _, v := range r.snapshot() {
		if err := v.state.Refresh(); err != nil {
			r.cfg.Logger.Debug("refresh skipped", "view", v.id, "error", err)
		}
	}
}

func (r *registry) closeAll() {
	for _, v := range r.snapshot() {
		r.remove(v.id)
	}
}

// count returns the number of live views.
func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// run refreshes views on store changes and sweeps idle ones until ctx is
// done, then closes every view.
func (r *registry) run(ctx context.Context, notify *notifier.Notifier) {
	changes, unsubscribe := notify.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(r.cfg.TTL / 2)
	defer ticker.Stop()
	defer r.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			r.cfg.Logger.Debug("store changed, refreshing views", "source", c.Source)
			r.refreshAll()
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}
