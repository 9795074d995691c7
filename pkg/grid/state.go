package grid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"
)

// ErrNotMounted is returned by operations that need a mounted State.
var ErrNotMounted = errors.New("grid: state is not mounted")

// RowPage is one page of rows plus the total number of rows matching the
// query across all pages.
type RowPage[T any] struct {
	Rows  []T
	Total int
}

// Fetcher loads the page described by q. Implementations should honor ctx;
// a fetch is cancelled when a newer query supersedes it.
type Fetcher[T any] func(ctx context.Context, q Query) (RowPage[T], error)

// FetchOutcome identifies a fetch lifecycle event.
type FetchOutcome int

// Fetch lifecycle events.
const (
	FetchIssued FetchOutcome = iota
	FetchCommitted
	FetchFailed
	FetchDiscarded
)

func (o FetchOutcome) String() string {
	switch o {
	case FetchIssued:
		return "issued"
	case FetchCommitted:
		return "committed"
	case FetchFailed:
		return "failed"
	case FetchDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("FetchOutcome(%d)", int(o))
	}
}

// FetchEvent describes a fetch lifecycle step. Duration is zero for
// FetchIssued.
type FetchEvent struct {
	Outcome  FetchOutcome
	Seq      uint64
	Query    Query
	Duration time.Duration
	Total    int
	Err      error
}

// Options configures a State.
type Options[T any] struct {
	Codec     Codec
	Navigator Navigator
	Fetch     Fetcher[T]
	Columns   []Column[T]

	// RowID returns the stable id of a row. Selection is keyed by it.
	RowID func(T) string

	Logger *slog.Logger

	// Observer, if set, receives every fetch lifecycle event.
	Observer func(FetchEvent)
}

// State owns the current Query of one grid instance and keeps it in sync
// with the Navigator.
//
// Local changes never write the query directly. ApplyIntent encodes the
// next query and navigates; the query changes only when the navigator
// reports the new location back through ApplyExternalQuery. Fetch results
// that belong to a superseded query are dropped.
//
// All methods are safe for concurrent use. Listeners and navigator calls
// run without the internal lock held.
type State[T any] struct {
	opts   Options[T]
	logger *slog.Logger

	mu          sync.Mutex
	mounted     bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	query Query
	// inflight holds queries sent to Navigate that have not been reported
	// back yet, oldest first.
	inflight []Query

	page    RowPage[T]
	loaded  bool
	loading bool
	err     error

	seq         uint64
	fetchCancel context.CancelFunc

	nextListener    int
	queryListeners  map[int]func(Query)
	updateListeners map[int]func()
}

// New returns an unmounted State.
func New[T any](opts Options[T]) (*State[T], error) {
	if opts.Navigator == nil {
		return nil, errors.New("grid: navigator is required")
	}
	if opts.Fetch == nil {
		return nil, errors.New("grid: fetcher is required")
	}
	if opts.RowID == nil {
		return nil, errors.New("grid: row id function is required")
	}
	opts.Codec.Defaults = opts.Codec.Defaults.normalized()

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &State[T]{
		opts:            opts,
		logger:          logger,
		query:           opts.Codec.Defaults.Query(),
		queryListeners:  make(map[int]func(Query)),
		updateListeners: make(map[int]func()),
	}, nil
}

// Mount decodes the navigator's current location into the initial query,
// subscribes to location changes and starts the first fetch. The fetch
// context is derived from ctx.
func (s *State[T]) Mount(ctx context.Context) error {
	params := s.opts.Navigator.CurrentParameters()

	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return nil
	}
	s.mounted = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.query = s.opts.Codec.Decode(params)
	s.inflight = nil
	s.page, s.loaded, s.err = RowPage[T]{}, false, nil
	run := s.startFetchLocked()
	q := s.query
	s.mu.Unlock()

	unsub := s.opts.Navigator.Subscribe(func(v url.Values) {
		s.ApplyExternalQuery(s.opts.Codec.Decode(v))
	})

	s.mu.Lock()
	if !s.mounted {
		// Unmounted while subscribing.
		s.mu.Unlock()
		unsub()
		return nil
	}
	s.unsubscribe = unsub
	s.mu.Unlock()

	s.logger.Debug("grid mounted", "query", s.opts.Codec.Encode(q).Encode())
	run()
	s.emit(&q)
	return nil
}

// Unmount unsubscribes from the navigator and cancels any fetch in flight.
// Results that arrive afterwards are dropped.
func (s *State[T]) Unmount() {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return
	}
	s.mounted = false
	s.cancel()
	s.fetchCancel = nil
	s.loading = false
	s.inflight = nil
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	s.logger.Debug("grid unmounted")
}

// ApplyExternalQuery replaces the current query with q. It is called for
// every location change, including back/forward, and never navigates.
// Applying the current query again is a no-op.
func (s *State[T]) ApplyExternalQuery(q Query) {
	q = q.Normalize()

	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return
	}

	s.settleInflightLocked(q)

	if q.Equal(s.query) {
		s.mu.Unlock()
		return
	}

	prev := s.query
	s.query = q
	run := func() {}
	if !q.SameFetch(prev) {
		run = s.startFetchLocked()
	}
	s.mu.Unlock()

	run()
	s.emit(&q)
}

// settleInflightLocked drops every in-flight query up to and including the
// first one equal to q. A location that matches none of them came from
// somewhere else (back/forward, a typed URL), so they are all dropped.
func (s *State[T]) settleInflightLocked(q Query) {
	for i, pending := range s.inflight {
		if pending.Equal(q) {
			s.inflight = s.inflight[i+1:]
			return
		}
	}
	s.inflight = nil
}

// ApplyIntent merges in onto the latest query (the last one navigated to,
// if its round trip has not completed) and navigates to the result.
func (s *State[T]) ApplyIntent(in Intent) error {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return ErrNotMounted
	}
	base := s.query
	if n := len(s.inflight); n > 0 {
		base = s.inflight[n-1]
	}
	next := in.Apply(base)
	if next.Equal(base) {
		s.mu.Unlock()
		return nil
	}
	s.inflight = append(s.inflight, next)
	s.mu.Unlock()

	nav := s.opts.Navigator
	params := s.opts.Codec.Apply(nav.CurrentParameters(), next)
	s.logger.Debug("grid navigate", "params", params.Encode())
	nav.Navigate(params)
	return nil
}

// Retry re-issues the fetch for the current query.
func (s *State[T]) Retry() error {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return ErrNotMounted
	}
	run := s.startFetchLocked()
	s.mu.Unlock()

	run()
	s.emit(nil)
	return nil
}

// Refresh reloads the current page, typically after the data source
// reported new data. It is the same operation as Retry.
func (s *State[T]) Refresh() error {
	return s.Retry()
}

// Settle blocks until no fetch is in flight or ctx is done.
func (s *State[T]) Settle(ctx context.Context) error {
	changed := make(chan struct{}, 1)
	unsubscribe := s.OnUpdate(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for s.Snapshot().Loading {
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Query returns the current query.
func (s *State[T]) Query() Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query.Clone()
}

// Snapshot returns the inputs of the view projection.
func (s *State[T]) Snapshot() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot[T]{
		Query:   s.query.Clone(),
		Page:    s.page,
		Loaded:  s.loaded,
		Loading: s.loading,
		Err:     s.err,
	}
}

// View projects the current state for rendering.
func (s *State[T]) View() ViewModel[T] {
	return Project(s.Snapshot(), s.opts.Columns, s.opts.RowID)
}

// Codec returns the codec the state encodes queries with.
func (s *State[T]) Codec() Codec {
	return s.opts.Codec
}

// OnQueryChanged registers fn for every effective query change.
func (s *State[T]) OnQueryChanged(fn func(Query)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.queryListeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.queryListeners, id)
	}
}

// OnUpdate registers fn for every change that may alter the view: query
// changes, fetch completions and retries.
func (s *State[T]) OnUpdate(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.updateListeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.updateListeners, id)
	}
}

// startFetchLocked marks the state loading, supersedes any fetch in flight
// and returns a function that starts the new fetch. Call the returned
// function after releasing the lock.
func (s *State[T]) startFetchLocked() func() {
	if s.fetchCancel != nil {
		s.fetchCancel()
	}
	s.seq++
	seq := s.seq
	q := s.query.Clone()
	ctx, cancel := context.WithCancel(s.ctx)
	s.fetchCancel = cancel
	s.loading = true
	s.err = nil

	return func() {
		s.observe(FetchEvent{Outcome: FetchIssued, Seq: seq, Query: q})
		go s.fetch(ctx, cancel, seq, q)
	}
}

func (s *State[T]) fetch(ctx context.Context, cancel context.CancelFunc, seq uint64, q Query) {
	defer cancel()
	start := time.Now()
	page, err := s.opts.Fetch(ctx, q)
	elapsed := time.Since(start)

	s.mu.Lock()
	if !s.mounted || seq != s.seq {
		s.mu.Unlock()
		s.logger.Debug("discarding stale fetch", "seq", seq)
		s.observe(FetchEvent{Outcome: FetchDiscarded, Seq: seq, Query: q, Duration: elapsed, Err: err})
		return
	}
	s.fetchCancel = nil
	s.loading = false
	if err != nil {
		s.err = err
	} else {
		s.page = page
		s.loaded = true
		s.err = nil
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("grid fetch failed", "seq", seq, "error", err)
		s.observe(FetchEvent{Outcome: FetchFailed, Seq: seq, Query: q, Duration: elapsed, Err: err})
	} else {
		s.observe(FetchEvent{Outcome: FetchCommitted, Seq: seq, Query: q, Duration: elapsed, Total: page.Total})
	}
	s.emit(nil)
}

func (s *State[T]) observe(ev FetchEvent) {
	if s.opts.Observer != nil {
		s.opts.Observer(ev)
	}
}

// emit notifies listeners. q is nil when the query did not change.
func (s *State[T]) emit(q *Query) {
	s.mu.Lock()
	var queryFns []func(Query)
	if q != nil {
		queryFns = make([]func(Query), 0, len(s.queryListeners))
		for _, fn := range s.queryListeners {
			queryFns = append(queryFns, fn)
		}
	}
	updateFns := make([]func(), 0, len(s.updateListeners))
	for _, fn := range s.updateListeners {
		updateFns = append(updateFns, fn)
	}
	s.mu.Unlock()

	for _, fn := range queryFns {
		fn(q.Clone())
	}
	for _, fn := range updateFns {
		fn()
	}
}
