// Package ui serves the transaction grid in the browser.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapgrid/internal/explorer"
	"github.com/leapstack-labs/leapgrid/internal/store"
	explorerFeature "github.com/leapstack-labs/leapgrid/internal/ui/features/explorer"
	"github.com/leapstack-labs/leapgrid/internal/ui/metrics"
	"github.com/leapstack-labs/leapgrid/internal/ui/notifier"
	"github.com/leapstack-labs/leapgrid/internal/ui/router"
	"github.com/leapstack-labs/leapgrid/pkg/grid"
)

// Server is the grid UI server.
type Server struct {
	cfg          Config
	sessionStore *sessions.CookieStore
	logger       *slog.Logger
	notifier     *notifier.Notifier
	metrics      *metrics.Metrics
}

// Config holds configuration for the UI server.
type Config struct {
	Store         *store.Store
	Host          string
	Port          int
	Watch         bool
	SessionSecret string
	// SessionMaxAge is the lifetime of the session cookie.
	SessionMaxAge time.Duration
	// ViewTTL is how long an abandoned grid view is kept.
	ViewTTL   time.Duration
	Defaults  grid.Defaults
	PageSizes []int
	// Prefix namespaces the grid's query parameters.
	Prefix string
	Dev    bool
	Logger *slog.Logger
}

// NewServer creates a new UI server instance.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.SessionMaxAge <= 0 {
		cfg.SessionMaxAge = 30 * 24 * time.Hour
	}

	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.MaxAge(int(cfg.SessionMaxAge.Seconds()))
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	return &Server{
		cfg:          cfg,
		sessionStore: sessionStore,
		logger:       cfg.Logger,
		notifier:     notifier.New(),
		metrics:      metrics.New(),
	}
}

// Handler builds the routed handler. Grid views it creates stop when ctx
// is cancelled.
func (s *Server) Handler(ctx context.Context) (http.Handler, error) {
	if s.cfg.Store == nil {
		return nil, errors.New("ui: store is required")
	}

	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	err := router.SetupRoutes(ctx, r, explorerFeature.Config{
		Fetch:        s.cfg.Store.Fetcher(),
		Columns:      explorer.Columns(time.Now),
		SessionStore: s.sessionStore,
		Notifier:     s.notifier,
		Defaults:     s.cfg.Defaults,
		PageSizes:    s.cfg.PageSizes,
		Prefix:       s.cfg.Prefix,
		ViewTTL:      s.cfg.ViewTTL,
		Logger:       s.logger,
	}, s.metrics, s.cfg.Dev)
	if err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}
	return r, nil
}

// Serve starts the UI server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	s.logger.Info("starting UI server", "addr", "http://"+addr)

	eg, egctx := errgroup.WithContext(ctx)

	handler, err := s.Handler(egctx)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.cfg.Watch {
		eg.Go(func() error {
			return s.watchStore(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down UI server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Notifier returns the notifier that tells open grids to reload.
func (s *Server) Notifier() *notifier.Notifier {
	return s.notifier
}

// Metrics returns the server's metrics.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// watchStore publishes a change whenever the SQLite database file or its
// write-ahead log is written. Other drivers are not watched.
func (s *Server) watchStore(ctx context.Context) error {
	path := s.cfg.Store.Path()
	if s.cfg.Store.Driver() != store.DriverSQLite || path == "" || path == ":memory:" {
		s.logger.Debug("store is not file backed, not watching")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: SQLite replaces and recreates the -wal file.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		s.logger.Error("failed to watch store", "path", path, "error", err)
		return nil
	}
	return s.watchLoop(ctx, watcher.Events, watcher.Errors, storeFiles(path))
}

func storeFiles(path string) map[string]bool {
	base := filepath.Base(path)
	return map[string]bool{base: true, base + "-wal": true}
}

// watchLoop debounces write events on the named files into one change.
func (s *Server) watchLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, files map[string]bool) error {
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !files[filepath.Base(event.Name)] {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
				s.logger.Debug("store changed", "file", name)
				s.notifier.Publish(notifier.Change{Source: name})
			})

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}
