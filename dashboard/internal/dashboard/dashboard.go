package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/delineate/dashboard/dashboard/internal/errlog"
	"github.com/delineate/dashboard/dashboard/internal/health"
	"github.com/delineate/dashboard/dashboard/internal/jobs"
	"github.com/delineate/dashboard/dashboard/internal/metrics"
	"github.com/delineate/dashboard/dashboard/internal/tracing"
	"github.com/delineate/dashboard/dashboard/internal/upload"
)

// ErrMounted is returned by Mount when the view is already mounted.
var ErrMounted = errors.New("dashboard: already mounted")

// Pollers are the periodic fetchers run for the lifetime of a mount.
type Pollers struct {
	Health  *health.Poller
	Metrics *metrics.Poller
}

// Deps are the components the view is built from. View and Tracing are
// optional.
type Deps struct {
	Pollers Pollers
	Jobs    *jobs.Tracker
	Errors  *errlog.Recorder
	Uploads *upload.Uploader
	View    *tracing.ViewLifecycle
	Tracing *tracing.Bootstrap
}

// Dashboard is safe for concurrent use.
type Dashboard struct {
	jobs    *jobs.Tracker
	errors  *errlog.Recorder
	uploads *upload.Uploader
	view    *tracing.ViewLifecycle
	tracing *tracing.Bootstrap

	health  atomic.Pointer[health.Result]
	metrics atomic.Pointer[metrics.State]

	mu        sync.Mutex // guards pollers, session and mountedAt
	pollers   Pollers
	session   *session
	mountedAt time.Time
}

// session is one mount. Results published after closed is set are dropped.
type session struct {
	cancel context.CancelFunc
	group  *errgroup.Group
	closed atomic.Bool
}

// New returns an unmounted Dashboard.
func New(d Deps) *Dashboard {
	return &Dashboard{
		jobs:    d.Jobs,
		errors:  d.Errors,
		uploads: d.Uploads,
		view:    d.View,
		tracing: d.Tracing,
		pollers: d.Pollers,
	}
}

// Mount starts the pollers. They run until Close or until ctx is cancelled.
func (d *Dashboard) Mount(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		return ErrMounted
	}

	if d.view != nil {
		_, end := d.view.Start(ctx, "mount",
			attribute.Bool("dashboard.health_poller", d.pollers.Health != nil),
			attribute.Bool("dashboard.metrics_poller", d.pollers.Metrics != nil),
		)
		defer end()
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	s := &session{cancel: cancel, group: g}

	if hp := d.pollers.Health; hp != nil {
		g.Go(func() error {
			hp.Run(gctx, func(r health.Result) {
				if s.closed.Load() {
					return
				}
				d.health.Store(&r)
			})
			return nil
		})
	}
	if mp := d.pollers.Metrics; mp != nil {
		g.Go(func() error {
			mp.Run(gctx, func(st metrics.State) {
				if s.closed.Load() {
					return
				}
				d.metrics.Store(&st)
			})
			return nil
		})
	}

	d.session = s
	d.mountedAt = time.Now().UTC()
	slog.Info("dashboard: mounted")
	return nil
}

// Close stops the pollers and waits for them to return. It is a no-op when
// the view is not mounted.
func (d *Dashboard) Close() error {
	d.mu.Lock()
	s := d.session
	d.session = nil
	d.mu.Unlock()
	if s == nil {
		return nil
	}

	s.closed.Store(true)
	s.cancel()
	err := s.group.Wait()
	slog.Info("dashboard: unmounted")
	return err
}

// Remount replaces the pollers and restarts the view with them. Used when
// configuration changes poll intervals.
func (d *Dashboard) Remount(ctx context.Context, p Pollers) error {
	if err := d.Close(); err != nil {
		return err
	}
	d.mu.Lock()
	d.pollers = p
	d.mu.Unlock()
	return d.Mount(ctx)
}

// Mounted reports whether the pollers are running.
func (d *Dashboard) Mounted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session != nil
}

// Health returns the latest health result, or nil before the first poll.
func (d *Dashboard) Health() *health.Result { return d.health.Load() }

// Metrics returns the latest metrics state, or nil before the first fetch.
func (d *Dashboard) Metrics() *metrics.State { return d.metrics.Load() }

func (d *Dashboard) Jobs() *jobs.Tracker { return d.jobs }

func (d *Dashboard) Errors() *errlog.Recorder { return d.errors }

func (d *Dashboard) Uploads() *upload.Uploader { return d.uploads }
