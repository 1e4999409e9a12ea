package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/delineate/dashboard/dashboard/internal/apiclient"
	"github.com/delineate/dashboard/pkg/types"
)

// Path is the remote service's health endpoint.
const Path = "/health"

// uptimeWindow is the number of recent poll outcomes tracked for uptime %.
const uptimeWindow = 20

// Result is one poll outcome as shown on the dashboard.
type Result struct {
	Status    types.HealthStatus `json:"status"`
	CheckedAt time.Time          `json:"checked_at"`
	Latency   time.Duration      `json:"latency_ns"`
	UptimePct float64            `json:"uptime_pct"`
	Err       string             `json:"error,omitempty"`
}

// Poller fetches the health document on a fixed interval.
type Poller struct {
	client   *apiclient.Client
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time // injectable for deterministic tests

	mu      sync.Mutex
	history []bool // outcomes, newest last
}

// New returns a Poller that polls every interval, bounding each request by timeout.
func New(client *apiclient.Client, interval, timeout time.Duration) *Poller {
	return &Poller{
		client:   client,
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Poll performs one health request. Any failure (transport, timeout, non-2xx,
// malformed body) yields types.UnhealthyStatus(); Poll never returns an error.
func (p *Poller) Poll(ctx context.Context) types.HealthStatus {
	return p.poll(ctx).Status
}

func (p *Poller) poll(ctx context.Context) Result {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := p.now()
	var status types.HealthStatus
	err := p.client.GetJSON(ctx, Path, &status)
	res := Result{CheckedAt: start, Latency: p.now().Sub(start)}
	if err != nil {
		slog.Warn("health: poll failed, reporting unhealthy", "err", err)
		res.Status = types.UnhealthyStatus()
		res.Err = err.Error()
	} else {
		res.Status = status
	}
	res.UptimePct = p.record(err == nil)
	return res
}

// Run polls immediately and then every interval, handing each Result to
// publish. Each tick polls in its own goroutine, so a slow request does not
// delay the next tick; whichever response resolves last is published last.
//
// Run blocks until ctx is cancelled and every in-flight poll has returned.
func (p *Poller) Run(ctx context.Context, publish func(Result)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	tick := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := p.poll(ctx)
			if ctx.Err() != nil {
				return
			}
			publish(res)
		}()
	}

	tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

// record appends an outcome to the uptime window and returns the new uptime %.
func (p *Poller) record(success bool) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) >= uptimeWindow {
		p.history = p.history[1:]
	}
	p.history = append(p.history, success)

	var ok int
	for _, s := range p.history {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(p.history)) * 100
}
