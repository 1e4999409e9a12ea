package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/delineate/dashboard/dashboard/internal/apiclient"
	"github.com/delineate/dashboard/pkg/types"
)

// Path is the remote service's metrics endpoint.
const Path = "/metrics"

// Unavailable is the text shown when the metrics endpoint cannot be fetched.
const Unavailable = "Failed to fetch metrics"

// State is the outcome of one metrics fetch. When Available is false the
// snapshot is nil and the scraper was never invoked.
type State struct {
	Available bool                 `json:"available"`
	Snapshot  types.MetricSnapshot `json:"snapshot,omitempty"`
	ScrapedAt time.Time            `json:"scraped_at"`
	Err       string               `json:"error,omitempty"`
}

// Summary renders the state as a one-line status string.
func (s State) Summary() string {
	if !s.Available {
		return Unavailable
	}
	return fmt.Sprintf("Requests: %d | Active Downloads: %d",
		s.Snapshot[HTTPRequestsTotal], s.Snapshot[ActiveDownloads])
}

// Poller fetches and scrapes the metrics endpoint on a fixed interval.
type Poller struct {
	client   *apiclient.Client
	interval time.Duration
	timeout  time.Duration
}

// NewPoller returns a Poller that fetches every interval.
func NewPoller(client *apiclient.Client, interval, timeout time.Duration) *Poller {
	return &Poller{client: client, interval: interval, timeout: timeout}
}

// Fetch performs one fetch-and-scrape cycle. Failures are reported in the
// returned State, never as an error.
func (p *Poller) Fetch(ctx context.Context) State {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	st := State{ScrapedAt: time.Now().UTC()}
	raw, err := p.client.GetText(ctx, Path)
	if err != nil {
		slog.Warn("metrics: fetch failed", "err", err)
		st.Err = err.Error()
		return st
	}
	st.Available = true
	st.Snapshot = Scrape(raw)
	return st
}

// Run fetches immediately and then every interval until ctx is cancelled.
// It returns only after every in-flight fetch has finished.
func (p *Poller) Run(ctx context.Context, publish func(State)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	tick := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := p.Fetch(ctx)
			if ctx.Err() != nil {
				return
			}
			publish(st)
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
