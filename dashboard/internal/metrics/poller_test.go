package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/delineate/dashboard/dashboard/internal/apiclient"
)

func newTestPoller(t *testing.T, h http.HandlerFunc, interval time.Duration) *Poller {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := apiclient.New(srv.URL, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return NewPoller(c, interval, time.Second)
}

func TestFetch_Success(t *testing.T) {
	p := newTestPoller(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metrics" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(serviceMetrics))
	}, time.Second)

	st := p.Fetch(context.Background())
	if !st.Available {
		t.Fatalf("Available = false, err = %s", st.Err)
	}
	if got := st.Summary(); got != "Requests: 1532 | Active Downloads: 3" {
		t.Errorf("Summary() = %q", got)
	}
}

func TestFetch_FailureIsUnavailable(t *testing.T) {
	p := newTestPoller(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, time.Second)

	st := p.Fetch(context.Background())
	if st.Available {
		t.Fatal("Available = true for a 500 response")
	}
	if st.Snapshot != nil {
		t.Errorf("Snapshot = %v, want nil when unavailable", st.Snapshot)
	}
	if st.Summary() != Unavailable {
		t.Errorf("Summary() = %q, want %q", st.Summary(), Unavailable)
	}
}

func TestFetch_ConnectFailure(t *testing.T) {
	c, _ := apiclient.New("http://127.0.0.1:1", time.Second)
	st := NewPoller(c, time.Second, time.Second).Fetch(context.Background())
	if st.Available || st.Err == "" {
		t.Errorf("State = %+v, want unavailable with error", st)
	}
}

func TestRun_RecoversAfterFailedTick(t *testing.T) {
	var hits atomic.Int32
	p := newTestPoller(t, func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("active_downloads 4\n"))
	}, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got := make(chan State, 16)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, func(s State) {
			select {
			case got <- s:
			default:
			}
		})
		close(done)
	}()

	for {
		select {
		case s := <-got:
			if s.Available && s.Snapshot[ActiveDownloads] == 4 {
				cancel()
				<-done
				return
			}
		case <-ctx.Done():
			t.Fatal("no successful scrape after a failed tick")
		}
	}
}
