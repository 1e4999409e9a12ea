package dashboard

import (
	"time"

	"github.com/delineate/dashboard/dashboard/internal/health"
	"github.com/delineate/dashboard/dashboard/internal/metrics"
	"github.com/delineate/dashboard/dashboard/internal/upload"
	"github.com/delineate/dashboard/pkg/types"
)

// Snapshot is the full view state served by GET /api/v1/state and pushed
// over the WebSocket stream.
type Snapshot struct {
	GeneratedAt time.Time `json:"generated_at"`
	Mounted     bool      `json:"mounted"`
	MountedAt   time.Time `json:"mounted_at"`

	Health  *health.Result `json:"health"`
	Metrics *MetricsView   `json:"metrics"`

	Jobs     []types.Job `json:"jobs"`
	JobsBusy bool        `json:"jobs_busy"`

	Errors     []types.ErrorEntry `json:"errors"`
	ErrorsBusy bool               `json:"errors_busy"`

	Upload  upload.State `json:"upload"`
	Tracing TracingView  `json:"tracing"`
}

// MetricsView pairs the scraped state with its display line.
type MetricsView struct {
	metrics.State
	Line string `json:"summary"`
}

// TracingView describes the trace pipeline.
type TracingView struct {
	State     string   `json:"state"`
	Exporters []string `json:"exporters"`
}

// Snapshot assembles the current state. Components that were not supplied
// are reported empty.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.Lock()
	mounted, mountedAt := d.session != nil, d.mountedAt
	d.mu.Unlock()

	s := Snapshot{
		GeneratedAt: time.Now().UTC(),
		Mounted:     mounted,
		Health:      d.Health(),
		Jobs:        []types.Job{},
		Errors:      []types.ErrorEntry{},
		Upload:      upload.State{Status: upload.StatusIdle},
		Tracing:     TracingView{State: "disabled", Exporters: []string{}},
	}
	if mounted {
		s.MountedAt = mountedAt
	}
	if st := d.Metrics(); st != nil {
		s.Metrics = &MetricsView{State: *st, Line: st.Summary()}
	}
	if d.jobs != nil {
		s.Jobs = d.jobs.List()
		s.JobsBusy = d.jobs.Busy()
	}
	if d.errors != nil {
		s.Errors = d.errors.List()
		s.ErrorsBusy = d.errors.Busy()
	}
	if d.uploads != nil {
		s.Upload = d.uploads.State()
	}
	if d.tracing != nil {
		s.Tracing = TracingView{State: d.tracing.State(), Exporters: d.tracing.Exporters()}
		if s.Tracing.Exporters == nil {
			s.Tracing.Exporters = []string{}
		}
	}
	return s
}
