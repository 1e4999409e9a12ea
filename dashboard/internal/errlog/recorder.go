// Package errlog triggers deliberate failures so the error-reporting
// pipeline can be verified end to end, and keeps the last few outcomes.
package errlog

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/delineate/dashboard/dashboard/internal/apiclient"
	"github.com/delineate/dashboard/dashboard/internal/history"
	"github.com/delineate/dashboard/pkg/types"
)

const (
	// RemotePath is the service endpoint that fails on purpose when
	// called with sentry_test=true.
	RemotePath = "/v1/download/check"

	remoteFileID = 70000

	MsgRemoteDefault = "Sentry test error triggered"
	MsgRemoteFailed  = "Failed to trigger error"
	MsgLocal         = "Dashboard test error - this should appear in Sentry!"
)

// LocalError is the panic value raised by TriggerLocal.
type LocalError struct {
	Entry types.ErrorEntry
}

func (e *LocalError) Error() string { return e.Entry.Message }

// Recorder keeps triggered error entries newest-first.
type Recorder struct {
	client  *apiclient.Client
	timeout time.Duration
	now     func() time.Time

	history *history.Buffer[types.ErrorEntry]
	busy    atomic.Int32
}

// New returns a Recorder keeping the last capacity entries.
func New(client *apiclient.Client, capacity int, timeout time.Duration) *Recorder {
	return &Recorder{
		client:  client,
		timeout: timeout,
		now:     time.Now,
		history: history.New[types.ErrorEntry](capacity),
	}
}

// TriggerRemote asks the service to fail and records the outcome. The
// entry carries the server's message when one is returned, whatever the
// status code.
func (r *Recorder) TriggerRemote(ctx context.Context) types.ErrorEntry {
	r.busy.Add(1)
	defer r.busy.Add(-1)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var resp struct {
		Message string `json:"message"`
	}
	query := url.Values{"sentry_test": {"true"}}
	err := r.client.PostJSON(ctx, RemotePath, query, map[string]int64{"file_id": remoteFileID}, &resp)

	var msg string
	var se *apiclient.StatusError
	switch {
	case err == nil:
		msg = orDefault(resp.Message, MsgRemoteDefault)
	case errors.As(err, &se):
		msg = orDefault(se.Message, MsgRemoteDefault)
	default:
		slog.Warn("errlog: remote trigger failed", "err", err)
		msg = orDefault(err.Error(), MsgRemoteFailed)
	}
	return r.record(msg)
}

// TriggerLocal records an entry and then panics with *LocalError.
// The panic is meant to reach the outermost recovery boundary.
func (r *Recorder) TriggerLocal() {
	entry := r.record(MsgLocal)
	panic(&LocalError{Entry: entry})
}

// List returns the recorded entries, newest first.
func (r *Recorder) List() []types.ErrorEntry { return r.history.List() }

// Busy reports whether a remote trigger is outstanding.
func (r *Recorder) Busy() bool { return r.busy.Load() > 0 }

func (r *Recorder) record(msg string) types.ErrorEntry {
	now := r.now()
	e := types.ErrorEntry{
		ID:        uuid.NewString(),
		Message:   msg,
		Timestamp: now.Format(types.TimestampLayout),
		CreatedAt: now,
	}
	r.history.Push(e)
	return e
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
