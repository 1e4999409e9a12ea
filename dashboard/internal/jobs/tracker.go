package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/delineate/dashboard/dashboard/internal/apiclient"
	"github.com/delineate/dashboard/dashboard/internal/history"
	"github.com/delineate/dashboard/pkg/types"
)

const (
	CheckPath = "/v1/download/check"
	StartPath = "/v1/download/start"

	MinFileID int64 = 10000
	MaxFileID int64 = 100000000
)

// ErrInvalidFileID is returned for file ids outside [MinFileID, MaxFileID]
// or input that is not an integer.
var ErrInvalidFileID = errors.New("file id must be an integer between 10000 and 100000000")

// ValidateFileID checks that id is in range.
func ValidateFileID(id int64) error {
	if id < MinFileID || id > MaxFileID {
		return fmt.Errorf("%w: got %d", ErrInvalidFileID, id)
	}
	return nil
}

// ParseFileID parses and validates operator input.
func ParseFileID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFileID, s)
	}
	if err := ValidateFileID(id); err != nil {
		return 0, err
	}
	return id, nil
}

type request struct {
	FileID int64 `json:"file_id"`
}

type checkResponse struct {
	FileID    int64 `json:"file_id"`
	Available bool  `json:"available"`
}

type startResponse struct {
	FileID int64  `json:"file_id"`
	Status string `json:"status"`
}

// Tracker runs job actions and records their outcomes newest-first.
type Tracker struct {
	client  *apiclient.Client
	timeout time.Duration
	now     func() time.Time

	history *history.Buffer[types.Job]
	busy    atomic.Int32
}

// New returns a Tracker keeping the last capacity jobs. timeout bounds each
// request; zero leaves only the client's own timeout.
func New(client *apiclient.Client, capacity int, timeout time.Duration) *Tracker {
	return &Tracker{
		client:  client,
		timeout: timeout,
		now:     time.Now,
		history: history.New[types.Job](capacity),
	}
}

// CheckAvailability asks the service whether fileID can be downloaded.
// The returned error is non-nil only for invalid input.
func (t *Tracker) CheckAvailability(ctx context.Context, fileID int64) (types.Job, error) {
	if err := ValidateFileID(fileID); err != nil {
		return types.Job{}, err
	}
	defer t.enter()()

	var resp checkResponse
	if err := t.post(ctx, CheckPath, fileID, &resp); err != nil {
		return t.fail(fileID, "check", err), nil
	}
	status := types.JobNotAvailable
	if resp.Available {
		status = types.JobAvailable
	}
	return t.record(pick(resp.FileID, fileID), status, ""), nil
}

// StartDownload asks the service to start downloading fileID. A response
// status of "completed" yields Completed; anything else yields Failed.
func (t *Tracker) StartDownload(ctx context.Context, fileID int64) (types.Job, error) {
	if err := ValidateFileID(fileID); err != nil {
		return types.Job{}, err
	}
	defer t.enter()()

	var resp startResponse
	if err := t.post(ctx, StartPath, fileID, &resp); err != nil {
		return t.fail(fileID, "start", err), nil
	}
	status := types.JobFailed
	if resp.Status == "completed" {
		status = types.JobCompleted
	}
	return t.record(pick(resp.FileID, fileID), status, ""), nil
}

// List returns the recorded jobs, newest first.
func (t *Tracker) List() []types.Job { return t.history.List() }

// Busy reports whether an action is outstanding.
func (t *Tracker) Busy() bool { return t.busy.Load() > 0 }

func (t *Tracker) enter() (leave func()) {
	t.busy.Add(1)
	return func() { t.busy.Add(-1) }
}

func (t *Tracker) post(ctx context.Context, path string, fileID int64, out any) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.client.PostJSON(ctx, path, nil, request{FileID: fileID}, out)
}

func (t *Tracker) fail(fileID int64, action string, err error) types.Job {
	slog.Warn("jobs: request failed", "action", action, "file_id", fileID, "err", err)
	return t.record(fileID, types.JobFailed, err.Error())
}

func (t *Tracker) record(fileID int64, status types.JobStatus, errText string) types.Job {
	now := t.now()
	job := types.Job{
		ID:        uuid.NewString(),
		FileID:    fileID,
		Status:    status,
		Timestamp: now.Format(types.TimestampLayout),
		CreatedAt: now,
		Error:     errText,
	}
	t.history.Push(job)
	return job
}

// pick prefers the id echoed by the service.
func pick(echoed, requested int64) int64 {
	if echoed != 0 {
		return echoed
	}
	return requested
}
