package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/delineate/dashboard/dashboard/internal/apiclient"
	"github.com/delineate/dashboard/pkg/types"
)

func newTestTracker(t *testing.T, h http.HandlerFunc) (*Tracker, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	c, err := apiclient.New(srv.URL, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	tr := New(c, 5, time.Second)
	tr.now = func() time.Time { return time.Date(2024, 5, 1, 14, 3, 9, 0, time.Local) }
	return tr, &calls
}

func decodeFileID(t *testing.T, r *http.Request) int64 {
	t.Helper()
	var body struct {
		FileID int64 `json:"file_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Errorf("decode request body: %v", err)
	}
	return body.FileID
}

func TestCheckAvailability_Available(t *testing.T) {
	tr, calls := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != CheckPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		id := decodeFileID(t, r)
		_ = json.NewEncoder(w).Encode(map[string]any{"file_id": id, "available": true})
	})

	job, err := tr.CheckAvailability(context.Background(), 70000)
	if err != nil {
		t.Fatalf("CheckAvailability() error = %v", err)
	}
	if job.Status != types.JobAvailable || job.FileID != 70000 {
		t.Errorf("job = %+v, want Available for 70000", job)
	}
	if job.Timestamp != "14:03:09" {
		t.Errorf("Timestamp = %q", job.Timestamp)
	}
	if job.ID == "" || job.Error != "" {
		t.Errorf("job = %+v", job)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if list := tr.List(); len(list) != 1 || list[0].ID != job.ID {
		t.Errorf("List() = %+v", list)
	}
}

func TestCheckAvailability_NotAvailable(t *testing.T) {
	tr, _ := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"file_id":12345,"available":false}`))
	})
	job, _ := tr.CheckAvailability(context.Background(), 12345)
	if job.Status != types.JobNotAvailable {
		t.Errorf("Status = %q, want NotAvailable", job.Status)
	}
}

func TestCheckAvailability_RejectsInvalidWithoutRequest(t *testing.T) {
	tr, calls := newTestTracker(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"available":true}`))
	})

	for _, id := range []int64{5000, 0, -1, 9999, 100000001} {
		if _, err := tr.CheckAvailability(context.Background(), id); !errors.Is(err, ErrInvalidFileID) {
			t.Errorf("CheckAvailability(%d) error = %v, want ErrInvalidFileID", id, err)
		}
		if _, err := tr.StartDownload(context.Background(), id); !errors.Is(err, ErrInvalidFileID) {
			t.Errorf("StartDownload(%d) error = %v, want ErrInvalidFileID", id, err)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", calls.Load())
	}
	if n := len(tr.List()); n != 0 {
		t.Errorf("List() has %d entries, want 0", n)
	}
}

func TestStartDownload_Discriminator(t *testing.T) {
	tests := []struct {
		status string
		want   types.JobStatus
	}{
		{"completed", types.JobCompleted},
		{"failed", types.JobFailed},
		{"queued", types.JobFailed},
		{"", types.JobFailed},
	}
	for _, tc := range tests {
		t.Run(tc.status, func(t *testing.T) {
			tr, _ := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != StartPath {
					t.Errorf("path = %s", r.URL.Path)
				}
				id := decodeFileID(t, r)
				_ = json.NewEncoder(w).Encode(map[string]any{"file_id": id, "status": tc.status})
			})
			job, err := tr.StartDownload(context.Background(), 70000)
			if err != nil {
				t.Fatal(err)
			}
			if job.Status != tc.want {
				t.Errorf("Status = %q, want %q", job.Status, tc.want)
			}
			if job.Error != "" {
				t.Errorf("Error = %q, want empty for a successful request", job.Error)
			}
		})
	}
}

func TestActions_FailureIsRecorded(t *testing.T) {
	tests := []struct {
		name string
		h    http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"boom"}`))
		}},
		{"malformed body", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr, _ := newTestTracker(t, tc.h)
			job, err := tr.CheckAvailability(context.Background(), 70000)
			if err != nil {
				t.Fatalf("error = %v, want nil (failure is in the job)", err)
			}
			if job.Status != types.JobFailed || job.Error == "" {
				t.Errorf("job = %+v, want Failed with error text", job)
			}
			if job.FileID != 70000 {
				t.Errorf("FileID = %d, want requested id", job.FileID)
			}
			if n := len(tr.List()); n != 1 {
				t.Errorf("List() has %d entries, want 1", n)
			}
		})
	}
}

func TestActions_UnreachableIsRecorded(t *testing.T) {
	c, err := apiclient.New("http://127.0.0.1:1", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	tr := New(c, 5, time.Second)
	job, err := tr.StartDownload(context.Background(), 70000)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != types.JobFailed || job.Error == "" {
		t.Errorf("job = %+v", job)
	}
}

func TestHistory_EvictsOldest(t *testing.T) {
	tr, _ := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		id := decodeFileID(t, r)
		_ = json.NewEncoder(w).Encode(map[string]any{"file_id": id, "available": true})
	})

	for i := int64(0); i < 6; i++ {
		if _, err := tr.CheckAvailability(context.Background(), 10000+i); err != nil {
			t.Fatal(err)
		}
	}
	list := tr.List()
	if len(list) != 5 {
		t.Fatalf("len = %d, want 5", len(list))
	}
	if list[0].FileID != 10005 || list[4].FileID != 10001 {
		t.Errorf("order = %d..%d, want 10005..10001", list[0].FileID, list[4].FileID)
	}
}

func TestBusy(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	tr, _ := newTestTracker(t, func(w http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-release
		_, _ = w.Write([]byte(`{"available":true}`))
	})

	if tr.Busy() {
		t.Fatal("Busy() before any action")
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = tr.CheckAvailability(context.Background(), 70000)
	}()
	<-entered
	if !tr.Busy() {
		t.Error("Busy() = false while a request is outstanding")
	}
	close(release)
	<-done
	if tr.Busy() {
		t.Error("Busy() = true after the action returned")
	}
}

func TestParseFileID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"70000", 70000, false},
		{" 10000 ", 10000, false},
		{"100000000", 100000000, false},
		{"9999", 0, true},
		{"100000001", 0, true},
		{"abc", 0, true},
		{"70000.5", 0, true},
		{"", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseFileID(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidFileID) {
				t.Errorf("ParseFileID(%q) error = %v, want ErrInvalidFileID", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseFileID(%q) = %d, %v; want %d", tc.in, got, err, tc.want)
		}
	}
}
