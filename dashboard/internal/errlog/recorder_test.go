package errlog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/delineate/dashboard/dashboard/internal/apiclient"
)

func newTestRecorder(t *testing.T, h http.HandlerFunc) *Recorder {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := apiclient.New(srv.URL, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return New(c, 5, time.Second)
}

func TestTriggerRemote_Messages(t *testing.T) {
	tests := []struct {
		name string
		h    http.HandlerFunc
		want string
	}{
		{
			name: "server error with message",
			h: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"message":"Sentry test error from download service"}`))
			},
			want: "Sentry test error from download service",
		},
		{
			name: "server error without message",
			h: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: MsgRemoteDefault,
		},
		{
			name: "success with message",
			h: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"message":"handled"}`))
			},
			want: "handled",
		},
		{
			name: "success without message",
			h: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"file_id":70000,"available":true}`))
			},
			want: MsgRemoteDefault,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRecorder(t, tc.h)
			e := r.TriggerRemote(context.Background())
			if e.Message != tc.want {
				t.Errorf("Message = %q, want %q", e.Message, tc.want)
			}
			if list := r.List(); len(list) != 1 || list[0].ID != e.ID {
				t.Errorf("List() = %+v", list)
			}
		})
	}
}

func TestTriggerRemote_Request(t *testing.T) {
	r := newTestRecorder(t, func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost || req.URL.Path != RemotePath {
			t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
		}
		if req.URL.Query().Get("sentry_test") != "true" {
			t.Errorf("query = %q, want sentry_test=true", req.URL.RawQuery)
		}
		w.WriteHeader(http.StatusInternalServerError)
	})
	r.TriggerRemote(context.Background())
}

func TestTriggerRemote_Unreachable(t *testing.T) {
	c, err := apiclient.New("http://127.0.0.1:1", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	r := New(c, 5, time.Second)
	e := r.TriggerRemote(context.Background())
	if e.Message == "" || e.Message == MsgRemoteDefault {
		t.Errorf("Message = %q, want the transport error text", e.Message)
	}
}

func TestTriggerLocal_RecordsThenPanics(t *testing.T) {
	r := newTestRecorder(t, func(http.ResponseWriter, *http.Request) {})

	defer func() {
		v := recover()
		var le *LocalError
		err, ok := v.(error)
		if !ok || !errors.As(err, &le) {
			t.Fatalf("recovered %v, want *LocalError", v)
		}
		if le.Entry.Message != MsgLocal {
			t.Errorf("Message = %q", le.Entry.Message)
		}
		list := r.List()
		if len(list) != 1 || list[0].ID != le.Entry.ID {
			t.Errorf("entry not recorded before the panic: %+v", list)
		}
	}()
	r.TriggerLocal()
	t.Fatal("TriggerLocal returned")
}

func TestHistory_Bounded(t *testing.T) {
	r := newTestRecorder(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	for i := 0; i < 7; i++ {
		r.TriggerRemote(context.Background())
	}
	if n := len(r.List()); n != 5 {
		t.Errorf("len = %d, want 5", n)
	}
	if r.Busy() {
		t.Error("Busy() after all triggers returned")
	}
}
