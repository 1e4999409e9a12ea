// Package api implements the dashboard's HTTP JSON API on gin.
//
// New(dashboard, opts) returns an http.Handler that serves:
//
//	GET  /api/v1/state          full view snapshot (dashboard.Snapshot)
//	GET  /api/v1/health         latest health poll; 503 before the first poll
//	GET  /api/v1/metrics        latest metrics fetch; 503 before the first fetch
//	GET  /api/v1/jobs           job history, newest first
//	POST /api/v1/jobs/check     {"file_id":N}; 400 for an invalid id
//	POST /api/v1/jobs/start     {"file_id":N}; 400 for an invalid id
//	GET  /api/v1/errors         error history, newest first
//	POST /api/v1/errors/remote  ask the service to fail on purpose
//	POST /api/v1/errors/local   fail inside the dashboard (panics, 500)
//	POST /api/v1/upload         multipart "file" forwarded to the service
//	GET  /api/v1/links          operator links (trace UI, metrics UI)
//	GET  /ws/stream             Options.Stream, when set
//
// Job and error actions answer 200 with the recorded entry even when the
// remote request failed; the failure is part of the entry.
package api
