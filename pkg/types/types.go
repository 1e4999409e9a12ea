package types

import "time"

// Health status values reported by the remote service's /health endpoint.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	CheckOK    = "ok"
	CheckError = "error"
)

// HealthStatus is the document returned by GET /health.
type HealthStatus struct {
	Status string       `json:"status"`
	Checks HealthChecks `json:"checks"`
}

// HealthChecks holds per-dependency check results.
type HealthChecks struct {
	Storage string `json:"storage"`
}

// UnhealthyStatus is the fallback reported whenever a health poll fails.
func UnhealthyStatus() HealthStatus {
	return HealthStatus{
		Status: StatusUnhealthy,
		Checks: HealthChecks{Storage: CheckError},
	}
}

// Healthy reports whether the overall status is "healthy".
func (h HealthStatus) Healthy() bool { return h.Status == StatusHealthy }

// JobStatus is the terminal outcome of one check or start action.
type JobStatus string

const (
	JobAvailable    JobStatus = "Available"
	JobNotAvailable JobStatus = "NotAvailable"
	JobCompleted    JobStatus = "Completed"
	JobFailed       JobStatus = "Failed"
)

// TimestampLayout is the wall-clock format used for Job and ErrorEntry timestamps.
const TimestampLayout = "15:04:05"

// Job is the immutable record produced by one availability check or download start.
type Job struct {
	ID        string    `json:"id"`
	FileID    int64     `json:"file_id"`
	Status    JobStatus `json:"status"`
	Timestamp string    `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`

	// Error is set when the request behind this record failed.
	Error string `json:"error,omitempty"`
}

// ErrorEntry is the immutable record produced by one error trigger.
type ErrorEntry struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// MetricSnapshot maps allow-listed metric names to their scraped values.
// Every allow-listed name is present; names absent from the payload are 0.
type MetricSnapshot map[string]int64
