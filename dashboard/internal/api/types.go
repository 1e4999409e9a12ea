package api

import (
	"encoding/json"

	"github.com/delineate/dashboard/pkg/types"
)

// fileRequest is the body of POST /api/v1/jobs/{check,start}. file_id may
// be sent as a JSON number or a numeric string.
type fileRequest struct {
	FileID json.Number `json:"file_id"`
}

// JobsResponse is the payload for GET /api/v1/jobs.
type JobsResponse struct {
	Jobs []types.Job `json:"jobs"`
	Busy bool        `json:"busy"`
}

// ErrorsResponse is the payload for GET /api/v1/errors.
type ErrorsResponse struct {
	Errors []types.ErrorEntry `json:"errors"`
	Busy   bool               `json:"busy"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
