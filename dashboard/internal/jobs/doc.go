// Package jobs issues operator-initiated availability checks and download
// starts against the remote service and keeps the last few outcomes.
//
// Every action that passes validation produces exactly one terminal
// types.Job, including actions whose request failed: those are recorded
// with status Failed and the failure text in Job.Error. Input that fails
// validation is rejected with ErrInvalidFileID before any request is made
// and is never recorded.
package jobs
