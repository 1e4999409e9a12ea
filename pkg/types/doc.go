// Package types defines the Go types shared by the dashboard packages and its
// JSON API. These are the canonical in-memory representations of health,
// job and error records, separate from the remote service's wire format.
package types
