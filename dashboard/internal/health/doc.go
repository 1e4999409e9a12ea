// Package health polls the remote service's GET /health endpoint.
//
// Poll never fails: transport errors, timeouts, non-2xx responses and
// malformed bodies all collapse into types.UnhealthyStatus(). Run repeats the
// poll on a fixed interval (5s by default) until its context is cancelled and
// tracks an uptime percentage over the last 20 outcomes.
package health
