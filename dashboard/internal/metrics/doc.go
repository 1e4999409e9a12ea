// Package metrics extracts a small allow-list of values from the remote
// service's Prometheus text exposition (GET /metrics).
//
// Scrape is not a general parser: for each allow-listed name
// (http_requests_total{...}, active_downloads) it takes the first matching
// record and truncates its value to an integer, defaulting to 0. An empty
// label set counts as labeled: http_requests_total{} 5 yields 5 while
// active_downloads{} 3 yields 0. Payloads the exposition parser rejects are
// matched line by line instead, so Scrape never fails.
//
// Poller fetches the endpoint every 10s by default. A failed fetch yields a
// State with Available=false rather than an empty snapshot.
package metrics
