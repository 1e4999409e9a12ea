package metrics

import "testing"

// serviceMetrics is a realistic subset of the download service's /metrics output.
const serviceMetrics = `
# HELP http_requests_total Total number of HTTP requests.
# TYPE http_requests_total counter
http_requests_total{method="GET",route="/health",status="200"} 1532
http_requests_total{method="POST",route="/v1/download/check",status="200"} 87

# HELP active_downloads Downloads currently in progress.
# TYPE active_downloads gauge
active_downloads 3

# HELP process_resident_memory_bytes Resident memory size in bytes.
# TYPE process_resident_memory_bytes gauge
process_resident_memory_bytes 5.4e+07
`

func TestScrape_ServicePayload(t *testing.T) {
	snap := Scrape(serviceMetrics)

	// First matching record wins; series are not summed.
	if got := snap[HTTPRequestsTotal]; got != 1532 {
		t.Errorf("%s = %d, want 1532", HTTPRequestsTotal, got)
	}
	if got := snap[ActiveDownloads]; got != 3 {
		t.Errorf("%s = %d, want 3", ActiveDownloads, got)
	}
	if _, ok := snap["process_resident_memory_bytes"]; ok {
		t.Error("non allow-listed metric leaked into snapshot")
	}
}

func TestScrape_SingleBareRecord(t *testing.T) {
	snap := Scrape("active_downloads 7")

	if got := snap[ActiveDownloads]; got != 7 {
		t.Errorf("%s = %d, want 7", ActiveDownloads, got)
	}
	if got := snap[HTTPRequestsTotal]; got != 0 {
		t.Errorf("%s = %d, want 0", HTTPRequestsTotal, got)
	}
	if len(snap) != len(AllowList) {
		t.Errorf("snapshot has %d keys, want %d", len(snap), len(AllowList))
	}
}

func TestScrape_Empty(t *testing.T) {
	snap := Scrape("")
	for _, m := range AllowList {
		v, ok := snap[m.Name]
		if !ok {
			t.Errorf("%s missing from empty snapshot", m.Name)
		}
		if v != 0 {
			t.Errorf("%s = %d, want 0", m.Name, v)
		}
	}
}

func TestScrape_Cases(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		requests int64
		active   int64
	}{
		{
			name:     "unlabeled requests total is ignored",
			raw:      "http_requests_total 99\nactive_downloads 1\n",
			requests: 0,
			active:   1,
		},
		{
			name:     "labeled active downloads is ignored",
			raw:      "active_downloads{node=\"a\"} 4\nactive_downloads 2\n",
			requests: 0,
			active:   2,
		},
		{
			name:     "fractional value truncated",
			raw:      "active_downloads 2.9\n",
			active:   2,
		},
		{
			name:     "malformed value falls back to zero",
			raw:      "active_downloads banana\nhttp_requests_total{code=\"200\"} 12\n",
			requests: 12,
			active:   0,
		},
		{
			name:     "garbage payload",
			raw:      "<html><body>502 Bad Gateway</body></html>",
			requests: 0,
			active:   0,
		},
		{
			name:     "NaN value",
			raw:      "active_downloads NaN\n",
			active:   0,
		},
		{
			name:     "timestamped record",
			raw:      "http_requests_total{code=\"200\"} 41 1700000000000\n",
			requests: 41,
		},
		{
			name:     "empty label set counts as labeled",
			raw:      "http_requests_total{} 5\nactive_downloads{} 3\n",
			requests: 5,
			active:   0,
		},
		{
			name:     "bare record before empty braces",
			raw:      "http_requests_total 1\nhttp_requests_total{} 6\nactive_downloads 2\n",
			requests: 6,
			active:   2,
		},
		{
			name:     "first braced record wins",
			raw:      "http_requests_total{code=\"200\"} 7\nhttp_requests_total{} 5\n",
			requests: 7,
		},
		{
			name: "similar names do not match",
			raw: "active_downloads_total 8\n" +
				"http_requests_total_created{code=\"200\"} 1.7e9\n",
			requests: 0,
			active:   0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap := Scrape(tc.raw)
			if got := snap[HTTPRequestsTotal]; got != tc.requests {
				t.Errorf("%s = %d, want %d", HTTPRequestsTotal, got, tc.requests)
			}
			if got := snap[ActiveDownloads]; got != tc.active {
				t.Errorf("%s = %d, want %d", ActiveDownloads, got, tc.active)
			}
		})
	}
}

func TestScrape_FreshSnapshotEachCall(t *testing.T) {
	first := Scrape("active_downloads 5\nhttp_requests_total{a=\"b\"} 10\n")
	second := Scrape("active_downloads 1\n")

	if second[HTTPRequestsTotal] != 0 {
		t.Errorf("value carried over from previous scrape: %d", second[HTTPRequestsTotal])
	}
	if first[ActiveDownloads] != 5 {
		t.Errorf("previous snapshot mutated: %d", first[ActiveDownloads])
	}
}
