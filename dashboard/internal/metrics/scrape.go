package metrics

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/delineate/dashboard/pkg/types"
)

// Allow-listed metric names.
const (
	HTTPRequestsTotal = "http_requests_total"
	ActiveDownloads   = "active_downloads"
)

// Metric is one allow-list entry.
type Metric struct {
	Name string

	// Labeled selects records written as name{labels} value, including an
	// empty name{}; otherwise only bare "name value" records match.
	Labeled bool

	pattern *regexp.Regexp
}

// AllowList is the fixed set of metrics the dashboard extracts.
var AllowList = []Metric{
	newMetric(HTTPRequestsTotal, true),
	newMetric(ActiveDownloads, false),
}

func newMetric(name string, labeled bool) Metric {
	labels := ""
	if labeled {
		labels = `\{[^}]*\}`
	}
	return Metric{
		Name:    name,
		Labeled: labeled,
		pattern: regexp.MustCompile(`^` + regexp.QuoteMeta(name) + labels + `\s+(\S+)`),
	}
}

// Scrape extracts the allow-listed metrics from a text exposition payload.
// Every allow-listed name is present in the result; a name with no matching
// record, or whose first matching record has a malformed value, is 0.
// Scrape never panics and never fails.
func Scrape(raw string) types.MetricSnapshot {
	snap := make(types.MetricSnapshot, len(AllowList))
	for _, m := range AllowList {
		snap[m.Name] = 0
	}
	if strings.TrimSpace(raw) == "" {
		return snap
	}

	// The parser treats a missing final newline as a truncated stream.
	if !strings.HasSuffix(raw, "\n") {
		raw += "\n"
	}

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(strings.NewReader(raw))
	if err != nil {
		// Not valid exposition text; fall back to matching records line by line.
		for _, m := range AllowList {
			snap[m.Name] = m.matchLines(raw)
		}
		return snap
	}
	for _, m := range AllowList {
		snap[m.Name] = m.first(mfs[m.Name], raw)
	}
	return snap
}

// first returns the value of the first record in mf that fits the entry.
// The parser reports "name{}" and "name" both without labels, so a family
// holding an unlabeled record is resolved against the raw lines instead.
func (m Metric) first(mf *dto.MetricFamily, raw string) int64 {
	if mf == nil {
		return 0
	}
	for _, rec := range mf.GetMetric() {
		if len(rec.GetLabel()) == 0 {
			return m.matchLines(raw)
		}
	}
	if !m.Labeled || len(mf.GetMetric()) == 0 {
		return 0
	}
	return toInt(sampleValue(mf.GetMetric()[0]))
}

// matchLines scans raw for the first record matching the entry's pattern.
func (m Metric) matchLines(raw string) int64 {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sub := m.pattern.FindStringSubmatch(line)
		if sub == nil {
			continue
		}
		v, err := strconv.ParseFloat(sub[1], 64)
		if err != nil {
			return 0
		}
		return toInt(v)
	}
	return 0
}

// sampleValue returns the value of a counter, gauge, or untyped sample.
func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}

// toInt truncates v towards zero; NaN and out-of-range values become 0.
func toInt(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v >= math.MaxInt64 || v < math.MinInt64 {
		return 0
	}
	return int64(v)
}
