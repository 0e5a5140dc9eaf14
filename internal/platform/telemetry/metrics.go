package telemetry

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// durationBuckets are request duration bounds in seconds.
var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// histogram stores non-cumulative bucket counts; export makes them cumulative.
type histogram struct {
	mu      sync.Mutex
	bounds  []float64
	buckets []int64
	count   int64
	sum     float64
}

func newHistogram(bounds []float64) *histogram {
	return &histogram{bounds: bounds, buckets: make([]int64, len(bounds))}
}

func (h *histogram) observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range h.bounds {
		if v <= b {
			h.buckets[i]++
			return
		}
	}
}

func (h *histogram) snapshot() (cum []int64, count int64, sum float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum = make([]int64, len(h.buckets))
	var running int64
	for i, c := range h.buckets {
		running += c
		cum[i] = running
	}
	return cum, h.count, h.sum
}

type gaugeFunc struct {
	name string
	help string
	fn   func() float64
}

// Metrics collects HTTP server metrics plus named counters and sampled
// gauges, and renders them in Prometheus text format.
type Metrics struct {
	active atomic.Int64

	mu        sync.RWMutex
	durations map[string]*histogram
	counters  map[string]int64
	gauges    []gaugeFunc
}

func NewMetrics() *Metrics {
	return &Metrics{
		durations: make(map[string]*histogram),
		counters:  make(map[string]int64),
	}
}

// labelsKey joins label values; "|" never appears in a method or route.
func labelsKey(parts ...string) string { return strings.Join(parts, "|") }

// Inc adds one to the counter name with the given label pairs
// ("key", "value", ...).
func (m *Metrics) Inc(name string, labelPairs ...string) {
	key := labelsKey(append([]string{name}, labelPairs...)...)
	m.mu.Lock()
	m.counters[key]++
	m.mu.Unlock()
}

// Counter returns the current value of a counter.
func (m *Metrics) Counter(name string, labelPairs ...string) int64 {
	key := labelsKey(append([]string{name}, labelPairs...)...)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[key]
}

// GaugeFunc registers a gauge sampled at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	m.mu.Lock()
	m.gauges = append(m.gauges, gaugeFunc{name: name, help: help, fn: fn})
	m.mu.Unlock()
}

// Requests is the number of recorded requests for method, route and status.
func (m *Metrics) Requests(method, route string, status int) int64 {
	m.mu.RLock()
	h := m.durations[labelsKey(method, route, strconv.Itoa(status))]
	m.mu.RUnlock()
	if h == nil {
		return 0
	}
	_, count, _ := h.snapshot()
	return count
}

func (m *Metrics) observe(method, route string, status int, d time.Duration) {
	key := labelsKey(method, route, strconv.Itoa(status))
	m.mu.RLock()
	h := m.durations[key]
	m.mu.RUnlock()
	if h == nil {
		m.mu.Lock()
		if h = m.durations[key]; h == nil {
			h = newHistogram(durationBuckets)
			m.durations[key] = h
		}
		m.mu.Unlock()
	}
	h.observe(d.Seconds())
}

// Middleware records duration by route pattern and the in-flight count.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.active.Add(1)
			defer m.active.Add(-1)

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.observe(c.Request().Method, route, status, time.Since(start))
			return err
		}
	}
}

// Handler serves the registry in Prometheus text exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.Blob(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(m.render()))
	}
}

func (m *Metrics) render() string {
	var b strings.Builder

	m.mu.RLock()
	durKeys := sortedKeys(m.durations)
	durs := make([]*histogram, len(durKeys))
	for i, k := range durKeys {
		durs[i] = m.durations[k]
	}
	ctrKeys := sortedKeys(m.counters)
	ctrs := make([]int64, len(ctrKeys))
	for i, k := range ctrKeys {
		ctrs[i] = m.counters[k]
	}
	gauges := append([]gaugeFunc(nil), m.gauges...)
	m.mu.RUnlock()

	const durName = "http_server_request_duration_seconds"
	fmt.Fprintf(&b, "# HELP %s Duration of HTTP requests in seconds.\n", durName)
	fmt.Fprintf(&b, "# TYPE %s histogram\n", durName)
	for i, key := range durKeys {
		parts := strings.SplitN(key, "|", 3)
		labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", parts[0], parts[1], parts[2])
		writeHistogram(&b, durName, labels, durs[i])
	}
	b.WriteByte('\n')

	b.WriteString("# HELP http_server_active_requests Number of in-flight HTTP requests.\n")
	b.WriteString("# TYPE http_server_active_requests gauge\n")
	fmt.Fprintf(&b, "http_server_active_requests %d\n\n", m.active.Load())

	typed := make(map[string]bool)
	for i, key := range ctrKeys {
		parts := strings.Split(key, "|")
		name := promName(parts[0]) + "_total"
		if !typed[name] {
			fmt.Fprintf(&b, "# TYPE %s counter\n", name)
			typed[name] = true
		}
		fmt.Fprintf(&b, "%s%s %d\n", name, formatLabels(parts[1:]), ctrs[i])
	}
	if len(ctrKeys) > 0 {
		b.WriteByte('\n')
	}

	for _, g := range gauges {
		name := promName(g.name)
		fmt.Fprintf(&b, "# HELP %s %s\n", name, g.help)
		fmt.Fprintf(&b, "# TYPE %s gauge\n", name)
		fmt.Fprintf(&b, "%s %s\n", name, formatFloat(g.fn()))
	}
	return b.String()
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum, count, sum := h.snapshot()
	for i, bound := range h.bounds {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, bound, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, count)
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, sum)
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, count)
}

// formatLabels renders alternating key/value pairs; an odd trailing key is
// dropped.
func formatLabels(pairs []string) string {
	if len(pairs) < 2 {
		return ""
	}
	out := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, fmt.Sprintf("%s=%q", promName(pairs[i]), pairs[i+1]))
	}
	return "{" + strings.Join(out, ",") + "}"
}

// promName maps dotted names to Prometheus identifiers.
func promName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
