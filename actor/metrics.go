package actor

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync/atomic"
	"time"
)

// Metrics collects and exposes the container's runtime metrics: message
// counts, a latency histogram, restart count, and uptime. Every counter
// is atomic, so recording never contends with a concurrent Send or
// deliverRequest. The exposition format is Prometheus text, served via
// EnableMetrics.
type Metrics struct {
	startedAtUnix atomic.Int64
	msgOut        atomic.Uint64
	msgIn         atomic.Uint64
	restarts      atomic.Uint64

	latBuckets []time.Duration
	latCounts  []atomic.Uint64
	latSumNS   atomic.Uint64
}

// NewMetrics creates a collector with latency buckets spanning 10us to
// 100ms, a range that fits typical actor round-trip latencies.
func NewMetrics() *Metrics {
	b := []time.Duration{
		10 * time.Microsecond,
		50 * time.Microsecond,
		100 * time.Microsecond,
		500 * time.Microsecond,
		1 * time.Millisecond,
		2 * time.Millisecond,
		5 * time.Millisecond,
		10 * time.Millisecond,
		20 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
	}
	return &Metrics{
		latBuckets: b,
		latCounts:  make([]atomic.Uint64, len(b)+1),
	}
}

// MarkStart records the container's start time; only the first call
// takes effect.
func (m *Metrics) MarkStart() {
	if m.startedAtUnix.Load() == 0 {
		m.startedAtUnix.Store(time.Now().Unix())
	}
}

// IncOut increments the outbound message counter.
func (m *Metrics) IncOut() { m.msgOut.Add(1) }

// IncIn increments the inbound message counter.
func (m *Metrics) IncIn() { m.msgIn.Add(1) }

// IncRestart increments the actor restart counter.
func (m *Metrics) IncRestart() { m.restarts.Add(1) }

// ObserveLatency records one latency sample into its histogram bucket
// and the running sum.
func (m *Metrics) ObserveLatency(d time.Duration) {
	if d < 0 {
		return
	}
	m.latSumNS.Add(uint64(d.Nanoseconds()))
	i := sort.Search(len(m.latBuckets), func(i int) bool { return d <= m.latBuckets[i] })
	m.latCounts[i].Add(1)
}

// EnableMetrics starts serving c's metrics in Prometheus text-exposition
// format at addr (default :9090). Metrics are only collected once
// Set("stats", "on") has created c.metrics; calling EnableMetrics first
// forces that creation too.
func (c *Container) EnableMetrics(addr string) error {
	if addr == "" {
		addr = ":9090"
	}
	if c.metrics == nil {
		c.metrics = NewMetrics()
	}
	c.metrics.MarkStart()
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) { c.writeMetrics(w) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
	return nil
}

// writeMetrics writes c's metrics in Prometheus text-exposition format:
// message counts, restarts, a latency histogram, and uptime.
func (c *Container) writeMetrics(w http.ResponseWriter) {
	if c.metrics == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	now := time.Now()

	_, _ = fmt.Fprintln(w, "# TYPE actorcontainer_messages_out_total counter")
	_, _ = fmt.Fprintln(w, "actorcontainer_messages_out_total", c.metrics.msgOut.Load())
	_, _ = fmt.Fprintln(w, "# TYPE actorcontainer_messages_in_total counter")
	_, _ = fmt.Fprintln(w, "actorcontainer_messages_in_total", c.metrics.msgIn.Load())
	_, _ = fmt.Fprintln(w, "# TYPE actorcontainer_restarts_total counter")
	_, _ = fmt.Fprintln(w, "actorcontainer_restarts_total", c.metrics.restarts.Load())

	_, _ = fmt.Fprintln(w, "# TYPE actorcontainer_latency_seconds histogram")
	var cum uint64
	for i, b := range c.metrics.latBuckets {
		cum += c.metrics.latCounts[i].Load()
		_, _ = fmt.Fprintln(w, "actorcontainer_latency_seconds_bucket{le=\""+strconv.FormatFloat(b.Seconds(), 'f', -1, 64)+"\"}", cum)
	}
	cum += c.metrics.latCounts[len(c.metrics.latBuckets)].Load()
	_, _ = fmt.Fprintln(w, "actorcontainer_latency_seconds_bucket{le=\"+Inf\"}", cum)
	_, _ = fmt.Fprintln(w, "actorcontainer_latency_seconds_sum", float64(c.metrics.latSumNS.Load())/1e9)
	_, _ = fmt.Fprintln(w, "actorcontainer_latency_seconds_count", cum)

	_, _ = fmt.Fprintln(w, "# TYPE actorcontainer_uptime_seconds gauge")
	started := c.metrics.startedAtUnix.Load()
	if started == 0 {
		started = now.Unix()
	}
	_, _ = fmt.Fprintln(w, "actorcontainer_uptime_seconds", now.Sub(time.Unix(started, 0)).Seconds())
}
