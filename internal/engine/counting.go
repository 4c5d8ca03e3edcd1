// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultQuietPeriod is how long the counters must stay at parity before
// they are reset.
const DefaultQuietPeriod = 250 * time.Millisecond

// Metrics are the Prometheus collectors updated by Counting.
type Metrics struct {
	Issued    prometheus.Counter
	Completed prometheus.Counter
	Failed    prometheus.Counter
	InFlight  prometheus.Gauge
	Duration  prometheus.Histogram
}

// NewMetrics registers the query collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Issued: f.NewCounter(prometheus.CounterOpts{
			Name: "traceview_queries_issued_total",
			Help: "Number of queries sent to the trace engine",
		}),
		Completed: f.NewCounter(prometheus.CounterOpts{
			Name: "traceview_queries_completed_total",
			Help: "Number of queries that returned a result",
		}),
		Failed: f.NewCounter(prometheus.CounterOpts{
			Name: "traceview_queries_failed_total",
			Help: "Number of queries whose result carried an error",
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "traceview_queries_in_flight",
			Help: "Number of queries currently executing",
		}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "traceview_query_duration_seconds",
			Help:    "Query execution time",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
	}
}

// Counting wraps an Engine and keeps issued/completed counters for status
// display. Once the counters reach parity and stay there for the quiet
// period they are reset to zero.
type Counting struct {
	engine   Engine
	quiet    time.Duration
	metrics  *Metrics
	onStatus func(string)

	scheduled atomic.Int64
	done      atomic.Int64
	// gen changes on every counter update; a pending reset only runs if
	// nothing happened since it was armed.
	gen atomic.Uint64

	mu     sync.Mutex
	status string
}

// CountingOption configures a Counting engine.
type CountingOption func(*Counting)

// WithQuietPeriod overrides DefaultQuietPeriod.
func WithQuietPeriod(d time.Duration) CountingOption {
	return func(c *Counting) { c.quiet = d }
}

// WithMetrics reports every query to m.
func WithMetrics(m *Metrics) CountingOption {
	return func(c *Counting) { c.metrics = m }
}

// WithStatusFunc calls fn whenever the status text changes.
func WithStatusFunc(fn func(string)) CountingOption {
	return func(c *Counting) { c.onStatus = fn }
}

// NewCounting wraps e.
func NewCounting(e Engine, opts ...CountingOption) *Counting {
	c := &Counting{engine: e, quiet: DefaultQuietPeriod}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query implements Engine.
func (c *Counting) Query(ctx context.Context, query string) *Result {
	c.scheduled.Add(1)
	if c.metrics != nil {
		c.metrics.Issued.Inc()
		c.metrics.InFlight.Inc()
	}
	c.update()

	start := time.Now()
	r := c.engine.Query(ctx, query)

	c.done.Add(1)
	if c.metrics != nil {
		c.metrics.InFlight.Dec()
		c.metrics.Completed.Inc()
		c.metrics.Duration.Observe(time.Since(start).Seconds())
		if r.Error != "" {
			c.metrics.Failed.Inc()
		}
	}
	c.update()
	return r
}

// Counts returns the completed and issued counters.
func (c *Counting) Counts() (done, scheduled int64) {
	return c.done.Load(), c.scheduled.Load()
}

// Status returns the current status text, "" when idle.
func (c *Counting) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Counting) update() {
	gen := c.gen.Add(1)
	d, s := c.Counts()

	text := ""
	if s != 0 {
		text = fmt.Sprintf("Queries: %d/%d", d, s)
	}
	c.mu.Lock()
	changed := text != c.status
	c.status = text
	c.mu.Unlock()
	if changed && c.onStatus != nil {
		c.onStatus(text)
	}

	if s != 0 && d == s {
		time.AfterFunc(c.quiet, func() { c.reset(gen) })
	}
}

func (c *Counting) reset(gen uint64) {
	if c.gen.Load() != gen {
		return
	}
	dd := c.done.Load()
	if c.scheduled.CompareAndSwap(dd, 0) {
		c.done.Add(-dd)
		c.update()
	}
}
