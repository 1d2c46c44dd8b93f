package tools

import (
	"context"
	"errors"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	fserrors "fsgate/internal/shared/errors"
)

// windowSize bounds the recent calls kept per tool for rates and percentiles.
const windowSize = 100

// ToolSLA is a point-in-time view of one tool's recent behavior.
type ToolSLA struct {
	ToolName    string           `json:"toolName"`
	CallCount   int64            `json:"callCount"`
	SuccessRate float64          `json:"successRate"`
	ErrorRate   float64          `json:"errorRate"`
	P50Latency  time.Duration    `json:"p50Latency"`
	P95Latency  time.Duration    `json:"p95Latency"`
	P99Latency  time.Duration    `json:"p99Latency"`
	Failures    map[string]int64 `json:"failures,omitempty"`
}

type sample struct {
	ok      bool
	latency time.Duration
}

// toolStats holds a ring of recent samples plus lifetime counters.
type toolStats struct {
	ring     []sample
	next     int
	filled   bool
	calls    int64
	failures map[string]int64
}

func (s *toolStats) add(v sample, kind string) {
	if s.ring == nil {
		s.ring = make([]sample, windowSize)
	}
	s.ring[s.next] = v
	s.next++
	if s.next == len(s.ring) {
		s.next = 0
		s.filled = true
	}
	s.calls++
	if !v.ok {
		if s.failures == nil {
			s.failures = make(map[string]int64)
		}
		s.failures[kind]++
	}
}

func (s *toolStats) recent() []sample {
	if s.filled {
		return s.ring
	}
	return s.ring[:s.next]
}

func (s *toolStats) successRate() float64 {
	window := s.recent()
	if len(window) == 0 {
		return 0
	}
	ok := 0
	for _, v := range window {
		if v.ok {
			ok++
		}
	}
	return float64(ok) / float64(len(window))
}

// nearestRank returns the p-th percentile of sorted latencies.
func nearestRank(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}

func (s *toolStats) snapshot(name string) ToolSLA {
	window := s.recent()
	latencies := make([]time.Duration, len(window))
	for i, v := range window {
		latencies[i] = v.latency
	}
	slices.Sort(latencies)

	rate := s.successRate()
	out := ToolSLA{
		ToolName:    name,
		CallCount:   s.calls,
		SuccessRate: rate,
		ErrorRate:   1 - rate,
		P50Latency:  nearestRank(latencies, 50),
		P95Latency:  nearestRank(latencies, 95),
		P99Latency:  nearestRank(latencies, 99),
	}
	if len(s.failures) > 0 {
		out.Failures = make(map[string]int64, len(s.failures))
		for k, v := range s.failures {
			out.Failures[k] = v
		}
	}
	return out
}

// SLACollector tracks per-tool latency and outcomes. Prometheus series
// cover the lifetime of the process; snapshots cover the recent window.
type SLACollector struct {
	latency *prometheus.HistogramVec
	calls   *prometheus.CounterVec
	errs    *prometheus.CounterVec
	success *prometheus.GaugeVec

	mu    sync.RWMutex
	stats map[string]*toolStats
}

// NewSLACollector registers the tool series on registerer, falling back to
// the default registerer when nil. Collectors sharing a registry share series.
func NewSLACollector(registerer prometheus.Registerer) *SLACollector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: "fsgate", Subsystem: "tool_sla", Name: name, Help: help}
	}
	latencyOpts := opts("latency_seconds", "File tool latency by tool and outcome.")

	return &SLACollector{
		latency: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: latencyOpts.Namespace,
			Subsystem: latencyOpts.Subsystem,
			Name:      latencyOpts.Name,
			Help:      latencyOpts.Help,
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"tool_name", "status"})),
		calls: register(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("calls_total", "File tool calls by tool.")), []string{"tool_name"})),
		errs: register(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("errors_total", "Failed file tool calls by tool and failure kind.")), []string{"tool_name", "error_type"})),
		success: register(registerer, prometheus.NewGaugeVec(
			prometheus.GaugeOpts(opts("success_rate", "Success rate over the last 100 calls.")), []string{"tool_name"})),
		stats: make(map[string]*toolStats),
	}
}

// RecordExecution records one call. A nil collector ignores it.
func (c *SLACollector) RecordExecution(toolName string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	status, kind := "success", ""
	if err != nil {
		status, kind = "error", classifyError(err)
		c.errs.WithLabelValues(toolName, kind).Inc()
	}
	c.latency.WithLabelValues(toolName, status).Observe(duration.Seconds())
	c.calls.WithLabelValues(toolName).Inc()

	c.mu.Lock()
	s, ok := c.stats[toolName]
	if !ok {
		s = &toolStats{}
		c.stats[toolName] = s
	}
	s.add(sample{ok: err == nil, latency: duration}, kind)
	rate := s.successRate()
	c.mu.Unlock()

	c.success.WithLabelValues(toolName).Set(rate)
}

// GetSLA returns the snapshot for one tool. Unknown tools and a nil
// collector yield a zero snapshot carrying the name.
func (c *SLACollector) GetSLA(toolName string) ToolSLA {
	if c == nil {
		return ToolSLA{ToolName: toolName}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.stats[toolName]
	if !ok {
		return ToolSLA{ToolName: toolName}
	}
	return s.snapshot(toolName)
}

// Snapshot returns every tool seen so far, sorted by name.
func (c *SLACollector) Snapshot() []ToolSLA {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ToolSLA, 0, len(c.stats))
	for name, s := range c.stats {
		out = append(out, s.snapshot(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolName < out[j].ToolName })
	return out
}

func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

// classifyError labels a failure by its kind, or by context state.
func classifyError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	if kind := fserrors.KindOf(err); kind != fserrors.KindUnknown {
		return string(kind)
	}
	return "unknown"
}
