// Package metrics provides Prometheus metrics for go-sample-profiler.
//
// Every metric is owned by a Collector and registered on the registry it
// is built with, so tests and embedders can use isolated registries.
package metrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-sample-profiler/internal/sampler"
)

const namespace = "sample_profiler"

// Failure phases.
const (
	PhaseStart   = "start"
	PhaseCollect = "collect"
)

// Collector manages all Prometheus metrics for one profiling run.
type Collector struct {
	// Run overview
	info          *prometheus.GaugeVec
	targets       prometheus.Gauge
	elapsed       prometheus.Gauge
	activeSampler prometheus.Gauge

	// Lifecycle
	started        prometheus.Counter
	ready          prometheus.Counter
	timeouts       prometheus.Counter
	failures       *prometheus.CounterVec
	exits          *prometheus.CounterVec
	outputLines    prometheus.Counter
	readiness      prometheus.Histogram
	profileSeconds prometheus.Histogram

	// Pre-calculated readiness percentiles
	readyP50 prometheus.Gauge
	readyP95 prometheus.Gauge
	readyP99 prometheus.Gauge

	startTime time.Time

	mu            sync.Mutex
	readyDigest   *tdigest.TDigest
	readyMax      time.Duration
	active        int
	peakActive    int
	totalStarted  int64
	totalReady    int64
	totalTimeouts int64
	totalFailed   int64
	targetCount   int
	totalLines    int64
	exitCodes     map[int]int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version  string
	Profiler string
	Targets  int
}

// NewCollector creates a collector registered on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the profiling run (value always 1)",
		}, []string{"version", "profiler"}),
		targets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "targets",
			Help:      "Number of processes being profiled",
		}),
		elapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_elapsed_seconds",
			Help:      "Seconds since the run started",
		}),
		activeSampler: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "samplers_active",
			Help:      "Samplers currently attached to a target",
		}),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samplers_started_total",
			Help:      "Sampler subprocesses launched",
		}),
		ready: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samplers_ready_total",
			Help:      "Samplers that reported the readiness marker",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readiness_timeouts_total",
			Help:      "Samplers killed for not becoming ready in time",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sampler_failures_total",
			Help:      "Sampler failures by lifecycle phase",
		}, []string{"phase"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sampler_exits_total",
			Help:      "Sampler exits by category (success, error, signal)",
		}, []string{"category"}),
		outputLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_lines_total",
			Help:      "Console lines read from sampler subprocesses",
		}),
		readiness: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "readiness_seconds",
			Help:      "Time from launch until the sampler reported readiness",
			Buckets: []float64{
				0.05, 0.1, 0.25, 0.5, 0.75,
				1, 2.5, 5, 10, 30, 60, 120,
			},
		}),
		profileSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "profile_duration_seconds",
			Help:      "Time between readiness and the end of collection",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		readyP50: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "readiness_p50_seconds",
			Help:      "Readiness latency 50th percentile (median)",
		}),
		readyP95: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "readiness_p95_seconds",
			Help:      "Readiness latency 95th percentile",
		}),
		readyP99: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "readiness_p99_seconds",
			Help:      "Readiness latency 99th percentile",
		}),
		startTime:   time.Now(),
		readyDigest: tdigest.NewWithCompression(100),
		exitCodes:   make(map[int]int64),
	}

	registry.MustRegister(
		c.info,
		c.targets,
		c.elapsed,
		c.activeSampler,
		c.started,
		c.ready,
		c.timeouts,
		c.failures,
		c.exits,
		c.outputLines,
		c.readiness,
		c.profileSeconds,
		c.readyP50,
		c.readyP95,
		c.readyP99,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	c.info.WithLabelValues(version, cfg.Profiler).Set(1)
	c.SetTargets(cfg.Targets)

	// Pre-create label sets so they export as zero.
	for _, phase := range []string{PhaseStart, PhaseCollect} {
		c.failures.WithLabelValues(phase)
	}
	for _, category := range []string{"success", "error", "signal"} {
		c.exits.WithLabelValues(category)
	}

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// SetTargets records how many processes the run profiles. Targets are
// usually only known after discovery, so this may follow construction.
func (c *Collector) SetTargets(n int) {
	c.targets.Set(float64(n))

	c.mu.Lock()
	c.targetCount = n
	c.mu.Unlock()
}

// Targets returns the last value passed to SetTargets.
func (c *Collector) Targets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetCount
}

// SamplerStarted records a sampler launch.
func (c *Collector) SamplerStarted() {
	c.started.Inc()

	c.mu.Lock()
	c.totalStarted++
	c.mu.Unlock()
}

// SamplerReady records a sampler reaching readiness after latency.
func (c *Collector) SamplerReady(latency time.Duration) {
	c.ready.Inc()
	c.readiness.Observe(latency.Seconds())

	c.mu.Lock()
	c.totalReady++
	c.readyDigest.Add(latency.Seconds(), 1)
	if latency > c.readyMax {
		c.readyMax = latency
	}
	p50 := c.readyDigest.Quantile(0.50)
	p95 := c.readyDigest.Quantile(0.95)
	p99 := c.readyDigest.Quantile(0.99)
	c.setActiveLocked(c.active + 1)
	c.mu.Unlock()

	c.readyP50.Set(p50)
	c.readyP95.Set(p95)
	c.readyP99.Set(p99)
}

// SamplerFailed records a failure in the given phase. Readiness timeouts
// are additionally counted on their own.
func (c *Collector) SamplerFailed(phase string, err error) {
	c.failures.WithLabelValues(phase).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalFailed++
	if errors.Is(err, sampler.ErrReadinessTimeout) {
		c.timeouts.Inc()
		c.totalTimeouts++
	}
}

// RecordExit records a sampler leaving the run after running for d.
// Only a zero exit with a nil err counts as success. A failure with no
// known status (exitCode 0, err set) is counted as an error but left out
// of the exit code tally.
func (c *Collector) RecordExit(exitCode int, d time.Duration, err error) {
	category := "error"
	switch {
	case exitCode > 128:
		category = "signal"
	case exitCode == 0 && err == nil:
		category = "success"
	}
	c.exits.WithLabelValues(category).Inc()
	c.profileSeconds.Observe(d.Seconds())

	c.mu.Lock()
	if exitCode != 0 || err == nil {
		c.exitCodes[exitCode]++
	}
	c.setActiveLocked(c.active - 1)
	c.mu.Unlock()
}

// OutputLine records one console line from a sampler.
func (c *Collector) OutputLine() {
	c.outputLines.Inc()

	c.mu.Lock()
	c.totalLines++
	c.mu.Unlock()
}

// UpdateElapsed refreshes the run elapsed gauge.
func (c *Collector) UpdateElapsed() {
	c.elapsed.Set(time.Since(c.startTime).Seconds())
}

func (c *Collector) setActiveLocked(n int) {
	if n < 0 {
		n = 0
	}
	c.active = n
	if n > c.peakActive {
		c.peakActive = n
	}
	c.activeSampler.Set(float64(n))
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration     time.Duration
	Started      int64
	Ready        int64
	Timeouts     int64
	Failed       int64
	PeakActive   int
	OutputLines  int64
	ExitCodes    map[int]int64
	ReadinessP50 time.Duration
	ReadinessP95 time.Duration
	ReadinessP99 time.Duration
	ReadinessMax time.Duration
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:     time.Since(c.startTime),
		Started:      c.totalStarted,
		Ready:        c.totalReady,
		Timeouts:     c.totalTimeouts,
		Failed:       c.totalFailed,
		PeakActive:   c.peakActive,
		OutputLines:  c.totalLines,
		ExitCodes:    make(map[int]int64, len(c.exitCodes)),
		ReadinessMax: c.readyMax,
	}
	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}

	if c.totalReady > 0 {
		s.ReadinessP50 = secondsToDuration(c.readyDigest.Quantile(0.50))
		s.ReadinessP95 = secondsToDuration(c.readyDigest.Quantile(0.95))
		s.ReadinessP99 = secondsToDuration(c.readyDigest.Quantile(0.99))
	}
	return s
}

// Active returns the number of samplers currently attached.
func (c *Collector) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ExitCodeLabel formats an exit code for display.
func ExitCodeLabel(code int) string {
	if code > 128 {
		return strconv.Itoa(code) + " (signal " + strconv.Itoa(code-128) + ")"
	}
	return strconv.Itoa(code)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
