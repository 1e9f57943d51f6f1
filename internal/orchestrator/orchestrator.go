// Package orchestrator drives one profiling run end to end: target
// discovery, preflight, sampler startup, the wait, collection, and the
// exit report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-sample-profiler/internal/config"
	"github.com/randomizedcoder/go-sample-profiler/internal/metrics"
	"github.com/randomizedcoder/go-sample-profiler/internal/preflight"
	"github.com/randomizedcoder/go-sample-profiler/internal/process"
	"github.com/randomizedcoder/go-sample-profiler/internal/profiler"
	"github.com/randomizedcoder/go-sample-profiler/internal/sampler"
	"github.com/randomizedcoder/go-sample-profiler/internal/stats"
	"github.com/randomizedcoder/go-sample-profiler/internal/tui"
)

var (
	// ErrUnknownProfiler means the configured profiler is not registered.
	ErrUnknownProfiler = errors.New("unknown profiler")

	// ErrUnsupported means the profiler cannot run under the current
	// platform and browser type.
	ErrUnsupported = errors.New("profiler not supported")

	// ErrPreflight means at least one preflight check failed.
	ErrPreflight = errors.New("preflight checks failed (use --skip-preflight to override)")
)

// Options overrides collaborators. The zero value uses real ones.
type Options struct {
	Version string

	// Registry defaults to profiler.DefaultRegistry.
	Registry *profiler.Registry

	// Runner defaults to a SampleRunner built from the config.
	Runner process.Runner

	// Resolver overrides target discovery.
	Resolver process.Resolver

	// Out receives preflight results and the exit summary. Defaults to
	// os.Stdout.
	Out io.Writer

	// Notice receives the per-profile viewing hints. Defaults to Out.
	Notice io.Writer

	// PIDExists is passed to preflight.
	PIDExists func(ctx context.Context, pid int) bool
}

// statusReporter is implemented by profilers that can describe their
// samplers while running.
type statusReporter interface {
	Snapshot() []profiler.Status
}

// Orchestrator coordinates all components for a profiling run.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	opts   Options
	runID  string

	registry      *profiler.Registry
	runner        process.Runner
	promRegistry  *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server

	startTime time.Time
	results   []profiler.Result
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, runID string, opts Options) *Orchestrator {
	if opts.Registry == nil {
		opts.Registry = profiler.DefaultRegistry()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Notice == nil {
		opts.Notice = opts.Out
	}

	runner := opts.Runner
	if runner == nil {
		runner = NewRunner(cfg)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:  opts.Version,
		Profiler: cfg.Profiler,
	}, reg)

	o := &Orchestrator{
		config:       cfg,
		logger:       logger,
		opts:         opts,
		runID:        runID,
		registry:     opts.Registry,
		runner:       runner,
		promRegistry: reg,
		metrics:      collector,
	}
	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, reg, logger)
	}
	return o
}

// NewRunner builds the sample invocation described by cfg.
func NewRunner(cfg *config.Config) *process.SampleRunner {
	sc := process.DefaultSampleConfig()
	sc.BinaryPath = cfg.SamplePath
	sc.DurationSeconds = cfg.SampleDuration
	sc.IntervalMillis = cfg.SampleInterval
	sc.FullPaths = cfg.FullPaths
	return process.NewSampleRunner(sc)
}

// Run executes the profiling run. It blocks until the duration elapses,
// a signal arrives, the TUI quits, or ctx is cancelled, then collects
// every profile.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	factory, err := o.selectProfiler()
	if err != nil {
		return err
	}

	targets, err := o.resolveTargets(ctx)
	if err != nil {
		return err
	}
	o.metrics.SetTargets(len(targets))

	// Run preflight checks
	if !o.config.SkipPreflight {
		result := preflight.RunAll(ctx, preflight.Options{
			Profiler:   o.profilerOptions(),
			BinaryPath: o.config.SamplePath,
			Targets:    targets,
			PIDExists:  o.opts.PIDExists,
		})
		preflight.PrintResults(o.opts.Out, result)
		if !result.Passed {
			return ErrPreflight
		}
	}

	// Start metrics server
	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer o.shutdownMetrics()
	}

	// Setup signal handling
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	// A signal during startup aborts the remaining readiness waits
	startDone := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			o.logger.Info("received_signal", "signal", sig.String(), "phase", "start")
			cancel()
		case <-startDone:
		}
	}()

	prof, err := factory.New(ctx, o.profilerConfig(targets))
	close(startDone)
	if err != nil {
		o.metrics.SamplerFailed(metrics.PhaseStart, err)
		o.writeSummary()
		return fmt.Errorf("start %s profiler: %w", factory.Name(), err)
	}

	stopElapsed := o.trackElapsed(ctx)
	defer stopElapsed()

	// Start TUI
	var program *tea.Program
	tuiDone := make(chan struct{})
	if o.config.TUIEnabled {
		program = o.startTUI(prof, tuiDone)
	}

	o.wait(ctx, sigCh, tuiDone)

	if program != nil {
		tui.SendQuit(program)
		<-tuiDone
	}

	// Graceful collection with timeout
	collectCtx, collectCancel := context.WithTimeout(context.Background(), o.config.StopTimeout)
	defer collectCancel()

	o.logger.Info("collecting_profiles", "profiler", prof.Name())
	results, err := prof.CollectProfile(collectCtx)
	o.results = results

	o.writeSummary()
	o.writeSnapshot()

	if err != nil {
		return fmt.Errorf("collect profiles: %w", err)
	}
	return nil
}

// selectProfiler looks up the configured profiler and checks it can run.
func (o *Orchestrator) selectProfiler() (profiler.Factory, error) {
	factory, ok := o.registry.Lookup(o.config.Profiler)
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %s)",
			ErrUnknownProfiler, o.config.Profiler, strings.Join(o.registry.Names(), ", "))
	}

	opts := o.profilerOptions()
	if !factory.IsSupported(opts) {
		return nil, fmt.Errorf("%w: %q on platform %q with browser %q",
			ErrUnsupported, factory.Name(), opts.Platform, opts.BrowserType)
	}
	return factory, nil
}

func (o *Orchestrator) profilerOptions() profiler.Options {
	return profiler.Options{
		Platform:    o.config.Platform,
		BrowserType: o.config.BrowserType,
	}
}

// resolveTargets turns the configured target source into an ordered list.
func (o *Orchestrator) resolveTargets(ctx context.Context) ([]process.Target, error) {
	resolver := o.opts.Resolver
	if resolver == nil {
		if o.config.UsesDiscovery() {
			resolver = process.NewBrowserResolver(o.config.BrowserPID, o.config.OutputPath)
		} else {
			resolver = process.StaticResolver(Targets(o.config))
		}
	}

	targets, err := resolver.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve targets: %w", err)
	}

	o.logger.Info("targets_resolved", "count", len(targets))
	for _, t := range targets {
		o.logger.Debug("target", "pid", t.PID, "name", t.Name, "output", t.OutputPath)
	}
	return targets, nil
}

// Targets converts the explicit targets of cfg.
func Targets(cfg *config.Config) []process.Target {
	out := make([]process.Target, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		out = append(out, process.Target{PID: t.PID, OutputPath: t.Output, Name: t.Name})
	}
	return out
}

// profilerConfig wires profiler events into the metrics collector.
func (o *Orchestrator) profilerConfig(targets []process.Target) profiler.Config {
	return profiler.Config{
		Resolver:     process.StaticResolver(targets),
		Runner:       o.runner,
		Logger:       o.logger,
		ReadyTimeout: o.config.ReadyTimeout,
		Notice:       o.opts.Notice,
		Verbose:      o.config.Verbose,
		Callbacks: profiler.Callbacks{
			OnStart:       o.onStart,
			OnStateChange: o.onStateChange,
			OnReady:       o.onReady,
			OnCollected:   o.onCollected,
			OnOutputLine:  o.onOutputLine,
		},
	}
}

// wait blocks until the run should end.
func (o *Orchestrator) wait(ctx context.Context, sigCh <-chan os.Signal, tuiDone <-chan struct{}) {
	var durationTimer <-chan time.Time
	if o.config.Duration > 0 {
		timer := time.NewTimer(o.config.Duration)
		defer timer.Stop()
		durationTimer = timer.C
	}

	if o.config.TUIEnabled {
		o.logger.Info("profiling", "stop", "press q or Enter")
	} else {
		o.logger.Info("profiling", "duration", o.config.Duration.String())
	}

	// tuiDone is never closed without a TUI
	select {
	case sig := <-sigCh:
		o.logger.Info("received_signal", "signal", sig.String())
	case <-durationTimer:
		o.logger.Info("duration_elapsed", "duration", o.config.Duration.String())
	case <-tuiDone:
		o.logger.Info("tui_quit")
	case <-ctx.Done():
		o.logger.Info("context_cancelled")
	}
}

// startTUI runs the dashboard until it quits, then closes done.
func (o *Orchestrator) startTUI(prof profiler.Profiler, done chan<- struct{}) *tea.Program {
	cfg := tui.Config{
		Profiler:      prof.Name(),
		RunID:         o.runID,
		MetricsAddr:   o.config.MetricsAddr,
		Duration:      o.config.Duration,
		SummarySource: o.metrics,
	}
	if sr, ok := prof.(statusReporter); ok {
		cfg.StatusSource = sr
	}

	program := tea.NewProgram(tui.New(cfg), tea.WithAltScreen())
	go func() {
		defer close(done)
		if _, err := program.Run(); err != nil {
			o.logger.Warn("tui_error", "error", err)
		}
	}()
	return program
}

// trackElapsed updates the elapsed gauge until the returned func is called.
func (o *Orchestrator) trackElapsed(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.metrics.UpdateElapsed()
			}
		}
	}()
	return cancel
}

func (o *Orchestrator) shutdownMetrics() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.metricsServer.Shutdown(ctx); err != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}
}

// Callback handlers

func (o *Orchestrator) onStart(target process.Target, samplerPID int) {
	o.metrics.SamplerStarted()
}

func (o *Orchestrator) onStateChange(target process.Target, oldState, newState sampler.State) {
	if o.config.Verbose {
		o.logger.Debug("sampler_state",
			"target_pid", target.PID,
			"from", oldState.String(),
			"to", newState.String(),
		)
	}
}

func (o *Orchestrator) onReady(target process.Target, latency time.Duration) {
	o.metrics.SamplerReady(latency)
}

func (o *Orchestrator) onCollected(r profiler.Result) {
	if r.Err != nil {
		o.metrics.SamplerFailed(metrics.PhaseCollect, r.Err)
	}
	o.metrics.RecordExit(r.ExitCode, r.Duration, r.Err)
}

func (o *Orchestrator) onOutputLine(target process.Target, line string) {
	o.metrics.OutputLine()
}

// writeSummary prints the exit summary to Out.
func (o *Orchestrator) writeSummary() {
	summary := o.metrics.GenerateSummary()

	outcomes := make([]stats.TargetOutcome, 0, len(o.results))
	for _, r := range o.results {
		outcome := stats.TargetOutcome{
			PID:        r.Target.PID,
			Name:       r.Target.Name,
			OutputPath: r.Target.OutputPath,
			ExitCode:   r.ExitCode,
			ReadyAfter: r.ReadyAfter,
		}
		if r.Err != nil {
			outcome.Err = r.Err.Error()
		}
		outcomes = append(outcomes, outcome)
	}

	fmt.Fprint(o.opts.Out, stats.FormatExitSummary(stats.SummaryConfig{
		RunID:        o.runID,
		Profiler:     o.config.Profiler,
		Duration:     time.Since(o.startTime),
		MetricsAddr:  o.config.MetricsAddr,
		MetricsFile:  o.config.MetricsFile,
		Targets:      o.metrics.Targets(),
		Started:      summary.Started,
		Ready:        summary.Ready,
		Timeouts:     summary.Timeouts,
		Failed:       summary.Failed,
		ExitCodes:    summary.ExitCodes,
		ReadinessP50: summary.ReadinessP50,
		ReadinessP95: summary.ReadinessP95,
		ReadinessP99: summary.ReadinessP99,
		ReadinessMax: summary.ReadinessMax,
		Outcomes:     outcomes,
	}))
}

// writeSnapshot saves the final metrics when -metrics-file is set.
func (o *Orchestrator) writeSnapshot() {
	if o.config.MetricsFile == "" {
		return
	}
	if err := metrics.WriteSnapshotFile(o.config.MetricsFile, o.promRegistry); err != nil {
		o.logger.Warn("metrics_snapshot_failed", "path", o.config.MetricsFile, "error", err)
		return
	}
	o.logger.Info("metrics_snapshot_written", "path", o.config.MetricsFile)
}

// Results returns the per-target results of the last Run.
func (o *Orchestrator) Results() []profiler.Result {
	return o.results
}

// Metrics returns the metrics collector for external access.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Gatherer returns the registry backing the metrics endpoint.
func (o *Orchestrator) Gatherer() prometheus.Gatherer {
	return o.promRegistry
}
