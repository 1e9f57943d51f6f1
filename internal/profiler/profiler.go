// Package profiler fans the sampler lifecycle out across every process of
// one profiling run and exposes it to the harness registry.
package profiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-sample-profiler/internal/process"
	"github.com/randomizedcoder/go-sample-profiler/internal/sampler"
	"github.com/randomizedcoder/go-sample-profiler/internal/wait"
)

// SampleName is the registry identifier of the sample profiler.
const SampleName = "sample"

// Profiler is what the harness drives after construction.
type Profiler interface {
	Name() string
	CollectProfile(ctx context.Context) ([]Result, error)
}

// Callbacks contains optional callbacks for profiler events.
type Callbacks struct {
	// OnStart is called once per sampler subprocess that launched.
	OnStart func(target process.Target, samplerPID int)

	// OnStateChange is called when any sampler changes state.
	OnStateChange func(target process.Target, oldState, newState sampler.State)

	// OnReady is called once per sampler that became ready.
	OnReady func(target process.Target, latency time.Duration)

	// OnCollected is called after each sampler is stopped, including the
	// ones stopped while rolling back a failed start.
	OnCollected func(result Result)

	// OnOutputLine is called for every console line of every sampler.
	OnOutputLine func(target process.Target, line string)
}

// Config holds everything needed to construct a SampleProfiler.
type Config struct {
	// Resolver supplies the ordered targets. Required.
	Resolver process.Resolver

	// Runner builds the profiler command. Defaults to a SampleRunner.
	Runner process.Runner

	Logger *slog.Logger

	// ReadyTimeout is the per-sampler readiness ceiling.
	ReadyTimeout time.Duration

	Backoff     wait.BackoffConfig
	ReadyMarker string

	// Notice receives the per-sampler "how to view" lines.
	Notice io.Writer

	CaptureDir string
	Verbose    bool
	Callbacks  Callbacks
}

// Result is the outcome of stopping one sampler.
type Result struct {
	Target process.Target
	Err    error

	// ExitCode is the subprocess status when known, including 137 for a
	// sampler killed after the collect deadline.
	ExitCode   int
	ReadyAfter time.Duration
	Duration   time.Duration
}

// OK reports whether the sampler stopped cleanly.
func (r Result) OK() bool {
	return r.Err == nil
}

// SampleProfiler owns one Sampler per target, in creation order.
type SampleProfiler struct {
	logger   *slog.Logger
	cb       Callbacks
	samplers []*sampler.Sampler
}

// New resolves the targets and starts one sampler per target, in order.
//
// If any sampler fails to start, the ones already running are stopped
// before the error is returned; a partial profiler is never returned.
func New(ctx context.Context, cfg Config) (*SampleProfiler, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("profiler: resolver is required")
	}
	if cfg.Runner == nil {
		cfg.Runner = process.NewSampleRunner(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	targets, err := cfg.Resolver.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve targets: %w", err)
	}
	if err := checkTargets(targets); err != nil {
		return nil, err
	}

	p := &SampleProfiler{
		logger:   cfg.Logger,
		cb:       cfg.Callbacks,
		samplers: make([]*sampler.Sampler, 0, len(targets)),
	}

	cfg.Logger.Info("profiler_starting",
		"profiler", SampleName,
		"targets", len(targets),
	)

	for i, target := range targets {
		s, err := sampler.New(ctx, sampler.Config{
			Target:       target,
			Runner:       cfg.Runner,
			Logger:       cfg.Logger,
			ReadyTimeout: cfg.ReadyTimeout,
			Backoff:      cfg.Backoff,
			ReadyMarker:  cfg.ReadyMarker,
			Notice:       cfg.Notice,
			CaptureDir:   cfg.CaptureDir,
			Verbose:      cfg.Verbose,
			Callbacks: sampler.Callbacks{
				OnStart:       cfg.Callbacks.OnStart,
				OnStateChange: cfg.Callbacks.OnStateChange,
				OnOutputLine:  cfg.Callbacks.OnOutputLine,
			},
		})
		if err != nil {
			cfg.Logger.Error("sampler_start_failed",
				"target_pid", target.PID,
				"index", i,
				"started", len(p.samplers),
				"error", err,
			)
			return nil, p.rollback(err)
		}

		p.samplers = append(p.samplers, s)
		if cfg.Callbacks.OnReady != nil {
			cfg.Callbacks.OnReady(target, s.ReadyLatency())
		}
	}

	cfg.Logger.Info("profiler_ready",
		"profiler", SampleName,
		"samplers", len(p.samplers),
	)
	return p, nil
}

// checkTargets rejects empty and duplicate target sets.
func checkTargets(targets []process.Target) error {
	if len(targets) == 0 {
		return errors.New("profiler: resolver returned no targets")
	}
	seen := make(map[int]bool, len(targets))
	for _, t := range targets {
		if seen[t.PID] {
			return fmt.Errorf("profiler: duplicate target pid %d", t.PID)
		}
		seen[t.PID] = true
	}
	return nil
}

// rollback stops every already-started sampler and joins their errors
// behind cause.
func (p *SampleProfiler) rollback(cause error) error {
	errs := []error{cause}
	for _, s := range p.samplers {
		if r := p.collectOne(context.Background(), s); r.Err != nil {
			errs = append(errs, fmt.Errorf("rollback pid %d: %w", r.Target.PID, r.Err))
		}
	}
	p.samplers = nil
	return errors.Join(errs...)
}

// Name returns "sample".
func (p *SampleProfiler) Name() string {
	return SampleName
}

// CollectProfile stops every sampler in creation order.
//
// Each stop blocks until that subprocess exits. A failing sampler does not
// prevent its later siblings from being stopped; all failures are joined in
// the returned error and every sampler gets a Result.
func (p *SampleProfiler) CollectProfile(ctx context.Context) ([]Result, error) {
	results := make([]Result, 0, len(p.samplers))
	var errs []error

	for _, s := range p.samplers {
		r := p.collectOne(ctx, s)
		results = append(results, r)
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("pid %d: %w", r.Target.PID, r.Err))
		}
	}

	p.logger.Info("profiles_collected",
		"profiler", SampleName,
		"samplers", len(results),
		"failed", len(errs),
	)
	return results, errors.Join(errs...)
}

// collectOne stops s and reports the outcome through OnCollected.
func (p *SampleProfiler) collectOne(ctx context.Context, s *sampler.Sampler) Result {
	readySince := s.ReadySince()
	err := s.CollectProfile(ctx)

	r := Result{
		Target:     s.Target(),
		Err:        err,
		ReadyAfter: s.ReadyLatency(),
		Duration:   time.Since(readySince),
	}
	if code, ok := sampler.ExitCodeOf(err); ok {
		r.ExitCode = code
	}
	if p.cb.OnCollected != nil {
		p.cb.OnCollected(r)
	}
	return r
}

// Samplers returns the samplers in creation order.
func (p *SampleProfiler) Samplers() []*sampler.Sampler {
	out := make([]*sampler.Sampler, len(p.samplers))
	copy(out, p.samplers)
	return out
}

// Status is a point-in-time view of one sampler for status displays.
type Status struct {
	Target     process.Target
	SamplerPID int
	State      sampler.State
	ReadySince time.Time
	LastLine   string
}

// Snapshot returns the status of every sampler in creation order.
func (p *SampleProfiler) Snapshot() []Status {
	out := make([]Status, 0, len(p.samplers))
	for _, s := range p.samplers {
		out = append(out, Status{
			Target:     s.Target(),
			SamplerPID: s.PID(),
			State:      s.State(),
			ReadySince: s.ReadySince(),
			LastLine:   s.LastLine(),
		})
	}
	return out
}

// IsSupported reports whether sample can profile the given environment:
// only on macOS, and only for browsers running on the host.
func IsSupported(opts Options) bool {
	return opts.Platform == "darwin" && !opts.IsRemoteBrowser()
}
