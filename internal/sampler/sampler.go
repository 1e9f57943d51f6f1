package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-sample-profiler/internal/logging"
	"github.com/randomizedcoder/go-sample-profiler/internal/process"
	"github.com/randomizedcoder/go-sample-profiler/internal/wait"
)

const (
	// DefaultReadyTimeout is the ceiling for a subprocess to report readiness.
	DefaultReadyTimeout = 120 * time.Second

	// ReadyMarker is printed by sample once it has attached to the target.
	ReadyMarker = "Sampling process"

	// drainTimeout bounds the wait for the output pipe to reach EOF after
	// the subprocess exits. A grandchild holding the pipe open must not
	// hang the caller.
	drainTimeout = 5 * time.Second
)

// Callbacks contains optional callback functions for sampler events.
type Callbacks struct {
	// OnStart is called once the subprocess has been launched.
	OnStart func(target process.Target, samplerPID int)

	// OnStateChange is called on every state transition.
	OnStateChange func(target process.Target, oldState, newState State)

	// OnOutputLine is called for every console line of the subprocess.
	OnOutputLine func(target process.Target, line string)
}

// Config holds configuration for creating a new Sampler.
type Config struct {
	Target process.Target
	Runner process.Runner
	Logger *slog.Logger

	// ReadyTimeout defaults to DefaultReadyTimeout.
	ReadyTimeout time.Duration

	// Backoff is the readiness poll schedule; zero uses wait defaults.
	Backoff wait.BackoffConfig

	// ReadyMarker defaults to ReadyMarker.
	ReadyMarker string

	// Notice receives the human-readable "how to view" lines on success.
	// Defaults to os.Stdout.
	Notice io.Writer

	// CaptureDir holds the temporary output capture ("" = OS temp dir).
	CaptureDir string

	// Verbose logs every console line, not only notable ones.
	Verbose bool

	Callbacks Callbacks
}

// Sampler owns one profiler subprocess bound to one target.
//
// New spawns the subprocess and blocks until it is ready; CollectProfile
// interrupts it and releases everything. Each Sampler exclusively owns its
// process handle and capture file.
type Sampler struct {
	target    process.Target
	logger    *slog.Logger
	notice    io.Writer
	callbacks Callbacks
	marker    string
	timeout   time.Duration

	// State management
	state   State
	stateMu sync.RWMutex

	// Current process
	cmd   *exec.Cmd
	cmdMu sync.Mutex
	pid   int

	capture *Capture
	output  *logging.OutputHandler

	// Closed by the waiter goroutine once cmd.Wait returns
	exited  chan struct{}
	waitErr error

	startTime time.Time
	readyTime time.Time

	collected atomic.Bool
}

// New launches the profiler against cfg.Target and blocks until its output
// contains the readiness marker.
//
// On timeout the subprocess is killed, the capture released, and a
// *ReadinessTimeoutError returned. If the subprocess exits before becoming
// ready, a non-zero status yields an *ExecutionError and a zero status an
// *EarlyExitError. No partially started Sampler is ever returned.
func New(ctx context.Context, cfg Config) (*Sampler, error) {
	if cfg.Runner == nil {
		return nil, errors.New("sampler: runner is required")
	}

	s := &Sampler{
		target:    cfg.Target,
		logger:    cfg.Logger,
		notice:    cfg.Notice,
		callbacks: cfg.Callbacks,
		marker:    cfg.ReadyMarker,
		timeout:   cfg.ReadyTimeout,
		state:     StateStarting,
		exited:    make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.notice == nil {
		s.notice = os.Stdout
	}
	if s.marker == "" {
		s.marker = ReadyMarker
	}
	if s.timeout <= 0 {
		s.timeout = DefaultReadyTimeout
	}
	s.output = logging.NewOutputHandler(cfg.Target.PID, s.logger, cfg.Verbose)

	if err := s.start(cfg); err != nil {
		s.setState(StateFailed)
		return nil, err
	}

	if err := s.awaitReady(ctx, cfg.Backoff); err != nil {
		s.setState(StateFailed)
		return nil, err
	}

	s.readyTime = time.Now()
	s.setState(StateReady)
	s.logger.Info("sampler_ready",
		"target_pid", s.target.PID,
		"sampler_pid", s.pid,
		"output_path", s.target.OutputPath,
		"latency", s.readyTime.Sub(s.startTime).String(),
	)
	return s, nil
}

// start allocates the capture and spawns the subprocess.
func (s *Sampler) start(cfg Config) error {
	capture, err := NewCapture(cfg.CaptureDir)
	if err != nil {
		return fmt.Errorf("create output capture: %w", err)
	}
	s.capture = capture

	cmd, err := cfg.Runner.BuildCommand(s.target)
	if err != nil {
		s.capture.Close()
		return fmt.Errorf("build %s command: %w", cfg.Runner.Name(), err)
	}

	// Combined stdout/stderr through one pipe
	pr, pw, err := os.Pipe()
	if err != nil {
		s.capture.Close()
		return fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	// Own process group: a terminal Ctrl+C must not reach the profiler
	// before we interrupt it ourselves.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	s.startTime = time.Now()
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		s.capture.Close()
		s.logger.Error("failed_to_start_sampler",
			"target_pid", s.target.PID,
			"error", err,
		)
		return fmt.Errorf("start %s: %w", cfg.Runner.Name(), err)
	}

	// Close parent's write-end so the reader sees EOF when the child exits
	pw.Close()

	s.cmdMu.Lock()
	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.cmdMu.Unlock()

	go s.capture.Stream(pr, s.handleLine)
	go func() {
		s.waitErr = cmd.Wait()
		close(s.exited)
	}()

	s.logger.Info("sampler_started",
		"target_pid", s.target.PID,
		"sampler_pid", s.pid,
		"output_path", s.target.OutputPath,
		"capture", s.capture.Path(),
	)
	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(s.target, s.pid)
	}
	return nil
}

// awaitReady polls the captured output for the readiness marker.
func (s *Sampler) awaitReady(ctx context.Context, backoff wait.BackoffConfig) error {
	err := wait.For(ctx, wait.Config{
		Timeout: s.timeout,
		Backoff: backoff,
		Seed:    int64(s.pid),
	}, func() bool {
		return s.hasExited() || s.IsReady()
	})

	switch {
	case err == nil && s.IsReady():
		return nil

	case err == nil:
		// Exited; the marker may still have been sitting in the pipe
		s.capture.Drain(drainTimeout)
		if s.IsReady() {
			return nil
		}
		exitCode := extractExitCode(s.waitErr)
		output := s.capture.Output()
		s.logger.Error("sampler_exited_before_ready",
			"target_pid", s.target.PID,
			"exit_code", exitCode,
		)
		s.release()
		if exitCode == 0 {
			return &EarlyExitError{Target: s.target, Output: output}
		}
		return &ExecutionError{
			Target:   s.target,
			ExitCode: exitCode,
			Output:   output,
		}

	case errors.Is(err, wait.ErrTimeout):
		s.terminate()
		timeoutErr := &ReadinessTimeoutError{
			Target:  s.target,
			Timeout: s.timeout,
			Output:  s.capture.Output(),
		}
		s.logger.Error("sampler_readiness_timeout",
			"target_pid", s.target.PID,
			"timeout", s.timeout.String(),
		)
		s.release()
		return timeoutErr

	default:
		s.terminate()
		s.release()
		return fmt.Errorf("wait for sample on pid %d: %w", s.target.PID, err)
	}
}

// IsReady reports whether the readiness marker has appeared in the output.
func (s *Sampler) IsReady() bool {
	return strings.Contains(s.capture.Output(), s.marker)
}

// CollectProfile interrupts the subprocess so it writes its report, then
// blocks until it exits.
//
// A non-zero exit yields an *ExecutionError carrying the full console
// output. The process handle and capture are released on every path.
// If ctx ends first, the subprocess group is killed and a *StopTimeoutError
// wrapping ctx.Err() returned.
// A second call returns ErrAlreadyCollected.
func (s *Sampler) CollectProfile(ctx context.Context) error {
	if !s.collected.CompareAndSwap(false, true) {
		return ErrAlreadyCollected
	}
	defer s.release()

	if !s.hasExited() {
		if err := s.interrupt(); err != nil {
			s.logger.Warn("sampler_interrupt_failed",
				"target_pid", s.target.PID,
				"sampler_pid", s.pid,
				"error", err,
			)
		}
	}

	select {
	case <-s.exited:
	case <-ctx.Done():
		s.logger.Warn("force_killing_sampler",
			"target_pid", s.target.PID,
			"sampler_pid", s.pid,
		)
		s.terminate()
		s.setState(StateFailed)
		return &StopTimeoutError{
			Target:   s.target,
			ExitCode: extractExitCode(s.waitErr),
			Output:   s.capture.Output(),
			Err:      ctx.Err(),
		}
	}

	if !s.capture.Drain(drainTimeout) {
		s.logger.Warn("output_drain_timeout",
			"target_pid", s.target.PID,
			"timeout", drainTimeout.String(),
		)
	}

	exitCode := extractExitCode(s.waitErr)
	s.logger.Info("sampler_exited",
		"target_pid", s.target.PID,
		"sampler_pid", s.pid,
		"exit_code", exitCode,
		"ran_for", time.Since(s.readyTime).String(),
	)

	if exitCode != 0 {
		s.setState(StateFailed)
		return &ExecutionError{
			Target:   s.target,
			ExitCode: exitCode,
			Output:   s.capture.Output(),
		}
	}

	s.setState(StateStopped)
	fmt.Fprintln(s.notice, "To view the profile, run:")
	fmt.Fprintf(s.notice, "  open -a TextEdit %s\n", s.target.OutputPath)
	return nil
}

// interrupt sends SIGINT to the sampler process only, not its group.
func (s *Sampler) interrupt() error {
	s.cmdMu.Lock()
	cmd := s.cmd
	s.cmdMu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	err := cmd.Process.Signal(os.Interrupt)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// terminate kills the sampler's process group and waits for it to exit.
func (s *Sampler) terminate() {
	s.cmdMu.Lock()
	cmd := s.cmd
	s.cmdMu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}

	if !s.hasExited() {
		if pgid, err := unix.Getpgid(cmd.Process.Pid); err == nil {
			_ = unix.Kill(-pgid, unix.SIGKILL)
		} else {
			_ = cmd.Process.Kill()
		}
	}
	<-s.exited
	s.capture.Drain(drainTimeout)
}

// release drops the process handle and deletes the capture.
func (s *Sampler) release() {
	s.cmdMu.Lock()
	s.cmd = nil
	s.cmdMu.Unlock()

	if err := s.capture.Close(); err != nil {
		s.logger.Warn("capture_cleanup_failed",
			"target_pid", s.target.PID,
			"capture", s.capture.Path(),
			"error", err,
		)
	}
}

func (s *Sampler) hasExited() bool {
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}

// handleLine fans a console line out to the output handler and callback.
func (s *Sampler) handleLine(line string) {
	s.output.HandleLine(line)
	if s.callbacks.OnOutputLine != nil {
		s.callbacks.OnOutputLine(s.target, line)
	}
}

// State returns the current state of the sampler.
func (s *Sampler) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// setState moves to newState if the transition is forward, then calls the
// callback.
func (s *Sampler) setState(newState State) {
	s.stateMu.Lock()
	oldState := s.state
	if oldState == newState || !oldState.canTransition(newState) {
		s.stateMu.Unlock()
		return
	}
	s.state = newState
	s.stateMu.Unlock()

	if s.callbacks.OnStateChange != nil {
		s.callbacks.OnStateChange(s.target, oldState, newState)
	}
}

// Output returns the console output captured so far, or "" once released.
func (s *Sampler) Output() string {
	return s.capture.Output()
}

// Target returns the target this sampler is attached to.
func (s *Sampler) Target() process.Target {
	return s.target
}

// PID returns the process ID of the profiler subprocess.
func (s *Sampler) PID() int {
	return s.pid
}

// CapturePath returns the location of the temporary output capture.
func (s *Sampler) CapturePath() string {
	return s.capture.Path()
}

// ReadyLatency returns how long the subprocess took to become ready.
func (s *Sampler) ReadyLatency() time.Duration {
	if s.readyTime.IsZero() {
		return 0
	}
	return s.readyTime.Sub(s.startTime)
}

// ReadySince returns when the sampler became ready.
func (s *Sampler) ReadySince() time.Time {
	return s.readyTime
}

// LastLine returns the most recent console line of the subprocess.
func (s *Sampler) LastLine() string {
	return s.output.LastLine()
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
