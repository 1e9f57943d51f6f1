package sampler

import (
	"errors"
	"fmt"
	"time"

	"github.com/randomizedcoder/go-sample-profiler/internal/process"
)

var (
	// ErrReadinessTimeout is matched by every *ReadinessTimeoutError.
	ErrReadinessTimeout = errors.New("sampler did not become ready")

	// ErrProfilerExecution is matched by every *ExecutionError.
	ErrProfilerExecution = errors.New("sampler exited with an error")

	// ErrExitedBeforeReady is matched by every *EarlyExitError.
	ErrExitedBeforeReady = errors.New("sampler exited before becoming ready")

	// ErrAlreadyCollected is returned by a second CollectProfile call.
	ErrAlreadyCollected = errors.New("profile already collected")
)

// ReadinessTimeoutError reports a subprocess that never printed the
// readiness marker within the ceiling.
type ReadinessTimeoutError struct {
	Target  process.Target
	Timeout time.Duration
	Output  string
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("sample for pid %d not ready after %v", e.Target.PID, e.Timeout)
}

// Is makes errors.Is(err, ErrReadinessTimeout) true.
func (e *ReadinessTimeoutError) Is(target error) bool {
	return target == ErrReadinessTimeout
}

// ExecutionError reports a subprocess that exited with a non-zero status.
// Output holds the complete captured console text.
type ExecutionError struct {
	Target   process.Target
	ExitCode int
	Output   string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("sample failed with exit code %d. Output:\n%s", e.ExitCode, e.Output)
}

// Is makes errors.Is(err, ErrProfilerExecution) true.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrProfilerExecution
}

// EarlyExitError reports a subprocess that exited cleanly without ever
// printing the readiness marker.
type EarlyExitError struct {
	Target process.Target
	Output string
}

func (e *EarlyExitError) Error() string {
	return fmt.Sprintf("sample for pid %d exited before it was ready. Output:\n%s", e.Target.PID, e.Output)
}

// Is makes errors.Is(err, ErrExitedBeforeReady) true.
func (e *EarlyExitError) Is(target error) bool {
	return target == ErrExitedBeforeReady
}

// StopTimeoutError reports a subprocess that was force-killed because it
// did not exit within the collect deadline. ExitCode is the real status of
// the killed process, normally 128+SIGKILL.
type StopTimeoutError struct {
	Target   process.Target
	ExitCode int
	Output   string
	Err      error
}

func (e *StopTimeoutError) Error() string {
	return fmt.Sprintf("sample for pid %d killed with exit code %d: %v", e.Target.PID, e.ExitCode, e.Err)
}

// Unwrap returns the context error that ended the wait.
func (e *StopTimeoutError) Unwrap() error {
	return e.Err
}

// ExitCodeOf returns the subprocess exit status carried by err, if any.
func ExitCodeOf(err error) (int, bool) {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.ExitCode, true
	}
	var st *StopTimeoutError
	if errors.As(err, &st) {
		return st.ExitCode, true
	}
	return 0, false
}
