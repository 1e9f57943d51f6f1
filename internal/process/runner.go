// Package process provides abstractions for running the external profiler
// and for discovering the processes it attaches to.
package process

import (
	"fmt"
	"os/exec"
)

// Target is one process to profile and the file its report should go to.
// Targets are immutable for the life of a profiling session.
type Target struct {
	PID        int
	OutputPath string

	// Name is the process role (browser, renderer, gpu-process, ...).
	// Optional; used for logging only.
	Name string
}

// String returns "pid=<pid> output=<path>" with the role when known.
func (t Target) String() string {
	if t.Name != "" {
		return fmt.Sprintf("pid=%d (%s) output=%s", t.PID, t.Name, t.OutputPath)
	}
	return fmt.Sprintf("pid=%d output=%s", t.PID, t.OutputPath)
}

// Runner creates executable commands for targets.
// This interface allows the sampler to be agnostic of the profiler binary.
type Runner interface {
	// BuildCommand returns a ready-to-start command for the given target.
	// The command must NOT be started yet, and its lifetime belongs to the
	// caller: it must not be bound to a context.
	BuildCommand(target Target) (*exec.Cmd, error)

	// Name returns a human-readable name for this process type.
	Name() string
}
