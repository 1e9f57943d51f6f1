package process

import (
	"errors"
	"os/exec"
	"strconv"
	"strings"
)

// SampleConfig holds configuration for the macOS `sample` tool.
type SampleConfig struct {
	// BinaryPath is the path to the sample binary.
	BinaryPath string

	// MayDie passes -mayDie so a target that exits mid-run is not an error.
	MayDie bool

	// DurationSeconds is the positional sampling duration. 0 leaves the
	// tool's own default; the run is normally ended by SIGINT anyway.
	DurationSeconds int

	// IntervalMillis is the positional sampling interval. Only emitted
	// together with DurationSeconds, since sample parses them by position.
	IntervalMillis int

	// FullPaths passes -fullPaths to print full library paths in the report.
	FullPaths bool
}

// DefaultSampleConfig returns the invocation used by the profiler:
// `sample <pid> -mayDie -file <path>`.
func DefaultSampleConfig() *SampleConfig {
	return &SampleConfig{
		BinaryPath: "sample",
		MayDie:     true,
	}
}

// SampleRunner implements Runner for the sample tool.
type SampleRunner struct {
	config *SampleConfig
}

// NewSampleRunner creates a runner with the given configuration.
// A nil config uses DefaultSampleConfig.
func NewSampleRunner(cfg *SampleConfig) *SampleRunner {
	if cfg == nil {
		cfg = DefaultSampleConfig()
	}
	return &SampleRunner{config: cfg}
}

// Name returns "sample".
func (r *SampleRunner) Name() string {
	return "sample"
}

// BuildCommand creates an exec.Cmd attaching sample to target.PID.
func (r *SampleRunner) BuildCommand(target Target) (*exec.Cmd, error) {
	if target.PID <= 0 {
		return nil, errors.New("target pid must be positive")
	}
	if target.OutputPath == "" {
		return nil, errors.New("target output path is required")
	}
	return exec.Command(r.config.BinaryPath, r.buildArgs(target)...), nil
}

// buildArgs constructs the sample command-line arguments.
func (r *SampleRunner) buildArgs(target Target) []string {
	args := []string{strconv.Itoa(target.PID)}

	// Positional duration/interval must directly follow the pid
	if r.config.DurationSeconds > 0 {
		args = append(args, strconv.Itoa(r.config.DurationSeconds))
		if r.config.IntervalMillis > 0 {
			args = append(args, strconv.Itoa(r.config.IntervalMillis))
		}
	}

	if r.config.MayDie {
		args = append(args, "-mayDie")
	}
	if r.config.FullPaths {
		args = append(args, "-fullPaths")
	}

	args = append(args, "-file", target.OutputPath)
	return args
}

// Config returns the sample configuration.
func (r *SampleRunner) Config() *SampleConfig {
	return r.config
}

// CommandString returns the command that would be executed (for --print-cmd).
func (r *SampleRunner) CommandString(target Target) string {
	return r.config.BinaryPath + " " + strings.Join(r.buildArgs(target), " ")
}

// Available reports whether the sample binary can be found.
func (r *SampleRunner) Available() (string, error) {
	return exec.LookPath(r.config.BinaryPath)
}
