// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-sample-profiler/internal/process"
	"github.com/randomizedcoder/go-sample-profiler/internal/profiler"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Options is the input to RunAll.
type Options struct {
	Profiler   profiler.Options
	BinaryPath string
	Targets    []process.Target

	// PIDExists defaults to process.PIDExists.
	PIDExists func(ctx context.Context, pid int) bool
}

// RunAll executes all preflight checks.
func RunAll(ctx context.Context, opts Options) *Result {
	if opts.PIDExists == nil {
		opts.PIDExists = process.PIDExists
	}

	checks := []Check{
		checkPlatform(opts.Profiler),
		checkBinary(opts.BinaryPath),
		checkFileDescriptors(len(opts.Targets)),
		checkProcessLimit(len(opts.Targets)),
		checkOutputDirs(opts.Targets),
		checkTargets(ctx, opts.Targets, opts.PIDExists),
	}

	result := &Result{Checks: checks, Passed: true}
	for _, c := range checks {
		if !c.Passed {
			result.Passed = false
		}
	}
	return result
}

// checkPlatform verifies the profiler can run here at all.
func checkPlatform(opts profiler.Options) Check {
	if !profiler.IsSupported(opts) {
		reason := "requires macOS"
		if opts.IsRemoteBrowser() {
			reason = "cannot attach to remote browser " + opts.BrowserType
		}
		return Check{
			Name:    "platform",
			Passed:  false,
			Message: fmt.Sprintf("%s/%s: %s", opts.Platform, opts.BrowserType, reason),
		}
	}
	return Check{
		Name:    "platform",
		Passed:  true,
		Message: opts.Platform,
	}
}

// checkBinary verifies the profiler tool is on PATH.
func checkBinary(path string) Check {
	if path == "" {
		path = process.DefaultSampleConfig().BinaryPath
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Check{
			Name:    "sample_binary",
			Passed:  false,
			Message: fmt.Sprintf("not found: %s", path),
		}
	}
	return Check{
		Name:    "sample_binary",
		Passed:  true,
		Message: "found at " + resolved,
	}
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(targets int) Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: "unable to check: " + err.Error(),
		}
	}

	// Each sampler holds a pipe pair and its capture file
	// Plus overhead for the metrics server and logging
	required := targets*3 + 32
	actual := clampLimit(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d targets)", actual, required, targets),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit(targets int) Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NPROC, &limit); err != nil {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	required := targets + 16
	actual := clampLimit(limit.Cur)

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// clampLimit maps RLIM_INFINITY and other huge values into int range.
func clampLimit(v uint64) int {
	const max = 1 << 30
	if v > max {
		return max
	}
	return int(v)
}

// checkOutputDirs verifies every report directory exists and is writable.
func checkOutputDirs(targets []process.Target) Check {
	dirs := make(map[string]bool)
	for _, t := range targets {
		dirs[filepath.Dir(t.OutputPath)] = true
	}

	var bad []string
	for dir := range dirs {
		if err := probeWritable(dir); err != nil {
			bad = append(bad, fmt.Sprintf("%s (%v)", dir, err))
		}
	}
	sort.Strings(bad)

	if len(bad) > 0 {
		return Check{
			Name:    "output_dirs",
			Passed:  false,
			Message: "not writable: " + strings.Join(bad, ", "),
		}
	}
	return Check{
		Name:    "output_dirs",
		Passed:  true,
		Message: fmt.Sprintf("%d directories writable", len(dirs)),
	}
}

func probeWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory")
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return err
	}
	f.Close()
	return os.Remove(f.Name())
}

// checkTargets verifies every target process is still alive.
func checkTargets(ctx context.Context, targets []process.Target, exists func(context.Context, int) bool) Check {
	if len(targets) == 0 {
		return Check{
			Name:    "target_pids",
			Passed:  false,
			Message: "no targets",
		}
	}

	var missing []string
	for _, t := range targets {
		if !exists(ctx, t.PID) {
			missing = append(missing, fmt.Sprint(t.PID))
		}
	}
	if len(missing) > 0 {
		return Check{
			Name:    "target_pids",
			Passed:  false,
			Message: "no such process: " + strings.Join(missing, ", "),
		}
	}
	return Check{
		Name:    "target_pids",
		Passed:  true,
		Message: fmt.Sprintf("%d processes alive", len(targets)),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "platform":
		return "run on the macOS host that runs the browser"
	case "sample_binary":
		return "install the Xcode command line tools (xcode-select --install)"
	case "file_descriptors":
		return "ulimit -n 8192"
	case "process_limit":
		return "ulimit -u 4096"
	case "output_dirs":
		return "create the directory or choose another -output path"
	case "target_pids":
		return "check the pids with ps; the browser may have exited"
	default:
		return "see documentation"
	}
}
