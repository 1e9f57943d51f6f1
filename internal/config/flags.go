package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// targetList is a custom flag type for repeatable -target pid=path flags.
// The first -target on the command line replaces targets from the config
// file rather than appending to them.
type targetList struct {
	targets *[]TargetSpec
	set     bool
}

func (l *targetList) String() string {
	if l.targets == nil {
		return ""
	}
	parts := make([]string, 0, len(*l.targets))
	for _, t := range *l.targets {
		parts = append(parts, fmt.Sprintf("%d=%s", t.PID, t.Output))
	}
	return strings.Join(parts, ", ")
}

func (l *targetList) Set(value string) error {
	spec, err := ParseTargetSpec(value)
	if err != nil {
		return err
	}
	if !l.set {
		*l.targets = nil
		l.set = true
	}
	*l.targets = append(*l.targets, spec)
	return nil
}

// ParseTargetSpec parses "pid=path".
func ParseTargetSpec(value string) (TargetSpec, error) {
	pidStr, path, ok := strings.Cut(value, "=")
	if !ok {
		return TargetSpec{}, fmt.Errorf("target %q: want pid=path", value)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(pidStr))
	if err != nil || pid <= 0 {
		return TargetSpec{}, fmt.Errorf("target %q: pid must be a positive integer", value)
	}
	if path == "" {
		return TargetSpec{}, fmt.Errorf("target %q: output path is empty", value)
	}
	return TargetSpec{PID: pid, Output: path}, nil
}

// ParseFlags parses the process command line and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(flag.CommandLine, os.Args[1:])
}

// ParseArgs parses args into a Config using fs.
//
// Precedence is defaults, then the -config file, then explicit flags.
func ParseArgs(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := DefaultConfig()

	if path := findConfigFlag(args); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	targets := &targetList{targets: &cfg.Targets}

	fs.Usage = func() { printUsage(fs, fs.Output()) }

	// Targets
	var configFile string
	fs.StringVar(&configFile, "config", cfg.ConfigFile, "YAML config file (flags override file values)")
	fs.Var(targets, "target", "Process to profile as pid=path (can repeat)")
	fs.IntVar(&cfg.BrowserPID, "browser-pid", cfg.BrowserPID, "Discover and profile this browser pid and its descendants")
	fs.StringVar(&cfg.OutputPath, "output", cfg.OutputPath, "Base report path for -browser-pid (becomes <output>.<role><n>)")
	fs.StringVar(&cfg.BrowserType, "browser-type", cfg.BrowserType, `Browser selector, e.g. "system", "android-chrome"`)
	fs.StringVar(&cfg.Platform, "platform", cfg.Platform, "Override the detected platform")

	// Profiler
	fs.StringVar(&cfg.Profiler, "profiler", cfg.Profiler, "Profiler to run")
	fs.StringVar(&cfg.SamplePath, "sample", cfg.SamplePath, "Path to the sample binary")
	fs.IntVar(&cfg.SampleDuration, "sample-duration", cfg.SampleDuration, "Seconds sample records for (0 = tool default)")
	fs.IntVar(&cfg.SampleInterval, "sample-interval", cfg.SampleInterval, "Milliseconds between samples (requires -sample-duration)")
	fs.BoolVar(&cfg.FullPaths, "full-paths", cfg.FullPaths, "Report full paths to binary images")
	fs.DurationVar(&cfg.ReadyTimeout, "ready-timeout", cfg.ReadyTimeout, "How long each sampler may take to attach")
	fs.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Profile duration (0 = until interrupted)")
	fs.DurationVar(&cfg.StopTimeout, "stop-timeout", cfg.StopTimeout, "How long to wait for samplers to write reports")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty = disabled)")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write a final metrics snapshot to this file")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")

	// Safety & Diagnostics (double-dash convention)
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the sample command for each target and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	cfg.ConfigFile = configFile

	return cfg, nil
}

// findConfigFlag pre-scans args for -config so the file can seed the
// defaults the real flags are registered with.
func findConfigFlag(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return ""
		}
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `go-sample-profiler - profile browser processes with the macOS sample tool

Usage:
  go-sample-profiler [flags]

Targets:
`)
	printFlagCategory(fs, w, []string{"config", "target", "browser-pid", "output", "browser-type", "platform"})

	fmt.Fprintf(w, "\nProfiler:\n")
	printFlagCategory(fs, w, []string{"profiler", "sample", "sample-duration", "sample-interval", "full-paths", "ready-timeout", "duration", "stop-timeout"})

	fmt.Fprintf(w, "\nObservability:\n")
	printFlagCategory(fs, w, []string{"metrics", "metrics-file", "v", "log-format", "tui"})

	fmt.Fprintf(w, "\nSafety & Diagnostics:\n")
	printFlagCategory(fs, w, []string{"print-cmd", "skip-preflight", "version"})

	fmt.Fprintf(w, `
Flag Convention:
  Single-dash flags (-target, -duration) are normal options.
  Double-dash flags (--print-cmd, --skip-preflight) are diagnostic modes.

Examples:
  # Profile one process until Ctrl+C
  go-sample-profiler -target 4242=/tmp/renderer.txt

  # Profile a browser and all of its children for 30 seconds
  go-sample-profiler -browser-pid 1234 -output /tmp/chrome.txt -duration 30s

  # Show what would run
  go-sample-profiler -target 4242=/tmp/r.txt --print-cmd

`)
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
			fmt.Fprintf(w, " (default %s)", f.DefValue)
		}
		fmt.Fprintln(w)
	}
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	// Infer type from default value format
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if _, err := strconv.Atoi(f.DefValue); err == nil {
		return "int"
	}
	if _, err := time.ParseDuration(f.DefValue); err == nil {
		return "duration"
	}

	return "string"
}
