// Package config provides configuration management for go-sample-profiler.
package config

import (
	"runtime"
	"time"
)

// TargetSpec is one explicitly configured process to profile.
type TargetSpec struct {
	PID    int    `yaml:"pid"`
	Output string `yaml:"output"`
	Name   string `yaml:"name,omitempty"`
}

// Config holds all configuration options for the orchestrator.
type Config struct {
	// Targets: either explicit pid=path pairs, or a browser pid whose
	// process tree is discovered at startup.
	Targets     []TargetSpec `yaml:"targets"`
	BrowserPID  int          `yaml:"browser_pid"`
	OutputPath  string       `yaml:"output"`
	BrowserType string       `yaml:"browser_type"`
	Platform    string       `yaml:"platform"`

	// Profiler
	Profiler       string        `yaml:"profiler"`
	SamplePath     string        `yaml:"sample_path"`
	SampleDuration int           `yaml:"sample_duration"` // seconds, 0 = tool default
	SampleInterval int           `yaml:"sample_interval"` // milliseconds, 0 = tool default
	FullPaths      bool          `yaml:"full_paths"`
	ReadyTimeout   time.Duration `yaml:"ready_timeout"`
	Duration       time.Duration `yaml:"duration"` // 0 = until interrupted
	StopTimeout    time.Duration `yaml:"stop_timeout"`

	// Observability
	MetricsAddr string `yaml:"metrics_addr"` // empty = disabled
	MetricsFile string `yaml:"metrics_file"`
	Verbose     bool   `yaml:"verbose"`
	LogFormat   string `yaml:"log_format"` // json, text
	TUIEnabled  bool   `yaml:"tui"`

	// Diagnostic modes
	PrintCmd      bool `yaml:"-"`
	SkipPreflight bool `yaml:"skip_preflight"`
	ShowVersion   bool `yaml:"-"`

	// ConfigFile is the YAML file the values were loaded from, if any.
	ConfigFile string `yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Targets
		BrowserType: "system",
		Platform:    runtime.GOOS,

		// Profiler
		Profiler:     "sample",
		SamplePath:   "sample",
		ReadyTimeout: 120 * time.Second,
		Duration:     0, // Until interrupted
		StopTimeout:  60 * time.Second,

		// Observability
		MetricsAddr: "", // Disabled
		Verbose:     false,
		LogFormat:   "json",
		TUIEnabled:  false,
	}
}

// UsesDiscovery reports whether targets come from the browser process tree.
func (c *Config) UsesDiscovery() bool {
	return c.BrowserPID > 0
}
