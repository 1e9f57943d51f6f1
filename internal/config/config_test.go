package config

import (
	"bytes"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Test Helpers
// =============================================================================

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(t *testing.T, args ...string) *Config {
	t.Helper()
	cfg, err := ParseArgs(newFlagSet(), args)
	if err != nil {
		t.Fatalf("ParseArgs(%v) error = %v", args, err)
	}
	return cfg
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiler.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Targets = []TargetSpec{{PID: 100, Output: "/tmp/a.txt"}}
	return cfg
}

// =============================================================================
// Defaults
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Platform != runtime.GOOS {
		t.Errorf("Platform = %q, want %q", cfg.Platform, runtime.GOOS)
	}
	if cfg.BrowserType != "system" {
		t.Errorf("BrowserType = %q", cfg.BrowserType)
	}
	if cfg.Profiler != "sample" || cfg.SamplePath != "sample" {
		t.Errorf("Profiler/SamplePath = %q/%q", cfg.Profiler, cfg.SamplePath)
	}
	if cfg.ReadyTimeout != 120*time.Second {
		t.Errorf("ReadyTimeout = %v, want 2m", cfg.ReadyTimeout)
	}
	if cfg.Duration != 0 {
		t.Errorf("Duration = %v, want 0", cfg.Duration)
	}
	if cfg.MetricsAddr != "" || cfg.TUIEnabled {
		t.Error("metrics and TUI should default to off")
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
}

// =============================================================================
// Flags
// =============================================================================

func TestParseTargetSpec(t *testing.T) {
	tests := []struct {
		value   string
		want    TargetSpec
		wantErr bool
	}{
		{"42=/tmp/a.txt", TargetSpec{PID: 42, Output: "/tmp/a.txt"}, false},
		{"42=/tmp/a=b.txt", TargetSpec{PID: 42, Output: "/tmp/a=b.txt"}, false},
		{" 7 =out", TargetSpec{PID: 7, Output: "out"}, false},
		{"42", TargetSpec{}, true},
		{"abc=/tmp/a", TargetSpec{}, true},
		{"0=/tmp/a", TargetSpec{}, true},
		{"-3=/tmp/a", TargetSpec{}, true},
		{"42=", TargetSpec{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := ParseTargetSpec(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTargetSpec(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTargetSpec(%q) = %+v, want %+v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseArgs_Targets(t *testing.T) {
	cfg := parse(t, "-target", "1=/tmp/a", "-target", "2=/tmp/b", "-duration", "30s", "--print-cmd")

	if len(cfg.Targets) != 2 || cfg.Targets[0].PID != 1 || cfg.Targets[1].Output != "/tmp/b" {
		t.Errorf("Targets = %+v", cfg.Targets)
	}
	if cfg.Duration != 30*time.Second {
		t.Errorf("Duration = %v", cfg.Duration)
	}
	if !cfg.PrintCmd {
		t.Error("PrintCmd not set")
	}
}

func TestParseArgs_AllFlags(t *testing.T) {
	cfg := parse(t,
		"-browser-pid", "500",
		"-output", "/tmp/chrome.txt",
		"-browser-type", "canary",
		"-platform", "darwin",
		"-sample", "/usr/bin/sample",
		"-sample-duration", "20",
		"-sample-interval", "5",
		"-full-paths",
		"-ready-timeout", "10s",
		"-stop-timeout", "5s",
		"-metrics", "127.0.0.1:9999",
		"-metrics-file", "/tmp/m.prom",
		"-v",
		"-log-format", "text",
		"-tui",
		"--skip-preflight",
	)

	checks := []struct {
		name string
		ok   bool
	}{
		{"BrowserPID", cfg.BrowserPID == 500},
		{"OutputPath", cfg.OutputPath == "/tmp/chrome.txt"},
		{"BrowserType", cfg.BrowserType == "canary"},
		{"Platform", cfg.Platform == "darwin"},
		{"SamplePath", cfg.SamplePath == "/usr/bin/sample"},
		{"SampleDuration", cfg.SampleDuration == 20},
		{"SampleInterval", cfg.SampleInterval == 5},
		{"FullPaths", cfg.FullPaths},
		{"ReadyTimeout", cfg.ReadyTimeout == 10*time.Second},
		{"StopTimeout", cfg.StopTimeout == 5*time.Second},
		{"MetricsAddr", cfg.MetricsAddr == "127.0.0.1:9999"},
		{"MetricsFile", cfg.MetricsFile == "/tmp/m.prom"},
		{"Verbose", cfg.Verbose},
		{"LogFormat", cfg.LogFormat == "text"},
		{"TUIEnabled", cfg.TUIEnabled},
		{"SkipPreflight", cfg.SkipPreflight},
		{"UsesDiscovery", cfg.UsesDiscovery()},
	}
	for _, c := range checks {
		if !c.ok {
			t.Errorf("%s not parsed: %+v", c.name, cfg)
		}
	}
}

func TestParseArgs_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad target", []string{"-target", "nope"}},
		{"unknown flag", []string{"-clients", "5"}},
		{"positional", []string{"-target", "1=/a", "extra"}},
		{"bad duration", []string{"-duration", "soon"}},
		{"missing config file", []string{"-config", "/nonexistent/profiler.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseArgs(newFlagSet(), tt.args); err == nil {
				t.Errorf("ParseArgs(%v) should fail", tt.args)
			}
		})
	}
}

func TestParseArgs_ConfigFilePrecedence(t *testing.T) {
	path := writeFile(t, `
platform: darwin
ready_timeout: 45s
log_format: text
metrics_addr: 127.0.0.1:17101
targets:
  - pid: 10
    output: /tmp/file-a.txt
  - pid: 11
    output: /tmp/file-b.txt
`)

	t.Run("file values", func(t *testing.T) {
		cfg := parse(t, "-config", path)
		if cfg.ConfigFile != path {
			t.Errorf("ConfigFile = %q", cfg.ConfigFile)
		}
		if cfg.ReadyTimeout != 45*time.Second || cfg.LogFormat != "text" || cfg.Platform != "darwin" {
			t.Errorf("file values not applied: %+v", cfg)
		}
		if len(cfg.Targets) != 2 {
			t.Errorf("Targets = %+v", cfg.Targets)
		}
		// Untouched keys keep defaults
		if cfg.SamplePath != "sample" || cfg.StopTimeout != 60*time.Second {
			t.Errorf("defaults lost: %+v", cfg)
		}
	})

	t.Run("flags override file", func(t *testing.T) {
		cfg := parse(t, "-config="+path, "-ready-timeout", "5s", "-target", "99=/tmp/flag.txt")
		if cfg.ReadyTimeout != 5*time.Second {
			t.Errorf("ReadyTimeout = %v, want flag value", cfg.ReadyTimeout)
		}
		if len(cfg.Targets) != 1 || cfg.Targets[0].PID != 99 {
			t.Errorf("flag targets should replace file targets: %+v", cfg.Targets)
		}
		if cfg.MetricsAddr != "127.0.0.1:17101" {
			t.Errorf("MetricsAddr = %q, want file value", cfg.MetricsAddr)
		}
	})
}

func TestFindConfigFlag(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, ""},
		{[]string{"-config", "a.yaml"}, "a.yaml"},
		{[]string{"--config", "a.yaml"}, "a.yaml"},
		{[]string{"-config=b.yaml"}, "b.yaml"},
		{[]string{"-v", "--config=c.yaml", "-tui"}, "c.yaml"},
		{[]string{"-config"}, ""},
		{[]string{"--", "-config", "a.yaml"}, ""},
		{[]string{"config", "a.yaml"}, ""},
	}
	for _, tt := range tests {
		if got := findConfigFlag(tt.args); got != tt.want {
			t.Errorf("findConfigFlag(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestFlagType(t *testing.T) {
	tests := []struct {
		defValue string
		want     string
	}{
		{"true", ""},
		{"false", ""},
		{"0", "int"},
		{"120", "int"},
		{"2m0s", "duration"},
		{"0s", "duration"},
		{"sample", "string"},
		{"system", "string"},
		{"json", "string"},
	}
	for _, tt := range tests {
		f := &flag.Flag{Name: "x", DefValue: tt.defValue}
		if got := flagType(f); got != tt.want {
			t.Errorf("flagType(%q) = %q, want %q", tt.defValue, got, tt.want)
		}
	}
}

func TestUsage(t *testing.T) {
	fs := newFlagSet()
	if _, err := ParseArgs(fs, nil); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	printUsage(fs, &buf)

	out := buf.String()
	for _, want := range []string{"Targets:", "-target", "-browser-pid", "-ready-timeout duration", "(default 2m0s)", "--print-cmd"} {
		if !strings.Contains(out, want) {
			t.Errorf("usage missing %q", want)
		}
	}
}

// =============================================================================
// Config file
// =============================================================================

func TestLoadFile(t *testing.T) {
	t.Run("unknown key", func(t *testing.T) {
		path := writeFile(t, "clients: 5\n")
		if err := LoadFile(path, DefaultConfig()); err == nil {
			t.Error("unknown key should fail")
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeFile(t, "")
		cfg := DefaultConfig()
		if err := LoadFile(path, cfg); err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}
		if cfg.ReadyTimeout != 120*time.Second {
			t.Error("empty file changed defaults")
		}
	})

	t.Run("bad duration", func(t *testing.T) {
		path := writeFile(t, "ready_timeout: soon\n")
		if err := LoadFile(path, DefaultConfig()); err == nil {
			t.Error("bad duration should fail")
		}
	})

	t.Run("round trip", func(t *testing.T) {
		want := validConfig()
		want.Duration = 90 * time.Second
		want.Targets[0].Name = "gpu-process"

		data, err := Marshal(want)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		path := writeFile(t, string(data))

		got := &Config{}
		if err := LoadFile(path, got); err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}
		if got.Duration != want.Duration || got.Targets[0] != want.Targets[0] || got.ReadyTimeout != want.ReadyTimeout {
			t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
		}
	})
}

// =============================================================================
// Validation
// =============================================================================

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	cfg := DefaultConfig()
	cfg.BrowserPID = 10
	cfg.OutputPath = "/tmp/chrome.txt"
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() discovery config error = %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{"no targets", func(c *Config) { c.Targets = nil }, "targets"},
		{"both sources", func(c *Config) { c.BrowserPID = 5; c.OutputPath = "/tmp/x" }, "targets"},
		{"browser without output", func(c *Config) { c.Targets = nil; c.BrowserPID = 5 }, "output"},
		{"negative browser pid", func(c *Config) { c.Targets = nil; c.BrowserPID = -1 }, "browser_pid"},
		{"bad pid", func(c *Config) { c.Targets[0].PID = 0 }, "targets[0]"},
		{"missing output", func(c *Config) { c.Targets[0].Output = "" }, "targets[0]"},
		{"duplicate pid", func(c *Config) {
			c.Targets = append(c.Targets, TargetSpec{PID: 100, Output: "/tmp/b.txt"})
		}, "targets[1]"},
		{"duplicate output", func(c *Config) {
			c.Targets = append(c.Targets, TargetSpec{PID: 101, Output: "/tmp/a.txt"})
		}, "targets[1]"},
		{"empty platform", func(c *Config) { c.Platform = "" }, "platform"},
		{"empty profiler", func(c *Config) { c.Profiler = "" }, "profiler"},
		{"empty sample path", func(c *Config) { c.SamplePath = "" }, "sample_path"},
		{"interval without duration", func(c *Config) { c.SampleInterval = 5 }, "sample_interval"},
		{"negative sample duration", func(c *Config) { c.SampleDuration = -1 }, "sample_duration"},
		{"zero ready timeout", func(c *Config) { c.ReadyTimeout = 0 }, "ready_timeout"},
		{"negative duration", func(c *Config) { c.Duration = -time.Second }, "duration"},
		{"zero stop timeout", func(c *Config) { c.StopTimeout = 0 }, "stop_timeout"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantField+":") {
				t.Errorf("error %q does not mention %s", err, tt.wantField)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.ReadyTimeout = 0
	cfg.LogFormat = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() should fail")
	}

	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error is not a ValidationError: %T", err)
	}
	if !strings.Contains(err.Error(), "ready_timeout") || !strings.Contains(err.Error(), "log_format") {
		t.Errorf("joined error missing fields: %v", err)
	}
}

func TestValidate_VersionSkipsChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShowVersion = true
	if err := Validate(cfg); err != nil {
		t.Errorf("-version should not require targets: %v", err)
	}
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "ready_timeout", Message: "must be positive"}
	if e.Error() != "ready_timeout: must be positive" {
		t.Errorf("Error() = %q", e.Error())
	}
}
