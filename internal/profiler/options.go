package profiler

import (
	"runtime"
	"strings"
)

// Options describes the environment a profiler would run in. The harness
// uses it to filter the registry before constructing anything.
type Options struct {
	// Platform is a GOOS value ("darwin", "linux", ...).
	Platform string

	// BrowserType is the harness browser selector, e.g. "system",
	// "android-chrome" or "cros-chrome".
	BrowserType string
}

// DefaultOptions returns Options for the running platform.
func DefaultOptions(browserType string) Options {
	return Options{
		Platform:    runtime.GOOS,
		BrowserType: browserType,
	}
}

// IsRemoteBrowser reports whether the browser runs on another device, where
// host-side tools cannot attach to it.
func (o Options) IsRemoteBrowser() bool {
	return strings.HasPrefix(o.BrowserType, "android") ||
		strings.HasPrefix(o.BrowserType, "cros")
}
