package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-sample-profiler/internal/metrics"
	"github.com/randomizedcoder/go-sample-profiler/internal/process"
	"github.com/randomizedcoder/go-sample-profiler/internal/profiler"
	"github.com/randomizedcoder/go-sample-profiler/internal/sampler"
)

// =============================================================================
// Mock Sources
// =============================================================================

type mockStatusSource struct {
	statuses []profiler.Status
}

func (m *mockStatusSource) Snapshot() []profiler.Status {
	return m.statuses
}

type mockSummarySource struct {
	summary *metrics.Summary
}

func (m *mockSummarySource) GenerateSummary() *metrics.Summary {
	return m.summary
}

func testStatuses() []profiler.Status {
	return []profiler.Status{
		{
			Target:     process.Target{PID: 101, OutputPath: "/tmp/browser.txt", Name: "browser"},
			SamplerPID: 9001,
			State:      sampler.StateReady,
			ReadySince: time.Now().Add(-2 * time.Second),
			LastLine:   "Sampling process 101 for 10 seconds",
		},
		{
			Target:     process.Target{PID: 102, OutputPath: "/tmp/renderer1.txt", Name: "renderer1"},
			SamplerPID: 9002,
			State:      sampler.StateStarting,
		},
	}
}

// wide avoids lipgloss wrapping table rows in assertions.
func wide(m Model) Model {
	newModel, _ := m.Update(tea.WindowSizeMsg{Width: 200, Height: 50})
	return newModel.(Model)
}

// =============================================================================
// Tests: New
// =============================================================================

func TestNew(t *testing.T) {
	cfg := Config{
		Profiler:    "sample",
		RunID:       "run-1",
		MetricsAddr: "localhost:9090",
		Duration:    30 * time.Second,
	}

	model := New(cfg)

	if model.profilerName != "sample" {
		t.Errorf("profilerName = %s, want sample", model.profilerName)
	}
	if model.runID != "run-1" {
		t.Errorf("runID = %s, want run-1", model.runID)
	}
	if model.metricsAddr != "localhost:9090" {
		t.Errorf("metricsAddr = %s, want localhost:9090", model.metricsAddr)
	}
	if model.duration != 30*time.Second {
		t.Errorf("duration = %v, want 30s", model.duration)
	}
	if model.width != 80 {
		t.Errorf("width = %d, want 80", model.width)
	}
	if model.height != 24 {
		t.Errorf("height = %d, want 24", model.height)
	}
}

// =============================================================================
// Tests: Init
// =============================================================================

func TestModel_Init(t *testing.T) {
	model := New(Config{})
	if cmd := model.Init(); cmd == nil {
		t.Error("Init() returned nil cmd")
	}
}

// =============================================================================
// Tests: Update - Key Messages
// =============================================================================

func TestModel_Update_QuitKeys(t *testing.T) {
	tests := []struct {
		name     string
		msg      tea.KeyMsg
		wantQuit bool
	}{
		{"q", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}, true},
		{"enter", tea.KeyMsg{Type: tea.KeyEnter}, true},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}, true},
		{"esc", tea.KeyMsg{Type: tea.KeyEsc}, true},
		{"o", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("o")}, false},
		{"r", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")}, false},
		{"x", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			newModel, cmd := New(Config{}).Update(tt.msg)
			m := newModel.(Model)

			if m.Quitting() != tt.wantQuit {
				t.Errorf("Quitting() = %v, want %v", m.Quitting(), tt.wantQuit)
			}
			if tt.wantQuit && cmd == nil {
				t.Error("expected tea.Quit cmd")
			}
		})
	}
}

func TestModel_Update_ToggleOutput(t *testing.T) {
	model := New(Config{})
	if model.showOutput {
		t.Fatal("showOutput should be false initially")
	}

	msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("o")}
	newModel, _ := model.Update(msg)
	m := newModel.(Model)
	if !m.showOutput {
		t.Error("showOutput should be true after pressing 'o'")
	}

	newModel, _ = m.Update(msg)
	m = newModel.(Model)
	if m.showOutput {
		t.Error("showOutput should be false after pressing 'o' again")
	}
}

// =============================================================================
// Tests: Update - Other Messages
// =============================================================================

func TestModel_Update_WindowSize(t *testing.T) {
	newModel, cmd := New(Config{}).Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m := newModel.(Model)

	if m.width != 120 || m.height != 40 {
		t.Errorf("size = %dx%d, want 120x40", m.width, m.height)
	}
	if cmd != nil {
		t.Error("WindowSizeMsg should not return a cmd")
	}
}

func TestModel_Update_TickRefreshesFromSources(t *testing.T) {
	statuses := &mockStatusSource{statuses: testStatuses()}
	summary := &mockSummarySource{summary: &metrics.Summary{Started: 2, Ready: 1}}

	model := New(Config{StatusSource: statuses, SummarySource: summary})
	newModel, cmd := model.Update(TickMsg(time.Now()))
	m := newModel.(Model)

	if cmd == nil {
		t.Error("TickMsg should schedule the next tick")
	}
	if m.Total() != 2 {
		t.Errorf("Total() = %d, want 2", m.Total())
	}
	if m.ReadyCount() != 1 {
		t.Errorf("ReadyCount() = %d, want 1", m.ReadyCount())
	}
	if m.summary == nil || m.summary.Started != 2 {
		t.Errorf("summary = %+v, want Started=2", m.summary)
	}
}

func TestModel_Update_TickWithoutSources(t *testing.T) {
	newModel, _ := New(Config{}).Update(TickMsg(time.Now()))
	m := newModel.(Model)
	if m.Total() != 0 || m.summary != nil {
		t.Errorf("expected empty model, got total=%d summary=%v", m.Total(), m.summary)
	}
}

func TestModel_Update_StatusMsg(t *testing.T) {
	newModel, _ := New(Config{}).Update(StatusMsg{Statuses: testStatuses()})
	m := newModel.(Model)
	if m.Total() != 2 {
		t.Errorf("Total() = %d, want 2", m.Total())
	}
}

func TestModel_Update_QuitMsg(t *testing.T) {
	newModel, cmd := New(Config{}).Update(QuitMsg{})
	m := newModel.(Model)
	if !m.Quitting() {
		t.Error("QuitMsg should set quitting")
	}
	if cmd == nil {
		t.Error("QuitMsg should return tea.Quit")
	}
}

// =============================================================================
// Tests: Accessors
// =============================================================================

func TestModel_Progress(t *testing.T) {
	if p := New(Config{}).Progress(); p != -1 {
		t.Errorf("Progress() without duration = %v, want -1", p)
	}

	m := New(Config{Duration: time.Hour})
	m.startTime = time.Now().Add(-30 * time.Minute)
	if p := m.Progress(); p < 0.49 || p > 0.51 {
		t.Errorf("Progress() = %v, want ~0.5", p)
	}

	m.startTime = time.Now().Add(-2 * time.Hour)
	if p := m.Progress(); p != 1 {
		t.Errorf("Progress() past duration = %v, want 1", p)
	}
}

// =============================================================================
// Tests: View
// =============================================================================

func TestModel_View_Quitting(t *testing.T) {
	m := New(Config{})
	m.quitting = true
	if v := m.View(); v != "" {
		t.Errorf("View() while quitting = %q, want empty", v)
	}
}

func TestModel_View_Empty(t *testing.T) {
	v := wide(New(Config{Profiler: "sample", RunID: "abc"})).View()

	for _, want := range []string{
		"go-sample-profiler",
		"Ready: 0/0",
		"Waiting for samplers...",
		"No samplers running.",
		"Run: abc",
	} {
		if !strings.Contains(v, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestModel_View_Samplers(t *testing.T) {
	m := New(Config{Profiler: "sample", MetricsAddr: "127.0.0.1:9100"})
	m.statuses = testStatuses()
	m = wide(m)
	v := m.View()

	for _, want := range []string{
		"Ready: 1/2",
		"Samplers (2)",
		"101",
		"renderer1",
		"9002",
		"ready",
		"starting",
		"/tmp/browser.txt",
		"1/2 samplers recording",
		"Metrics: 127.0.0.1:9100",
	} {
		if !strings.Contains(v, want) {
			t.Errorf("View() missing %q", want)
		}
	}
	if strings.Contains(v, "Sampling process 101") {
		t.Error("last line shown before toggling output")
	}

	newModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("o")})
	v = newModel.(Model).View()
	if !strings.Contains(v, "Sampling process 101") {
		t.Error("View() with output toggled should show the last line")
	}
}

func TestModel_View_AllReady(t *testing.T) {
	m := New(Config{})
	m.statuses = testStatuses()[:1]
	v := wide(m).View()
	if !strings.Contains(v, "All samplers recording") {
		t.Errorf("View() missing all-ready status")
	}
}

func TestModel_View_Collecting(t *testing.T) {
	m := New(Config{})
	m.statuses = testStatuses()
	newModel, _ := wide(m).Update(CollectingMsg{})
	v := newModel.(Model).View()
	if !strings.Contains(v, "Collecting profiles...") {
		t.Errorf("View() missing collecting status")
	}
}

func TestModel_View_Readiness(t *testing.T) {
	m := New(Config{})
	m.summary = &metrics.Summary{
		Started:      3,
		Ready:        2,
		Failed:       1,
		Timeouts:     1,
		ReadinessP50: 150 * time.Millisecond,
		ReadinessP95: 300 * time.Millisecond,
		ReadinessMax: 320 * time.Millisecond,
		ExitCodes:    map[int]int64{0: 2, 1: 1},
	}
	v := wide(m).View()

	for _, want := range []string{
		"Attach Latency",
		"150 ms",
		"320 ms",
		"Failed: 1 (timeouts: 1)",
		"Exit Codes",
	} {
		if !strings.Contains(v, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

// =============================================================================
// Tests: Helpers
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{90 * time.Second, "00:01:30"},
		{3*time.Hour + 5*time.Minute + 7*time.Second, "03:05:07"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatMs(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 ms"},
		{500 * time.Microsecond, "500 µs"},
		{1500 * time.Millisecond, "1500 ms"},
	}
	for _, tt := range tests {
		if got := formatMs(tt.d); got != tt.want {
			t.Errorf("formatMs(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"tiny", 3, "tiny"},
	}
	for _, tt := range tests {
		if got := truncate(tt.s, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.max, got, tt.want)
		}
	}
}

func TestSendHelpers_NilProgram(t *testing.T) {
	// Must not panic.
	SendStatus(nil, nil)
	SendCollecting(nil)
	SendQuit(nil)
}
