package wait

import (
	"testing"
	"time"
)

// =============================================================================
// Table-Driven Tests: DefaultBackoffConfig
// =============================================================================

func TestDefaultBackoffConfig(t *testing.T) {
	cfg := DefaultBackoffConfig()

	if cfg.Initial != 50*time.Millisecond {
		t.Errorf("Initial = %v, want 50ms", cfg.Initial)
	}
	if cfg.Max != time.Second {
		t.Errorf("Max = %v, want 1s", cfg.Max)
	}
	if cfg.Multiplier != 1.5 {
		t.Errorf("Multiplier = %v, want 1.5", cfg.Multiplier)
	}
	if cfg.JitterPct != 0.2 {
		t.Errorf("JitterPct = %v, want 0.2", cfg.JitterPct)
	}
}

// =============================================================================
// Table-Driven Tests: Backoff.Calculate (no jitter)
// =============================================================================

func TestBackoff_Calculate_NoJitter(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		initial  time.Duration
		max      time.Duration
		mult     float64
		want     time.Duration
	}{
		{"attempt 0", 0, 100 * time.Millisecond, 10 * time.Second, 2.0, 100 * time.Millisecond},
		{"attempt 1", 1, 100 * time.Millisecond, 10 * time.Second, 2.0, 200 * time.Millisecond},
		{"attempt 3", 3, 100 * time.Millisecond, 10 * time.Second, 2.0, 800 * time.Millisecond},
		{"capped at max", 10, 100 * time.Millisecond, time.Second, 2.0, time.Second},
		{"multiplier 1.5", 2, 100 * time.Millisecond, 10 * time.Second, 1.5, 225 * time.Millisecond},
		{"no growth", 5, 100 * time.Millisecond, 10 * time.Second, 1.0, 100 * time.Millisecond},
		{"zero max is uncapped", 4, 10 * time.Millisecond, 0, 2.0, 160 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBackoff(0, BackoffConfig{
				Initial:    tt.initial,
				Max:        tt.max,
				Multiplier: tt.mult,
			})
			for i := 0; i < tt.attempts; i++ {
				b.Next()
			}

			if got := b.Calculate(); got != tt.want {
				t.Errorf("Calculate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackoff_Next(t *testing.T) {
	b := NewBackoff(0, BackoffConfig{Initial: 10 * time.Millisecond, Max: time.Second, Multiplier: 2})

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %v, want %v", i+1, got, w)
		}
	}
}

func TestBackoff_MultiplierBelowOneUsesDefault(t *testing.T) {
	tests := []struct {
		name string
		mult float64
	}{
		{"zero", 0},
		{"shrinking", 0.5},
		{"negative", -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBackoff(0, BackoffConfig{Initial: 100 * time.Millisecond, Max: 10 * time.Second, Multiplier: tt.mult})

			want := []time.Duration{100 * time.Millisecond, 150 * time.Millisecond, 225 * time.Millisecond}
			for i, w := range want {
				if got := b.Next(); got != w {
					t.Errorf("Next() #%d = %v, want %v", i+1, got, w)
				}
			}
		})
	}
}

func TestNewBackoff_ZeroInitialUsesDefaults(t *testing.T) {
	b := NewBackoff(0, BackoffConfig{})
	d := b.Next()
	// default 50ms with ±10% jitter
	if d < 45*time.Millisecond || d > 55*time.Millisecond {
		t.Errorf("Next() = %v, want ~50ms", d)
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: time.Second, Multiplier: 1, JitterPct: 0.4}
	b := NewBackoff(42, cfg)

	for i := 0; i < 200; i++ {
		d := b.Calculate()
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("Calculate() = %v, outside ±20%% of 1s", d)
		}
	}
}

func TestBackoff_SameSeedSameSequence(t *testing.T) {
	cfg := DefaultBackoffConfig()
	a := NewBackoff(7, cfg)
	b := NewBackoff(7, cfg)

	for i := 0; i < 10; i++ {
		if da, db := a.Next(), b.Next(); da != db {
			t.Fatalf("attempt %d: %v != %v", i, da, db)
		}
	}
}
