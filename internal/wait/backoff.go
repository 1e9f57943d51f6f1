package wait

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig holds the configuration for the poll interval growth.
type BackoffConfig struct {
	Initial    time.Duration // First poll interval (default: 50ms)
	Max        time.Duration // Upper bound for a single interval (default: 1s)
	Multiplier float64       // Growth per attempt (default: 1.5)
	JitterPct  float64       // Jitter as a fraction of the interval (default: 0.2 = ±10%)
}

// DefaultBackoffConfig returns the poll schedule used while waiting for
// an external tool to report readiness.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    50 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 1.5,
		JitterPct:  0.2,
	}
}

// Backoff calculates exponential poll intervals with jitter.
// Not safe for concurrent use; each waiter owns its own instance.
type Backoff struct {
	config   BackoffConfig
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a Backoff whose jitter sequence is fixed by seed.
// A non-positive Initial selects DefaultBackoffConfig; a Multiplier below 1
// takes the default growth so intervals never shrink towards zero.
func NewBackoff(seed int64, cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg = DefaultBackoffConfig()
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = DefaultBackoffConfig().Multiplier
	}
	return &Backoff{
		config: cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next interval and increments the attempt counter.
func (b *Backoff) Next() time.Duration {
	delay := b.Calculate()
	b.attempts++
	return delay
}

// Calculate returns the current interval without incrementing attempts.
func (b *Backoff) Calculate() time.Duration {
	delay := float64(b.config.Initial) * math.Pow(b.config.Multiplier, float64(b.attempts))

	if b.config.Max > 0 && delay > float64(b.config.Max) {
		delay = float64(b.config.Max)
	}

	// ±(JitterPct/2) of the delay
	if b.config.JitterPct > 0 {
		jitterRange := delay * b.config.JitterPct
		delay += jitterRange*b.rng.Float64() - jitterRange/2
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}
