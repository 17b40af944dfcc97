package transport

import (
	"math"
	"math/rand"
	"time"
)

type BackoffConfig struct {
	InitialDelay time.Duration `yaml:"initial-delay" mapstructure:"initial-delay"`
	MaxDelay     time.Duration `yaml:"max-delay" mapstructure:"max-delay"`
	Multiplier   float64       `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter       bool          `yaml:"jitter" mapstructure:"jitter"`
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// NextBackoffDelay returns the retry delay for attempt N (1-based). With
// jitter the delay is scaled by a factor in [0.5, 1.5).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	delay := float64(cfg.InitialDelay)
	if attempt > 1 {
		multiplier := cfg.Multiplier
		if multiplier < 1.0 {
			multiplier = 1.0
		}
		delay *= math.Pow(multiplier, float64(attempt-1))
	}
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}
