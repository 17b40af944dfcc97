package transport

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoffDelayGrowsAndCaps(t *testing.T) {
	cfg := BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
	}
	assert.Equal(t, 100*time.Millisecond, NextBackoffDelay(cfg, 1, nil))
	assert.Equal(t, 200*time.Millisecond, NextBackoffDelay(cfg, 2, nil))
	assert.Equal(t, 800*time.Millisecond, NextBackoffDelay(cfg, 4, nil))
	assert.Equal(t, time.Second, NextBackoffDelay(cfg, 10, nil))
}

func TestNextBackoffDelayJitterBounds(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: time.Second, Multiplier: 1, Jitter: true}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		d := NextBackoffDelay(cfg, 3, rng)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.Less(t, d, 1500*time.Millisecond)
	}
}

func TestNextBackoffDelayDisabled(t *testing.T) {
	assert.Equal(t, time.Duration(0), NextBackoffDelay(BackoffConfig{}, 5, nil))
	assert.Equal(t, time.Second, NextBackoffDelay(BackoffConfig{InitialDelay: time.Second, Multiplier: 0.5}, 3, nil))
}
