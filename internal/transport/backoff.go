package transport

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the redial delay after failure N (1-based).
func NextBackoffDelay(cfg BackoffConfig, failures int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	delay := float64(cfg.InitialDelay)
	if failures > 1 {
		delay *= math.Pow(max(cfg.Multiplier, 1.0), float64(failures-1))
	}
	if cfg.MaxDelay > 0 {
		delay = min(delay, float64(cfg.MaxDelay))
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f += rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}
