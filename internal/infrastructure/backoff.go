package infrastructure

import (
	"math"
	"math/rand"
	"time"
)

// backoff is an exponential delay capped at maxJitter, with a random jitter on top.
type backoff struct {
	factor    float64
	minJitter time.Duration
	maxJitter time.Duration
	rng       *rand.Rand
}

func newBackoff(factor float64, minJitter, maxJitter time.Duration, defaults backoff) backoff {
	if factor < 1 {
		factor = defaults.factor
	}
	if minJitter <= 0 {
		minJitter = defaults.minJitter
	}
	if maxJitter <= 0 {
		maxJitter = defaults.maxJitter
	}
	if maxJitter < minJitter {
		maxJitter = minJitter
	}

	return backoff{
		factor:    factor,
		minJitter: minJitter,
		maxJitter: maxJitter,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b backoff) delay(attempt int) time.Duration {
	wait := float64(b.minJitter) * math.Pow(b.factor, float64(attempt))
	if wait > float64(b.maxJitter) {
		wait = float64(b.maxJitter)
	}

	base := time.Duration(wait)
	if b.maxJitter <= b.minJitter {
		return base
	}

	jitterWindow := b.maxJitter - b.minJitter
	result := base + time.Duration(b.rng.Int63n(int64(jitterWindow)+1))
	if result > b.maxJitter {
		return b.maxJitter
	}

	return result
}
