package product

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// BackoffPolicy computes jittered exponential delays from a run of
// consecutive failures. The pipeline uses it to slow down against an
// unavailable extractor or store instead of hot-looping.
type BackoffPolicy struct {
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewBackoffPolicy builds a policy with sane defaults when given zero
// values.
func NewBackoffPolicy(base, max time.Duration) *BackoffPolicy {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	return &BackoffPolicy{baseDelay: base, maxDelay: max}
}

// Delay returns the wait duration after the given number of consecutive
// failures. Zero failures means no wait.
func (p *BackoffPolicy) Delay(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(failures-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func (p *BackoffPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
