package runner

import (
	"math"
	"time"
)

// RetryStrategy encapsulates the delay between retry attempts. The attempt
// index starts at 0, incrementing after each failure.
type RetryStrategy interface {
	SleepDuration(attempt int, err error) time.Duration
}

// NoDelayStrategy retries immediately without waiting.
type NoDelayStrategy struct{}

func (n NoDelayStrategy) SleepDuration(_ int, _ error) time.Duration {
	return 0
}

// FixedDelayStrategy waits the same delay between every attempt.
type FixedDelayStrategy struct {
	Delay time.Duration
}

func (f FixedDelayStrategy) SleepDuration(_ int, _ error) time.Duration {
	return f.Delay
}

// ExponentialBackoffStrategy doubles (or multiplies by Factor) the delay on
// every attempt, capped at Max.
//
//	ExponentialBackoffStrategy{Base: 5 * time.Second, Factor: 2, Max: 5 * time.Minute}
//	=> 5s, 10s, 20s, ...
type ExponentialBackoffStrategy struct {
	// Base is the starting delay.
	Base time.Duration
	// Factor is multiplied each iteration; values <= 1 default to 2.
	Factor float64
	// Max caps the exponential growth. Zero means no cap.
	Max time.Duration
}

func (e ExponentialBackoffStrategy) SleepDuration(attempt int, _ error) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := e.Factor
	if factor <= 1 {
		factor = 2
	}
	delay := float64(e.Base) * math.Pow(factor, float64(attempt))
	if e.Max > 0 && time.Duration(delay) > e.Max {
		return e.Max
	}
	return time.Duration(delay)
}
