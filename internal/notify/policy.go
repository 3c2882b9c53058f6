package notify

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds per-contact retries and the overall dispatch.
type Policy struct {
	// MaxAttempts counts the first try. Values below 1 mean 1.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	// Deadline caps the whole dispatch. Zero means only the caller's
	// context applies.
	Deadline time.Duration
	// AttemptTimeout caps a single notifier call. Zero leaves it to the
	// notifier.
	AttemptTimeout time.Duration
	// MaxWorkers caps concurrent contacts. Zero means one worker per contact.
	MaxWorkers int
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2,
		Deadline:       time.Minute,
		AttemptTimeout: 15 * time.Second,
		MaxWorkers:     8,
	}
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// NewBackOff returns the wait schedule between attempts to one contact:
// InitialBackoff, then multiplied by Multiplier each time, capped at
// MaxBackoff. There is no jitter and no elapsed-time limit; the dispatch
// deadline and the attempt count bound the retries instead.
func (p Policy) NewBackOff() backoff.BackOff {
	if p.InitialBackoff <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.RandomizationFactor = 0
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.MaxInterval = p.MaxBackoff
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(math.MaxInt64)
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (p Policy) workers(contacts int) int {
	if p.MaxWorkers > 0 && p.MaxWorkers < contacts {
		return p.MaxWorkers
	}
	return contacts
}
