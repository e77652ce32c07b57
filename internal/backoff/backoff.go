// Package backoff provides exponential backoff with jitter for retry loops.
//
// Serial port reopen attempts and camera reopen attempts share the same
// policy so device flapping produces predictable, bounded retry pressure.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Policy describes an exponential backoff schedule.
//
// Delays start at Initial and multiply by Multiplier after each attempt,
// capped at Max. Jitter, when non-zero, randomises each delay by up to
// +/- Jitter fraction (0.2 means +/- 20%) to avoid synchronised retries
// across devices.
type Policy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultPolicy returns the policy used for device reopen loops.
func DefaultPolicy() Policy {
	return Policy{
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
}

// Delay returns the base delay for the given zero-based attempt number,
// without jitter applied.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.Initial)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
		if time.Duration(d) >= p.Max {
			return p.Max
		}
	}
	if time.Duration(d) > p.Max {
		return p.Max
	}
	return time.Duration(d)
}

// Backoff tracks retry state for one resource.
//
// Not safe for concurrent use; each retry loop owns its own Backoff.
type Backoff struct {
	policy  Policy
	attempt int
	rng     *rand.Rand
}

// New creates a Backoff using the given policy.
func New(policy Policy) *Backoff {
	return &Backoff{
		policy: policy,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay to wait before the next attempt and advances
// the attempt counter.
func (b *Backoff) Next() time.Duration {
	d := b.policy.Delay(b.attempt)
	b.attempt++
	if b.policy.Jitter > 0 {
		// Spread within [d*(1-j), d*(1+j)].
		spread := float64(d) * b.policy.Jitter
		d = time.Duration(float64(d) - spread + b.rng.Float64()*2*spread)
		if d < 0 {
			d = 0
		}
	}
	return d
}

// Reset returns the backoff to its initial delay after a success.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt reports how many delays have been handed out since the last reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Sleep waits for the next backoff delay or until ctx is cancelled.
// Returns ctx.Err() when cancelled, nil when the delay elapsed.
func (b *Backoff) Sleep(ctx context.Context) error {
	t := time.NewTimer(b.Next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
