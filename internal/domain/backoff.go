package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultDeliveryDelay is how long a response waits before its first attempt.
const DefaultDeliveryDelay = 180 * time.Second

// DefaultBackoffDelays is the retry schedule, indexed by failed attempt count - 1.
var DefaultBackoffDelays = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	6 * time.Hour,
	12 * time.Hour,
	24 * time.Hour,
}

// BackoffPolicy is a fixed, ordered retry schedule. By default the number of
// tiers is also the maximum number of attempts a delivery gets.
type BackoffPolicy struct {
	delays      []time.Duration
	maxAttempts int
}

func NewBackoffPolicy(delays []time.Duration) (BackoffPolicy, error) {
	if len(delays) == 0 {
		return BackoffPolicy{}, fmt.Errorf("%w: backoff schedule must not be empty", ErrValidation)
	}

	copied := make([]time.Duration, len(delays))
	for i, d := range delays {
		if d <= 0 {
			return BackoffPolicy{}, fmt.Errorf("%w: backoff delay %d must be positive", ErrValidation, i)
		}
		if i > 0 && d < copied[i-1] {
			return BackoffPolicy{}, fmt.Errorf("%w: backoff delays must be non-decreasing", ErrValidation)
		}
		copied[i] = d
	}

	return BackoffPolicy{delays: copied, maxAttempts: len(copied)}, nil
}

// WithMaxAttempts overrides the attempt limit. Attempts past the last tier
// reuse the last delay.
func (p BackoffPolicy) WithMaxAttempts(n int) BackoffPolicy {
	if n > 0 {
		p.maxAttempts = n
	}
	return p
}

func DefaultBackoffPolicy() BackoffPolicy {
	policy, _ := NewBackoffPolicy(DefaultBackoffDelays)
	return policy
}

// ParseBackoffPolicy reads a whitespace or comma separated list of durations,
// e.g. "1m 5m 30m 2h".
func ParseBackoffPolicy(raw string) (BackoffPolicy, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '|' || r == '\t'
	})

	delays := make([]time.Duration, 0, len(fields))
	for _, field := range fields {
		d, err := time.ParseDuration(field)
		if err != nil {
			return BackoffPolicy{}, fmt.Errorf("%w: invalid backoff delay %q", ErrValidation, field)
		}
		delays = append(delays, d)
	}

	return NewBackoffPolicy(delays)
}

// MaxAttempts is the number of failed attempts after which a delivery fails.
func (p BackoffPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// Delays returns a copy of the schedule.
func (p BackoffPolicy) Delays() []time.Duration {
	out := make([]time.Duration, len(p.delays))
	copy(out, p.delays)
	return out
}

// Delay returns the wait after the given number of failed attempts (1-based).
func (p BackoffPolicy) Delay(attempts int) time.Duration {
	if len(p.delays) == 0 {
		return 0
	}
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.delays) {
		idx = len(p.delays) - 1
	}
	return p.delays[idx]
}

// Exhausted reports whether a delivery with this many failed attempts is done.
func (p BackoffPolicy) Exhausted(attempts int) bool {
	return attempts >= p.maxAttempts
}

// NextAttemptAt returns the next eligible time after a failure at failedAt that
// brought the attempt count to attempts. ok is false when retries are exhausted.
func (p BackoffPolicy) NextAttemptAt(failedAt time.Time, attempts int) (next time.Time, ok bool) {
	if p.Exhausted(attempts) {
		return time.Time{}, false
	}
	return failedAt.Add(p.Delay(attempts)), true
}

func (p BackoffPolicy) String() string {
	parts := make([]string, 0, len(p.delays))
	for _, d := range p.delays {
		parts = append(parts, d.String())
	}
	return strings.Join(parts, " ")
}
