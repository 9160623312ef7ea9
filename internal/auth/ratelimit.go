package auth

// ratelimit.go — failure log rate limiting.
//
// Repeated identical failures collapse into summaries with escalating
// cooldowns, while full detail resurfaces periodically with a cumulative
// suppressed count so the operator can see the failure is ongoing.

import (
	"sync"
	"time"

	"github.com/alejandrodnm/polybridge/internal/domain"
)

const (
	defaultInitialCooldown = 5 * time.Minute
	defaultMaxCooldown     = 15 * time.Minute
	cooldownMultiplier     = 2
)

// FailureKey identifies a class of repeated failure. Two failures with the
// same key are the same problem as far as logging is concerned.
type FailureKey struct {
	Endpoint      string
	StatusCode    int
	SignerAddress string
	SignatureType domain.SignatureType
}

// LogDecision tells the caller how much of this failure to log.
type LogDecision struct {
	LogFull         bool
	LogSummary      bool
	SuppressedCount int
	Cooldown        time.Duration
}

type limiterEntry struct {
	count         int
	suppressUntil time.Time
	cooldown      time.Duration
}

// FailureLimiter deduplicates repeated identical failures over time.
// Pure function of stored state plus the injected clock — no I/O.
type FailureLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	initial time.Duration
	max     time.Duration
	entries map[FailureKey]*limiterEntry
}

// NewFailureLimiter builds a limiter with the given cooldown bounds.
// Zero durations fall back to the defaults (5 min initial, 15 min cap).
// now may be nil, in which case the wall clock is used.
func NewFailureLimiter(initial, max time.Duration, now func() time.Time) *FailureLimiter {
	if initial <= 0 {
		initial = defaultInitialCooldown
	}
	if max <= 0 {
		max = defaultMaxCooldown
	}
	if now == nil {
		now = time.Now
	}
	return &FailureLimiter{
		now:     now,
		initial: initial,
		max:     max,
		entries: make(map[FailureKey]*limiterEntry),
	}
}

// ShouldLog records one occurrence of the failure and decides whether the
// caller should emit full detail, a one-line summary, or nothing new.
//
// First occurrence of a key logs full and opens the initial cooldown.
// Within the cooldown, occurrences are counted and summarized. Once the
// cooldown elapses, the next occurrence logs full again and the cooldown
// grows (×2, capped), with the suppressed count reported and reset.
func (l *FailureLimiter) ShouldLog(key FailureKey) LogDecision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	e, ok := l.entries[key]
	if !ok {
		l.entries[key] = &limiterEntry{
			count:         1,
			cooldown:      l.initial,
			suppressUntil: now.Add(l.initial),
		}
		return LogDecision{LogFull: true, Cooldown: l.initial}
	}

	if now.Before(e.suppressUntil) {
		e.count++
		return LogDecision{
			LogSummary:      true,
			SuppressedCount: e.count - 1,
			Cooldown:        e.cooldown,
		}
	}

	suppressed := e.count - 1
	e.cooldown = min(e.cooldown*cooldownMultiplier, l.max)
	e.count = 1
	e.suppressUntil = now.Add(e.cooldown)
	return LogDecision{
		LogFull:         true,
		SuppressedCount: suppressed,
		Cooldown:        e.cooldown,
	}
}

// Reset drops all tracked failure state. Used after a successful
// verification so the next failure is reported in full again.
func (l *FailureLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[FailureKey]*limiterEntry)
}
