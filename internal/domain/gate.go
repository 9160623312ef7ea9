package domain

import "sync"

// LiveGate is the process-wide switch between live trading and detect-only
// mode. It starts closed and only opens after authentication verifiably
// works; any fatal auth outcome closes it again. An authentication problem
// must never result in an irreversible on-chain operation, so order
// placement checks the gate before signing anything.
type LiveGate struct {
	mu                  sync.Mutex
	open                bool
	reason              string
	consecutiveFailures int
}

// NewLiveGate returns a closed gate (detect-only until auth succeeds).
func NewLiveGate() *LiveGate {
	return &LiveGate{reason: "authentication not yet verified"}
}

// Allow reports whether live operations may proceed.
func (g *LiveGate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Reason explains why the gate is closed. Empty while open.
func (g *LiveGate) Reason() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return ""
	}
	return g.reason
}

// RecordSuccess opens the gate and resets the failure streak.
func (g *LiveGate) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = true
	g.reason = ""
	g.consecutiveFailures = 0
}

// RecordFailure counts a failed verification and closes the gate.
// Returns the consecutive failure count so callers can escalate
// (e.g. invalidate cached credentials after repeated post-success failures).
func (g *LiveGate) RecordFailure(reason string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = false
	g.reason = reason
	g.consecutiveFailures++
	return g.consecutiveFailures
}
