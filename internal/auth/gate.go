// Package auth implements the Auth Gate: every externally callable
// operation passes its caller-supplied password through Gate.Check before
// doing any other work.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"sync"

	"golang.org/x/time/rate"

	"github.com/relayforge/taskmesh/internal/engine"
)

// attemptsPerCaller/attemptBurst bound how fast a single caller key may
// retry Check, independent of the secret comparison itself.
const (
	attemptsPerCaller = 1 // sustained attempts per second
	attemptBurst      = 5
)

// Gate holds the process-wide configured secret. It is the only component
// permitted to read that process-wide state; every other component receives
// a pre-checked request.
type Gate struct {
	secretDigest [sha256.Size]byte
	configured   bool

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewGate constructs a Gate from the configured secret. An empty secret
// leaves the gate unconfigured: every Check thereafter fails with
// ErrServerMisconfigured rather than silently allowing or rejecting
// passwords against an empty string.
func NewGate(secret string) *Gate {
	g := &Gate{limiters: make(map[string]*rate.Limiter)}
	if secret == "" {
		return g
	}
	g.secretDigest = sha256.Sum256([]byte(secret))
	g.configured = true
	return g
}

// Check compares password against the configured secret in constant time.
// It returns engine.ErrServerMisconfigured if no secret was configured at
// startup, and engine.ErrUnauthorized on mismatch.
func (g *Gate) Check(password string) error {
	if !g.configured {
		return engine.ErrServerMisconfigured
	}
	digest := sha256.Sum256([]byte(password))
	if !hmac.Equal(digest[:], g.secretDigest[:]) {
		return engine.ErrUnauthorized
	}
	return nil
}

// CheckWithKey is Check plus a per-caller token bucket (keyed by whatever
// the transport considers a caller identity — remote address, API key id)
// so a single caller hammering bad passwords cannot burn CPU on repeated
// digest comparisons at unbounded rate. Callers without a meaningful key
// should use Check directly.
func (g *Gate) CheckWithKey(key, password string) error {
	if !g.configured {
		return engine.ErrServerMisconfigured
	}
	if !g.callerLimiter(key).Allow() {
		return engine.ErrUnauthorized
	}
	return g.Check(password)
}

func (g *Gate) callerLimiter(key string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(attemptsPerCaller), attemptBurst)
		g.limiters[key] = l
	}
	return l
}
