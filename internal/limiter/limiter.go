// Package limiter throttles repeated failed logins per (email, client) pair.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether a login attempt is currently allowed and, if not, the retry-after.
	Allow(ctx context.Context, email string, clientHash []byte) (bool, time.Duration, error)
	// Success clears recorded failures after a successful login.
	Success(ctx context.Context, email string, clientHash []byte) error
	// Failure records a failed attempt; it reports true once the pair becomes blocked.
	Failure(ctx context.Context, email string, clientHash []byte) (bool, time.Duration, error)
}

// HashClient returns a stable hash for a client address so raw IPs are never stored.
func HashClient(addr string) []byte {
	h := sha256.Sum256([]byte(addr))
	return h[:]
}

// Nop never blocks. It backs deployments and tests that do not throttle logins.
type Nop struct{}

func (Nop) Allow(context.Context, string, []byte) (bool, time.Duration, error) { return true, 0, nil }
func (Nop) Success(context.Context, string, []byte) error                     { return nil }
func (Nop) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	return false, 0, nil
}
