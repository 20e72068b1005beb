// Package session owns member sessions and the handling of upstream session expiry.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"breadcast/internal/domain"
)

// ExpiryGuard makes session expiry a once-per-session event. Several requests
// of one session can hit an upstream 401 at the same time; only the first one
// clears the session and reports it, the rest stay quiet.
type ExpiryGuard struct {
	store domain.SessionStore
	ttl   time.Duration

	mu      sync.Mutex
	expired map[string]time.Time
	now     func() time.Time
}

// NewExpiryGuard forgets expired sessions after ttl.
func NewExpiryGuard(store domain.SessionStore, ttl time.Duration) *ExpiryGuard {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ExpiryGuard{store: store, ttl: ttl, expired: map[string]time.Time{}, now: time.Now}
}

// Expire clears sid and reports whether this call was the first since the
// session was (re)established.
func (g *ExpiryGuard) Expire(ctx context.Context, sid string) bool {
	g.mu.Lock()
	now := g.now()
	for k, at := range g.expired {
		if now.Sub(at) > g.ttl {
			delete(g.expired, k)
		}
	}
	if _, ok := g.expired[sid]; ok {
		g.mu.Unlock()
		return false
	}
	g.expired[sid] = now
	g.mu.Unlock()

	if err := g.store.Clear(ctx, sid); err != nil {
		log.Warn().Err(err).Msg("clear expired session failed")
	}
	log.Info().Str("sid", shortID(sid)).Msg("upstream session expired; redirecting to sign-in")
	return true
}

// Reset re-arms the guard for sid after a successful login.
func (g *ExpiryGuard) Reset(sid string) {
	g.mu.Lock()
	delete(g.expired, sid)
	g.mu.Unlock()
}

func shortID(sid string) string {
	if len(sid) > 8 {
		return sid[:8]
	}
	return sid
}
