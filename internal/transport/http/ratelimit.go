package http

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sendLimiter applies a token bucket per user across all of the user's connections
// and periodically evicts idle entries.
type sendLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu     sync.Mutex
	byUser map[string]*limiterEntry
	hits   uint64
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newSendLimiter returns nil, which allows everything, when rps or burst is not positive.
func newSendLimiter(rps float64, burst int, idleTTL time.Duration) *sendLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &sendLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		byUser:  make(map[string]*limiterEntry),
	}
}

func (l *sendLimiter) allow(userID string, now time.Time) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byUser[userID]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byUser[userID] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byUser {
			if v.lastSeen.Before(cutoff) {
				delete(l.byUser, k)
			}
		}
	}
	return allowed
}
