package channels

import (
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedSenders caps the number of tracked limiter keys so unknown
// senders rotating IDs cannot exhaust memory.
const maxTrackedSenders = 4096

// NoticeLimiter rate-limits per-sender user notices (pairing replies,
// "not authorized" messages) so a chatty denied sender gets at most one
// notice per interval instead of one per message. Safe for concurrent use.
type NoticeLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewNoticeLimiter creates a limiter allowing one notice per interval per
// key, with a burst of one.
func NewNoticeLimiter(perSecond float64) *NoticeLimiter {
	return &NoticeLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    1,
	}
}

// Allow reports whether a notice may be sent for the key now.
func (n *NoticeLimiter) Allow(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.limiters) >= maxTrackedSenders {
		// Hard eviction; per-sender fairness degrades before memory does.
		for k := range n.limiters {
			delete(n.limiters, k)
			if len(n.limiters) < maxTrackedSenders {
				break
			}
		}
	}

	l, ok := n.limiters[key]
	if !ok {
		l = rate.NewLimiter(n.limit, n.burst)
		n.limiters[key] = l
	}
	return l.Allow()
}
