package guardian

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CommandWindow is the minimum spacing between accepted events of one
// speaker.
const CommandWindow = 2 * time.Second

// RateLimiter keeps a one-token bucket per normalized speaker. A rejected
// event does not consume or reset anything. Entries live for the session.
type RateLimiter struct {
	every time.Duration

	mu       sync.Mutex
	speakers map[string]*rate.Limiter
}

// NewRateLimiter returns a limiter with the given window (<= 0: CommandWindow).
func NewRateLimiter(window time.Duration) *RateLimiter {
	if window <= 0 {
		window = CommandWindow
	}
	return &RateLimiter{every: window, speakers: map[string]*rate.Limiter{}}
}

func (r *RateLimiter) Accept(speaker string, now time.Time) bool {
	key := NormalizeSpeaker(speaker)

	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.speakers[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(r.every), 1)
		r.speakers[key] = lim
	}
	return lim.AllowN(now, 1)
}

func (r *RateLimiter) speakerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.speakers)
}
