package guardian

import (
	"sync"
	"time"
)

// DedupWindow is how long an outbound text suppresses an identical resend.
const DedupWindow = 10 * time.Second

// Deduper suppresses identical outbound notifications. Expired entries are
// evicted on each check.
type Deduper struct {
	ttl time.Duration

	mu   sync.Mutex
	sent map[string]time.Time
}

func NewDeduper(ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DedupWindow
	}
	return &Deduper{ttl: ttl, sent: map[string]time.Time{}}
}

// ShouldSend records text as sent at now unless an identical text is still
// cached.
func (d *Deduper) ShouldSend(text string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, at := range d.sent {
		if now.Sub(at) > d.ttl {
			delete(d.sent, k)
		}
	}
	if _, ok := d.sent[text]; ok {
		return false
	}
	d.sent[text] = now
	return true
}

// Forget drops text from the cache (used when delivery failed, so the next
// attempt is not suppressed).
func (d *Deduper) Forget(text string) {
	d.mu.Lock()
	delete(d.sent, text)
	d.mu.Unlock()
}
