package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MinTimeBetweenNotifications is the per-(chat, user) push cooldown
const MinTimeBetweenNotifications = 3 * time.Second

// staleAfter is how long an idle cooldown entry survives before the sweeper drops it
const staleAfter = 10 * time.Minute

// Throttle tracks, per chat, when each offline user was last push-notified,
// and suppresses notifications that would arrive inside the cooldown window.
// Entries idle longer than staleAfter are evicted by a background sweeper.
type Throttle struct {
	mu       sync.Mutex
	lastSent map[uuid.UUID]map[uuid.UUID]time.Time
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewThrottle creates a notification throttle and starts its sweeper
func NewThrottle() *Throttle {
	t := &Throttle{
		lastSent: make(map[uuid.UUID]map[uuid.UUID]time.Time),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go t.sweep()
	return t
}

// Allow reports whether a notification for (chat, user) may be dispatched
// now. When it returns true the pair is stamped immediately, so a concurrent
// send for the same pair cannot double-dispatch.
func (t *Throttle) Allow(chatID, userID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	users, ok := t.lastSent[chatID]
	if !ok {
		users = make(map[uuid.UUID]time.Time)
		t.lastSent[chatID] = users
	}

	if last, ok := users[userID]; ok && now.Sub(last) < MinTimeBetweenNotifications {
		return false
	}

	users[userID] = now
	return true
}

// Close stops the background sweeper
func (t *Throttle) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *Throttle) sweep() {
	ticker := time.NewTicker(staleAfter / 2)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.evictStale()
		}
	}
}

func (t *Throttle) evictStale() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-staleAfter)
	for chatID, users := range t.lastSent {
		for userID, last := range users {
			if last.Before(cutoff) {
				delete(users, userID)
			}
		}
		if len(users) == 0 {
			delete(t.lastSent, chatID)
		}
	}
}
