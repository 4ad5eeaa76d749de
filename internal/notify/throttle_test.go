package notify

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestThrottle_cooldown(t *testing.T) {
	throttle := NewThrottle()
	defer throttle.Close()

	now := time.Now()
	throttle.now = func() time.Time { return now }

	chat := uuid.New()
	user := uuid.New()

	assert.True(t, throttle.Allow(chat, user), "first notification must pass")
	assert.False(t, throttle.Allow(chat, user), "second notification inside the cooldown must be suppressed")

	now = now.Add(MinTimeBetweenNotifications - time.Millisecond)
	assert.False(t, throttle.Allow(chat, user), "still inside the cooldown")

	now = now.Add(time.Millisecond)
	assert.True(t, throttle.Allow(chat, user), "cooldown elapsed")
}

func TestThrottle_independentPairs(t *testing.T) {
	throttle := NewThrottle()
	defer throttle.Close()

	chatA, chatB := uuid.New(), uuid.New()
	userA, userB := uuid.New(), uuid.New()

	assert.True(t, throttle.Allow(chatA, userA))
	assert.True(t, throttle.Allow(chatA, userB), "other users are not throttled")
	assert.True(t, throttle.Allow(chatB, userA), "other chats are not throttled")
	assert.False(t, throttle.Allow(chatA, userA))
}

func TestThrottle_evictStale(t *testing.T) {
	throttle := NewThrottle()
	defer throttle.Close()

	now := time.Now()
	throttle.now = func() time.Time { return now }

	chat := uuid.New()
	user := uuid.New()
	assert.True(t, throttle.Allow(chat, user))

	now = now.Add(staleAfter + time.Second)
	throttle.evictStale()

	throttle.mu.Lock()
	assert.Empty(t, throttle.lastSent, "stale entries should be evicted")
	throttle.mu.Unlock()
}
