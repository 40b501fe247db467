package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoomRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRoomRateLimiter(2, 10*time.Second)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("42", "alice"))
	assert.True(t, rl.Allow("42", "alice"))
	assert.False(t, rl.Allow("42", "alice"))

	// separate windows per room and per identity
	assert.True(t, rl.Allow("42", "bob"))
	assert.True(t, rl.Allow("7", "alice"))

	now = now.Add(11 * time.Second)
	assert.True(t, rl.Allow("42", "alice"))
}

func TestRoomRateLimiter_ForgetAndDisabled(t *testing.T) {
	rl := NewRoomRateLimiter(1, time.Minute)
	assert.True(t, rl.Allow("42", "alice"))
	assert.False(t, rl.Allow("42", "alice"))
	rl.Forget("42", "alice")
	assert.True(t, rl.Allow("42", "alice"))

	off := NewRoomRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		assert.True(t, off.Allow("42", "alice"))
	}
	var nilLimiter *RoomRateLimiter
	assert.True(t, nilLimiter.Allow("42", "alice"))
}
