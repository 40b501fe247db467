package app

import (
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/domain"
)

type limiterKey struct {
	room domain.RoomID
	id   domain.Identity
}

// RoomRateLimiter is a sliding-window limiter per identity per room.
type RoomRateLimiter struct {
	mu       sync.Mutex
	history  map[limiterKey][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRoomRateLimiter(limit int, interval time.Duration) *RoomRateLimiter {
	return &RoomRateLimiter{
		history:  make(map[limiterKey][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Allow records an attempt and reports whether it fits in the window.
// A non-positive limit disables limiting.
func (rl *RoomRateLimiter) Allow(room domain.RoomID, id domain.Identity) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)
	key := limiterKey{room: room, id: id}

	attempts := rl.history[key]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[key] = fresh
		return false
	}

	rl.history[key] = append(fresh, now)
	return true
}

// Forget drops the window of an identity that left the room.
func (rl *RoomRateLimiter) Forget(room domain.RoomID, id domain.Identity) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.history, limiterKey{room: room, id: id})
	rl.mu.Unlock()
}
