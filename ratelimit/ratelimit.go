// Package ratelimit gates channel creation per user: a cap on simultaneous
// channels and a cooldown between creations. Reservations make the gate
// atomic: two concurrent creates from one user cannot both pass when a single
// slot remains, because the slot is held from TryReserve until Commit or
// Release.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/lunebot/tempchan/temperr"
)

// Deny reasons. Compare by identity; both carry the rate-limit error kind.
var (
	ErrMaxChannelsReached = temperr.RateLimit("user already has the maximum number of temp channels")
	ErrCooldownActive     = temperr.RateLimit("user is on creation cooldown")
)

type record struct {
	activeCount    int
	reserved       int
	lastCreationAt time.Time
}

type Limiter struct {
	mu         sync.Mutex
	maxPerUser int
	cooldown   time.Duration
	users      map[string]*record
}

func New(maxPerUser int, cooldown time.Duration) *Limiter {
	return &Limiter{
		maxPerUser: maxPerUser,
		cooldown:   cooldown,
		users:      make(map[string]*record),
	}
}

// TryReserve claims a creation slot for userID at time now. A nil error means
// the slot is held and must be paired with exactly one Commit or Release.
// Denials mutate nothing.
func (l *Limiter) TryReserve(userID string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.users[userID]
	if rec == nil {
		rec = &record{}
		l.users[userID] = rec
	}
	if rec.activeCount+rec.reserved >= l.maxPerUser {
		return ErrMaxChannelsReached
	}
	if !rec.lastCreationAt.IsZero() && now.Before(rec.lastCreationAt.Add(l.cooldown)) {
		return ErrCooldownActive
	}
	rec.reserved++
	return nil
}

// Commit converts a held reservation into an active channel and starts the
// cooldown clock. Called after the platform create succeeded.
func (l *Limiter) Commit(userID string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.users[userID]
	if rec == nil || rec.reserved == 0 {
		slog.Warn("rate limiter commit without reservation", slog.String("user_id", userID))
		return
	}
	rec.reserved--
	rec.activeCount++
	rec.lastCreationAt = now
}

// Release drops a held reservation after a failed create. No cooldown is
// charged for an attempt that produced nothing.
func (l *Limiter) Release(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.users[userID]
	if rec == nil || rec.reserved == 0 {
		slog.Warn("rate limiter release without reservation", slog.String("user_id", userID))
		return
	}
	rec.reserved--
}

// ReleaseSlot decrements the active count when a channel's deletion is
// finalized. The engine calls this exactly once per descriptor regardless of
// which trigger deleted it.
func (l *Limiter) ReleaseSlot(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.users[userID]
	if rec == nil || rec.activeCount == 0 {
		slog.Warn("rate limiter slot release without active channel", slog.String("user_id", userID))
		return
	}
	rec.activeCount--
}

// ActiveCount returns the number of active channels charged to userID.
func (l *Limiter) ActiveCount(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec := l.users[userID]; rec != nil {
		return rec.activeCount
	}
	return 0
}
