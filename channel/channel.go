// Package channel holds the in-memory model for temporary channels: the
// Descriptor, its lifecycle states, and the Store tracking every live one.
package channel

import (
	"sync"
	"time"
)

type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// State is the descriptor lifecycle state. PendingDeletion is terminal and
// entered at most once; a descriptor in it accepts no further mutation.
type State string

const (
	Active          State = "active"
	PendingDeletion State = "pending_deletion"
)

// DeleteReason records which trigger retired a channel.
type DeleteReason string

const (
	ReasonExpired     DeleteReason = "expired"
	ReasonInactive    DeleteReason = "inactive"
	ReasonClosed      DeleteReason = "closed"
	ReasonAdminClosed DeleteReason = "admin_closed"
)

// Descriptor is the record for one live temporary channel. All field access
// after registration must happen with the descriptor locked; the engine
// acquires the lock for every mutation and every tick decision so concurrent
// triggers are linearized per channel.
type Descriptor struct {
	mu sync.Mutex

	ID          string
	OwnerID     string
	CreatorName string
	Topic       string
	Visibility  Visibility

	CreatedAt time.Time
	ExpiresAt time.Time

	// LastActivityAt stays zero until the first observed message; the
	// inactivity clock only runs once someone has actually spoken, so a
	// silent channel is governed by its expiry alone.
	LastActivityAt time.Time

	InvitedUsers map[string]struct{}

	State        State
	DeleteReason DeleteReason

	// Warning one-shots. InactivityWarned resets when activity is observed.
	WarningSent      bool
	InactivityWarned bool
	WarningMessageID string

	Extended bool

	// LastRenderedName skips no-op renames against the platform.
	LastRenderedName string
}

func (d *Descriptor) Lock()   { d.mu.Lock() }
func (d *Descriptor) Unlock() { d.mu.Unlock() }

// Invited reports whether userID holds an explicit invite. Caller holds the lock.
func (d *Descriptor) Invited(userID string) bool {
	_, ok := d.InvitedUsers[userID]
	return ok
}

// InactivityDeadline derives the inactivity cutoff: last activity plus the
// grace period, clamped to the expiry so a tie is always reported as expired.
// Zero while no activity has been observed. Caller holds the lock.
func (d *Descriptor) InactivityDeadline(grace time.Duration) time.Time {
	if d.LastActivityAt.IsZero() {
		return time.Time{}
	}
	deadline := d.LastActivityAt.Add(grace)
	if deadline.After(d.ExpiresAt) {
		return d.ExpiresAt
	}
	return deadline
}

// Remaining returns time left until expiry, floored at zero. Caller holds the lock.
func (d *Descriptor) Remaining(now time.Time) time.Duration {
	r := d.ExpiresAt.Sub(now)
	if r < 0 {
		return 0
	}
	return r
}
