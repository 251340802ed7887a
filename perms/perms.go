// Package perms computes the permission grants for temporary channels. All
// functions are pure: they read descriptor state and return grant instructions
// for the platform adapter to apply, which keeps the planning independently
// testable and free of I/O.
package perms

import "github.com/lunebot/tempchan/channel"

// Permission is a bitmask of the channel capabilities a grant covers.
type Permission uint8

const (
	View Permission = 1 << iota
	Send
	ManageMessages
	ManageChannel
)

// Target identifies who a grant applies to.
type Target struct {
	// UserID is set for user-scoped grants. Empty means the everyone role.
	UserID string
}

var Everyone = Target{}

func User(id string) Target { return Target{UserID: id} }

// Grant allows (or for the everyone role, withholds) permissions for a target.
type Grant struct {
	Target Target
	Allow  Permission
	Deny   Permission
}

// GrantSet is the full overwrite set applied at channel creation.
type GrantSet []Grant

// GrantDelta is an incremental mutation: Set adds or replaces grants, Clear
// removes a user's grant entirely.
type GrantDelta struct {
	Set   []Grant
	Clear []Target
}

// Empty reports whether applying the delta would change nothing.
func (d GrantDelta) Empty() bool { return len(d.Set) == 0 && len(d.Clear) == 0 }

// PlanCreate computes the overwrite set for a new channel. Category defaults
// are inherited first, then the temp-channel specifics layered on top: the
// everyone role sees the channel only when it is public, the owner gets view/
// send/manage-messages, and the bot user keeps full control so it can rename
// and delete later. Private channels additionally grant any pre-invited users.
func PlanCreate(visibility channel.Visibility, ownerID, botUserID string, categoryDefaults GrantSet) GrantSet {
	grants := make(GrantSet, 0, len(categoryDefaults)+3)
	grants = append(grants, categoryDefaults...)

	if visibility == channel.Public {
		grants = append(grants, Grant{Target: Everyone, Allow: View})
	} else {
		grants = append(grants, Grant{Target: Everyone, Deny: View})
	}
	grants = append(grants, Grant{Target: User(ownerID), Allow: View | Send | ManageMessages})
	if botUserID != "" {
		grants = append(grants, Grant{Target: User(botUserID), Allow: View | Send | ManageMessages | ManageChannel})
	}
	return grants
}

// PlanInvite returns the delta granting userID access to a private channel.
// Inviting a user who already has access (including the owner) is a no-op:
// duplicate invite events are expected and must not error.
func PlanInvite(d *channel.Descriptor, userID string) GrantDelta {
	if userID == d.OwnerID || d.Invited(userID) {
		return GrantDelta{}
	}
	return GrantDelta{Set: []Grant{{Target: User(userID), Allow: View | Send}}}
}

// PlanKick returns the delta revoking userID's access. Kicking a user who was
// never invited is a no-op for the same duplicate-event reason.
func PlanKick(d *channel.Descriptor, userID string) GrantDelta {
	if !d.Invited(userID) {
		return GrantDelta{}
	}
	return GrantDelta{Clear: []Target{User(userID)}}
}
