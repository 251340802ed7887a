// Package platform defines the capability interface the lifecycle core
// consumes. The core never talks a chat protocol itself; everything it needs
// from the platform collaborator is expressed here, so the discord adapter
// and the test fake are interchangeable.
package platform

import (
	"context"
	"errors"

	"github.com/lunebot/tempchan/perms"
)

// ErrNotFound is returned by DeleteChannel (and friends) when the channel no
// longer exists on the platform. Deletion treats it as success.
var ErrNotFound = errors.New("platform: channel not found")

// Client is the set of platform primitives the engine calls. Implementations
// may block; callers never hold descriptor locks across these calls.
type Client interface {
	// CreateChannel creates a channel under the managed category with the
	// given display name, topic line, and permission grants, returning the
	// platform channel id.
	CreateChannel(ctx context.Context, name, topic string, grants perms.GrantSet) (string, error)

	// DeleteChannel removes the channel. ErrNotFound means it was already gone.
	DeleteChannel(ctx context.Context, channelID string) error

	// RenameChannel updates the display name (countdown refresh).
	RenameChannel(ctx context.Context, channelID, newName string) error

	// ApplyGrants applies an incremental permission change (invite/kick).
	ApplyGrants(ctx context.Context, channelID string, delta perms.GrantDelta) error

	// SendMessage posts text into the channel and returns the message id.
	SendMessage(ctx context.Context, channelID, text string) (string, error)

	// AddReactions seeds a message with reaction emojis (extension shortcuts
	// on warning messages).
	AddReactions(ctx context.Context, channelID, messageID string, emojis []string) error

	// BotUserID identifies the bot's own user, so grant planning can keep the
	// bot's control over channels it must later rename and delete.
	BotUserID() string
}
