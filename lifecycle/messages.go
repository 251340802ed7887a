package lifecycle

import (
	"fmt"
	"time"

	"github.com/lunebot/tempchan/channel"
)

// Shortcut is one reaction-based extension: react with Emoji to add Delta.
type Shortcut struct {
	Emoji string
	Delta time.Duration
}

// ExtendShortcuts are the reaction shortcuts, in display order.
var ExtendShortcuts = []Shortcut{
	{"🕐", 5 * time.Minute},
	{"🕙", 10 * time.Minute},
	{"🕞", 30 * time.Minute},
}

// ShortcutEmojis returns the shortcut emojis in display order.
func ShortcutEmojis() []string {
	out := make([]string, len(ExtendShortcuts))
	for i, s := range ExtendShortcuts {
		out[i] = s.Emoji
	}
	return out
}

// ShortcutDelta maps a reaction emoji to its extension, or 0 if it is not one.
func ShortcutDelta(emoji string) time.Duration {
	for _, s := range ExtendShortcuts {
		if s.Emoji == emoji {
			return s.Delta
		}
	}
	return 0
}

func minutesLeft(d time.Duration) int {
	m := int(d.Minutes())
	if m < 1 {
		m = 1
	}
	return m
}

func plural(n int) string {
	if n != 1 {
		return "s"
	}
	return ""
}

func welcomeMessage(d *channel.Descriptor, duration, grace time.Duration) string {
	audience := "🌍 This is a public channel - anyone can join!"
	if d.Visibility == channel.Private {
		audience = "🔒 This is a private channel. Use `/invite @user` to add people."
	}
	// A channel shorter than the grace period can never outlive it; show the
	// duration instead of promising inactivity time it does not have.
	if duration < grace {
		grace = duration
	}
	return fmt.Sprintf("**%s** - Created by %s\n⏰ This channel will be deleted in **%s** or after **%s** of inactivity.\n%s",
		d.Topic, d.CreatorName, channel.FormatCountdown(duration), channel.FormatCountdown(grace), audience)
}

func expiryWarningMessage(remaining time.Duration) string {
	m := minutesLeft(remaining)
	return fmt.Sprintf("⚠️ **Channel Expiring Soon**\nThis channel will be deleted in **%d minute%s**!\nWant to extend? 🕐 +5min | 🕙 +10min | 🕞 +30min", m, plural(m))
}

func inactivityWarningMessage(remaining time.Duration) string {
	m := minutesLeft(remaining)
	return fmt.Sprintf("💤 **Channel Inactive**\nThis channel will be deleted in **%d minute%s** due to inactivity.\nSend a message to reset the timer.", m, plural(m))
}

func farewellMessage(reason channel.DeleteReason) string {
	switch reason {
	case channel.ReasonExpired:
		return "⏰ Time's up!"
	case channel.ReasonInactive:
		return "💤 Channel deleted due to inactivity"
	case channel.ReasonAdminClosed:
		return "Channel closed by administrator"
	default:
		return "Channel closed by creator"
	}
}
