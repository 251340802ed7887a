// Package command is the consumer-facing surface: it validates command and
// reaction input, calls the lifecycle engine, and renders results as
// user-facing text. No lifecycle logic lives here; the package is replaceable
// without touching engine behavior.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/lunebot/tempchan/channel"
	"github.com/lunebot/tempchan/lifecycle"
	"github.com/lunebot/tempchan/ratelimit"
	"github.com/lunebot/tempchan/temperr"
)

// durations enumerates the allowed creation durations by token.
var durations = map[string]time.Duration{
	"5m":    5 * time.Minute,
	"10m":   10 * time.Minute,
	"15m":   15 * time.Minute,
	"30m":   30 * time.Minute,
	"45m":   45 * time.Minute,
	"1h":    time.Hour,
	"1h30m": 90 * time.Minute,
	"2h":    2 * time.Hour,
	"3h":    3 * time.Hour,
	"4h":    4 * time.Hour,
	"6h":    6 * time.Hour,
	"8h":    8 * time.Hour,
	"12h":   12 * time.Hour,
	"24h":   24 * time.Hour,
}

// ParseDuration resolves a duration token. "5min"-style aliases are accepted
// alongside the canonical "5m" forms.
func ParseDuration(token string) (time.Duration, bool) {
	tok := strings.ToLower(strings.TrimSpace(token))
	tok = strings.ReplaceAll(tok, "min", "m")
	d, ok := durations[tok]
	return d, ok
}

func durationTokens() string {
	toks := make([]string, 0, len(durations))
	for tok := range durations {
		toks = append(toks, tok)
	}
	sort.Slice(toks, func(i, j int) bool { return durations[toks[i]] < durations[toks[j]] })
	return strings.Join(toks, ", ")
}

type Facade struct {
	engine *lifecycle.Engine
	log    *slog.Logger
}

func NewFacade(engine *lifecycle.Engine) *Facade {
	return &Facade{
		engine: engine,
		log:    slog.Default().With(slog.String("component", "command")),
	}
}

// Create handles the create command and returns the rendered response.
func (f *Facade) Create(ctx context.Context, userID, displayName, topic, visibility, durationToken string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "❌ Topic cannot be empty!"
	}
	var vis channel.Visibility
	switch strings.ToLower(visibility) {
	case "public":
		vis = channel.Public
	case "private":
		vis = channel.Private
	default:
		return "❌ Channel type must be `public` or `private`."
	}
	dur, ok := ParseDuration(durationToken)
	if !ok {
		return "❌ Invalid duration! Use: " + durationTokens()
	}

	d, err := f.engine.Create(ctx, userID, displayName, topic, vis, dur)
	if err != nil {
		return f.renderError(err)
	}
	return fmt.Sprintf("✅ Created <#%s> - **%s** expires in **%s**.", d.ID, topic, channel.FormatCountdown(dur))
}

// Extend handles the extend command. Amounts mirror the reaction shortcuts.
func (f *Facade) Extend(ctx context.Context, channelID, userID string, isAdmin bool, amountToken string) string {
	delta, ok := ParseDuration(amountToken)
	if !ok || shortcutFor(delta) == "" {
		return "❌ Invalid extension! Use: 5m, 10m or 30m."
	}
	return f.extend(ctx, channelID, userID, isAdmin, delta)
}

// shortcutFor maps a delta back to its shortcut emoji, or "".
func shortcutFor(delta time.Duration) string {
	for _, s := range lifecycle.ExtendShortcuts {
		if s.Delta == delta {
			return s.Emoji
		}
	}
	return ""
}

// OnReaction handles a reaction event in a managed channel. Only shortcut
// emojis on the channel's recorded expiry warning count; everything else,
// including unauthorized reactors, is ignored (empty response).
func (f *Facade) OnReaction(ctx context.Context, channelID, messageID, userID string, isAdmin bool, emoji string) string {
	delta := lifecycle.ShortcutDelta(emoji)
	if delta == 0 {
		return ""
	}
	if !f.engine.IsWarningMessage(channelID, messageID) {
		return ""
	}
	resp := f.extend(ctx, channelID, userID, isAdmin, delta)
	if strings.HasPrefix(resp, "❌") {
		// Reactions are noisy; a stranger clicking the clock is not an error
		// worth announcing.
		f.log.Debug("extension reaction ignored",
			slog.String("channel_id", channelID),
			slog.String("message_id", messageID),
			slog.String("user_id", userID))
		return ""
	}
	return resp
}

func (f *Facade) extend(ctx context.Context, channelID, userID string, isAdmin bool, delta time.Duration) string {
	newExpiry, err := f.engine.Extend(ctx, channelID, userID, isAdmin, delta)
	if err != nil {
		return f.renderError(err)
	}
	return fmt.Sprintf("✅ Channel extended by %d minutes! It now expires in **%s**.",
		int(delta.Minutes()), channel.FormatCountdown(time.Until(newExpiry)))
}

// Invite handles the invite command (private channels only).
func (f *Facade) Invite(ctx context.Context, channelID, userID, targetID string, isAdmin bool) string {
	if err := f.engine.Invite(ctx, channelID, userID, targetID, isAdmin); err != nil {
		return f.renderError(err)
	}
	return fmt.Sprintf("✅ <@%s> has been invited to the channel!", targetID)
}

// Kick handles the kick command (private channels only).
func (f *Facade) Kick(ctx context.Context, channelID, userID, targetID string, isAdmin bool) string {
	if targetID == userID {
		return "❌ You can't kick yourself! Use the close command instead."
	}
	if err := f.engine.Kick(ctx, channelID, userID, targetID, isAdmin); err != nil {
		return f.renderError(err)
	}
	return fmt.Sprintf("✅ <@%s> has been kicked from the channel!", targetID)
}

// Close handles the close command.
func (f *Facade) Close(ctx context.Context, channelID, userID string, isAdmin bool) string {
	if err := f.engine.Close(ctx, channelID, userID, isAdmin); err != nil {
		return f.renderError(err)
	}
	return "✅ Channel will be closed!"
}

// List renders the requester's active channels.
func (f *Facade) List(userID string) string {
	owned := f.engine.ListOwned(userID)
	if len(owned) == 0 {
		return "You don't have any temp channels."
	}
	lines := make([]string, 0, len(owned))
	for _, s := range owned {
		lines = append(lines, fmt.Sprintf("**%s** - %s left (%s)", s.Topic, channel.FormatRemaining(s.Remaining), s.Visibility))
	}
	return strings.Join(lines, "\n")
}

// OnMessage records channel activity from a (non-bot) message event.
func (f *Facade) OnMessage(channelID string) {
	f.engine.ObserveActivity(channelID)
}

// Admin surface -------------------------------------------------------------

// ForceEnable turns temp channel creation on for the deployment.
func (f *Facade) ForceEnable() string {
	f.engine.SetEnabled(true)
	return "✅ Temp channels enabled."
}

// ForceDisable turns creation off. Existing channels keep running.
func (f *Facade) ForceDisable() string {
	f.engine.SetEnabled(false)
	return "✅ Temp channels disabled. Existing channels keep their timers."
}

// ForceClose closes any temp channel regardless of ownership.
func (f *Facade) ForceClose(ctx context.Context, channelID, adminID string) string {
	if err := f.engine.Close(ctx, channelID, adminID, true); err != nil {
		return f.renderError(err)
	}
	return "✅ Channel will be closed!"
}

func (f *Facade) renderError(err error) string {
	switch {
	case err == ratelimit.ErrCooldownActive:
		return "⏰ You're on cooldown! Wait a few minutes between channel creations."
	case err == ratelimit.ErrMaxChannelsReached:
		return "❌ You already have the maximum number of temp channels! Close one first."
	case temperr.IsKind(err, temperr.KindPlatform):
		f.log.Error("platform failure surfaced to user", slog.Any("err", err))
		return "❌ Something went wrong talking to the platform. Try again in a moment."
	default:
		return "❌ " + capitalize(err.Error()) + "!"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
