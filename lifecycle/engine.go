// Package lifecycle owns the temporary-channel state machine: descriptor
// registration, the scheduler tick, expiry and inactivity detection, warnings,
// countdown renames, extension and closure, and race-free deletion. Every
// trigger that decides a channel must die funnels through the same
// PendingDeletion transition, so no two triggers can double-delete or
// resurrect a channel.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lunebot/tempchan/channel"
	"github.com/lunebot/tempchan/config"
	"github.com/lunebot/tempchan/perms"
	"github.com/lunebot/tempchan/platform"
	"github.com/lunebot/tempchan/ratelimit"
	"github.com/lunebot/tempchan/telemetry"
	"github.com/lunebot/tempchan/temperr"
)

type Engine struct {
	cfg     *config.Config
	store   *channel.Store
	limiter *ratelimit.Limiter
	client  platform.Client

	// CategoryDefaults are the inherited grants layered under every new
	// channel's overwrites. Set once at wiring time.
	CategoryDefaults perms.GrantSet

	enabled atomic.Bool

	// now and spawn are swap points for tests: a fake clock and a
	// synchronous runner make the scenarios deterministic.
	now   func() time.Time
	spawn func(fn func())

	lastTick           atomic.Int64 // unix nanos of the last completed tick
	lastDisplayRefresh time.Time    // scheduler goroutine only

	statsMu sync.Mutex
	deleted map[channel.DeleteReason]int

	log *slog.Logger
}

func New(cfg *config.Config, store *channel.Store, limiter *ratelimit.Limiter, client platform.Client) *Engine {
	e := &Engine{
		cfg:     cfg,
		store:   store,
		limiter: limiter,
		client:  client,
		now:     time.Now,
		spawn:   func(fn func()) { go fn() },
		deleted: make(map[channel.DeleteReason]int),
		log:     slog.Default().With(slog.String("component", "lifecycle")),
	}
	e.enabled.Store(cfg.Enabled)
	telemetry.SetEnabled(cfg.Enabled)
	return e
}

// Enabled reports whether new channel creation is currently allowed.
func (e *Engine) Enabled() bool { return e.enabled.Load() }

// SetEnabled flips the deployment-wide creation toggle. Existing channels
// keep running either way.
func (e *Engine) SetEnabled(enabled bool) {
	e.enabled.Store(enabled)
	telemetry.SetEnabled(enabled)
	e.log.Info("temp channel creation toggled", slog.Bool("enabled", enabled))
}

// Create provisions a new temporary channel: rate-limit gate, grant planning,
// platform create, then descriptor registration. The rate-limit reservation
// is committed only once the platform create succeeded; any failure in
// between releases it so the user's quota is never leaked.
func (e *Engine) Create(ctx context.Context, ownerID, creatorName, topic string, visibility channel.Visibility, duration time.Duration) (*channel.Descriptor, error) {
	if !e.enabled.Load() {
		telemetry.CreationsDenied.WithLabelValues("disabled").Inc()
		return nil, temperr.Validation("temp channels are currently disabled by administrators")
	}

	now := e.now()
	if err := e.limiter.TryReserve(ownerID, now); err != nil {
		reason := "max_channels"
		if err == ratelimit.ErrCooldownActive {
			reason = "cooldown"
		}
		telemetry.CreationsDenied.WithLabelValues(reason).Inc()
		return nil, err
	}

	d := &channel.Descriptor{
		OwnerID:      ownerID,
		CreatorName:  creatorName,
		Topic:        topic,
		Visibility:   visibility,
		CreatedAt:    now,
		ExpiresAt:    now.Add(duration),
		InvitedUsers: make(map[string]struct{}),
		State:        channel.Active,
	}

	grants := perms.PlanCreate(visibility, ownerID, e.client.BotUserID(), e.CategoryDefaults)
	name := d.DisplayName(now)
	topicLine := fmt.Sprintf("⏰ Expires in %s | Created by %s", channel.FormatCountdown(duration), creatorName)

	id, err := e.client.CreateChannel(ctx, name, topicLine, grants)
	if err != nil {
		e.limiter.Release(ownerID)
		telemetry.PlatformErrors.WithLabelValues("create").Inc()
		return nil, temperr.Platform("create channel", err)
	}
	d.ID = id
	d.LastRenderedName = name

	if err := e.store.Add(d); err != nil {
		// The platform handed back an id we already track. Local state wins:
		// release the reservation and surface the inconsistency.
		e.limiter.Release(ownerID)
		telemetry.LoggerWithCorr(ctx).Error("duplicate channel id from platform", slog.String("channel_id", id), slog.Any("err", err))
		return nil, temperr.Platform("register channel", err)
	}
	e.limiter.Commit(ownerID, now)

	telemetry.ChannelsCreated.Inc()
	telemetry.SetActiveChannels(e.store.Len())
	telemetry.LoggerWithCorr(ctx).Info("temp channel created",
		slog.String("channel_id", id),
		slog.String("owner_id", ownerID),
		slog.String("visibility", string(visibility)),
		slog.Duration("duration", duration))

	if _, err := e.client.SendMessage(ctx, id, welcomeMessage(d, duration, e.cfg.InactivityGrace)); err != nil {
		e.log.Warn("welcome message failed", slog.String("channel_id", id), slog.Any("err", err))
	}
	return d, nil
}

// Extend pushes the expiry out by delta, capped at createdAt+maxLifetime.
// Hitting the cap still succeeds; the returned expiry tells the caller how
// much actually applied. Owner or admin only, Active only.
func (e *Engine) Extend(ctx context.Context, channelID, userID string, isAdmin bool, delta time.Duration) (time.Time, error) {
	d := e.store.Get(channelID)
	if d == nil {
		return time.Time{}, temperr.State("this is not a temp channel")
	}

	d.Lock()
	if d.State != channel.Active {
		d.Unlock()
		return time.Time{}, temperr.State("channel is closing")
	}
	if userID != d.OwnerID && !isAdmin {
		d.Unlock()
		return time.Time{}, temperr.Authorization("only the channel creator can extend the channel")
	}
	ceiling := d.CreatedAt.Add(e.cfg.MaxLifetime)
	newExpiry := d.ExpiresAt.Add(delta)
	if newExpiry.After(ceiling) {
		newExpiry = ceiling
	}
	if newExpiry.Before(d.ExpiresAt) {
		newExpiry = d.ExpiresAt
	}
	d.ExpiresAt = newExpiry
	d.Extended = true
	// Arm a fresh warning for the new deadline. The recorded warning message
	// stays reactive so shortcut reactions queued behind this extension still
	// land on it.
	d.WarningSent = false
	name := d.DisplayName(e.now())
	rename := name != d.LastRenderedName
	if rename {
		d.LastRenderedName = name
	}
	d.Unlock()

	telemetry.ExtensionsApplied.Inc()
	telemetry.LoggerWithCorr(ctx).Info("temp channel extended",
		slog.String("channel_id", channelID),
		slog.Duration("delta", delta),
		slog.Time("expires_at", newExpiry))

	if rename {
		if err := e.client.RenameChannel(ctx, channelID, name); err != nil {
			telemetry.PlatformErrors.WithLabelValues("rename").Inc()
			e.log.Warn("rename after extension failed", slog.String("channel_id", channelID), slog.Any("err", err))
		} else {
			telemetry.RenamesIssued.Inc()
		}
	}
	return newExpiry, nil
}

// Close retires the channel immediately, bypassing expiry and inactivity
// checks. Owner or admin; an admin closing someone else's channel is recorded
// as an admin override.
func (e *Engine) Close(ctx context.Context, channelID, userID string, isAdmin bool) error {
	d := e.store.Get(channelID)
	if d == nil {
		return temperr.State("this is not a temp channel")
	}

	d.Lock()
	if d.State != channel.Active {
		d.Unlock()
		return temperr.State("channel is already closing")
	}
	if userID != d.OwnerID && !isAdmin {
		d.Unlock()
		return temperr.Authorization("only the channel creator or administrators can close the channel")
	}
	reason := channel.ReasonClosed
	if isAdmin && userID != d.OwnerID {
		reason = channel.ReasonAdminClosed
	}
	d.State = channel.PendingDeletion
	d.DeleteReason = reason
	d.Unlock()

	e.spawn(func() { e.performDeletion(context.WithoutCancel(ctx), d) })
	return nil
}

// Invite grants targetID access to a private channel. Duplicate invites are
// no-op successes.
func (e *Engine) Invite(ctx context.Context, channelID, userID, targetID string, isAdmin bool) error {
	return e.mutateMembership(ctx, channelID, userID, targetID, isAdmin, true)
}

// Kick revokes targetID's access to a private channel. Kicking a non-member
// is a no-op success; kicking the owner is rejected.
func (e *Engine) Kick(ctx context.Context, channelID, userID, targetID string, isAdmin bool) error {
	return e.mutateMembership(ctx, channelID, userID, targetID, isAdmin, false)
}

func (e *Engine) mutateMembership(ctx context.Context, channelID, userID, targetID string, isAdmin, invite bool) error {
	d := e.store.Get(channelID)
	if d == nil {
		return temperr.State("this is not a temp channel")
	}

	d.Lock()
	if d.State != channel.Active {
		d.Unlock()
		return temperr.State("channel is closing")
	}
	if d.Visibility != channel.Private {
		d.Unlock()
		if invite {
			return temperr.Validation("this is a public channel - anyone can join")
		}
		return temperr.Validation("users can only be kicked from private channels")
	}
	if userID != d.OwnerID && !isAdmin {
		d.Unlock()
		if invite {
			return temperr.Authorization("only the channel creator can invite users")
		}
		return temperr.Authorization("only the channel creator can kick users")
	}
	if !invite && targetID == d.OwnerID {
		d.Unlock()
		return temperr.Validation("the channel owner cannot be kicked")
	}
	var delta perms.GrantDelta
	if invite {
		delta = perms.PlanInvite(d, targetID)
	} else {
		delta = perms.PlanKick(d, targetID)
	}
	d.Unlock()

	if delta.Empty() {
		return nil
	}
	op := "invite"
	if !invite {
		op = "kick"
	}
	if err := e.client.ApplyGrants(ctx, channelID, delta); err != nil {
		telemetry.PlatformErrors.WithLabelValues(op).Inc()
		return temperr.Platform(op+" grants", err)
	}

	d.Lock()
	if d.State == channel.Active {
		if invite {
			d.InvitedUsers[targetID] = struct{}{}
		} else {
			delete(d.InvitedUsers, targetID)
		}
		// Membership changes count as activity.
		d.LastActivityAt = e.now()
		d.InactivityWarned = false
	}
	d.Unlock()

	telemetry.LoggerWithCorr(ctx).Info("membership changed",
		slog.String("channel_id", channelID),
		slog.String("op", op),
		slog.String("target_id", targetID))
	return nil
}

// IsWarningMessage reports whether messageID is the channel's recorded expiry
// warning. Reaction-based extension is scoped to that one message; reactions
// anywhere else in the channel carry no meaning.
func (e *Engine) IsWarningMessage(channelID, messageID string) bool {
	d := e.store.Get(channelID)
	if d == nil {
		return false
	}
	d.Lock()
	defer d.Unlock()
	return d.WarningMessageID != "" && d.WarningMessageID == messageID
}

// ObserveActivity records a message in the channel, resetting the inactivity
// clock. Ignored for untracked or closing channels.
func (e *Engine) ObserveActivity(channelID string) {
	d := e.store.Get(channelID)
	if d == nil {
		return
	}
	d.Lock()
	if d.State == channel.Active {
		d.LastActivityAt = e.now()
		d.InactivityWarned = false
	}
	d.Unlock()
}

// Summary is a read-only view of one owned channel for list output.
type Summary struct {
	ID         string
	Topic      string
	Visibility channel.Visibility
	Remaining  time.Duration
}

// ListOwned returns the requester's active channels.
func (e *Engine) ListOwned(userID string) []Summary {
	now := e.now()
	var out []Summary
	for _, d := range e.store.OwnedBy(userID) {
		d.Lock()
		out = append(out, Summary{
			ID:         d.ID,
			Topic:      d.Topic,
			Visibility: d.Visibility,
			Remaining:  d.Remaining(now),
		})
		d.Unlock()
	}
	return out
}

// Status is the ops snapshot served by /status and /readyz.
type Status struct {
	Enabled        bool                         `json:"enabled"`
	ActiveChannels int                          `json:"active_channels"`
	LastTick       time.Time                    `json:"last_tick"`
	Deleted        map[channel.DeleteReason]int `json:"deleted"`
}

func (e *Engine) Stats() Status {
	e.statsMu.Lock()
	deleted := make(map[channel.DeleteReason]int, len(e.deleted))
	for k, v := range e.deleted {
		deleted[k] = v
	}
	e.statsMu.Unlock()
	var last time.Time
	if n := e.lastTick.Load(); n != 0 {
		last = time.Unix(0, n)
	}
	return Status{
		Enabled:        e.enabled.Load(),
		ActiveChannels: e.store.Len(),
		LastTick:       last,
		Deleted:        deleted,
	}
}

// LastTick returns when the scheduler last completed a pass.
func (e *Engine) LastTick() time.Time {
	if n := e.lastTick.Load(); n != 0 {
		return time.Unix(0, n)
	}
	return time.Time{}
}
