package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/lunebot/tempchan/channel"
	"github.com/lunebot/tempchan/telemetry"
)

// StartScheduler runs the periodic lifecycle pass until ctx is canceled.
// Expiry and inactivity are checked every CheckInterval; countdown renames
// only go out on DisplayRefresh boundaries so deletion latency stays bounded
// independently of the rename cadence (and its platform rate limits).
func (e *Engine) StartScheduler(ctx context.Context) {
	e.log.Info("lifecycle scheduler starting",
		slog.Duration("check_interval", e.cfg.CheckInterval),
		slog.Duration("display_refresh", e.cfg.DisplayRefresh))
	// Kick an immediate pass so we don't wait a full interval after boot.
	e.tickOnce(ctx)
	ticker := time.NewTicker(e.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.log.Info("lifecycle scheduler stopped")
			return
		case <-ticker.C:
			e.tickOnce(ctx)
		}
	}
}

// tickAction is what one descriptor check decided, computed under the
// descriptor lock and executed outside it.
type tickAction struct {
	deleteNow      bool
	warnExpiry     time.Duration // >0: send expiry warning with this much left
	warnInactivity time.Duration // >0: send inactivity warning with this much left
	rename         string        // non-empty: issue countdown rename
}

// tickOnce runs a single consistent pass over every descriptor.
func (e *Engine) tickOnce(ctx context.Context) {
	start := e.now()
	refreshDisplay := e.lastDisplayRefresh.IsZero() || start.Sub(e.lastDisplayRefresh) >= e.cfg.DisplayRefresh
	if refreshDisplay {
		e.lastDisplayRefresh = start
	}

	for _, d := range e.store.Snapshot() {
		act := e.checkDescriptor(d, start, refreshDisplay)
		e.applyTickAction(ctx, d, act)
	}

	e.lastTick.Store(e.now().UnixNano())
	if telemetry.TickDuration != nil {
		telemetry.TickDuration.Observe(e.now().Sub(start).Seconds())
	}
}

// checkDescriptor evaluates one descriptor under its lock. Expiry is checked
// before inactivity so a simultaneous deadline is reported as expired.
func (e *Engine) checkDescriptor(d *channel.Descriptor, now time.Time, refreshDisplay bool) tickAction {
	d.Lock()
	defer d.Unlock()

	var act tickAction
	if d.State != channel.Active {
		return act
	}

	inactiveAt := d.InactivityDeadline(e.cfg.InactivityGrace)
	switch {
	case !now.Before(d.ExpiresAt):
		d.State = channel.PendingDeletion
		d.DeleteReason = channel.ReasonExpired
		act.deleteNow = true
		return act
	case !inactiveAt.IsZero() && !now.Before(inactiveAt):
		d.State = channel.PendingDeletion
		d.DeleteReason = channel.ReasonInactive
		act.deleteNow = true
		return act
	}

	if !d.WarningSent && d.ExpiresAt.Sub(now) <= e.cfg.WarningWindow {
		d.WarningSent = true
		act.warnExpiry = d.ExpiresAt.Sub(now)
	}
	if !inactiveAt.IsZero() && !d.InactivityWarned && inactiveAt.Sub(now) <= e.cfg.WarningWindow {
		d.InactivityWarned = true
		act.warnInactivity = inactiveAt.Sub(now)
	}
	if refreshDisplay {
		if name := d.DisplayName(now); name != d.LastRenderedName {
			d.LastRenderedName = name
			act.rename = name
		}
	}
	return act
}

// applyTickAction performs the I/O a check decided on, with no locks held.
func (e *Engine) applyTickAction(ctx context.Context, d *channel.Descriptor, act tickAction) {
	if act.deleteNow {
		e.spawn(func() { e.performDeletion(context.WithoutCancel(ctx), d) })
		return
	}
	if act.warnExpiry > 0 {
		e.sendExpiryWarning(ctx, d, act.warnExpiry)
	}
	if act.warnInactivity > 0 {
		e.sendInactivityWarning(ctx, d, act.warnInactivity)
	}
	if act.rename != "" {
		if err := e.client.RenameChannel(ctx, d.ID, act.rename); err != nil {
			telemetry.PlatformErrors.WithLabelValues("rename").Inc()
			e.log.Warn("countdown rename failed", slog.String("channel_id", d.ID), slog.Any("err", err))
		} else {
			telemetry.RenamesIssued.Inc()
		}
	}
}

func (e *Engine) sendExpiryWarning(ctx context.Context, d *channel.Descriptor, remaining time.Duration) {
	msgID, err := e.client.SendMessage(ctx, d.ID, expiryWarningMessage(remaining))
	if err != nil {
		telemetry.PlatformErrors.WithLabelValues("send_message").Inc()
		e.log.Warn("expiry warning failed", slog.String("channel_id", d.ID), slog.Any("err", err))
		return
	}
	if err := e.client.AddReactions(ctx, d.ID, msgID, ShortcutEmojis()); err != nil {
		e.log.Warn("warning reactions failed", slog.String("channel_id", d.ID), slog.Any("err", err))
	}
	d.Lock()
	if d.State == channel.Active {
		d.WarningMessageID = msgID
	}
	d.Unlock()
	telemetry.WarningsSent.WithLabelValues("expiry").Inc()
}

func (e *Engine) sendInactivityWarning(ctx context.Context, d *channel.Descriptor, remaining time.Duration) {
	if _, err := e.client.SendMessage(ctx, d.ID, inactivityWarningMessage(remaining)); err != nil {
		telemetry.PlatformErrors.WithLabelValues("send_message").Inc()
		e.log.Warn("inactivity warning failed", slog.String("channel_id", d.ID), slog.Any("err", err))
		return
	}
	telemetry.WarningsSent.WithLabelValues("inactivity").Inc()
}
