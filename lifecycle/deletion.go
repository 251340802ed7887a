package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/lunebot/tempchan/channel"
	"github.com/lunebot/tempchan/platform"
	"github.com/lunebot/tempchan/telemetry"
)

// performDeletion carries a PendingDeletion descriptor to the end: farewell
// message, platform delete with bounded backoff, then local finalize. Only
// the trigger that won the Active->PendingDeletion transition ever calls
// this, so the finalize (store removal + rate-limit slot release) happens
// exactly once per descriptor.
//
// Local consistency beats remote cleanup: if the platform keeps failing past
// the retry budget we log the inconsistency and clear our state anyway, so a
// stuck remote channel can never block the owner's quota forever.
func (e *Engine) performDeletion(ctx context.Context, d *channel.Descriptor) {
	d.Lock()
	id := d.ID
	owner := d.OwnerID
	reason := d.DeleteReason
	d.Unlock()

	log := e.log.With(slog.String("channel_id", id), slog.String("reason", string(reason)))

	// Farewell is best effort; a dead channel can't stop its own funeral.
	if _, err := e.client.SendMessage(ctx, id, farewellMessage(reason)); err != nil {
		log.Debug("farewell message failed", slog.Any("err", err))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := e.client.DeleteChannel(ctx, id)
		if err == nil || errors.Is(err, platform.ErrNotFound) {
			return struct{}{}, nil
		}
		telemetry.PlatformErrors.WithLabelValues("delete").Inc()
		log.Warn("platform delete failed, retrying", slog.Any("err", err))
		return struct{}{}, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(e.cfg.DeleteMaxAttempts)))
	if err != nil {
		log.Error("platform delete abandoned after retries; forcing local cleanup", slog.Any("err", err))
	}

	e.store.Remove(id)
	e.limiter.ReleaseSlot(owner)

	e.statsMu.Lock()
	e.deleted[reason]++
	e.statsMu.Unlock()

	telemetry.ChannelsDeleted.WithLabelValues(string(reason)).Inc()
	telemetry.SetActiveChannels(e.store.Len())
	log.Info("temp channel deleted")
}
