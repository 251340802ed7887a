package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lunebot/tempchan/channel"
	"github.com/lunebot/tempchan/config"
	"github.com/lunebot/tempchan/ratelimit"
	"github.com/lunebot/tempchan/telemetry"
	"github.com/lunebot/tempchan/temperr"
	"github.com/lunebot/tempchan/testutil"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testConfig() *config.Config {
	return &config.Config{
		MaxChannelsPerUser: 2,
		CreateCooldown:     5 * time.Minute,
		MaxLifetime:        24 * time.Hour,
		InactivityGrace:    10 * time.Minute,
		CheckInterval:      time.Minute,
		DisplayRefresh:     5 * time.Minute,
		WarningWindow:      5 * time.Minute,
		DeleteMaxAttempts:  2,
		Enabled:            true,
	}
}

// newTestEngine wires an engine against the fake platform with a fake clock
// and synchronous deletions.
func newTestEngine(t *testing.T, cfg *config.Config) (*Engine, *testutil.FakePlatform, *fakeClock) {
	t.Helper()
	telemetry.Init()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	fake := testutil.NewFakePlatform()
	eng := New(cfg, channel.NewStore(), ratelimit.New(cfg.MaxChannelsPerUser, cfg.CreateCooldown), fake)
	eng.now = clock.Now
	eng.spawn = func(fn func()) { fn() }
	return eng, fake, clock
}

func mustCreate(t *testing.T, e *Engine, owner, topic string, vis channel.Visibility, dur time.Duration) *channel.Descriptor {
	t.Helper()
	d, err := e.Create(context.Background(), owner, owner, topic, vis, dur)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return d
}

func TestExpiryDeletesWithReasonExpired(t *testing.T) {
	e, fake, clock := newTestEngine(t, testConfig())
	d := mustCreate(t, e, "u1", "movie night", channel.Public, 30*time.Minute)

	clock.Advance(29 * time.Minute)
	e.tickOnce(context.Background())
	if e.store.Get(d.ID) == nil {
		t.Fatalf("channel deleted before expiry")
	}

	clock.Advance(time.Minute)
	e.tickOnce(context.Background())
	if e.store.Get(d.ID) != nil {
		t.Errorf("descriptor still in store after expiry")
	}
	if fake.Exists(d.ID) {
		t.Errorf("platform channel still exists after expiry")
	}
	if got := e.Stats().Deleted[channel.ReasonExpired]; got != 1 {
		t.Errorf("expired deletions = %d, want 1", got)
	}
	if got := e.limiter.ActiveCount("u1"); got != 0 {
		t.Errorf("rate limit slot not released, ActiveCount = %d", got)
	}
	// No activity ever: the expiry governed, not the 10m inactivity grace.
	msgs := fake.Messages(d.ID)
	if len(msgs) == 0 || !strings.Contains(msgs[len(msgs)-1], "Time's up") {
		t.Errorf("expected expiry farewell, got %v", msgs)
	}
}

func TestInactivityDeletesBeforeExpiry(t *testing.T) {
	cfg := testConfig()
	cfg.InactivityGrace = 15 * time.Minute
	e, _, clock := newTestEngine(t, cfg)
	d := mustCreate(t, e, "u1", "slow burn", channel.Public, 2*time.Hour)

	clock.Advance(10 * time.Minute)
	e.ObserveActivity(d.ID)

	clock.Advance(14 * time.Minute) // t=24m, one minute of grace left
	e.tickOnce(context.Background())
	if e.store.Get(d.ID) == nil {
		t.Fatalf("channel deleted while within grace")
	}

	clock.Advance(time.Minute) // t=25m = lastActivity+grace
	e.tickOnce(context.Background())
	if e.store.Get(d.ID) != nil {
		t.Errorf("descriptor still tracked past inactivity deadline")
	}
	if got := e.Stats().Deleted[channel.ReasonInactive]; got != 1 {
		t.Errorf("inactive deletions = %d, want 1", got)
	}
}

func TestSilentChannelIgnoresInactivityGrace(t *testing.T) {
	e, _, clock := newTestEngine(t, testConfig())
	d := mustCreate(t, e, "u1", "quiet", channel.Public, 30*time.Minute)

	// Well past the 10m grace with zero observed activity: still alive.
	clock.Advance(20 * time.Minute)
	e.tickOnce(context.Background())
	if e.store.Get(d.ID) == nil {
		t.Errorf("silent channel deleted before its expiry")
	}
}

func TestInactivityTieReportsExpired(t *testing.T) {
	e, _, clock := newTestEngine(t, testConfig())
	d := mustCreate(t, e, "u1", "tie", channel.Public, 30*time.Minute)

	clock.Advance(25 * time.Minute)
	e.ObserveActivity(d.ID) // grace deadline clamps to the 30m expiry

	clock.Advance(5 * time.Minute)
	e.tickOnce(context.Background())
	stats := e.Stats()
	if stats.Deleted[channel.ReasonExpired] != 1 || stats.Deleted[channel.ReasonInactive] != 0 {
		t.Errorf("simultaneous deadlines must report expired, got %v", stats.Deleted)
	}
	_ = d
}

func TestMaxChannelsReached(t *testing.T) {
	e, _, clock := newTestEngine(t, testConfig())
	mustCreate(t, e, "u1", "one", channel.Public, time.Hour)
	clock.Advance(6 * time.Minute) // clear the cooldown
	mustCreate(t, e, "u1", "two", channel.Public, time.Hour)
	clock.Advance(6 * time.Minute)

	_, err := e.Create(context.Background(), "u1", "u1", "three", channel.Public, time.Hour)
	if err != ratelimit.ErrMaxChannelsReached {
		t.Fatalf("err = %v, want ErrMaxChannelsReached", err)
	}
	if e.store.Len() != 2 {
		t.Errorf("store has %d descriptors, want 2", e.store.Len())
	}
	if got := e.limiter.ActiveCount("u1"); got != 2 {
		t.Errorf("ActiveCount = %d, want 2", got)
	}
}

func TestCreateCooldown(t *testing.T) {
	e, _, clock := newTestEngine(t, testConfig())
	mustCreate(t, e, "u1", "one", channel.Public, time.Hour)
	clock.Advance(time.Minute)
	if _, err := e.Create(context.Background(), "u1", "u1", "two", channel.Public, time.Hour); err != ratelimit.ErrCooldownActive {
		t.Errorf("err = %v, want ErrCooldownActive", err)
	}
}

func TestCreateRollsBackReservationOnPlatformFailure(t *testing.T) {
	e, fake, _ := newTestEngine(t, testConfig())
	fake.FailCreate(errors.New("api down"))
	_, err := e.Create(context.Background(), "u1", "u1", "topic", channel.Public, time.Hour)
	if !temperr.IsKind(err, temperr.KindPlatform) {
		t.Fatalf("err = %v, want platform kind", err)
	}
	fake.FailCreate(nil)
	// Neither a slot nor a cooldown may stick from the failed attempt.
	if _, err := e.Create(context.Background(), "u1", "u1", "topic", channel.Public, time.Hour); err != nil {
		t.Errorf("create after rollback failed: %v", err)
	}
}

func TestCreateDisabled(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())
	e.SetEnabled(false)
	if _, err := e.Create(context.Background(), "u1", "u1", "t", channel.Public, time.Hour); !temperr.IsKind(err, temperr.KindValidation) {
		t.Errorf("err = %v, want validation kind", err)
	}
	e.SetEnabled(true)
	mustCreate(t, e, "u1", "t", channel.Public, time.Hour)
}

func TestExtendMonotonicAndCapped(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLifetime = 2 * time.Hour
	e, _, _ := newTestEngine(t, cfg)
	d := mustCreate(t, e, "u1", "capped", channel.Public, time.Hour)

	first, err := e.Extend(context.Background(), d.ID, "u1", false, 30*time.Minute)
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if want := d.CreatedAt.Add(90 * time.Minute); !first.Equal(want) {
		t.Errorf("expiry = %v, want %v", first, want)
	}

	// Asking for more than the cap still succeeds, clipped to created+max.
	second, err := e.Extend(context.Background(), d.ID, "u1", false, 8*time.Hour)
	if err != nil {
		t.Fatalf("Extend past cap: %v", err)
	}
	ceiling := d.CreatedAt.Add(cfg.MaxLifetime)
	if !second.Equal(ceiling) {
		t.Errorf("expiry = %v, want capped at %v", second, ceiling)
	}

	// At the cap, a further extension is a no-op success: never decreasing.
	third, err := e.Extend(context.Background(), d.ID, "u1", false, time.Hour)
	if err != nil {
		t.Fatalf("Extend at cap: %v", err)
	}
	if third.Before(second) {
		t.Errorf("expiresAt decreased: %v -> %v", second, third)
	}
}

func TestExtendAuthorization(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())
	d := mustCreate(t, e, "u1", "mine", channel.Public, time.Hour)

	if _, err := e.Extend(context.Background(), d.ID, "stranger", false, 5*time.Minute); !temperr.IsKind(err, temperr.KindAuthorization) {
		t.Errorf("stranger extend: err = %v, want authorization kind", err)
	}
	if _, err := e.Extend(context.Background(), d.ID, "admin", true, 5*time.Minute); err != nil {
		t.Errorf("admin extend: %v", err)
	}
}

func TestExtendOnPendingDeletionFails(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())
	var pending []func()
	e.spawn = func(fn func()) { pending = append(pending, fn) } // hold deletions

	d := mustCreate(t, e, "u1", "closing", channel.Public, time.Hour)
	before := d.ExpiresAt
	if err := e.Close(context.Background(), d.ID, "u1", false); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := e.Extend(context.Background(), d.ID, "u1", false, 10*time.Minute); !temperr.IsKind(err, temperr.KindState) {
		t.Errorf("extend on closing channel: err = %v, want state kind", err)
	}
	d.Lock()
	if !d.ExpiresAt.Equal(before) {
		t.Errorf("expiresAt changed on a closing channel")
	}
	d.Unlock()

	for _, fn := range pending {
		fn()
	}
	if e.store.Get(d.ID) != nil {
		t.Errorf("descriptor survived deletion")
	}
}

func TestConcurrentCloseExactlyOneWins(t *testing.T) {
	e, fake, _ := newTestEngine(t, testConfig())
	var mu sync.Mutex
	var pending []func()
	e.spawn = func(fn func()) {
		mu.Lock()
		pending = append(pending, fn)
		mu.Unlock()
	}
	d := mustCreate(t, e, "u1", "race", channel.Public, time.Hour)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.Close(context.Background(), d.ID, "u1", false)
		}()
	}
	wg.Wait()
	close(errs)

	var ok, stateErrs int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case temperr.IsKind(err, temperr.KindState):
			stateErrs++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || stateErrs != 1 {
		t.Fatalf("close results ok=%d state=%d, want 1/1", ok, stateErrs)
	}
	if len(pending) != 1 {
		t.Fatalf("deletion spawned %d times, want exactly once", len(pending))
	}
	pending[0]()
	if got := fake.DeleteCalls(d.ID); got != 1 {
		t.Errorf("platform delete called %d times, want 1", got)
	}
}

func TestAdminForceCloseRecordsOverride(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())
	d := mustCreate(t, e, "u1", "forced", channel.Public, time.Hour)
	if err := e.Close(context.Background(), d.ID, "admin", true); err != nil {
		t.Fatalf("admin close: %v", err)
	}
	if got := e.Stats().Deleted[channel.ReasonAdminClosed]; got != 1 {
		t.Errorf("admin_closed deletions = %d, want 1", got)
	}
}

func TestDoubleExtensionSums(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())
	d := mustCreate(t, e, "u1", "stack", channel.Public, time.Hour)
	base := d.ExpiresAt

	if _, err := e.Extend(context.Background(), d.ID, "u1", false, 10*time.Minute); err != nil {
		t.Fatalf("first extend: %v", err)
	}
	got, err := e.Extend(context.Background(), d.ID, "u1", false, 10*time.Minute)
	if err != nil {
		t.Fatalf("second extend: %v", err)
	}
	if want := base.Add(20 * time.Minute); !got.Equal(want) {
		t.Errorf("expiry = %v, want %v (two stacked +10m)", got, want)
	}
}

func TestInviteKickPrivateOnly(t *testing.T) {
	e, fake, _ := newTestEngine(t, testConfig())
	ctx := context.Background()
	d := mustCreate(t, e, "u1", "secret", channel.Private, time.Hour)

	if err := e.Invite(ctx, d.ID, "u1", "u2", false); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if err := e.Invite(ctx, d.ID, "u1", "u2", false); err != nil {
		t.Errorf("duplicate invite should succeed as no-op: %v", err)
	}
	if got := fake.GrantCalls(d.ID); got != 1 {
		t.Errorf("grant deltas applied = %d, want 1 (duplicate was a no-op)", got)
	}
	if err := e.Kick(ctx, d.ID, "u1", "u1", false); !temperr.IsKind(err, temperr.KindValidation) {
		t.Errorf("kicking the owner: err = %v, want validation kind", err)
	}
	if err := e.Kick(ctx, d.ID, "u1", "u2", false); err != nil {
		t.Errorf("kick: %v", err)
	}
	if err := e.Kick(ctx, d.ID, "u1", "u2", false); err != nil {
		t.Errorf("kicking a non-member should succeed as no-op: %v", err)
	}

	pub := mustCreate(t, e, "u2", "open", channel.Public, time.Hour)
	if err := e.Invite(ctx, pub.ID, "u2", "u3", false); !temperr.IsKind(err, temperr.KindValidation) {
		t.Errorf("invite on public channel: err = %v, want validation kind", err)
	}
}

func TestExpiryWarningOneShot(t *testing.T) {
	e, fake, clock := newTestEngine(t, testConfig())
	d := mustCreate(t, e, "u1", "warned", channel.Public, 30*time.Minute)
	created := len(fake.Messages(d.ID)) // welcome message

	clock.Advance(26 * time.Minute) // 4m left, inside the 5m window
	e.tickOnce(context.Background())
	msgs := fake.Messages(d.ID)
	if len(msgs) != created+1 || !strings.Contains(msgs[len(msgs)-1], "Expiring Soon") {
		t.Fatalf("expected one expiry warning, got %v", msgs)
	}
	warnID := "msg-" + d.ID + "-2"
	if got := fake.Reactions(warnID); len(got) != 3 {
		t.Errorf("warning should carry 3 extension reactions, got %v", got)
	}

	clock.Advance(time.Minute)
	e.tickOnce(context.Background())
	if got := len(fake.Messages(d.ID)); got != created+1 {
		t.Errorf("warning sent twice")
	}
}

func TestInactivityWarningResetsOnActivity(t *testing.T) {
	e, fake, clock := newTestEngine(t, testConfig())
	d := mustCreate(t, e, "u1", "idle", channel.Public, 2*time.Hour)

	e.ObserveActivity(d.ID)
	clock.Advance(6 * time.Minute) // 4m of the 10m grace left
	e.tickOnce(context.Background())
	warned := fake.Messages(d.ID)
	if !strings.Contains(warned[len(warned)-1], "Channel Inactive") {
		t.Fatalf("expected inactivity warning, got %v", warned)
	}

	e.ObserveActivity(d.ID) // resets the clock and the warning flag
	clock.Advance(6 * time.Minute)
	e.tickOnce(context.Background())
	again := fake.Messages(d.ID)
	if !strings.Contains(again[len(again)-1], "Channel Inactive") {
		t.Errorf("expected a fresh warning after activity reset")
	}
	if len(again) != len(warned)+1 {
		t.Errorf("messages = %d, want %d", len(again), len(warned)+1)
	}
}

func TestCountdownRenameOnRefresh(t *testing.T) {
	e, fake, clock := newTestEngine(t, testConfig())
	d := mustCreate(t, e, "u1", "timer", channel.Public, 2*time.Hour)

	e.tickOnce(context.Background()) // first pass, name unchanged
	clock.Advance(5 * time.Minute)
	e.tickOnce(context.Background())
	names := fake.Names(d.ID)
	if names[len(names)-1] != "⏰・timer-1h55m" {
		t.Errorf("rename = %q, want ⏰・timer-1h55m", names[len(names)-1])
	}

	// Off the refresh boundary: no rename even though time moved.
	clock.Advance(time.Minute)
	e.tickOnce(context.Background())
	if got := fake.Names(d.ID); len(got) != len(names) {
		t.Errorf("rename issued off the refresh boundary")
	}
}

func TestExtendRenamesImmediately(t *testing.T) {
	e, fake, _ := newTestEngine(t, testConfig())
	d := mustCreate(t, e, "u1", "bump", channel.Public, 30*time.Minute)
	if _, err := e.Extend(context.Background(), d.ID, "u1", false, 30*time.Minute); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	names := fake.Names(d.ID)
	if names[len(names)-1] != "⏰・bump-1h" {
		t.Errorf("rename after extend = %q, want ⏰・bump-1h", names[len(names)-1])
	}
}

func TestDeleteRetryThenForcedLocalCleanup(t *testing.T) {
	e, fake, _ := newTestEngine(t, testConfig()) // DeleteMaxAttempts = 2
	d := mustCreate(t, e, "u1", "stuck", channel.Public, time.Hour)
	fake.FailDeletes(d.ID, 5, errors.New("rate limited"))

	if err := e.Close(context.Background(), d.ID, "u1", false); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := fake.DeleteCalls(d.ID); got != 2 {
		t.Errorf("delete attempts = %d, want 2 (bounded)", got)
	}
	// Local state cleared even though the platform never confirmed.
	if e.store.Get(d.ID) != nil {
		t.Errorf("descriptor survived forced cleanup")
	}
	if got := e.limiter.ActiveCount("u1"); got != 0 {
		t.Errorf("slot not released on forced cleanup, ActiveCount = %d", got)
	}
}

func TestDeleteNotFoundCountsAsSuccess(t *testing.T) {
	e, fake, clock := newTestEngine(t, testConfig())
	d := mustCreate(t, e, "u1", "gone", channel.Public, 5*time.Minute)

	// Channel vanishes platform-side before we get to it.
	_ = fake.DeleteChannel(context.Background(), d.ID)
	clock.Advance(6 * time.Minute)
	e.tickOnce(context.Background())
	if e.store.Get(d.ID) != nil {
		t.Errorf("descriptor survived a NotFound delete")
	}
	if got := e.Stats().Deleted[channel.ReasonExpired]; got != 1 {
		t.Errorf("expired deletions = %d, want 1", got)
	}
}

func TestListOwned(t *testing.T) {
	e, _, clock := newTestEngine(t, testConfig())
	d := mustCreate(t, e, "u1", "mine", channel.Private, 2*time.Hour)
	clock.Advance(6 * time.Minute)
	mustCreate(t, e, "u2", "theirs", channel.Public, time.Hour)

	got := e.ListOwned("u1")
	if len(got) != 1 || got[0].ID != d.ID {
		t.Fatalf("ListOwned = %+v, want only u1's channel", got)
	}
	if got[0].Remaining != 2*time.Hour-6*time.Minute {
		t.Errorf("Remaining = %v", got[0].Remaining)
	}
	if got[0].Visibility != channel.Private {
		t.Errorf("Visibility = %v", got[0].Visibility)
	}
}

func TestActiveCountMirrorsStore(t *testing.T) {
	e, _, clock := newTestEngine(t, testConfig())
	a := mustCreate(t, e, "u1", "a", channel.Public, time.Hour)
	clock.Advance(6 * time.Minute)
	mustCreate(t, e, "u1", "b", channel.Public, time.Hour)

	check := func() {
		t.Helper()
		if got, want := e.limiter.ActiveCount("u1"), len(e.store.OwnedBy("u1")); got != want {
			t.Errorf("ActiveCount = %d, store count = %d", got, want)
		}
	}
	check()
	if err := e.Close(context.Background(), a.ID, "u1", false); err != nil {
		t.Fatalf("Close: %v", err)
	}
	check()
	clock.Advance(time.Hour)
	e.tickOnce(context.Background())
	check()
	if e.limiter.ActiveCount("u1") != 0 {
		t.Errorf("ActiveCount = %d after all deletions, want 0", e.limiter.ActiveCount("u1"))
	}
}
