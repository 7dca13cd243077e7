package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TuPhung369/PasswordEpic-sub009/pkg/appstate"
	"github.com/TuPhung369/PasswordEpic-sub009/pkg/storage"
)

// seedActivity writes a persisted activity record as if a previous process
// had written it at the given time.
func seedActivity(t *testing.T, tm *testManager, at time.Time) {
	t.Helper()
	require.NoError(t, tm.store.Set(context.Background(), storage.KeyLastActivity, formatMillis(at)))
}

func TestResume_ValidSessionRestored(t *testing.T) {
	tm := newTestManager(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, tm.Start(ctx, &ConfigPatch{
		TimeoutMinutes:   floatPtr(5),
		LockOnBackground: boolPtr(false),
	}))

	startedAt := tm.clk.Now()
	tm.HandleAppState(appstate.StateBackground)
	tm.clk.Add(10 * time.Second)

	ok, err := tm.CheckSessionOnResume(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	info := tm.Info()
	assert.True(t, info.Active)
	assert.True(t, startedAt.Equal(info.LastActivity), "last activity restored from the persisted value")
	assert.Equal(t, 5*time.Minute-10*time.Second, info.TimeRemaining)
}

func TestResume_IdleTimeoutElapsed(t *testing.T) {
	// Fresh manager, as after a process restart.
	tm := newTestManager(t, DefaultConfig())
	ctx := context.Background()

	tm.clk.Add(time.Hour)
	seedActivity(t, tm, tm.clk.Now().Add(-6*time.Minute))

	ok, err := tm.CheckSessionOnResume(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "six idle minutes against a five minute timeout")

	assert.Equal(t, 1, tm.events.expiredCount())
	_, present, err := tm.store.Get(ctx, storage.KeyLastActivity)
	require.NoError(t, err)
	assert.False(t, present, "stale record must be removed")
}

func TestResume_BackgroundLockPolicy(t *testing.T) {
	// Restarted process: record is fresh, but the app sat in the
	// background past the 30s lock threshold.
	tm := newTestManager(t, DefaultConfig())
	ctx := context.Background()

	tm.clk.Add(time.Hour)
	seedActivity(t, tm, tm.clk.Now())

	tm.HandleAppState(appstate.StateBackground)
	tm.clk.Add(31 * time.Second)

	ok, err := tm.CheckSessionOnResume(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "background presence beyond 30s invalidates an unexpired session")
	assert.Equal(t, 1, tm.events.expiredCount())
}

func TestResume_ShortBackgroundStayKeepsSession(t *testing.T) {
	tm := newTestManager(t, DefaultConfig())
	ctx := context.Background()

	tm.clk.Add(time.Hour)
	seedActivity(t, tm, tm.clk.Now())

	tm.HandleAppState(appstate.StateBackground)
	tm.clk.Add(20 * time.Second)

	ok, err := tm.CheckSessionOnResume(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "20s in the background is under the lock threshold")
}

func TestResume_NoPersistedRecord(t *testing.T) {
	tm := newTestManager(t, DefaultConfig())

	ok, err := tm.CheckSessionOnResume(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, tm.events.expiredCount(), "nothing to expire")
}

func TestResume_StorageReadFailsClosed(t *testing.T) {
	store := newFailingStore()
	store.getErr = assert.AnError
	m := NewManager(store, Options{})

	ok, err := m.CheckSessionOnResume(context.Background())
	assert.Error(t, err)
	assert.False(t, ok, "read errors must report the session invalid")
}

func TestResume_CorruptRecordFailsClosed(t *testing.T) {
	tm := newTestManager(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, tm.store.Set(ctx, storage.KeyLastActivity, "garbage"))

	ok, err := tm.CheckSessionOnResume(ctx)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestBackgroundEntry_GraceExpiry(t *testing.T) {
	tm := newTestManager(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, tm.Start(ctx, &ConfigPatch{
		TimeoutMinutes:   floatPtr(5),
		LockOnBackground: boolPtr(true),
	}))

	tm.HandleAppState(appstate.StateBackground)
	tm.clk.Add(backgroundLockGrace)

	require.Eventually(t, func() bool { return tm.events.expiredCount() == 1 },
		eventWait, 10*time.Millisecond)
	assert.True(t, tm.Expired())

	_, present, err := tm.store.Get(ctx, storage.KeyLastActivity)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestBackgroundEntry_QuickReturnCancelsGrace(t *testing.T) {
	tm := newTestManager(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, tm.Start(ctx, &ConfigPatch{
		TimeoutMinutes:   floatPtr(5),
		LockOnBackground: boolPtr(true),
	}))

	tm.HandleAppState(appstate.StateBackground)
	tm.clk.Add(backgroundLockGrace / 2)
	tm.HandleAppState(appstate.StateActive)

	// The grace deadline passing after the return must not expire anything.
	tm.clk.Add(backgroundLockGrace)
	assert.False(t, tm.Expired())
	assert.Equal(t, 0, tm.events.expiredCount())
}

func TestBackgroundEntry_NoGraceWithoutLockPolicy(t *testing.T) {
	tm := newTestManager(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, tm.Start(ctx, &ConfigPatch{
		TimeoutMinutes:   floatPtr(5),
		LockOnBackground: boolPtr(false),
	}))

	tm.HandleAppState(appstate.StateInactive)
	tm.clk.Add(time.Minute)

	assert.False(t, tm.Expired())
	assert.Equal(t, 0, tm.events.expiredCount())
}

func TestBindNotifier_DeliversAndReleases(t *testing.T) {
	tm := newTestManager(t, DefaultConfig())
	ctx := context.Background()
	notifier := appstate.NewNotifier()

	require.NoError(t, tm.Start(ctx, &ConfigPatch{
		TimeoutMinutes:   floatPtr(5),
		LockOnBackground: boolPtr(false),
	}))

	tm.BindNotifier(notifier)
	assert.Equal(t, 1, notifier.SubscriberCount())

	notifier.Notify(appstate.StateBackground)
	tm.clk.Add(2 * time.Second)
	notifier.Notify(appstate.StateActive)

	assert.True(t, tm.Info().Active, "short background stay survives via the notifier")

	tm.Cleanup()
	assert.Equal(t, 0, notifier.SubscriberCount(), "cleanup releases the subscription")
}
