package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semcache/cache"
	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/initializer"
	"github.com/c360/semcache/testutil"
)

func letterConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Name = "alphabet"
	cfg.CleanupInterval = time.Hour
	return cfg
}

func newLetterManager(t *testing.T, opts ...cache.Option[*testutil.Letter]) (*cache.Manager[*testutil.Letter], *testutil.AlphabetLoader) {
	t.Helper()

	loader := testutil.NewAlphabetLoader()
	opts = append([]cache.Option[*testutil.Letter]{cache.WithLoader[*testutil.Letter](loader)}, opts...)

	mgr, err := cache.NewManager[*testutil.Letter](letterConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr, loader
}

func TestManager_AlphabetScenario(t *testing.T) {
	ctx := context.Background()
	mgr, loader := newLetterManager(t,
		cache.WithInitializer[*testutil.Letter](initializer.Full[*testutil.Letter]{}),
	)
	require.NoError(t, mgr.Initialize(ctx))
	require.Equal(t, 26, mgr.Size())

	letter, found, err := mgr.Get(ctx, "m")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 'm', letter.Char)
	assert.Equal(t, int64(1), mgr.HitCounter())
	assert.Equal(t, int64(0), mgr.MissCounter())

	upper, found, err := mgr.Get(ctx, "M")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 'M', upper.Char)
	assert.Equal(t, int64(1), mgr.HitCounter())
	assert.Equal(t, int64(1), mgr.MissCounter())
	assert.Equal(t, 27, mgr.Size())

	_, found, err = mgr.Get(ctx, "8")
	require.Error(t, err)
	assert.False(t, found)
	assert.ErrorIs(t, err, testutil.ErrInvalidLetter)
	assert.ErrorIs(t, err, errors.ErrInvalidKey)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, int64(1), mgr.HitCounter())
	assert.Equal(t, 27, mgr.Size(), "a failed load registers nothing")

	assert.Equal(t, int64(2), loader.EntityCalls())
}

func TestManager_PeekNeverLoads(t *testing.T) {
	mgr, loader := newLetterManager(t)

	_, found := mgr.Peek("b")
	assert.False(t, found)
	assert.Equal(t, int64(0), mgr.HitCounter())
	assert.Equal(t, int64(0), mgr.MissCounter())
	assert.Equal(t, int64(0), loader.EntityCalls())

	_, _, err := mgr.Get(context.Background(), "b")
	require.NoError(t, err)

	letter, found := mgr.Peek("b")
	require.True(t, found)
	assert.Equal(t, 'b', letter.Char)
	assert.Equal(t, int64(0), mgr.HitCounter(), "peek does not count hits")
}

func TestManager_HitAndMissCounting(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newLetterManager(t)

	assert.Equal(t, 0.0, mgr.HitRatio())

	_, _, err := mgr.Get(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(0), mgr.HitCounter())
	assert.Equal(t, int64(1), mgr.MissCounter())

	for i := 1; i <= 3; i++ {
		_, found, err := mgr.Get(ctx, "q")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int64(i), mgr.HitCounter())
		assert.Equal(t, int64(1), mgr.MissCounter())
	}

	assert.InDelta(t, 0.75, mgr.HitRatio(), 1e-9)
	assert.GreaterOrEqual(t, mgr.HitRatio(), 0.0)
	assert.LessOrEqual(t, mgr.HitRatio(), 1.0)
}

func TestManager_EmptyKey(t *testing.T) {
	mgr, loader := newLetterManager(t)

	_, _, err := mgr.Get(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidKey)
	assert.Equal(t, int64(0), loader.EntityCalls())
}

func TestManager_NotFound(t *testing.T) {
	loader := testutil.NewDepartmentLoader(testutil.Staff()...)
	cfg := letterConfig()
	cfg.Name = "staff"
	mgr, err := cache.NewManager[*testutil.Employee](cfg, cache.WithLoader[*testutil.Employee](loader))
	require.NoError(t, err)

	_, found, err := mgr.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(1), mgr.MissCounter())
	assert.Equal(t, 0, mgr.Size())
}

func TestManager_NoLoader(t *testing.T) {
	mgr, err := cache.NewManager[*testutil.Letter](letterConfig())
	require.NoError(t, err)

	_, _, err = mgr.Get(context.Background(), "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoLoader)
	assert.True(t, errors.IsInvalid(err))

	_, err = mgr.GetAll(context.Background())
	assert.ErrorIs(t, err, errors.ErrNoLoader)
}

func TestManager_LoaderFailureIsPropagated(t *testing.T) {
	loader := testutil.NewDepartmentLoader(testutil.Staff()...)
	loader.FailWith(errors.ErrSourceTimeout)

	cfg := letterConfig()
	cfg.Name = "staff"
	mgr, err := cache.NewManager[*testutil.Employee](cfg, cache.WithLoader[*testutil.Employee](loader))
	require.NoError(t, err)

	_, _, err = mgr.Get(context.Background(), "e1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSourceTimeout)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, 0, mgr.Size())
	assert.Equal(t, int64(1), mgr.Stats().LoadErrors())
}

func TestManager_GetAll(t *testing.T) {
	ctx := context.Background()
	mgr, loader := newLetterManager(t)

	all, err := mgr.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, mgr.Size())
	assert.Equal(t, 26, mgr.Size())
	assert.Equal(t, int64(1), mgr.MissCounter())

	all, err = mgr.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, mgr.Size())
	assert.Equal(t, int64(1), mgr.HitCounter())
	assert.Equal(t, int64(1), loader.AllCalls())
}

func TestManager_GetAllOnGroupedManager(t *testing.T) {
	cfg := letterConfig()
	cfg.Grouped = true
	mgr, err := cache.NewManager[*testutil.Letter](cfg, cache.WithLoader[*testutil.Letter](testutil.NewAlphabetLoader()))
	require.NoError(t, err)
	assert.True(t, mgr.IsGrouped())

	all, err := mgr.GetAll(context.Background())
	assert.Nil(t, all)
	assert.ErrorIs(t, err, errors.ErrGroupedManager)
	assert.True(t, errors.IsInvalid(err))
}

func TestManager_FlushAllIsIdempotent(t *testing.T) {
	mgr, _ := newLetterManager(t)
	_, err := mgr.GetAll(context.Background())
	require.NoError(t, err)
	require.NotZero(t, mgr.Size())

	mgr.FlushAll()
	assert.Equal(t, 0, mgr.Size())
	mgr.FlushAll()
	assert.Equal(t, 0, mgr.Size())
}

func TestManager_InvalidateUngrouped(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newLetterManager(t)

	letter, _, err := mgr.Get(ctx, "k")
	require.NoError(t, err)
	_, _, err = mgr.Get(ctx, "j")
	require.NoError(t, err)

	require.NoError(t, mgr.Invalidate(ctx, letter))
	_, found := mgr.Peek("k")
	assert.False(t, found)
	_, found = mgr.Peek("j")
	assert.True(t, found)

	// Invalidating something not cached is a no-op.
	require.NoError(t, mgr.Invalidate(ctx, &testutil.Letter{Char: 'z'}))
	assert.Equal(t, 1, mgr.Size())
	assert.Equal(t, int64(1), mgr.Stats().Invalidations())
}

func TestManager_RefreshUncachedRegisters(t *testing.T) {
	mgr, loader := newLetterManager(t)

	require.NoError(t, mgr.Refresh(context.Background(), &testutil.Letter{Char: 'r'}))
	_, found := mgr.Peek("r")
	assert.True(t, found)
	assert.Equal(t, int64(0), loader.EntityCalls())
}

func TestManager_Events(t *testing.T) {
	ctx := context.Background()
	events := &testutil.RecordingNotifier[*testutil.Letter]{}
	mgr, _ := newLetterManager(t, cache.WithNotifier[*testutil.Letter](events))

	_, _, err := mgr.Get(ctx, "e")
	require.NoError(t, err)
	letter, _, err := mgr.Get(ctx, "e")
	require.NoError(t, err)
	require.NoError(t, mgr.Refresh(ctx, letter))
	require.NoError(t, mgr.Invalidate(ctx, letter))

	assert.Equal(t, []cache.EventKind{
		cache.EventRegister,
		cache.EventMissInstance,
		cache.EventHitInstance,
		cache.EventRegister,
		cache.EventRefresh,
		cache.EventInvalidate,
	}, events.Kinds())

	for _, e := range events.Events() {
		assert.Equal(t, "alphabet", e.Cache)
		assert.Equal(t, "e", e.Key)
	}

	mgr.SetNotifier(nil)
	_, _, err = mgr.Get(ctx, "f")
	require.NoError(t, err)
	assert.Len(t, events.Events(), 6, "nil notifier suppresses events")
}

func TestManager_ConcurrentMissesShareOneLoad(t *testing.T) {
	mgr, loader := newLetterManager(t)
	loader.Delay = 50 * time.Millisecond

	const callers = 10
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			letter, found, err := mgr.Get(context.Background(), "w")
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, 'w', letter.Char)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), loader.EntityCalls())
	assert.Equal(t, int64(callers), mgr.HitCounter()+mgr.MissCounter())
	assert.Equal(t, 1, mgr.Size())
}

func TestManager_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newLetterManager(t, cache.WithCleanupPolicy[*testutil.Letter](cache.NewRankPolicy(cache.RankByRecency, 5, 0)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := string(rune('a' + (i*7+j)%26))
				switch j % 5 {
				case 0:
					_ = mgr.Cleanup(ctx)
				case 1:
					mgr.Peek(key)
				case 2:
					if v, found, err := mgr.Get(ctx, key); err == nil && found {
						_ = mgr.Invalidate(ctx, v)
					}
				default:
					_, _, _ = mgr.Get(ctx, key)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, mgr.Size(), 26)
}

func TestManager_SettersRoundTrip(t *testing.T) {
	mgr, loader := newLetterManager(t)

	assert.Equal(t, "alphabet", mgr.Name())
	assert.Same(t, loader, mgr.Loader())

	mgr.SetDefaultIdleTime(time.Minute)
	mgr.SetDefaultTimeToLive(time.Hour)
	mgr.SetGrouped(true)
	mgr.SetAtomicGroup(true)
	mgr.SetDistributable(true)
	mgr.SetSyncCluster(true)
	mgr.SetWatermarks(cache.Watermarks{High: 100, Threshold: 80, Low: 50})

	assert.Equal(t, time.Minute, mgr.DefaultIdleTime())
	assert.Equal(t, time.Hour, mgr.DefaultTimeToLive())
	assert.True(t, mgr.IsGrouped())
	assert.True(t, mgr.IsAtomicGroup())
	assert.True(t, mgr.IsDistributable())
	assert.True(t, mgr.IsSyncCluster())
	assert.Equal(t, cache.Watermarks{High: 100, Threshold: 80, Low: 50}, mgr.Watermarks())

	policy := cache.NewIdleTimePolicy(time.Second)
	mgr.SetCleanupPolicies(policy, nil)
	assert.Len(t, mgr.CleanupPolicies(), 1)
	mgr.AddCleanupPolicy(cache.NewTimeToLivePolicy(time.Second))
	mgr.AddCleanupPolicy(nil)
	assert.Len(t, mgr.CleanupPolicies(), 2)

	mgr.SetInitializer(initializer.Full[*testutil.Letter]{})
	assert.NotNil(t, mgr.Initializer())
	mgr.SetLoader(nil)
	assert.Nil(t, mgr.Loader())
}

func TestManager_SetMaxTimesOnMissingKey(t *testing.T) {
	mgr, _ := newLetterManager(t)

	assert.False(t, mgr.SetMaxIdleTime("a", time.Second))
	assert.False(t, mgr.SetMaxTimeToLive("a", time.Second))

	_, _, err := mgr.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, mgr.SetMaxIdleTime("a", time.Second))
	assert.True(t, mgr.SetMaxTimeToLive("a", time.Second))
}

func TestNewManager_InvalidConfig(t *testing.T) {
	cfg := letterConfig()
	cfg.Name = ""

	_, err := cache.NewManager[*testutil.Letter](cfg)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestManager_AtomicFlagLeavesUngroupedEntitiesAlone(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock()
	cfg := letterConfig()
	cfg.AtomicGroup = true

	mgr, err := cache.NewManager[*testutil.Letter](cfg,
		cache.WithLoader[*testutil.Letter](testutil.NewAlphabetLoader()),
		cache.WithClock[*testutil.Letter](clock),
		cache.WithCleanupPolicy[*testutil.Letter](cache.NewIdleTimePolicy(0)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	for _, key := range []string{"a", "b", "c"} {
		_, found, err := mgr.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, found)
	}

	a, _ := mgr.Peek("a")
	require.NoError(t, mgr.Refresh(ctx, a))
	assert.Equal(t, 3, mgr.Size())

	require.NoError(t, mgr.Invalidate(ctx, a))
	assert.Equal(t, 2, mgr.Size())
	_, found := mgr.Peek("b")
	assert.True(t, found)

	require.True(t, mgr.SetMaxIdleTime("b", time.Second))
	clock.Advance(3 * time.Second)
	require.NoError(t, mgr.Cleanup(ctx))

	assert.Equal(t, 1, mgr.Size())
	_, found = mgr.Peek("c")
	assert.True(t, found)
}

func TestManager_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	mgr, loader := newLetterManager(t)
	loader.Delay = 200 * time.Millisecond

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := mgr.Get(firstCtx, "q")
		firstErr <- err
	}()

	require.Eventually(t, func() bool { return loader.EntityCalls() == 1 },
		time.Second, 5*time.Millisecond)

	type result struct {
		letter *testutil.Letter
		found  bool
		err    error
	}
	second := make(chan result, 1)
	go func() {
		letter, found, err := mgr.Get(context.Background(), "q")
		second <- result{letter, found, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancelFirst()

	err := <-firstErr
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	r := <-second
	require.NoError(t, r.err)
	require.True(t, r.found)
	assert.Equal(t, 'q', r.letter.Char)
	assert.Equal(t, int64(1), loader.EntityCalls())
	assert.Equal(t, 1, mgr.Size())
}
