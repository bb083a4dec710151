package cache_test

import (
	"context"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semcache/cache"
	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/metric"
	"github.com/c360/semcache/testutil"
)

// gauge or counter value of the series labelled cache=name, or -1 when the
// family or series is missing.
func cacheValue(t *testing.T, registry *metric.MetricsRegistry, family, name string) float64 {
	t.Helper()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != family {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabel(m, "cache", name) {
				continue
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				return m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				return m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return -1
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func TestMetrics_ManagerCounters(t *testing.T) {
	ctx := context.Background()
	registry := metric.NewMetricsRegistry()
	mgr, _ := newLetterManager(t, cache.WithMetrics[*testutil.Letter](registry))

	_, _, err := mgr.Get(ctx, "a")
	require.NoError(t, err)
	_, _, err = mgr.Get(ctx, "a")
	require.NoError(t, err)
	_, _, err = mgr.Get(ctx, "1")
	require.Error(t, err)

	assert.Equal(t, float64(1), cacheValue(t, registry, "semcache_cache_hits_total", "alphabet"))
	assert.Equal(t, float64(2), cacheValue(t, registry, "semcache_cache_misses_total", "alphabet"))
	assert.Equal(t, float64(1), cacheValue(t, registry, "semcache_cache_registrations_total", "alphabet"))
	assert.Equal(t, float64(1), cacheValue(t, registry, "semcache_cache_load_errors_total", "alphabet"))
	assert.Equal(t, float64(2), cacheValue(t, registry, "semcache_cache_load_duration_seconds", "alphabet"))
	assert.Equal(t, float64(1), cacheValue(t, registry, "semcache_cache_size", "alphabet"))

	a, _ := mgr.Peek("a")
	require.NoError(t, mgr.Invalidate(ctx, a))
	assert.Equal(t, float64(1), cacheValue(t, registry, "semcache_cache_invalidations_total", "alphabet"))
	assert.Equal(t, float64(0), cacheValue(t, registry, "semcache_cache_size", "alphabet"))
}

func TestMetrics_SweepsAndLifecycle(t *testing.T) {
	ctx := context.Background()
	registry := metric.NewMetricsRegistry()
	clock := testutil.NewFakeClock()

	cfg := letterConfig()
	cfg.DefaultIdleTime = time.Second
	mgr, err := cache.NewManager[*testutil.Letter](cfg,
		cache.WithLoader[*testutil.Letter](testutil.NewAlphabetLoader()),
		cache.WithMetrics[*testutil.Letter](registry),
		cache.WithClock[*testutil.Letter](clock))
	require.NoError(t, err)

	require.NoError(t, mgr.Initialize(ctx))
	assert.Equal(t, float64(1), cacheValue(t, registry, "semcache_manager_active", "alphabet"))

	_, err = mgr.GetAll(ctx)
	require.NoError(t, err)
	clock.Advance(2 * time.Second)
	require.NoError(t, mgr.Cleanup(ctx))

	assert.Equal(t, float64(26), cacheValue(t, registry, "semcache_cache_evictions_total", "alphabet"))
	assert.Equal(t, float64(26), cacheValue(t, registry, "semcache_cleanup_evicted_total", "alphabet"))
	assert.Equal(t, float64(0), cacheValue(t, registry, "semcache_cache_groups", "alphabet"))

	require.NoError(t, mgr.Close())
	assert.Equal(t, float64(0), cacheValue(t, registry, "semcache_manager_active", "alphabet"))
	assert.Equal(t, float64(-1), cacheValue(t, registry, "semcache_cache_hits_total", "alphabet"),
		"per-manager collectors are unregistered on Close")
}

func TestMetrics_DuplicateNameIsRejected(t *testing.T) {
	ctx := context.Background()
	registry := metric.NewMetricsRegistry()
	first, _ := newLetterManager(t, cache.WithMetrics[*testutil.Letter](registry))

	_, err := cache.NewManager[*testutil.Letter](letterConfig(), cache.WithMetrics[*testutil.Letter](registry))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, _, err = first.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, float64(1), cacheValue(t, registry, "semcache_cache_misses_total", "alphabet"),
		"a rejected manager leaves the existing series alone")

	other := letterConfig()
	other.Name = "digits"
	mgr, err := cache.NewManager[*testutil.Letter](other, cache.WithMetrics[*testutil.Letter](registry))
	require.NoError(t, err)
	require.NoError(t, mgr.Close())
}
