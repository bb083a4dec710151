package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type word string

func (w word) CacheKey() string { return string(w) }

func TestEntry_TouchNeverMovesBack(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := newEntry[word]("alpha", now, NoExpiry, NoExpiry)

	e.touch(now.Add(-time.Minute))
	assert.Equal(t, now, e.LastAccess())
	assert.Equal(t, int64(1), e.Hits())
}

func TestInvalidate_MarksRemovedEntry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Name = "words"
	mgr, err := NewManager[word](cfg)
	require.NoError(t, err)
	require.NoError(t, mgr.register([]word{"alpha", "beta"}))

	gone, _ := mgr.lookupLocked("alpha")
	kept, _ := mgr.lookupLocked("beta")
	require.NotNil(t, gone)
	require.NotNil(t, kept)
	assert.False(t, gone.invalidated)

	require.NoError(t, mgr.Invalidate(context.Background(), "alpha"))
	assert.True(t, gone.invalidated)
	assert.False(t, kept.invalidated)
	assert.Equal(t, 1, mgr.Size())
}

func TestRegister_DefaultGroupIsNeverAtomic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Name = "words"
	cfg.AtomicGroup = true
	mgr, err := NewManager[word](cfg)
	require.NoError(t, err)
	require.NoError(t, mgr.register([]word{"alpha"}))

	_, g := mgr.lookupLocked("alpha")
	require.NotNil(t, g)
	assert.False(t, g.Atomic())
	assert.False(t, g.Scoped())
}
