package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_TryLock(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	release, ok, err := l.TryLock(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)

	again, ok, err := l.TryLock(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, again)

	// Other campaigns are not blocked.
	other, ok, err := l.TryLock(ctx, 8)
	require.NoError(t, err)
	require.True(t, ok)
	other()

	release()
	next, ok, err := l.TryLock(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)

	// A stale release from the first holder must not free the new lease.
	release()
	_, ok, err = l.TryLock(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)
	next()

	l.mu.Lock()
	assert.Empty(t, l.active)
	l.mu.Unlock()
}

func TestStores_ShareOneLockerPerStore(t *testing.T) {
	s := NewMemoryStore(NewMemoryDirectory())
	require.NotNil(t, s.Locks)

	release, ok, err := s.Locks.TryLock(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	_, ok, err = s.Locks.TryLock(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
