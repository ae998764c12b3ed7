package locks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_Exclusive(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	ok, err := l.TryAcquire(ctx, "accrual", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = l.TryAcquire(ctx, "accrual", "b", time.Minute)
	assert.False(t, ok)

	// only the holder can release
	require.NoError(t, l.Release(ctx, "accrual", "b"))
	ok, _ = l.TryAcquire(ctx, "accrual", "b", time.Minute)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "accrual", "a"))
	ok, _ = l.TryAcquire(ctx, "accrual", "b", time.Minute)
	assert.True(t, ok)
}

func TestLocalLocker_Expires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.clock = func() time.Time { return now }

	ok, _ := l.TryAcquire(ctx, "accrual", "a", time.Minute)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = l.TryAcquire(ctx, "accrual", "b", time.Minute)
	assert.True(t, ok, "expired locks can be taken over")
}

func TestLocalLocker_Concurrent(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.TryAcquire(ctx, "accrual", "x", time.Minute); ok {
				won.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, won.Load())
}
