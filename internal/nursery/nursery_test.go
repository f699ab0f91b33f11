package nursery

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllTasksCompleteBeforeClose(t *testing.T) {
	n := New(4)
	var count int64
	for i := 0; i < 50; i++ {
		require.NoError(t, n.StartSoon(func() error {
			atomic.AddInt64(&count, 1)
			return nil
		}))
	}
	require.NoError(t, n.Close())
	require.Equal(t, int64(50), count)
}

func TestFirstErrorSurfacedAtClose(t *testing.T) {
	n := New(2)
	boom := errors.New("boom")
	require.NoError(t, n.StartSoon(func() error { return boom }))
	err := n.Close()
	require.ErrorIs(t, err, boom)
}

func TestStartSoonDiscardsAfterPendingError(t *testing.T) {
	n := New(1)
	boom := errors.New("boom")
	require.NoError(t, n.StartSoon(func() error { return boom }))
	require.ErrorIs(t, n.Close(), boom)

	var ran bool
	err := n.StartSoon(func() error { ran = true; return nil })
	require.ErrorIs(t, err, boom)
	require.False(t, ran)
}

func TestBoundedConcurrency(t *testing.T) {
	n := New(3)
	var cur, max int64
	for i := 0; i < 30; i++ {
		require.NoError(t, n.StartSoon(func() error {
			c := atomic.AddInt64(&cur, 1)
			for {
				m := atomic.LoadInt64(&max)
				if c <= m || atomic.CompareAndSwapInt64(&max, m, c) {
					break
				}
			}
			atomic.AddInt64(&cur, -1)
			return nil
		}))
	}
	require.NoError(t, n.Close())
	require.LessOrEqual(t, max, int64(3))
}
