package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	t.Run("processes every item", func(t *testing.T) {
		var mu sync.Mutex
		seen := map[int]bool{}

		err := Run(context.Background(), []int{1, 2, 3, 4, 5}, 2, func(ctx context.Context, n int) error {
			mu.Lock()
			seen[n] = true
			mu.Unlock()
			return nil
		})

		require.NoError(t, err)
		assert.Len(t, seen, 5)
	})

	t.Run("respects the worker bound", func(t *testing.T) {
		var inFlight, peak atomic.Int32

		err := Run(context.Background(), make([]int, 20), 3, func(ctx context.Context, n int) error {
			cur := inFlight.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		})

		require.NoError(t, err)
		assert.LessOrEqual(t, peak.Load(), int32(3))
	})

	t.Run("a failure does not stop the other items", func(t *testing.T) {
		boom := errors.New("boom")
		var processed atomic.Int32

		err := Run(context.Background(), []int{1, 2, 3, 4}, 2, func(ctx context.Context, n int) error {
			processed.Add(1)
			if n == 2 {
				return boom
			}
			return nil
		})

		require.ErrorIs(t, err, boom)
		assert.Equal(t, int32(4), processed.Load())
	})

	t.Run("empty input", func(t *testing.T) {
		called := false
		err := Run(context.Background(), nil, 4, func(ctx context.Context, n int) error {
			called = true
			return nil
		})
		require.NoError(t, err)
		assert.False(t, called)
	})

	t.Run("cancelled context stops submissions", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var processed atomic.Int32
		err := Run(ctx, make([]int, 10), 2, func(ctx context.Context, n int) error {
			processed.Add(1)
			return nil
		})

		require.NoError(t, err)
		assert.Zero(t, processed.Load())
	})
}
