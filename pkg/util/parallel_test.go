package util

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallel_RespectsLimit(t *testing.T) {
	var inFlight, peak, done int32
	items := make([]int, 20)

	err := Parallel(context.Background(), items, 3, func(context.Context, int) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		atomic.AddInt32(&inFlight, -1)
		atomic.AddInt32(&done, 1)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(20), done)
	assert.LessOrEqual(t, peak, int32(3))
}

func TestParallel_FirstErrorWins(t *testing.T) {
	boom := errors.New("boom")
	err := Parallel(context.Background(), []int{1, 2, 3, 4}, 1, func(_ context.Context, n int) error {
		if n == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestParallel_Empty(t *testing.T) {
	assert.NoError(t, Parallel(context.Background(), []string(nil), 4, func(context.Context, string) error {
		t.Fatal("called")
		return nil
	}))
}
