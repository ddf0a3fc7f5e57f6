package retrylimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr int

func (e statusErr) Error() string   { return "status" }
func (e statusErr) StatusCode() int { return int(e) }

func fastConfig(attempts int) Config {
	cfg := DefaultConfig()
	cfg.MaxAttempts = attempts
	cfg.InitialDelay = time.Millisecond
	cfg.ThrottleDelay = time.Millisecond
	cfg.Jitter = false
	return cfg
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), NewLimiter(100, 1, 100, 1, 0.5), fastConfig(5), func() error {
		calls++
		if calls < 3 {
			return statusErr(503)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_FatalStops(t *testing.T) {
	calls := 0
	cause := errors.New("bad request")
	err := Do(context.Background(), nil, fastConfig(5), func() error {
		calls++
		return Fatal(cause)
	})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustedKeepsCause(t *testing.T) {
	calls := 0
	cause := errors.New("flaky")
	err := Do(context.Background(), nil, fastConfig(2), func() error {
		calls++
		return cause
	})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 2, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, nil, fastConfig(3), func() error { calls++; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestLimiter_ThrottleAndRecover(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	lim := NewLimiter(8, 1, 20, 1, 0.5)
	lim.now = func() time.Time { return now }

	lim.Throttled()
	assert.Equal(t, 4.0, lim.Rate())
	lim.Throttled()
	lim.Throttled()
	lim.Throttled()
	assert.Equal(t, 1.0, lim.Rate())

	lim.Success()
	assert.Equal(t, 1.0, lim.Rate(), "no raise inside the quiet period")

	now = now.Add(11 * time.Second)
	lim.Success()
	assert.Equal(t, 2.0, lim.Rate())
}
