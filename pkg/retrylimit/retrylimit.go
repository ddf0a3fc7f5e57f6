// Package retrylimit retries calls to rate-limited upstreams. A Limiter paces
// attempts and slows down when the upstream pushes back; Do retries with
// exponential backoff until the call succeeds, fails fatally or runs out of
// attempts.
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Limiter is a token bucket whose rate rises by one step after each success
// and is multiplied by backoff after a failure. Successes within quiet of the
// last failure do not raise it.
type Limiter struct {
	mu       sync.Mutex
	bucket   *rate.Limiter
	min, max rate.Limit
	step     rate.Limit
	backoff  float64
	quiet    time.Duration
	failedAt time.Time
	now      func() time.Time
}

// NewLimiter starts at initial requests per second, bounded by [min, max].
func NewLimiter(initial, min, max, step rate.Limit, backoff float64) *Limiter {
	min = maxLimit(min, 1)
	initial = maxLimit(initial, min)
	return &Limiter{
		bucket:  rate.NewLimiter(initial, burstFor(initial)),
		min:     min,
		max:     max,
		step:    step,
		backoff: backoff,
		quiet:   10 * time.Second,
		now:     time.Now,
	}
}

func (l *Limiter) Wait(ctx context.Context) error { return l.bucket.Wait(ctx) }

func (l *Limiter) Success() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.now().Sub(l.failedAt) > l.quiet {
		l.set(l.bucket.Limit() + l.step)
	}
}

func (l *Limiter) Throttled() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failedAt = l.now()
	l.set(rate.Limit(float64(l.bucket.Limit()) * l.backoff))
}

// Rate returns the current requests per second.
func (l *Limiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return float64(l.bucket.Limit())
}

func (l *Limiter) set(r rate.Limit) {
	switch {
	case r > l.max:
		r = l.max
	case r < l.min:
		r = l.min
	}
	if r != l.bucket.Limit() {
		l.bucket.SetLimit(r)
		l.bucket.SetBurst(burstFor(r))
	}
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	error
	StatusCode() int
}

// FatalError stops Do immediately.
type FatalError struct{ Err error }

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// Fatal marks err as not worth retrying.
func Fatal(err error) error { return &FatalError{Err: err} }

type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// ThrottleDelay replaces the backoff delay after a 429.
	ThrottleDelay time.Duration
	Multiplier    float64
	Jitter        bool
	Log           zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		ThrottleDelay: 100 * time.Millisecond,
		Multiplier:    2,
		Jitter:        true,
		Log:           zerolog.Nop(),
	}
}

// Do calls fn until it succeeds. It stops early on a FatalError or when ctx
// ends. After the last attempt the final error is returned wrapped. lim may
// be nil.
func Do(ctx context.Context, lim *Limiter, cfg Config, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	delay := cfg.InitialDelay
	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if lim != nil {
			if werr := lim.Wait(ctx); werr != nil {
				return werr
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		if err = fn(); err == nil {
			if lim != nil {
				lim.Success()
			}
			if attempt > 1 {
				cfg.Log.Info().Str("action", "retry").Int("attempt", attempt).Msg("succeeded after retry")
			}
			return nil
		}

		var fatal *FatalError
		if errors.As(err, &fatal) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		code := statusOf(err)
		if lim != nil && (code == http.StatusTooManyRequests || code >= 500) {
			lim.Throttled()
		}

		sleep := delay
		if code == http.StatusTooManyRequests {
			sleep = cfg.ThrottleDelay
		} else {
			if cfg.Jitter {
				sleep = jitter(sleep)
			}
			delay = min(time.Duration(float64(delay)*cfg.Multiplier), cfg.MaxDelay)
		}
		cfg.Log.Warn().Err(err).Str("action", "retry").Int("attempt", attempt).Int("status", code).Dur("sleep", sleep).Msg("upstream call failed")

		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", cfg.MaxAttempts, err)
}

func statusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

// jitter adds up to a quarter of d.
func jitter(d time.Duration) time.Duration {
	if d < 4 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d/4)))
}

func burstFor(r rate.Limit) int { return max(1, int(r)) }

func maxLimit(a, b rate.Limit) rate.Limit {
	if a > b {
		return a
	}
	return b
}
