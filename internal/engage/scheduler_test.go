package engage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/keshon/heartline/internal/tasks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeHost struct {
	mu       sync.Mutex
	score    int
	err      error
	calls    []Trigger
	payloads []Payload
}

func (h *fakeHost) Affinity() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.score
}

func (h *fakeHost) GenerateProactive(_ context.Context, t Trigger, p Payload) (Generated, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, t)
	h.payloads = append(h.payloads, p)
	if h.err != nil {
		return Generated{}, h.err
	}
	return Generated{Content: "hey, " + string(t), Emotion: "happy"}, nil
}

type fakeTasks struct {
	due []tasks.Task
}

func (f fakeTasks) DueSoon(context.Context, time.Time, time.Duration) ([]tasks.Task, error) {
	return f.due, nil
}

type countingPersister struct {
	mu   sync.Mutex
	last map[string]any
	n    int
}

func (p *countingPersister) Save(key string, v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		p.last = make(map[string]any)
	}
	p.last[key] = v
	p.n++
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 6, 1, hour, minute, 0, 0, time.Local)
}

func never() float64  { return 1 }
func always() float64 { return 0 }

func newTestScheduler(start time.Time, host *fakeHost, opts ...Option) (*Scheduler, *fakeClock) {
	clock := &fakeClock{now: start}
	base := []Option{WithClock(clock.Now), WithRand(never)}
	return New(host, zerolog.Nop(), append(base, opts...)...), clock
}

func TestEnqueue_StartsCooldown(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestScheduler(at(10, 10), &fakeHost{score: 35})

	require.True(t, s.CanFire(RandomChat))
	require.True(t, s.Enqueue(ctx, RandomChat, Payload{}))
	assert.False(t, s.CanFire(RandomChat))

	clock.Advance(2*time.Hour - time.Minute)
	assert.False(t, s.CanFire(RandomChat))
	clock.Advance(time.Minute)
	assert.True(t, s.CanFire(RandomChat))
}

func TestEnqueue_FullQueueIsNoop(t *testing.T) {
	ctx := context.Background()
	host := &fakeHost{score: 35}
	s, _ := newTestScheduler(at(10, 10), host)

	for i := 0; i < MaxQueue; i++ {
		require.True(t, s.Enqueue(ctx, RandomChat, Payload{}))
	}
	assert.False(t, s.Enqueue(ctx, TaskReminder, Payload{}))
	assert.Len(t, host.calls, MaxQueue)
	assert.Len(t, s.Peek(), MaxQueue)
}

func TestEnqueue_GenerationFailure(t *testing.T) {
	host := &fakeHost{score: 35, err: errors.New("upstream down")}
	s, _ := newTestScheduler(at(10, 10), host)

	assert.False(t, s.Enqueue(context.Background(), RandomChat, Payload{}))
	assert.True(t, s.CanFire(RandomChat))
	assert.Empty(t, s.Peek())
}

func TestConsume_PriorityOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(at(10, 10), &fakeHost{score: 35})

	_, ok := s.Consume()
	assert.False(t, ok)

	require.True(t, s.Enqueue(ctx, RandomChat, Payload{}))
	require.True(t, s.Enqueue(ctx, TaskReminder, Payload{}))

	m, ok := s.Consume()
	require.True(t, ok)
	assert.Equal(t, TaskReminder, m.Reason)
	assert.Equal(t, 100, m.Priority)
	assert.NotEmpty(t, m.ID)

	m, ok = s.Consume()
	require.True(t, ok)
	assert.Equal(t, RandomChat, m.Reason)
	assert.Equal(t, "hey, random_chat", m.Content)

	_, ok = s.Consume()
	assert.False(t, ok)
}

func TestEvaluate_GreetingWindow(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestScheduler(at(8, 3), &fakeHost{score: 35})

	d, ok := s.Evaluate(ctx)
	require.True(t, ok)
	assert.Equal(t, MorningGreeting, d.Trigger)

	clock.Advance(3 * time.Minute)
	_, ok = s.Evaluate(ctx)
	assert.False(t, ok)

	night, _ := newTestScheduler(at(22, 0), &fakeHost{score: 35})
	d, ok = night.Evaluate(ctx)
	require.True(t, ok)
	assert.Equal(t, NightGreeting, d.Trigger)
}

func TestEvaluate_GreetingOncePerDay(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(at(8, 1), &fakeHost{score: 35})

	require.True(t, s.Tick(ctx))
	_, ok := s.Evaluate(ctx)
	assert.False(t, ok)
}

func TestEvaluate_TaskReminder(t *testing.T) {
	due := time.Now().Add(10 * time.Minute)
	src := fakeTasks{due: []tasks.Task{{ID: "t1", Title: "call mom", DueAt: &due}}}
	s, _ := newTestScheduler(at(10, 10), &fakeHost{score: 35}, WithTasks(src))

	d, ok := s.Evaluate(context.Background())
	require.True(t, ok)
	assert.Equal(t, TaskReminder, d.Trigger)
	require.NotNil(t, d.Payload.Task)
	assert.Equal(t, "call mom", d.Payload.Task.Title)
}

func TestEvaluate_MoodCheck(t *testing.T) {
	s, _ := newTestScheduler(at(15, 2), &fakeHost{score: 35})
	d, ok := s.Evaluate(context.Background())
	require.True(t, ok)
	assert.Equal(t, MoodCheck, d.Trigger)
}

func TestEvaluate_MissYouProbability(t *testing.T) {
	ctx := context.Background()
	host := &fakeHost{score: 35}
	roll := 0.25
	s, clock := newTestScheduler(at(10, 10), host, WithRand(func() float64 { return roll }))
	clock.Advance(3 * time.Hour)

	// 0.3 * 0.8 = 0.24
	_, ok := s.Evaluate(ctx)
	assert.False(t, ok)

	roll = 0.2
	d, ok := s.Evaluate(ctx)
	require.True(t, ok)
	assert.Equal(t, MissYou, d.Trigger)
	assert.Equal(t, 180, d.Payload.InactiveMinutes)
}

func TestEvaluate_MemoryShareNeedsAffinity(t *testing.T) {
	ctx := context.Background()
	low, _ := newTestScheduler(at(10, 10), &fakeHost{score: 49}, WithRand(always))
	_, ok := low.Evaluate(ctx)
	assert.False(t, ok)

	high, _ := newTestScheduler(at(10, 10), &fakeHost{score: 50}, WithRand(always))
	d, ok := high.Evaluate(ctx)
	require.True(t, ok)
	assert.Equal(t, MemoryShare, d.Trigger)
}

func TestEvaluate_RandomChatOnHalfHour(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.EnabledTypes = []Trigger{RandomChat}
	s, clock := newTestScheduler(at(10, 0), &fakeHost{score: 35}, WithRand(always), WithConfig(cfg))

	_, ok := s.Evaluate(ctx)
	assert.False(t, ok, "less than an hour since last trigger")

	clock.Advance(time.Hour + 30*time.Minute)
	d, ok := s.Evaluate(ctx)
	require.True(t, ok)
	assert.Equal(t, RandomChat, d.Trigger)

	clock.Advance(time.Minute)
	_, ok = s.Evaluate(ctx)
	assert.False(t, ok)
}

func TestEvaluate_DailyQuotaAndRollover(t *testing.T) {
	ctx := context.Background()
	limit := 2
	cfg := DefaultConfig()
	cfg.CustomDailyLimit = &limit
	s, clock := newTestScheduler(at(7, 0), &fakeHost{score: 35}, WithConfig(cfg))

	require.True(t, s.Enqueue(ctx, RandomChat, Payload{}))
	require.True(t, s.Enqueue(ctx, MoodCheck, Payload{}))

	clock.Advance(time.Hour + 3*time.Minute)
	_, ok := s.Evaluate(ctx)
	assert.False(t, ok, "quota spent")
	assert.Equal(t, 2, s.Status().SentToday)

	clock.Advance(24 * time.Hour)
	d, ok := s.Evaluate(ctx)
	require.True(t, ok)
	assert.Equal(t, MorningGreeting, d.Trigger)
	assert.Equal(t, 0, s.Status().SentToday)
}

func TestEvaluate_Disabled(t *testing.T) {
	s, _ := newTestScheduler(at(8, 0), &fakeHost{score: 35})
	off := false
	s.UpdateConfig(Update{Enabled: &off})
	_, ok := s.Evaluate(context.Background())
	assert.False(t, ok)
}

func TestNotifyUserActive_KeepsQueuedMessages(t *testing.T) {
	ctx := context.Background()
	host := &fakeHost{score: 35}
	s, clock := newTestScheduler(at(10, 10), host)

	require.True(t, s.Enqueue(ctx, MissYou, Payload{InactiveMinutes: 150}))
	require.True(t, s.Enqueue(ctx, RandomChat, Payload{}))

	clock.Advance(45 * time.Minute)
	require.True(t, s.NotifyUserActive(ctx))
	s.Wait()

	queued := s.Peek()
	require.Len(t, queued, 3)
	assert.Equal(t, MissYou, queued[0].Reason)
	assert.Equal(t, RandomChat, queued[1].Reason)
	assert.Equal(t, Returned, queued[2].Reason)

	host.mu.Lock()
	last := host.payloads[len(host.payloads)-1]
	host.mu.Unlock()
	assert.Equal(t, 45, last.InactiveMinutes)

	clock.Advance(10 * time.Minute)
	assert.False(t, s.NotifyUserActive(ctx))
	s.Wait()
	assert.Len(t, s.Peek(), 3)
}

func TestNotifyUserActive_ResetsInactivity(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestScheduler(at(10, 10), &fakeHost{score: 35}, WithRand(always))

	clock.Advance(3 * time.Hour)
	s.NotifyUserActive(ctx)
	s.Wait()

	_, ok := s.Evaluate(ctx)
	assert.False(t, ok)
}

func TestUpdateConfig_Filtering(t *testing.T) {
	p := &countingPersister{}
	s, _ := newTestScheduler(at(10, 10), &fakeHost{score: 35}, WithPersister(p))

	bogus := Tier("turbo")
	neg := -1
	types := []Trigger{"bogus", MissYou, MissYou, TaskReminder}
	cfg := s.UpdateConfig(Update{Frequency: &bogus, CustomDailyLimit: &neg, EnabledTypes: &types})

	assert.Equal(t, TierMedium, cfg.Frequency)
	assert.Nil(t, cfg.CustomDailyLimit)
	assert.Equal(t, []Trigger{MissYou, TaskReminder}, cfg.EnabledTypes)
	assert.False(t, s.CanFire(RandomChat))
	assert.Equal(t, 1, p.n)

	high := TierHigh
	seven := 7
	cfg = s.UpdateConfig(Update{Frequency: &high, CustomDailyLimit: &seven})
	assert.Equal(t, TierHigh, cfg.Frequency)
	require.NotNil(t, cfg.CustomDailyLimit)
	assert.Equal(t, 7, s.Status().DailyLimit)

	cfg = s.UpdateConfig(Update{ClearDailyLimit: true})
	assert.Nil(t, cfg.CustomDailyLimit)
	assert.Equal(t, 8, s.Status().DailyLimit)
}

func TestRestore_DropsUnknownTriggers(t *testing.T) {
	s, _ := newTestScheduler(at(10, 10), &fakeHost{score: 35})
	fired := at(9, 0)
	s.Restore(State{
		LastFired: map[Trigger]time.Time{RandomChat: fired, "life_update": fired},
		Sent:      3,
		Day:       "2026-06-01",
		Config:    Config{Enabled: true, Frequency: "nope", EnabledTypes: []Trigger{RandomChat, "x"}},
	})

	assert.False(t, s.CanFire(RandomChat))
	st := s.Status()
	assert.Equal(t, 3, st.SentToday)
	assert.Equal(t, TierMedium, st.Config.Frequency)
	assert.Equal(t, []Trigger{RandomChat}, st.Config.EnabledTypes)
}

func TestRun_SingleInstance(t *testing.T) {
	s, _ := newTestScheduler(at(10, 10), &fakeHost{score: 35}, WithInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.Eventually(t, s.Running, time.Second, 5*time.Millisecond)

	assert.NoError(t, s.Run(ctx))
	assert.True(t, s.Running())

	cancel()
	require.NoError(t, <-done)
	assert.False(t, s.Running())
}

func TestDailyLimitAndCooldown(t *testing.T) {
	zero := 0
	cases := []struct {
		name  string
		score int
		tier  Tier
		want  int
	}{
		{"acquaintance medium", 35, TierMedium, 5},
		{"acquaintance low rounds half up", 35, TierLow, 3},
		{"stranger high", 10, TierHigh, 5},
		{"soulmate high", 90, TierHigh, 23},
		{"close medium", 70, TierMedium, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DailyLimit(tc.score, tc.tier, nil))
		})
	}
	assert.Equal(t, 0, DailyLimit(90, TierHigh, &zero))

	assert.Equal(t, 4*time.Hour, Cooldown(RandomChat, TierLow))
	assert.Equal(t, 126*time.Minute, Cooldown(MissYou, TierHigh))
	assert.Equal(t, 24*time.Hour, Cooldown(MorningGreeting, TierLow))
	assert.Equal(t, 24*time.Hour, Cooldown(NightGreeting, TierHigh))
	assert.Equal(t, time.Hour, Cooldown("unknown", TierMedium))

	assert.Equal(t, 0.5, AffinityBonus(20))
	assert.Equal(t, 1.6, AffinityBonus(81))
}
