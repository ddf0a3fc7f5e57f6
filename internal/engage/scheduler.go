// Package engage decides when the companion should message the user first.
// A Scheduler evaluates trigger conditions on a fixed interval, asks its Host
// to write the message, and holds the results in a small priority queue until
// a transport consumes them.
package engage

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/keshon/heartline/internal/tasks"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	MaxQueue        = 5
	DefaultInterval = time.Minute
	StateKey        = "engagement"
	DayLayout       = "2006-01-02"

	greetingWindowMinutes = 5
	taskLookahead         = 15 * time.Minute
	missYouAfter          = 2 * time.Hour
	returnedAfter         = 30 * time.Minute
	randomChatGap         = time.Hour
	memoryShareMinScore   = 50
	randomChatCap         = 0.4
)

// Payload carries trigger-specific context to the message writer.
type Payload struct {
	InactiveMinutes int         `json:"inactive_minutes,omitempty"`
	Task            *tasks.Task `json:"task,omitempty"`
}

// Generated is a message written by the Host.
type Generated struct {
	Content string
	Emotion string
}

// Host is the session the scheduler speaks for.
type Host interface {
	Affinity() int
	GenerateProactive(ctx context.Context, t Trigger, p Payload) (Generated, error)
}

// TaskSource supplies tasks due for a reminder.
type TaskSource interface {
	DueSoon(ctx context.Context, now time.Time, within time.Duration) ([]tasks.Task, error)
}

type Persister interface {
	Save(key string, v any)
}

// Message is one queued outbound message.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Emotion   string    `json:"emotion"`
	Timestamp time.Time `json:"timestamp"`
	Reason    Trigger   `json:"reason"`
	Priority  int       `json:"priority"`
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Trigger Trigger
	Payload Payload
}

// Scheduler is safe for concurrent use. Generation runs without the lock.
type Scheduler struct {
	host     Host
	tasks    TaskSource
	persist  Persister
	log      zerolog.Logger
	now      func() time.Time
	rand     func() float64
	interval time.Duration

	running atomic.Bool
	bg      sync.WaitGroup

	mu          sync.Mutex
	cfg         Config
	lastFired   map[Trigger]time.Time
	lastTrigger time.Time
	lastActive  time.Time
	sent        int
	day         string
	queue       []Message
	inflight    map[Trigger]bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

func WithRand(r func() float64) Option { return func(s *Scheduler) { s.rand = r } }

func WithInterval(d time.Duration) Option { return func(s *Scheduler) { s.interval = d } }

func WithTasks(src TaskSource) Option { return func(s *Scheduler) { s.tasks = src } }

func WithPersister(p Persister) Option { return func(s *Scheduler) { s.persist = p } }

func WithConfig(cfg Config) Option { return func(s *Scheduler) { s.cfg = cfg.clone() } }

func New(host Host, log zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		host:      host,
		log:       log.With().Str("component", "engage").Logger(),
		now:       time.Now,
		rand:      rand.Float64,
		interval:  DefaultInterval,
		cfg:       DefaultConfig(),
		lastFired: make(map[Trigger]time.Time),
		inflight:  make(map[Trigger]bool),
	}
	for _, o := range opts {
		o(s)
	}
	now := s.now()
	s.lastTrigger = now
	s.lastActive = now
	s.day = now.Format(DayLayout)
	return s
}

// CanFire reports whether t is enabled and off cooldown.
func (s *Scheduler) CanFire(t Trigger) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canFireLocked(t, s.now())
}

func (s *Scheduler) canFireLocked(t Trigger, now time.Time) bool {
	if !s.cfg.enabled(t) {
		return false
	}
	last, ok := s.lastFired[t]
	if !ok {
		return true
	}
	return now.Sub(last) >= Cooldown(t, s.cfg.Frequency)
}

func (s *Scheduler) resetDayLocked(now time.Time) {
	if today := now.Format(DayLayout); today != s.day {
		s.day = today
		s.sent = 0
	}
}

// Evaluate runs one tick of trigger checks. The first condition that passes
// wins.
func (s *Scheduler) Evaluate(ctx context.Context) (Decision, bool) {
	score := s.host.Affinity()
	now := s.now()
	due := s.dueTasks(ctx, now)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled {
		return Decision{}, false
	}
	s.resetDayLocked(now)
	if s.sent >= DailyLimit(score, s.cfg.Frequency, s.cfg.CustomDailyLimit) {
		return Decision{}, false
	}

	hour, minute := now.Hour(), now.Minute()
	bonus := AffinityBonus(score)

	if minute <= greetingWindowMinutes {
		if hour == 8 && s.canFireLocked(MorningGreeting, now) {
			return Decision{Trigger: MorningGreeting}, true
		}
		if hour == 22 && s.canFireLocked(NightGreeting, now) {
			return Decision{Trigger: NightGreeting}, true
		}
	}

	if len(due) > 0 && s.canFireLocked(TaskReminder, now) {
		task := due[0]
		return Decision{Trigger: TaskReminder, Payload: Payload{Task: &task}}, true
	}

	if (hour == 15 || hour == 20) && minute <= greetingWindowMinutes && s.canFireLocked(MoodCheck, now) {
		return Decision{Trigger: MoodCheck}, true
	}

	inactive := now.Sub(s.lastActive)
	if inactive > missYouAfter && s.canFireLocked(MissYou, now) {
		if s.rand() < 0.3*bonus {
			return Decision{Trigger: MissYou, Payload: Payload{InactiveMinutes: int(inactive.Minutes())}}, true
		}
	}

	if score >= memoryShareMinScore && s.canFireLocked(MemoryShare, now) {
		if s.rand() < 0.15*bonus {
			return Decision{Trigger: MemoryShare}, true
		}
	}

	if minute == 0 || minute == 30 {
		since := now.Sub(s.lastTrigger)
		if since >= randomChatGap && s.canFireLocked(RandomChat, now) {
			p := (float64(score)/200 + since.Hours()/24) * bonus
			if p > randomChatCap {
				p = randomChatCap
			}
			if s.rand() < p {
				return Decision{Trigger: RandomChat}, true
			}
		}
	}

	return Decision{}, false
}

func (s *Scheduler) dueTasks(ctx context.Context, now time.Time) []tasks.Task {
	if s.tasks == nil {
		return nil
	}
	due, err := s.tasks.DueSoon(ctx, now, taskLookahead)
	if err != nil {
		s.log.Warn().Err(err).Str("action", "due_tasks").Msg("task lookup failed")
		return nil
	}
	return due
}

// Tick evaluates and, when a trigger fires, enqueues its message.
func (s *Scheduler) Tick(ctx context.Context) bool {
	d, ok := s.Evaluate(ctx)
	if !ok {
		return false
	}
	return s.Enqueue(ctx, d.Trigger, d.Payload)
}

// Enqueue asks the host for a message and queues it. It is a no-op when the
// queue is full or the same trigger is already being generated.
func (s *Scheduler) Enqueue(ctx context.Context, t Trigger, p Payload) bool {
	s.mu.Lock()
	if len(s.queue) >= MaxQueue {
		s.mu.Unlock()
		s.log.Debug().Str("action", "enqueue").Str("trigger", string(t)).Msg("queue full, skipped")
		return false
	}
	if s.inflight[t] {
		s.mu.Unlock()
		return false
	}
	s.inflight[t] = true
	s.mu.Unlock()

	s.log.Info().Str("action", "trigger").Str("trigger", string(t)).Msg("generating proactive message")
	gen, err := s.host.GenerateProactive(ctx, t, p)

	s.mu.Lock()
	delete(s.inflight, t)
	if err != nil {
		s.mu.Unlock()
		s.log.Error().Err(err).Str("action", "trigger").Str("trigger", string(t)).Msg("proactive generation failed")
		return false
	}
	if gen.Content == "" || len(s.queue) >= MaxQueue {
		s.mu.Unlock()
		return false
	}

	now := s.now()
	s.queue = append(s.queue, Message{
		ID:        ulid.Make().String(),
		Content:   gen.Content,
		Emotion:   gen.Emotion,
		Timestamp: now.UTC(),
		Reason:    t,
		Priority:  Priority(t),
	})
	sort.SliceStable(s.queue, func(i, j int) bool { return s.queue[i].Priority > s.queue[j].Priority })

	s.resetDayLocked(now)
	s.lastFired[t] = now
	s.lastTrigger = now
	s.sent++
	size := len(s.queue)
	st := s.stateLocked()
	s.mu.Unlock()

	s.save(st)
	s.log.Info().Str("action", "queued").Str("trigger", string(t)).Int("queue", size).Msg("proactive message queued")
	return true
}

// Consume removes and returns the highest-priority message.
func (s *Scheduler) Consume() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Message{}, false
	}
	m := s.queue[0]
	s.queue = s.queue[1:]
	return m, true
}

// NotifyUserActive records user activity. After an absence of at least 30
// minutes it schedules a welcome-back message in the background. Messages
// already queued are left for the user to read.
func (s *Scheduler) NotifyUserActive(ctx context.Context) bool {
	s.mu.Lock()
	now := s.now()
	inactive := now.Sub(s.lastActive)
	s.lastActive = now
	fire := inactive >= returnedAfter && s.canFireLocked(Returned, now)
	st := s.stateLocked()
	s.mu.Unlock()

	s.save(st)
	if !fire {
		return false
	}

	payload := Payload{InactiveMinutes: int(inactive.Minutes())}
	bgCtx := context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.Enqueue(bgCtx, Returned, payload)
	}()
	return true
}

// Wait blocks until background enqueues started by NotifyUserActive finish.
func (s *Scheduler) Wait() { s.bg.Wait() }

// Run evaluates on every interval until ctx is cancelled. A second concurrent
// Run returns immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	defer s.running.Store(false)

	s.log.Info().Str("action", "start").Dur("interval", s.interval).Msg("scheduler started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.bg.Wait()
			s.log.Info().Str("action", "stop").Msg("scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Running reports whether Run is active.
func (s *Scheduler) Running() bool { return s.running.Load() }
