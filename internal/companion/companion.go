// Package companion runs a conversation turn end to end. A Session owns the
// mood engine, trait model and relationship bond, asks the completion
// provider for a reply, and folds the reply's metadata back into that state.
// It also writes the scheduler's proactive messages.
package companion

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/keshon/heartline/internal/affect"
	"github.com/keshon/heartline/internal/ai"
	"github.com/keshon/heartline/internal/apperr"
	"github.com/keshon/heartline/internal/config"
	"github.com/keshon/heartline/internal/memory"
	"github.com/keshon/heartline/internal/relationship"
	"github.com/keshon/heartline/internal/tasks"
	"github.com/keshon/heartline/internal/traits"
	"github.com/rs/zerolog"
)

const (
	DefaultHistoryLimit = 40

	conflictBelow   = -3
	maxCatchUpDays  = 31
	degradedReply   = "Sorry, my thoughts got tangled for a second... could you say that again?"
	silentEmotion   = "cold"
	defaultEmotion  = "default"
	memoryLineLimit = 100
)

var errNoProvider = errors.New("no completion provider configured")

type Persister interface {
	Save(key string, v any)
}

// TaskSource feeds pending tasks into the chat context.
type TaskSource interface {
	Pending(ctx context.Context) ([]tasks.Task, error)
	Summary(ctx context.Context) (tasks.Summary, error)
}

// ActivityNotifier is told about every user message before it is answered.
type ActivityNotifier interface {
	NotifyUserActive(ctx context.Context) bool
}

type Deps struct {
	Provider     ai.Provider
	Memory       *memory.Index
	Tasks        TaskSource
	Persist      Persister
	HistoryLimit int
	Log          zerolog.Logger
}

// Reply is the outcome of one chat turn. Silent means the companion chose not
// to answer.
type Reply struct {
	Text         string             `json:"reply"`
	Emotion      affect.Label       `json:"emotion"`
	ModelEmotion string             `json:"model_emotion,omitempty"`
	Affinity     int                `json:"affinity"`
	Delta        int                `json:"affinity_change"`
	Silent       bool               `json:"silent"`
	Degraded     bool               `json:"degraded,omitempty"`
	Mood         affect.Description `json:"mood"`
}

// Session is safe for concurrent use. No lock is held during completion or
// embedding calls.
type Session struct {
	persona      config.Persona
	provider     ai.Provider
	memory       *memory.Index
	tasks        TaskSource
	persist      Persister
	historyLimit int
	log          zerolog.Logger
	now          func() time.Time

	notifier ActivityNotifier

	mu           sync.Mutex
	rng          *rand.Rand
	mood         *affect.Engine
	traits       *traits.Model
	bond         *relationship.Bond
	history      []Turn
	systemPrompt string
	day          string
	dayCount     int
}

func New(persona config.Persona, deps Deps) *Session {
	log := deps.Log.With().Str("component", "companion").Logger()
	limit := deps.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	baseline := affect.Vector{P: persona.Baseline.P, A: persona.Baseline.A, D: persona.Baseline.D}
	return &Session{
		persona:      persona,
		provider:     deps.Provider,
		memory:       deps.Memory,
		tasks:        deps.Tasks,
		persist:      deps.Persist,
		historyLimit: limit,
		log:          log,
		now:          time.Now,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		mood:         affect.NewEngine(baseline, deps.Persist, deps.Log),
		traits:       traits.NewModel(deps.Persist, deps.Log),
		bond:         relationship.NewBond(persona.Nickname, deps.Persist, deps.Log),
		systemPrompt: persona.SystemPrompt,
	}
}

// SetClock overrides the time source for the session and its models.
func (s *Session) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	s.mood.SetClock(now)
	s.traits.SetClock(now)
	s.bond.SetClock(now)
}

// SetRand seeds the source used for topic and memory picks.
func (s *Session) SetRand(r *rand.Rand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = r
}

// SetNotifier attaches the activity listener, normally the engagement
// scheduler. It must be called before the session serves traffic.
func (s *Session) SetNotifier(n ActivityNotifier) { s.notifier = n }

// Chat runs one user turn.
func (s *Session) Chat(ctx context.Context, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, apperr.InvalidRequest("message is required")
	}

	if s.notifier != nil {
		s.notifier.NotifyUserActive(ctx)
	}

	s.mu.Lock()
	now := s.now()
	s.closeDaysLocked(now)
	today := now.Format(traits.DateLayout)
	if s.day != today {
		s.day, s.dayCount = today, 0
	}
	s.dayCount++
	if !s.traits.UpdateDailyStats(today, s.dayCount) {
		s.traits.SetDayCount(today, s.dayCount)
	}

	if s.mood.ShouldWithdraw() {
		s.mood.Withdraw()
		s.saveConversationLocked()
		reply := Reply{Silent: true, Emotion: silentEmotion, Affinity: s.bond.Score(), Mood: s.mood.Describe()}
		s.mu.Unlock()
		return reply, nil
	}

	mood := s.mood.Snapshot()
	cc := chatContext{
		Now:        now,
		Nickname:   s.bond.Nickname(),
		Score:      s.bond.Score(),
		Level:      s.bond.Level(),
		MoodBlock:  s.mood.PromptInjection(),
		TraitBlock: s.traits.PromptInjection(),
		StyleGuide: s.mood.Style().Guide,
	}
	system := s.systemPrompt
	history := append([]Turn(nil), s.history...)
	s.mu.Unlock()

	if s.memory != nil {
		cc.Memory = s.memory.Retrieve(ctx, text, &mood, memory.DefaultLimit)
	}
	cc.Pending, cc.Summary = s.pendingTasks(ctx)

	raw, err := s.generate(ctx, chatMessages(system, history, cc.render(), text))
	if err != nil {
		s.log.Error().Err(err).Str("action", "chat").Msg("completion failed")
		s.mu.Lock()
		s.mood.Decay(affect.DefaultDecayRate)
		reply := Reply{
			Text:     degradedReply,
			Emotion:  s.mood.Classify(),
			Affinity: s.bond.Score(),
			Degraded: true,
			Mood:     s.mood.Describe(),
		}
		s.saveConversationLocked()
		s.mu.Unlock()
		return reply, nil
	}

	parsed := parseReply(raw)
	if parsed.Err != nil {
		s.log.Warn().Err(parsed.Err).Str("action", "metadata").Msg("metadata unreadable, using zero delta")
	}
	meta := parsed.Meta

	s.mu.Lock()
	score := s.bond.Score()
	if meta.EmotionDelta != nil && !meta.EmotionDelta.IsZero() {
		s.mood.ApplyDelta(*meta.EmotionDelta, affect.DefaultInertia)
	} else if d := affect.AnalyzeInput(text, score); !d.IsZero() {
		s.mood.ApplyDelta(d, affect.DefaultInertia)
	}
	s.mood.Decay(affect.DefaultDecayRate)

	proposed := meta.Change()
	validated := relationship.Validate(proposed, text, parsed.Text, score)
	s.bond.Apply(validated)
	if meta.Nickname != "" {
		s.bond.SetNickname(meta.Nickname)
	}

	s.traits.RecordInteraction(sentiment(meta, proposed), proposed < conflictBelow)

	s.history = append(s.history,
		Turn{Role: ai.RoleUser, Content: text, Timestamp: now.UTC()},
		Turn{Role: ai.RoleAssistant, Content: parsed.Text, Timestamp: s.now().UTC()},
	)
	s.history = trimHistory(s.history, s.historyLimit)
	s.saveConversationLocked()

	after := s.mood.Snapshot()
	reply := Reply{
		Text:         parsed.Text,
		Emotion:      s.mood.Classify(),
		ModelEmotion: meta.Emotion,
		Affinity:     s.bond.Score(),
		Delta:        validated,
		Mood:         s.mood.Describe(),
	}
	s.mu.Unlock()

	if s.memory != nil {
		s.memory.Store(ctx, "User: "+text+"\nAssistant: "+parsed.Text, &after, nil)
	}

	s.log.Info().
		Str("action", "chat").
		Int("affinity", reply.Affinity).
		Int("delta", validated).
		Int("proposed", proposed).
		Str("emotion", string(reply.Emotion)).
		Msg("turn complete")
	return reply, nil
}

func (s *Session) generate(ctx context.Context, msgs []ai.Message) (string, error) {
	if s.provider == nil {
		return "", errNoProvider
	}
	return s.provider.Generate(ctx, msgs)
}

// sentiment is the signal recorded for personality drift: the model's
// pleasure delta when present, else the sign of the proposed affinity change.
func sentiment(meta Metadata, change int) float64 {
	if meta.EmotionDelta != nil && meta.EmotionDelta.P != nil && *meta.EmotionDelta.P != 0 {
		return *meta.EmotionDelta.P
	}
	switch {
	case change > 0:
		return 0.5
	case change < 0:
		return -0.5
	default:
		return 0
	}
}

func (s *Session) pendingTasks(ctx context.Context) ([]tasks.Task, tasks.Summary) {
	if s.tasks == nil {
		return nil, tasks.Summary{}
	}
	pending, err := s.tasks.Pending(ctx)
	if err != nil {
		s.log.Warn().Err(err).Str("action", "tasks").Msg("pending tasks unavailable")
		return nil, tasks.Summary{}
	}
	sum, err := s.tasks.Summary(ctx)
	if err != nil {
		s.log.Warn().Err(err).Str("action", "tasks").Msg("task summary unavailable")
		sum = tasks.Summary{Pending: len(pending)}
	}
	return pending, sum
}

// CloseDays records every calendar day since the last recorded one, up to
// yesterday, as inactive. Chat calls it on every turn; the daily job calls it
// so inactivity is counted while nobody is talking.
func (s *Session) CloseDays() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeDaysLocked(s.now())
}

func (s *Session) closeDaysLocked(now time.Time) {
	last := s.traits.Stats().LastActiveDate
	if last == "" {
		return
	}
	day, err := time.ParseInLocation(traits.DateLayout, last, now.Location())
	if err != nil {
		return
	}
	today := now.Format(traits.DateLayout)
	for i := 0; i < maxCatchUpDays; i++ {
		day = day.AddDate(0, 0, 1)
		date := day.Format(traits.DateLayout)
		if date >= today {
			return
		}
		s.traits.UpdateDailyStats(date, 0)
	}
}

// Affinity returns the relationship score.
func (s *Session) Affinity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bond.Score()
}

// ClearHistory wipes the conversation and long-term memory and resets the
// relationship score. Mood and personality are kept.
func (s *Session) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	s.history = nil
	s.bond.Reset()
	s.saveConversationLocked()
	s.mu.Unlock()

	s.log.Info().Str("action", "clear").Msg("history cleared")
	if s.memory == nil {
		return nil
	}
	return s.memory.Clear(ctx)
}

// ClearMemories wipes long-term memory only.
func (s *Session) ClearMemories(ctx context.Context) error {
	if s.memory == nil {
		return nil
	}
	return s.memory.Clear(ctx)
}

func (s *Session) Memories(limit int) []memory.Entry {
	if s.memory == nil {
		return nil
	}
	return s.memory.List(limit)
}

func (s *Session) State() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	v := View{
		Affinity:     s.bond.Score(),
		Nickname:     s.bond.Nickname(),
		Level:        s.bond.Level(),
		HistoryCount: len(s.history),
		Emotion:      s.mood.Classify(),
	}
	if s.memory != nil {
		v.MemoryCount = s.memory.Len()
	}
	return v
}

func (s *Session) UpdateState(u StateUpdate) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Affinity != nil {
		s.bond.Set(*u.Affinity)
	}
	if u.Nickname != nil {
		s.bond.SetNickname(strings.TrimSpace(*u.Nickname))
	}
	return s.viewLocked()
}

func (s *Session) SystemPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.systemPrompt
}

// SetSystemPrompt replaces the character prompt and starts a fresh
// conversation. An empty prompt restores the persona's.
func (s *Session) SetSystemPrompt(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = s.persona.SystemPrompt
	}
	s.systemPrompt = prompt
	s.history = nil
	s.saveConversationLocked()
}

func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history...)
}

func (s *Session) Mood() MoodView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return MoodView{
		Description: s.mood.Describe(),
		Baseline:    s.mood.Baseline(),
		Style:       s.mood.Style(),
		Withdraw:    s.mood.ShouldWithdraw(),
	}
}

func (s *Session) Personality() PersonalityView {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.traits.Stats()
	return PersonalityView{
		Traits:        s.traits.Traits(),
		Dominant:      s.traits.Dominant(),
		Directives:    s.traits.Describe(),
		PositiveRatio: st.PositiveRatio(),
		TotalMessages: st.TotalMessages,
		ActiveDays:    st.ActiveDays,
		TotalDays:     st.TotalDays,
		InactiveDays:  st.ConsecutiveInactiveDays,
	}
}
