package traits

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	DailyLogLimit     = 30
	SentimentLogLimit = 100

	positiveThreshold = 0.3
	negativeThreshold = -0.3
)

// StateKey is the persistence key for the trait model.
const StateKey = "traits"

// DateLayout keys the day-boundary guard.
const DateLayout = "2006-01-02"

// Traits are slowly drifting personality values in [0, 100].
type Traits struct {
	Independence float64 `json:"independence"`
	Willfulness  float64 `json:"willfulness"`
	Sensitivity  float64 `json:"sensitivity"`
	Security     float64 `json:"security"`
	Affection    float64 `json:"affection"`
	Trust        float64 `json:"trust"`
}

// DefaultTraits returns the starting personality.
func DefaultTraits() Traits {
	return Traits{
		Independence: 50,
		Willfulness:  30,
		Sensitivity:  50,
		Security:     60,
		Affection:    50,
		Trust:        50,
	}
}

func (t *Traits) each(fn func(*float64)) {
	fn(&t.Independence)
	fn(&t.Willfulness)
	fn(&t.Sensitivity)
	fn(&t.Security)
	fn(&t.Affection)
	fn(&t.Trust)
}

func (t *Traits) clamp() {
	t.each(func(v *float64) { *v = clamp100(*v) })
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type SentimentSample struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats accumulates interaction history between drift recomputations.
type Stats struct {
	TotalDays               int               `json:"total_days"`
	ActiveDays              int               `json:"active_days"`
	TotalMessages           int               `json:"total_messages"`
	PositiveCount           int               `json:"positive_count"`
	NegativeCount           int               `json:"negative_count"`
	ConflictCount           int               `json:"conflict_count"`
	LastActiveDate          string            `json:"last_active_date,omitempty"`
	ConsecutiveInactiveDays int               `json:"consecutive_inactive_days"`
	DailyMessageCounts      []DailyCount      `json:"daily_message_counts"`
	SentimentHistory        []SentimentSample `json:"sentiment_history"`
}

// PositiveRatio is positive/(positive+negative), or 0.5 without samples.
func (s Stats) PositiveRatio() float64 {
	total := s.PositiveCount + s.NegativeCount
	if total == 0 {
		return 0.5
	}
	return float64(s.PositiveCount) / float64(total)
}

// ConflictRate is conflicts per message.
func (s Stats) ConflictRate() float64 {
	n := s.TotalMessages
	if n < 1 {
		n = 1
	}
	return float64(s.ConflictCount) / float64(n)
}

// RecentAverage is the mean daily message count over the last n logged days.
func (s Stats) RecentAverage(n int) float64 {
	logs := s.DailyMessageCounts
	if len(logs) > n {
		logs = logs[len(logs)-n:]
	}
	if len(logs) == 0 {
		return 0
	}
	sum := 0
	for _, d := range logs {
		sum += d.Count
	}
	return float64(sum) / float64(len(logs))
}

// State is the persisted shape of the trait model.
type State struct {
	Traits      Traits    `json:"traits"`
	Stats       Stats     `json:"stats"`
	LastUpdated time.Time `json:"last_updated"`
}

// Persister receives a snapshot after every mutation.
type Persister interface {
	Save(key string, v any)
}

// Model owns traits and stats. Not safe for concurrent use.
type Model struct {
	state   State
	rules   []Rule
	persist Persister
	now     func() time.Time
	log     zerolog.Logger
}

// NewModel creates a model at default traits using the standard drift rules.
func NewModel(persist Persister, log zerolog.Logger) *Model {
	return &Model{
		state:   State{Traits: DefaultTraits()},
		rules:   DefaultRules(),
		persist: persist,
		now:     time.Now,
		log:     log.With().Str("component", "traits").Logger(),
	}
}

func (m *Model) SetClock(now func() time.Time) { m.now = now }

// SetRules replaces the drift rule list. Mean reversion still runs afterwards.
func (m *Model) SetRules(rules []Rule) { m.rules = rules }

// Restore replaces the state with a loaded snapshot.
func (m *Model) Restore(st State) {
	st.Traits.clamp()
	if len(st.Stats.DailyMessageCounts) > DailyLogLimit {
		st.Stats.DailyMessageCounts = st.Stats.DailyMessageCounts[len(st.Stats.DailyMessageCounts)-DailyLogLimit:]
	}
	if len(st.Stats.SentimentHistory) > SentimentLogLimit {
		st.Stats.SentimentHistory = st.Stats.SentimentHistory[len(st.Stats.SentimentHistory)-SentimentLogLimit:]
	}
	m.state = st
}

// RecordInteraction counts one exchange. Traits are not touched here.
func (m *Model) RecordInteraction(sentiment float64, isConflict bool) {
	s := &m.state.Stats
	s.TotalMessages++
	switch {
	case sentiment > positiveThreshold:
		s.PositiveCount++
	case sentiment < negativeThreshold:
		s.NegativeCount++
	}
	if isConflict {
		s.ConflictCount++
	}
	s.SentimentHistory = append(s.SentimentHistory, SentimentSample{Value: sentiment, Timestamp: m.now()})
	if len(s.SentimentHistory) > SentimentLogLimit {
		s.SentimentHistory = s.SentimentHistory[len(s.SentimentHistory)-SentimentLogLimit:]
	}
	m.save()
}

// UpdateDailyStats closes out a calendar day. It does nothing when date was
// already recorded, so callers may invoke it on every turn.
func (m *Model) UpdateDailyStats(date string, todayMessageCount int) bool {
	s := &m.state.Stats
	if s.LastActiveDate == date {
		return false
	}
	s.TotalDays++
	if todayMessageCount > 0 {
		s.ActiveDays++
		s.ConsecutiveInactiveDays = 0
	} else {
		s.ConsecutiveInactiveDays++
	}
	s.DailyMessageCounts = append(s.DailyMessageCounts, DailyCount{Date: date, Count: todayMessageCount})
	if len(s.DailyMessageCounts) > DailyLogLimit {
		s.DailyMessageCounts = s.DailyMessageCounts[len(s.DailyMessageCounts)-DailyLogLimit:]
	}
	s.LastActiveDate = date

	m.drift()
	m.save()
	return true
}

// SetDayCount updates the logged message count for a date that was already
// recorded. UpdateDailyStats logs a day on its first message, so the count
// has to follow along for the volume rules to see real traffic.
func (m *Model) SetDayCount(date string, count int) bool {
	logs := m.state.Stats.DailyMessageCounts
	for i := len(logs) - 1; i >= 0; i-- {
		if logs[i].Date != date {
			continue
		}
		if logs[i].Count == count {
			return false
		}
		logs[i].Count = count
		m.save()
		return true
	}
	return false
}

// Traits returns the current trait values.
func (m *Model) Traits() Traits { return m.state.Traits }

// Stats returns a copy of the interaction statistics.
func (m *Model) Stats() Stats {
	s := m.state.Stats
	s.DailyMessageCounts = append([]DailyCount(nil), s.DailyMessageCounts...)
	s.SentimentHistory = append([]SentimentSample(nil), s.SentimentHistory...)
	return s
}

// State returns a copy of the persisted shape.
func (m *Model) State() State {
	return State{Traits: m.state.Traits, Stats: m.Stats(), LastUpdated: m.state.LastUpdated}
}

// Reset restores default traits and clears statistics.
func (m *Model) Reset() {
	m.state = State{Traits: DefaultTraits()}
	m.save()
}

func (m *Model) save() {
	m.state.LastUpdated = m.now().UTC()
	if m.persist == nil {
		return
	}
	m.persist.Save(StateKey, m.State())
}

func clamp100(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 100 {
		return 100
	}
	return x
}
