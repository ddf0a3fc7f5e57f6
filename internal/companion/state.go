package companion

import (
	"context"
	"time"

	"github.com/keshon/heartline/internal/affect"
	"github.com/keshon/heartline/internal/relationship"
	"github.com/keshon/heartline/internal/statestore"
	"github.com/keshon/heartline/internal/traits"
)

const StateKey = "conversation"

// Turn is one message in the conversation history.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type conversationState struct {
	History      []Turn    `json:"history"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Day          string    `json:"day"`
	DayCount     int       `json:"day_count"`
	LastUpdated  time.Time `json:"last_updated"`
}

// View is the summary returned by State and UpdateState.
type View struct {
	Affinity     int                `json:"affinity"`
	Nickname     string             `json:"nickname"`
	Level        relationship.Level `json:"level"`
	HistoryCount int                `json:"history_count"`
	MemoryCount  int                `json:"memory_count"`
	Emotion      affect.Label       `json:"emotion"`
}

// StateUpdate is a partial edit of the relationship. Nil fields are unchanged.
type StateUpdate struct {
	Affinity *int    `json:"affinity"`
	Nickname *string `json:"nickname"`
}

type MoodView struct {
	affect.Description
	Baseline affect.Vector `json:"baseline"`
	Style    affect.Style  `json:"style"`
	Withdraw bool          `json:"withdrawn"`
}

type PersonalityView struct {
	Traits        traits.Traits `json:"traits"`
	Dominant      []string      `json:"dominant"`
	Directives    []string      `json:"directives"`
	PositiveRatio float64       `json:"positive_ratio"`
	TotalMessages int           `json:"total_messages"`
	ActiveDays    int           `json:"active_days"`
	TotalDays     int           `json:"total_days"`
	InactiveDays  int           `json:"consecutive_inactive_days"`
}

// Load restores every persisted record from store. Missing records keep
// their defaults; malformed ones are logged and skipped.
func (s *Session) Load(ctx context.Context, store statestore.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mood affect.State
	if s.load(ctx, store, affect.StateKey, &mood) {
		s.mood.Restore(mood)
	}
	var tr traits.State
	if s.load(ctx, store, traits.StateKey, &tr) {
		s.traits.Restore(tr)
	}
	var bond relationship.State
	if s.load(ctx, store, relationship.StateKey, &bond) {
		s.bond.Restore(bond)
	}
	var conv conversationState
	if s.load(ctx, store, StateKey, &conv) {
		s.history = trimHistory(conv.History, s.historyLimit)
		if conv.SystemPrompt != "" {
			s.systemPrompt = conv.SystemPrompt
		}
		s.day, s.dayCount = conv.Day, conv.DayCount
	}
	s.log.Info().
		Str("action", "load").
		Int("affinity", s.bond.Score()).
		Int("history", len(s.history)).
		Str("emotion", string(s.mood.Classify())).
		Strs("personality", s.traits.Dominant()).
		Msg("session restored")
}

func (s *Session) load(ctx context.Context, store statestore.Store, key string, v any) bool {
	found, err := statestore.LoadJSON(ctx, store, key, v)
	if err != nil {
		s.log.Warn().Err(err).Str("action", "load").Str("key", key).Msg("state unreadable, using defaults")
		return false
	}
	return found
}

func (s *Session) saveConversationLocked() {
	if s.persist == nil {
		return
	}
	s.persist.Save(StateKey, conversationState{
		History:      append([]Turn(nil), s.history...),
		SystemPrompt: s.customPrompt(),
		Day:          s.day,
		DayCount:     s.dayCount,
		LastUpdated:  s.now().UTC(),
	})
}

// customPrompt returns the system prompt only when it differs from the
// persona's, so persona edits take effect after a restart.
func (s *Session) customPrompt() string {
	if s.systemPrompt == s.persona.SystemPrompt {
		return ""
	}
	return s.systemPrompt
}

func trimHistory(h []Turn, limit int) []Turn {
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]Turn(nil), h...)
}
