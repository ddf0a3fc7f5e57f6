package relationship

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	StateKey        = "bond"
	DefaultScore    = 35
	DefaultNickname = "darling"
)

type Level string

const (
	LevelStranger Level = "stranger"
	LevelFriendly Level = "friendly"
	LevelClose    Level = "close"
	LevelFlirty   Level = "flirty"
	LevelLover    Level = "lover"
)

// LevelFor maps a score to its relationship band.
func LevelFor(score int) Level {
	switch {
	case score <= 20:
		return LevelStranger
	case score <= 40:
		return LevelFriendly
	case score <= 60:
		return LevelClose
	case score <= 80:
		return LevelFlirty
	default:
		return LevelLover
	}
}

// State is the persisted bond.
type State struct {
	Score       int       `json:"score"`
	Nickname    string    `json:"nickname"`
	LastUpdated time.Time `json:"last_updated"`
}

type Persister interface {
	Save(key string, v any)
}

// Bond holds the affinity score and the name the companion calls the user.
// Not safe for concurrent use.
type Bond struct {
	state           State
	defaultNickname string
	persist         Persister
	now             func() time.Time
	log             zerolog.Logger
}

func NewBond(nickname string, persist Persister, log zerolog.Logger) *Bond {
	if nickname == "" {
		nickname = DefaultNickname
	}
	return &Bond{
		state:           State{Score: DefaultScore, Nickname: nickname},
		defaultNickname: nickname,
		persist:         persist,
		now:             time.Now,
		log:             log.With().Str("component", "bond").Logger(),
	}
}

func (b *Bond) SetClock(now func() time.Time) { b.now = now }

func (b *Bond) Restore(st State) {
	st.Score = clampScore(st.Score)
	if st.Nickname == "" {
		st.Nickname = b.defaultNickname
	}
	b.state = st
}

func (b *Bond) Score() int { return b.state.Score }
func (b *Bond) Nickname() string { return b.state.Nickname }
func (b *Bond) Level() Level { return LevelFor(b.state.Score) }
func (b *Bond) State() State { return b.state }

// Apply adds an already-validated delta and returns the new score.
func (b *Bond) Apply(delta int) int {
	if delta == 0 {
		return b.state.Score
	}
	before := b.state.Score
	b.state.Score = clampScore(before + delta)
	b.log.Info().
		Str("action", "affinity").
		Int("before", before).
		Int("delta", delta).
		Int("after", b.state.Score).
		Str("level", string(b.Level())).
		Msg("affinity changed")
	b.save()
	return b.state.Score
}

// Set overwrites the score, clamped to [0, 100].
func (b *Bond) Set(score int) {
	b.state.Score = clampScore(score)
	b.save()
}

// SetNickname ignores empty names.
func (b *Bond) SetNickname(name string) {
	if name == "" || name == b.state.Nickname {
		return
	}
	b.state.Nickname = name
	b.save()
}

// Reset returns to the starting score. The nickname is kept.
func (b *Bond) Reset() {
	b.state.Score = DefaultScore
	b.save()
}

func (b *Bond) save() {
	b.state.LastUpdated = b.now().UTC()
	if b.persist != nil {
		b.persist.Save(StateKey, b.state)
	}
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
