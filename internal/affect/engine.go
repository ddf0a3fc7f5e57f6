package affect

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	HistoryLimit        = 50
	DefaultInertia      = 0.7
	DefaultDecayRate    = 0.08
	WithdrawalDecayRate = 0.05
	WithdrawThreshold   = -0.75
)

// StateKey is the persistence key for the mood engine.
const StateKey = "affect"

// Persister receives a snapshot after every mutation. Save must not block on I/O.
type Persister interface {
	Save(key string, v any)
}

// Engine owns the mood vector. It is not safe for concurrent use; the owning
// session serializes access.
type Engine struct {
	state   State
	persist Persister
	now     func() time.Time
	log     zerolog.Logger
}

// NewEngine creates an engine resting at baseline. persist may be nil.
func NewEngine(baseline Vector, persist Persister, log zerolog.Logger) *Engine {
	baseline = baseline.clamped()
	return &Engine{
		state: State{
			Current:  baseline,
			Baseline: baseline,
		},
		persist: persist,
		now:     time.Now,
		log:     log.With().Str("component", "affect").Logger(),
	}
}

// SetClock overrides the time source used for history timestamps.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Restore replaces the state with a loaded snapshot, clamping out-of-range values
// and trimming history.
func (e *Engine) Restore(st State) {
	st.Current = st.Current.clamped()
	st.Baseline = st.Baseline.clamped()
	if len(st.History) > HistoryLimit {
		st.History = st.History[len(st.History)-HistoryLimit:]
	}
	e.state = st
}

// ApplyDelta blends each supplied axis into the current state:
// new = clamp(old*inertia + delta*(1-inertia)).
func (e *Engine) ApplyDelta(d Delta, inertia float64) Vector {
	if inertia < 0 {
		inertia = 0
	}
	if inertia > 1 {
		inertia = 1
	}
	before := e.state.Current
	cur := before
	if d.P != nil {
		cur.P = clampUnit(cur.P*inertia + *d.P*(1-inertia))
	}
	if d.A != nil {
		cur.A = clampUnit(cur.A*inertia + *d.A*(1-inertia))
	}
	if d.D != nil {
		cur.D = clampUnit(cur.D*inertia + *d.D*(1-inertia))
	}
	e.state.Current = cur

	e.state.History = append(e.state.History, Transition{
		Timestamp: e.now(),
		Before:    before,
		Delta:     d,
		After:     cur,
	})
	if len(e.state.History) > HistoryLimit {
		e.state.History = e.state.History[len(e.state.History)-HistoryLimit:]
	}

	dv := d.Values()
	e.log.Debug().
		Str("action", "apply_delta").
		Float64("dP", dv.P).Float64("dA", dv.A).Float64("dD", dv.D).
		Float64("P", cur.P).Float64("A", cur.A).Float64("D", cur.D).
		Msg("mood delta applied")

	e.save()
	return cur
}

// Decay pulls every axis toward the baseline by rate of the remaining gap.
// Dominance moves at half the rate.
func (e *Engine) Decay(rate float64) Vector {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	cur, base := e.state.Current, e.state.Baseline
	cur.P += (base.P - cur.P) * rate
	cur.A += (base.A - cur.A) * rate
	cur.D += (base.D - cur.D) * rate * 0.5
	e.state.Current = cur.clamped()
	e.save()
	return e.state.Current
}

// ShouldWithdraw reports whether the character refuses to answer this turn.
func (e *Engine) ShouldWithdraw() bool {
	return e.state.Current.P < WithdrawThreshold
}

// Withdraw performs the small recovery step that accompanies a refused turn.
func (e *Engine) Withdraw() Vector {
	e.log.Info().
		Str("action", "withdraw").
		Float64("P", e.state.Current.P).
		Msg("mood too low, declining to reply")
	return e.Decay(WithdrawalDecayRate)
}

// SetState overwrites the supplied axes directly, bypassing inertia.
func (e *Engine) SetState(d Delta) Vector {
	if d.P != nil {
		e.state.Current.P = clampUnit(*d.P)
	}
	if d.A != nil {
		e.state.Current.A = clampUnit(*d.A)
	}
	if d.D != nil {
		e.state.Current.D = clampUnit(*d.D)
	}
	e.save()
	return e.state.Current
}

// Reset returns the mood to baseline and drops the history.
func (e *Engine) Reset() {
	e.state.Current = e.state.Baseline
	e.state.History = nil
	e.save()
}

// Snapshot returns the current vector.
func (e *Engine) Snapshot() Vector {
	return e.state.Current
}

// Baseline returns the resting temperament.
func (e *Engine) Baseline() Vector {
	return e.state.Baseline
}

// State returns a copy of the persisted shape.
func (e *Engine) State() State {
	st := e.state
	st.History = append([]Transition(nil), e.state.History...)
	return st
}

func (e *Engine) save() {
	e.state.LastUpdated = e.now().UTC()
	if e.persist == nil {
		return
	}
	e.persist.Save(StateKey, e.State())
}
