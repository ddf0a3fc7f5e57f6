package affect

import "time"

// Vector is a point in Pleasure-Arousal-Dominance space. Every axis stays within [-1, 1].
type Vector struct {
	P float64 `json:"P"`
	A float64 `json:"A"`
	D float64 `json:"D"`
}

// Delta is a partial change request. Nil axes are left untouched by ApplyDelta.
type Delta struct {
	P *float64 `json:"P,omitempty"`
	A *float64 `json:"A,omitempty"`
	D *float64 `json:"D,omitempty"`
}

// Full returns a delta that sets all three axes.
func Full(p, a, d float64) Delta {
	return Delta{P: &p, A: &a, D: &d}
}

// IsZero reports whether no axis is supplied.
func (d Delta) IsZero() bool {
	return d.P == nil && d.A == nil && d.D == nil
}

// Values returns the delta as a vector, treating missing axes as 0.
func (d Delta) Values() Vector {
	var v Vector
	if d.P != nil {
		v.P = *d.P
	}
	if d.A != nil {
		v.A = *d.A
	}
	if d.D != nil {
		v.D = *d.D
	}
	return v
}

// Transition is one entry of the diagnostic history ring.
type Transition struct {
	Timestamp time.Time `json:"timestamp"`
	Before    Vector    `json:"before"`
	Delta     Delta     `json:"delta"`
	After     Vector    `json:"after"`
}

// State is the persisted shape of the mood engine.
type State struct {
	Current     Vector       `json:"state"`
	Baseline    Vector       `json:"baseline"`
	History     []Transition `json:"history"`
	LastUpdated time.Time    `json:"last_updated"`
}

// DefaultBaseline is a slightly upbeat, slightly active, slightly yielding temperament.
func DefaultBaseline() Vector {
	return Vector{P: 0.3, A: 0.1, D: -0.1}
}

func clampUnit(x float64) float64 {
	if x < -1 {
		return -1
	}
	if x > 1 {
		return 1
	}
	return x
}

func clampRange(x, limit float64) float64 {
	if x < -limit {
		return -limit
	}
	if x > limit {
		return limit
	}
	return x
}

func (v Vector) clamped() Vector {
	return Vector{P: clampUnit(v.P), A: clampUnit(v.A), D: clampUnit(v.D)}
}
