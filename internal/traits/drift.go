package traits

const (
	inactivityStreak  = 3
	meanReversion     = 0.02
	traitMidpoint     = 50.0
	recentWindowDays  = 7
	highVolumeAverage = 15
	steadyAverage     = 5
)

// Rule is one drift rule, evaluated once per closed day.
type Rule struct {
	Name  string
	When  func(Stats) bool
	Apply func(*Traits, Stats)
}

// DefaultRules returns the drift rules in evaluation order. Each rule is
// independent; several may fire on the same day.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "long_absence",
			When: func(s Stats) bool { return s.ConsecutiveInactiveDays >= inactivityStreak },
			Apply: func(t *Traits, s Stats) {
				// The day the streak reaches the threshold settles all of it.
				steps := 1
				if s.ConsecutiveInactiveDays == inactivityStreak {
					steps = inactivityStreak
				}
				for i := 0; i < steps; i++ {
					t.Independence = clamp100(t.Independence + 3)
					t.Security = clamp100(t.Security - 4)
					t.Affection = clamp100(t.Affection - 2)
				}
			},
		},
		{
			Name: "always_positive",
			When: func(s Stats) bool { return s.PositiveRatio() > 0.85 && s.TotalMessages > 20 },
			Apply: func(t *Traits, _ Stats) {
				t.Willfulness = clamp100(t.Willfulness + 2)
			},
		},
		{
			Name: "frequent_conflict",
			When: func(s Stats) bool { return s.ConflictRate() > 0.2 },
			Apply: func(t *Traits, _ Stats) {
				t.Sensitivity = clamp100(t.Sensitivity + 3)
				t.Security = clamp100(t.Security - 2)
			},
		},
		{
			Name: "high_volume",
			When: func(s Stats) bool { return s.RecentAverage(recentWindowDays) > highVolumeAverage },
			Apply: func(t *Traits, _ Stats) {
				t.Affection = clamp100(t.Affection + 2)
				t.Security = clamp100(t.Security + 1)
				t.Trust = clamp100(t.Trust + 1)
			},
		},
		{
			Name: "steady_positive",
			When: func(s Stats) bool {
				return s.PositiveRatio() > 0.6 && s.RecentAverage(recentWindowDays) > steadyAverage
			},
			Apply: func(t *Traits, _ Stats) {
				t.Trust = clamp100(t.Trust + 1)
			},
		},
	}
}

func (m *Model) drift() {
	s := m.state.Stats
	t := m.state.Traits

	var fired []string
	for _, r := range m.rules {
		if r.When(s) {
			r.Apply(&t, s)
			fired = append(fired, r.Name)
		}
	}

	// Always runs, whatever fired above.
	t.each(func(v *float64) {
		*v += (traitMidpoint - *v) * meanReversion
	})
	t.clamp()
	m.state.Traits = t

	m.log.Info().
		Str("action", "drift").
		Int("inactive_days", s.ConsecutiveInactiveDays).
		Float64("positive_ratio", s.PositiveRatio()).
		Float64("avg_daily", s.RecentAverage(recentWindowDays)).
		Strs("rules", fired).
		Msg("personality drift computed")
}
