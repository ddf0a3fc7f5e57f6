package traits

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPersister struct {
	n    int
	last any
}

func (c *countingPersister) Save(_ string, v any) {
	c.n++
	c.last = v
}

func newTestModel(p Persister) *Model {
	m := NewModel(p, zerolog.Nop())
	m.SetClock(func() time.Time { return time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC) })
	return m
}

func TestUpdateDailyStats_ThreeInactiveDays(t *testing.T) {
	m := newTestModel(nil)

	require.True(t, m.UpdateDailyStats("2026-05-01", 0))
	require.True(t, m.UpdateDailyStats("2026-05-02", 0))
	require.True(t, m.UpdateDailyStats("2026-05-03", 0))

	got := m.Traits()
	assert.Equal(t, 3, m.Stats().ConsecutiveInactiveDays)
	assert.InDelta(t, 58.82, got.Independence, 1e-9)
	assert.InDelta(t, 47.65192, got.Security, 1e-9)
	assert.InDelta(t, 44.12, got.Affection, 1e-9)

	// Further inactive days apply a single step each.
	m.UpdateDailyStats("2026-05-04", 0)
	assert.InDelta(t, 61.82+(50-61.82)*0.02, m.Traits().Independence, 1e-9)
}

func TestUpdateDailyStats_SameDateIsNoop(t *testing.T) {
	p := &countingPersister{}
	m := newTestModel(p)

	assert.True(t, m.UpdateDailyStats("2026-05-01", 4))
	before := m.Traits()
	assert.False(t, m.UpdateDailyStats("2026-05-01", 9))

	assert.Equal(t, before, m.Traits())
	assert.Equal(t, 1, m.Stats().TotalDays)
	assert.Equal(t, 1, p.n)
}

func TestUpdateDailyStats_ActiveDayResetsStreak(t *testing.T) {
	m := newTestModel(nil)
	m.UpdateDailyStats("2026-05-01", 0)
	m.UpdateDailyStats("2026-05-02", 0)
	m.UpdateDailyStats("2026-05-03", 2)

	s := m.Stats()
	assert.Equal(t, 0, s.ConsecutiveInactiveDays)
	assert.Equal(t, 1, s.ActiveDays)
	assert.Equal(t, 3, s.TotalDays)
}

func TestMeanReversion_ConvergesTowardMidpoint(t *testing.T) {
	m := newTestModel(nil)
	m.SetRules(nil)
	m.Restore(State{Traits: Traits{Independence: 100, Willfulness: 0, Sensitivity: 90, Security: 10, Affection: 100, Trust: 0}})

	prev := m.Traits()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		m.UpdateDailyStats(start.AddDate(0, 0, i).Format(DateLayout), 1)
		cur := m.Traits()
		assert.Less(t, cur.Independence, prev.Independence)
		assert.Greater(t, cur.Willfulness, prev.Willfulness)
		prev = cur
	}

	assert.InDelta(t, 50, prev.Independence, 7)
	assert.InDelta(t, 50, prev.Trust, 7)
	assert.Greater(t, prev.Independence, 50.0)
}

func TestDrift_AlwaysPositiveRaisesWillfulness(t *testing.T) {
	m := newTestModel(nil)
	for i := 0; i < 21; i++ {
		m.RecordInteraction(0.6, false)
	}
	m.UpdateDailyStats("2026-05-01", 3)

	assert.InDelta(t, 32+(50-32)*0.02, m.Traits().Willfulness, 1e-9)
}

func TestDrift_FrequentConflict(t *testing.T) {
	m := newTestModel(nil)
	m.RecordInteraction(-0.5, true)
	m.RecordInteraction(-0.5, true)
	m.RecordInteraction(0, false)
	m.RecordInteraction(0, false)
	m.RecordInteraction(0, false)
	m.UpdateDailyStats("2026-05-01", 5)

	got := m.Traits()
	assert.InDelta(t, 53+(50-53)*0.02, got.Sensitivity, 1e-9)
	assert.InDelta(t, 58+(50-58)*0.02, got.Security, 1e-9)
}

func TestRecordInteraction_Counts(t *testing.T) {
	m := newTestModel(nil)
	m.RecordInteraction(0.31, false)
	m.RecordInteraction(-0.31, true)
	m.RecordInteraction(0.3, false)

	s := m.Stats()
	assert.Equal(t, 3, s.TotalMessages)
	assert.Equal(t, 1, s.PositiveCount)
	assert.Equal(t, 1, s.NegativeCount)
	assert.Equal(t, 1, s.ConflictCount)
	assert.Len(t, s.SentimentHistory, 3)
	assert.Equal(t, DefaultTraits(), m.Traits())
}

func TestRecordInteraction_SentimentLogIsBounded(t *testing.T) {
	m := newTestModel(nil)
	for i := 0; i < SentimentLogLimit+20; i++ {
		m.RecordInteraction(0, false)
	}
	assert.Len(t, m.Stats().SentimentHistory, SentimentLogLimit)
}

func TestTraitsStayInRange(t *testing.T) {
	m := newTestModel(nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 200; i++ {
		m.RecordInteraction(-1, true)
		m.UpdateDailyStats(start.AddDate(0, 0, i).Format(DateLayout), 0)
		tr := m.Traits()
		tr.each(func(v *float64) {
			require.GreaterOrEqual(t, *v, 0.0)
			require.LessOrEqual(t, *v, 100.0)
		})
	}
	assert.Len(t, m.Stats().DailyMessageCounts, DailyLogLimit)
}

func TestPositiveRatio_NoSamples(t *testing.T) {
	assert.Equal(t, 0.5, Stats{}.PositiveRatio())
}

func TestSetDayCount_FollowsTraffic(t *testing.T) {
	p := &countingPersister{}
	m := newTestModel(p)

	require.True(t, m.UpdateDailyStats("2026-05-04", 1))
	assert.True(t, m.SetDayCount("2026-05-04", 18))
	assert.False(t, m.SetDayCount("2026-05-04", 18))
	assert.False(t, m.SetDayCount("2026-05-05", 3))

	logs := m.Stats().DailyMessageCounts
	require.Len(t, logs, 1)
	assert.Equal(t, 18, logs[0].Count)
	assert.Equal(t, 2, p.n)
}
