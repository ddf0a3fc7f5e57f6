package traits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe_DefaultsAreUnremarkable(t *testing.T) {
	m := newTestModel(nil)

	assert.Empty(t, m.Describe())
	assert.Equal(t, []string{"gentle"}, m.Dominant())
	assert.Equal(t, "", m.PromptInjection())
}

func TestDescribe_Extremes(t *testing.T) {
	m := newTestModel(nil)
	m.Restore(State{Traits: Traits{
		Independence: 20,
		Willfulness:  80,
		Sensitivity:  90,
		Security:     20,
		Affection:    90,
		Trust:        10,
	}})

	assert.Len(t, m.Describe(), 6)
	assert.Equal(t, []string{"clingy", "willful", "sensitive", "insecure", "warm", "guarded"}, m.Dominant())

	out := m.PromptInjection()
	assert.Contains(t, out, "[Personality]")
	assert.Contains(t, out, "clingy")
	assert.Contains(t, out, "slow to trust")
}

func TestDominant_Trusting(t *testing.T) {
	tr := DefaultTraits()
	tr.Trust = 75
	tr.Independence = 70
	assert.Equal(t, []string{"independent", "trusting"}, dominant(tr))
}
