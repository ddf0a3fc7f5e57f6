package lexicon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestList_WholeWords(t *testing.T) {
	l := New("hate", "rest", "cute", "like you")

	assert.Zero(t, l.Count("whatever you say"))
	assert.Zero(t, l.Count("that's an interesting restaurant"))
	assert.Zero(t, l.Count("execute the plan"))
	assert.Zero(t, l.Count("I'd like your advice"))

	assert.Equal(t, 1, l.Count("I HATE mondays"))
	assert.Equal(t, 1, l.Count("you're so cute!"))
	assert.Equal(t, 1, l.Count("i really like  you"))
	assert.Equal(t, 2, l.Count("get some rest, cute"))
}

func TestList_CJKSubstring(t *testing.T) {
	l := New("喜欢", "晚安")
	assert.True(t, l.Any("我好喜欢你"))
	assert.Equal(t, 2, l.Count("晚安，喜欢你"))
	assert.False(t, l.Any("你好"))
}

func TestList_Empty(t *testing.T) {
	assert.False(t, New().Any("anything"))
	assert.False(t, New("", "  ").Any("anything"))
}
