package affect

import (
	"strings"

	"github.com/keshon/heartline/internal/lexicon"
)

// Lexical cues for turns where the model supplied no explicit mood delta.
var (
	positiveWords = lexicon.New(
		"love", "like you", "happy", "thanks", "thank you", "awesome", "amazing", "cute", "beautiful", "miss you", "hug",
		"爱", "喜欢", "开心", "谢谢", "好棒", "厉害", "可爱", "漂亮", "想你", "抱抱",
	)
	negativeWords = lexicon.New(
		"hate", "go away", "annoying", "stupid", "idiot", "ugly", "disgusting", "shut up", "get lost",
		"讨厌", "滚", "烦", "傻", "笨", "丑", "恶心", "闭嘴", "走开",
	)
	excitingWords = lexicon.New(
		"surprise", "wow", "so excited", "omg", "no way",
		"惊喜", "太棒了", "哇", "好激动", "天啊",
	)
	calmingWords = lexicon.New(
		"good night", "rest", "slowly", "take it easy", "relax",
		"晚安", "休息", "慢慢", "别急", "放松",
	)
	// Subset of positiveWords that reads as premature closeness at low affinity.
	intimacyWords = lexicon.New(
		"love", "like you", "miss you", "hug",
		"爱", "喜欢", "想你", "抱抱",
	)
)

const (
	positiveStep  = 0.15
	negativeStep  = 0.25
	excitingStep  = 0.2
	calmingStep   = 0.15
	exclaimStep   = 0.1
	lowAffinityAt = 30

	maxHeuristicP = 0.5
	maxHeuristicA = 0.4
	maxHeuristicD = 0.3
)

// AnalyzeInput derives a mood delta from lexical cues in the user's text.
// Axes that received no contribution are left nil so a neutral message does
// not pull the mood toward zero.
func AnalyzeInput(text string, relationshipScore int) Delta {
	var p, a, d float64
	var touchedP, touchedA, touchedD bool

	if n := positiveWords.Count(text); n > 0 {
		p += positiveStep * float64(n)
		touchedP = true
	}
	if n := negativeWords.Count(text); n > 0 {
		p -= negativeStep * float64(n)
		touchedP = true
	}
	if n := excitingWords.Count(text); n > 0 {
		a += excitingStep * float64(n)
		touchedA = true
	}
	if n := calmingWords.Count(text); n > 0 {
		a -= calmingStep * float64(n)
		touchedA = true
	}
	if strings.ContainsAny(text, "!！") {
		a += exclaimStep
		touchedA = true
	}

	if relationshipScore < lowAffinityAt && intimacyWords.Any(text) {
		p -= 0.1
		a += 0.15
		d -= 0.1
		touchedP, touchedA, touchedD = true, true, true
	}

	var out Delta
	if touchedP {
		v := clampRange(p, maxHeuristicP)
		out.P = &v
	}
	if touchedA {
		v := clampRange(a, maxHeuristicA)
		out.A = &v
	}
	if touchedD {
		v := clampRange(d, maxHeuristicD)
		out.D = &v
	}
	return out
}
