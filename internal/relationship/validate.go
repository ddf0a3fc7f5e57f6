// Package relationship tracks the affinity score between the companion and the
// user and arbitrates the score changes proposed by the language model.
package relationship

import (
	"math"

	"github.com/keshon/heartline/internal/lexicon"
)

const maxDelta = 10

// Phrases in the companion's reply that signal she is pulling away.
var rejectionMarkers = lexicon.New(
	"too soon", "we just met", "barely know", "confused", "step back", "keep some distance", "awkward", "stranger", "strangers",
	"不太合适", "刚认识", "困惑", "后退", "陌生", "不熟", "保持距离", "尴尬",
)

// Phrases in the user's message that presume closeness.
var intimacyMarkers = lexicon.New(
	"love you", "kiss", "hug me", "babe", "wife", "husband", "like you", "miss you",
	"爱你", "亲亲", "抱抱", "么么", "老婆", "老公", "喜欢你", "想你",
)

// Validate arbitrates a proposed affinity change against the exchange that
// produced it. Rules run in order:
//
//  1. clamp to [-10, 10]
//  2. a positive change is zeroed when the reply shows rejection
//  3. at score <= 20, intimacy without rejection costs at least one point
//  4. below score 10, positive changes are scaled by 0.3
func Validate(raw int, userText, replyText string, score int) int {
	delta := raw
	if delta > maxDelta {
		delta = maxDelta
	}
	if delta < -maxDelta {
		delta = -maxDelta
	}

	rejected := rejectionMarkers.Any(replyText)
	if rejected && delta > 0 {
		delta = 0
	}

	if score <= 20 && !rejected && intimacyMarkers.Any(userText) {
		if delta > -1 {
			delta = -1
		}
	}

	if score < 10 && delta > 0 {
		delta = int(math.Floor(float64(delta) * 0.3))
	}
	return delta
}
