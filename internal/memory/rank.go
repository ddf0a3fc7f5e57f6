package memory

import (
	"math"
	"sort"
	"strings"

	"github.com/keshon/heartline/internal/affect"
)

const (
	semanticThreshold = 0.3
	ruminationWeight  = 0.4
	resonanceWeight   = 0.2
	maxMoodDistance   = 6.0
)

type scored struct {
	text     string
	score    float64
	semantic float64
}

// rankSemantic scores every entry that has an embedding. ok is false when no
// entry carries one, which sends the caller to the keyword path.
func rankSemantic(entries []Entry, query []float32, mood *affect.Vector, limit int) ([]string, bool) {
	weight := resonanceWeight
	if mood != nil && mood.P < 0 {
		weight = ruminationWeight
	}

	var candidates []scored
	for _, e := range entries {
		if len(e.Embedding) == 0 {
			continue
		}
		sem := cosineSimilarity(query, e.Embedding)
		emo := 0.0
		if mood != nil && e.Mood != nil {
			emo = moodSimilarity(*mood, *e.Mood)
		}
		candidates = append(candidates, scored{text: e.Text, score: sem + emo*weight, semantic: sem})
	}
	if len(candidates) == 0 {
		return nil, false
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if c.semantic > semanticThreshold {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })
	return topTexts(kept, limit), true
}

// rankKeyword counts how many distinct query tokens each entry contains.
func rankKeyword(entries []Entry, query string, limit int) []string {
	tokens := uniqueTokens(query)
	if len(tokens) == 0 {
		return nil
	}

	var candidates []scored
	for _, e := range entries {
		text := strings.ToLower(e.Text)
		n := 0
		for _, tok := range tokens {
			if strings.Contains(text, tok) {
				n++
			}
		}
		if n > 0 {
			candidates = append(candidates, scored{text: e.Text, score: float64(n)})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	return topTexts(candidates, limit)
}

func uniqueTokens(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range strings.Fields(strings.ToLower(s)) {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func topTexts(items []scored, limit int) []string {
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.text
	}
	return out
}

// moodSimilarity maps PAD distance onto [0,1].
func moodSimilarity(a, b affect.Vector) float64 {
	d := math.Abs(a.P-b.P) + math.Abs(a.A-b.A) + math.Abs(a.D-b.D)
	return 1 - d/maxMoodDistance
}

// cosineSimilarity returns 0 for empty, mismatched or zero-magnitude vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
