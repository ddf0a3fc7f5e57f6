// Package lexicon matches fixed cue phrases in free text. Latin-script cues
// match whole words only, so "hate" does not fire inside "whatever". Cues
// containing CJK characters match anywhere, since those scripts do not put
// spaces between words.
package lexicon

import (
	"regexp"
	"strings"
	"unicode"
)

type cue struct {
	re  *regexp.Regexp
	sub string
}

func (c cue) in(text, lower string) bool {
	if c.re != nil {
		return c.re.MatchString(text)
	}
	return strings.Contains(lower, c.sub)
}

// List is an immutable set of cues, safe for concurrent use.
type List struct {
	cues []cue
}

func New(phrases ...string) List {
	l := List{cues: make([]cue, 0, len(phrases))}
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !isASCII(p) {
			l.cues = append(l.cues, cue{sub: p})
			continue
		}
		words := strings.Fields(p)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		l.cues = append(l.cues, cue{re: regexp.MustCompile(`(?i)\b` + strings.Join(words, `\s+`) + `\b`)})
	}
	return l
}

// Count reports how many distinct cues occur in text.
func (l List) Count(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, c := range l.cues {
		if c.in(text, lower) {
			n++
		}
	}
	return n
}

func (l List) Any(text string) bool {
	lower := strings.ToLower(text)
	for _, c := range l.cues {
		if c.in(text, lower) {
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
