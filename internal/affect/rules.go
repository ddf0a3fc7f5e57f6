package affect

import (
	"fmt"
	"strings"
)

// Label is a discrete mood name.
type Label string

const (
	LabelAngry     Label = "angry"
	LabelIrritable Label = "irritable"
	LabelDepressed Label = "depressed"
	LabelAnxious   Label = "anxious"
	LabelDown      Label = "down"
	LabelAnnoyed   Label = "annoyed"
	LabelEcstatic  Label = "ecstatic"
	LabelExcited   Label = "excited"
	LabelContent   Label = "content"
	LabelHappy     Label = "happy"
	LabelCoy       Label = "coy"
	LabelTsundere  Label = "tsundere"
	LabelAssertive Label = "assertive"
	LabelDependent Label = "dependent"
	LabelSleepy    Label = "sleepy"
	LabelWired     Label = "wired"
	LabelCalm      Label = "calm"
)

type labelRule struct {
	label Label
	when  func(Vector) bool
}

// Evaluated top to bottom; the first match wins.
var labelRules = []labelRule{
	{LabelAngry, func(v Vector) bool { return v.P < -0.6 && v.A > 0.4 }},
	{LabelIrritable, func(v Vector) bool { return v.P < -0.5 && v.A > 0.2 && v.D > 0.3 }},
	{LabelDepressed, func(v Vector) bool { return v.P < -0.4 && v.A < -0.2 }},
	{LabelAnxious, func(v Vector) bool { return v.P < -0.3 && v.A > 0.1 && v.D < -0.2 }},
	{LabelDown, func(v Vector) bool { return v.P < -0.2 && v.A < 0.1 }},
	{LabelAnnoyed, func(v Vector) bool { return v.P < 0 && v.A > 0.3 }},

	{LabelEcstatic, func(v Vector) bool { return v.P > 0.6 && v.A > 0.5 }},
	{LabelExcited, func(v Vector) bool { return v.P > 0.5 && v.A > 0.3 }},
	{LabelContent, func(v Vector) bool { return v.P > 0.4 && v.A < 0 }},
	{LabelHappy, func(v Vector) bool { return v.P > 0.3 && v.A > 0.2 }},
	{LabelCoy, func(v Vector) bool { return v.P > 0.2 && v.D < -0.3 }},
	{LabelTsundere, func(v Vector) bool { return v.P > 0.1 && v.D > 0.3 }},

	{LabelAssertive, func(v Vector) bool { return v.D > 0.4 }},
	{LabelDependent, func(v Vector) bool { return v.D < -0.4 }},
	{LabelSleepy, func(v Vector) bool { return v.A < -0.3 }},
	{LabelWired, func(v Vector) bool { return v.A > 0.4 }},
}

// ClassifyVector maps a vector to exactly one label.
func ClassifyVector(v Vector) Label {
	for _, r := range labelRules {
		if r.when(v) {
			return r.label
		}
	}
	return LabelCalm
}

// Classify labels the current mood.
func (e *Engine) Classify() Label {
	return ClassifyVector(e.state.Current)
}

// Emoji usage levels for Style.EmojiFrequency.
const (
	EmojiHigh   = "high"
	EmojiMedium = "medium"
	EmojiLow    = "low"
	EmojiNone   = "none"
)

// Style is a response-style directive for the completion context.
type Style struct {
	Name           string `json:"style"`
	Guide          string `json:"guide"`
	Punctuation    string `json:"punctuation"`
	EmojiFrequency string `json:"emoji_frequency"`
}

type styleRule struct {
	style Style
	when  func(Vector) bool
}

var neutralStyle = Style{
	Name:           "neutral",
	Guide:          "Speak normally, with the occasional emoticon.",
	Punctuation:    ". ~",
	EmojiFrequency: EmojiMedium,
}

var styleRules = []styleRule{
	{Style{
		Name:           "excited",
		Guide:          "Use exclamation marks and cute emoji! Keep sentences short and bouncy! (≧▽≦)/",
		Punctuation:    "! ~ ♪",
		EmojiFrequency: EmojiHigh,
	}, func(v Vector) bool { return v.P > 0.4 && v.A > 0.4 }},
	{Style{
		Name:           "content",
		Guide:          "Gentle and calm tone, with a warm emoticon now and then (◕‿◕)",
		Punctuation:    "~ .",
		EmojiFrequency: EmojiMedium,
	}, func(v Vector) bool { return v.P > 0.3 && v.A < 0 }},
	{Style{
		Name:           "depressed",
		Guide:          "Short replies... lots of ellipses... no emoji... low, quiet tone.",
		Punctuation:    "...",
		EmojiFrequency: EmojiNone,
	}, func(v Vector) bool { return v.P < -0.3 && v.A < -0.2 }},
	{Style{
		Name:           "angry",
		Guide:          "Cold or prickly. Rhetorical questions and sarcasm are fine. A reply may be as short as a single period.",
		Punctuation:    ". ?",
		EmojiFrequency: EmojiNone,
	}, func(v Vector) bool { return v.P < -0.3 && v.A > 0.3 }},
	{Style{
		Name:           "tsundere",
		Guide:          "Act a little haughty, dismissive on the surface but clearly caring underneath.",
		Punctuation:    "! hmph",
		EmojiFrequency: EmojiLow,
	}, func(v Vector) bool { return v.D > 0.4 }},
	{Style{
		Name:           "clingy",
		Guide:          "Act dependent and clingy, with a pouty, affectionate tone (◕ᴗ◕✿)",
		Punctuation:    "~",
		EmojiFrequency: EmojiHigh,
	}, func(v Vector) bool { return v.D < -0.4 }},
}

// StyleFor maps a vector to a response style, independent of its label.
func StyleFor(v Vector) Style {
	for _, r := range styleRules {
		if r.when(v) {
			return r.style
		}
	}
	return neutralStyle
}

// Style returns the response style for the current mood.
func (e *Engine) Style() Style {
	return StyleFor(e.state.Current)
}

// Description is a human-readable summary of the mood.
type Description struct {
	Label   Label  `json:"label"`
	Summary string `json:"summary"`
	Vector
}

// Describe returns the label plus one coarse word per axis.
func (e *Engine) Describe() Description {
	v := e.state.Current
	p := axisWord(v.P, "pleased", "displeased", "even")
	a := axisWord(v.A, "lively", "sluggish", "steady")
	d := axisWord(v.D, "dominant", "yielding", "neutral")
	return Description{
		Label:   ClassifyVector(v),
		Summary: p + ", " + a + ", " + d,
		Vector:  v,
	}
}

func axisWord(x float64, high, low, mid string) string {
	switch {
	case x > 0.3:
		return high
	case x < -0.3:
		return low
	default:
		return mid
	}
}

// PromptInjection renders the mood and style as a context block.
func (e *Engine) PromptInjection() string {
	desc := e.Describe()
	style := e.Style()
	emoji := "use moderately"
	switch style.EmojiFrequency {
	case EmojiHigh:
		emoji = "use often"
	case EmojiNone:
		emoji = "do not use"
	}
	var b strings.Builder
	b.WriteString("[Emotional State]\n")
	fmt.Fprintf(&b, "- Mood: %s\n", desc.Label)
	fmt.Fprintf(&b, "- P(pleasure): %.2f | A(arousal): %.2f | D(dominance): %.2f\n", desc.P, desc.A, desc.D)
	fmt.Fprintf(&b, "- Overall: %s\n\n", desc.Summary)
	b.WriteString("[Response Style]\n")
	b.WriteString(style.Guide + "\n")
	fmt.Fprintf(&b, "- Punctuation: %s\n", style.Punctuation)
	fmt.Fprintf(&b, "- Emoji: %s", emoji)
	return b.String()
}
