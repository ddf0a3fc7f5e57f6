package companion

import (
	"fmt"
	"strings"
	"time"

	"github.com/keshon/heartline/internal/ai"
	"github.com/keshon/heartline/internal/relationship"
	"github.com/keshon/heartline/internal/tasks"
)

// Character budgets for the prompt sections. Roughly four characters a token.
const (
	maxMemoryChars  = 1600
	maxHistoryChars = 6000
	maxTaskTitles   = 3
	proactiveTail   = 10
	timeLayout      = "Monday, January 2, 2006 15:04"
)

const responseInstructions = `[Response Instructions]
1. Inner monologue:
   - Start your response with a <think> tag.
   - Inside <think>, read the user's message through your current mood and personality.
   - Decide how you feel about it. The user never sees this part.
2. Reply:
   - After </think>, write your actual reply to the user.
   - Reply style: %s
3. Metadata:
   - End with <metadata>{"emotion": "label", "affinity_change": number, "emotion_delta": {"P": value, "A": value, "D": value}}</metadata>
   - affinity_change: -10 to 5, and never above 0 when you refuse or feel upset. Write plain numbers without a + sign.
   - emotion_delta: each axis between -0.5 and 0.5.
   - Add "nickname" only when the user asks you to call them something new.`

type chatContext struct {
	Now        time.Time
	Nickname   string
	Score      int
	Level      relationship.Level
	Pending    []tasks.Task
	Summary    tasks.Summary
	Memory     string
	MoodBlock  string
	TraitBlock string
	StyleGuide string
}

func (c chatContext) render() string {
	var b strings.Builder
	b.WriteString("[System Context]\n")
	fmt.Fprintf(&b, "- Current time: %s\n", c.Now.Format(timeLayout))
	fmt.Fprintf(&b, "- User nickname: %s\n", c.Nickname)
	fmt.Fprintf(&b, "- Current affinity: %d/100\n", c.Score)
	fmt.Fprintf(&b, "- Relationship: %s\n", c.Level)
	fmt.Fprintf(&b, "- Tasks: %s\n", taskLine(c.Pending, c.Summary))
	if c.Memory != "" {
		fmt.Fprintf(&b, "- Relevant memories:\n%s\n", TrimToChars(c.Memory, maxMemoryChars))
	}
	b.WriteString("\n")
	b.WriteString(c.MoodBlock)
	if c.TraitBlock != "" {
		b.WriteString("\n\n")
		b.WriteString(c.TraitBlock)
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, responseInstructions, c.StyleGuide)
	return b.String()
}

func taskLine(pending []tasks.Task, sum tasks.Summary) string {
	line := fmt.Sprintf("the user has %d pending task(s).", sum.Pending)
	if len(pending) == 0 {
		return line
	}
	n := min(len(pending), maxTaskTitles)
	titles := make([]string, 0, n)
	for _, t := range pending[:n] {
		titles = append(titles, t.Title)
	}
	return line + " Pending: " + strings.Join(titles, ", ")
}

// chatMessages assembles system prompt, trimmed history, the per-turn context
// block and the user's message.
func chatMessages(system string, history []Turn, context, userText string) []ai.Message {
	msgs := []ai.Message{{Role: ai.RoleSystem, Content: system}}
	msgs = append(msgs, historyMessages(history, maxHistoryChars)...)
	msgs = append(msgs,
		ai.Message{Role: ai.RoleSystem, Content: context},
		ai.Message{Role: ai.RoleUser, Content: userText},
	)
	return msgs
}

// historyMessages keeps the newest turns that fit in maxChars.
func historyMessages(history []Turn, maxChars int) []ai.Message {
	var used int
	start := len(history)
	for start > 0 {
		n := len(history[start-1].Content)
		if used+n > maxChars {
			break
		}
		used += n
		start--
	}
	out := make([]ai.Message, 0, len(history)-start)
	for _, t := range history[start:] {
		out = append(out, ai.Message{Role: t.Role, Content: t.Content})
	}
	return out
}

// TrimToChars truncates s to maxChars runes, cutting at a word boundary when
// one is close.
func TrimToChars(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	out := string(r[:maxChars])
	lastSpace := strings.LastIndex(out, " ")
	if lastSpace > len(out)/2 {
		return strings.TrimSpace(out[:lastSpace])
	}
	return strings.TrimSpace(out)
}
