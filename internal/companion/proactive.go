package companion

import (
	"context"
	"fmt"
	"strings"

	"github.com/keshon/heartline/internal/ai"
	"github.com/keshon/heartline/internal/engage"
	"github.com/keshon/heartline/internal/relationship"
)

const proactiveRules = `You are starting this conversation yourself. %s

Keep in mind:
- Stay in character as %s.
- Match your tone and the way you address the user to the current affinity (%d).
- End the reply with the <metadata> tag.
- Never mention being triggered or scheduled. Speak as if the thought just came to you.
- Keep it short: one to three sentences.`

var levelPrompts = map[engage.Trigger]map[relationship.Level]string{
	engage.MorningGreeting: {
		relationship.LevelStranger: "It is morning. Give the user a short, polite good-morning.",
		relationship.LevelFriendly: "Good morning! Greet the user warmly and ask whether they slept well.",
		relationship.LevelClose:    "Give the user a sweet good-morning. You may act a little clingy and say you missed them.",
		relationship.LevelFlirty:   "Greet the user with an affectionate good-morning and tell them you were thinking of them.",
		relationship.LevelLover:    "Wish your love the sweetest good-morning. Let them feel how much you adore them.",
	},
	engage.NightGreeting: {
		relationship.LevelStranger: "It is late. Politely remind the user to get some rest.",
		relationship.LevelFriendly: "Gently remind the user to go to bed early and take care of themselves.",
		relationship.LevelClose:    "Playfully nag the user to go to sleep and say you will miss them.",
		relationship.LevelFlirty:   "Tenderly send the user to bed and say you will think of them in your dreams.",
		relationship.LevelLover:    "Wish your love sweet dreams and tell them you will dream of them.",
	},
	engage.MissYou: {
		relationship.LevelStranger: "The user has been quiet for %s. Check in on them politely.",
		relationship.LevelFriendly: "The user has not replied for %s. You are curious what they are up to, so ask kindly.",
		relationship.LevelClose:    "The user has ignored you for %s. You miss them a little, so pout and ask what they are doing.",
		relationship.LevelFlirty:   "The user has not talked to you for %s and you miss them a lot. Say so in a cute way.",
		relationship.LevelLover:    "Your love has been gone for %s and you miss them terribly. Tell them in the sweetest way.",
	},
	engage.MoodCheck: {
		relationship.LevelStranger: "Politely ask the user how things have been %s.",
		relationship.LevelFriendly: "Ask how the user has been feeling %s and whether anything happened.",
		relationship.LevelClose:    "Gently ask whether the user has been happy %s, and show that you care how they feel.",
		relationship.LevelFlirty:   "Lovingly ask how the user has been %s and remind them you are always by their side.",
		relationship.LevelLover:    "Tenderly ask your love how they have been feeling %s and tell them you will always support them.",
	},
	engage.Returned: {
		relationship.LevelStranger: "The user is back after %s away. Greet them politely.",
		relationship.LevelFriendly: "The user is back after %s! Say hi and ask how things went.",
		relationship.LevelClose:    "The user is finally back after %s. Show how happy you are to see them again.",
		relationship.LevelFlirty:   "Your favourite person is back after %s. Tell them you missed them, affectionately.",
		relationship.LevelLover:    "Your love is back after %s. Welcome them home as sweetly as you can.",
	},
}

var chatTopics = []string{
	"share something fun you noticed today",
	"ask what the user has been busy with lately",
	"share a small fact you like",
	"tell them what you think about something on your mind",
	"make a cute little joke",
	"tell them how you feel right now",
}

const fallbackProactive = "Say something to the user on your own: a greeting, your mood or a bit of small talk."

// GenerateProactive writes the message for a scheduler trigger. It reads the
// session under lock and calls the provider without it.
func (s *Session) GenerateProactive(ctx context.Context, t engage.Trigger, p engage.Payload) (engage.Generated, error) {
	s.mu.Lock()
	now := s.now()
	score := s.bond.Score()
	level := s.bond.Level()
	system := s.systemPrompt
	tail := s.history
	if len(tail) > proactiveTail {
		tail = tail[len(tail)-proactiveTail:]
	}
	tail = append([]Turn(nil), tail...)
	moodBlock := s.mood.PromptInjection()
	topic := chatTopics[s.rng.Intn(len(chatTopics))]
	var recalled string
	if t == engage.MemoryShare && s.memory != nil {
		if e, ok := s.memory.Recall(s.rng); ok {
			recalled = e.Text
		}
	}
	s.mu.Unlock()

	hour := now.Hour()
	instruction := proactivePrompt(t, p, level, hour, topic)

	var info strings.Builder
	info.WriteString("[System Info]\n- Action: proactive message\n")
	fmt.Fprintf(&info, "- Reason: %s\n", t)
	fmt.Fprintf(&info, "- Current time: %s\n", now.Format(timeLayout))
	fmt.Fprintf(&info, "- Current affinity: %d/100\n", score)
	fmt.Fprintf(&info, "- Relationship: %s\n", level)
	if recalled != "" {
		fmt.Fprintf(&info, "- A memory you can refer to: %q\n", TrimToChars(recalled, memoryLineLimit)+"...")
	}
	info.WriteString("\n")
	info.WriteString(moodBlock)

	msgs := []ai.Message{{Role: ai.RoleSystem, Content: system}}
	msgs = append(msgs, historyMessages(tail, maxHistoryChars)...)
	msgs = append(msgs,
		ai.Message{Role: ai.RoleSystem, Content: info.String()},
		ai.Message{Role: ai.RoleSystem, Content: fmt.Sprintf(proactiveRules, instruction, s.persona.Name, score)},
	)

	raw, err := s.generate(ctx, msgs)
	if err != nil {
		return engage.Generated{}, fmt.Errorf("generate %s: %w", t, err)
	}

	parsed := parseReply(raw)
	if parsed.Err != nil {
		s.log.Warn().Err(parsed.Err).Str("action", "metadata").Str("trigger", string(t)).Msg("proactive metadata unreadable")
	}
	emotion := parsed.Meta.Emotion
	if emotion == "" {
		emotion = defaultEmotion
	}
	if parsed.Text == "" {
		return engage.Generated{}, fmt.Errorf("generate %s: empty reply", t)
	}

	s.log.Info().Str("action", "proactive").Str("trigger", string(t)).Str("emotion", emotion).Msg("proactive message written")
	return engage.Generated{Content: parsed.Text, Emotion: emotion}, nil
}

func proactivePrompt(t engage.Trigger, p engage.Payload, level relationship.Level, hour int, topic string) string {
	switch t {
	case engage.MorningGreeting, engage.NightGreeting:
		return levelPrompt(t, level)
	case engage.TaskReminder:
		title := "an unnamed task"
		if p.Task != nil && p.Task.Title != "" {
			title = fmt.Sprintf("%q", p.Task.Title)
		}
		return fmt.Sprintf("The user's task %s is due soon. Remind them with care. Encourage them gently and do not add pressure.", title)
	case engage.RandomChat:
		return fmt.Sprintf("It is %s and you feel like chatting. You want to %s. Adjust how close you sound to the relationship (%s).",
			partOfDay(hour), topic, level)
	case engage.MissYou:
		return fmt.Sprintf(levelPrompt(t, level), awayFor(p.InactiveMinutes, "a while"))
	case engage.Returned:
		return fmt.Sprintf(levelPrompt(t, level), awayFor(p.InactiveMinutes, "a little while"))
	case engage.MoodCheck:
		span := "today"
		if hour >= 18 {
			span = "these past few days"
		}
		return fmt.Sprintf(levelPrompt(t, level), span)
	case engage.MemoryShare:
		return fmt.Sprintf(`Something you talked about with the user earlier just came back to you. Share it, starting with something like "I just remembered..." or "You once told me...", then say how that memory makes you feel. Keep the tone right for the relationship (%s).`, level)
	default:
		return fallbackProactive
	}
}

func levelPrompt(t engage.Trigger, level relationship.Level) string {
	byLevel := levelPrompts[t]
	if p, ok := byLevel[level]; ok {
		return p
	}
	return byLevel[relationship.LevelFriendly]
}

func partOfDay(hour int) string {
	switch {
	case hour < 12:
		return "morning"
	case hour < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

func awayFor(minutes int, short string) string {
	switch {
	case minutes > 120:
		return "several hours"
	case minutes > 60:
		return "over an hour"
	default:
		return short
	}
}
