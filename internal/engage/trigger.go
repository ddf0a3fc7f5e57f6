package engage

import (
	"math"
	"time"
)

// Trigger names a reason for the companion to speak first.
type Trigger string

const (
	MorningGreeting Trigger = "morning_greeting"
	NightGreeting   Trigger = "night_greeting"
	TaskReminder    Trigger = "task_reminder"
	RandomChat      Trigger = "random_chat"
	MissYou         Trigger = "miss_you"
	MoodCheck       Trigger = "mood_check"
	MemoryShare     Trigger = "memory_share"
	Returned        Trigger = "returned"
)

// AllTriggers lists every known trigger in evaluation order.
var AllTriggers = []Trigger{
	MorningGreeting, NightGreeting, TaskReminder, MoodCheck, MissYou, MemoryShare, RandomChat, Returned,
}

var baseCooldowns = map[Trigger]time.Duration{
	MorningGreeting: 24 * time.Hour,
	NightGreeting:   24 * time.Hour,
	TaskReminder:    30 * time.Minute,
	RandomChat:      2 * time.Hour,
	MissYou:         3 * time.Hour,
	MoodCheck:       4 * time.Hour,
	MemoryShare:     6 * time.Hour,
	Returned:        30 * time.Minute,
}

const fallbackCooldown = time.Hour

var priorities = map[Trigger]int{
	TaskReminder:    100,
	MorningGreeting: 80,
	NightGreeting:   80,
	MoodCheck:       60,
	MissYou:         50,
	MemoryShare:     40,
	RandomChat:      30,
}

const defaultPriority = 20

// Known reports whether t is a trigger the scheduler understands.
func Known(t Trigger) bool {
	_, ok := baseCooldowns[t]
	return ok
}

// Priority orders queued messages; higher is delivered first.
func Priority(t Trigger) int {
	if p, ok := priorities[t]; ok {
		return p
	}
	return defaultPriority
}

func isGreeting(t Trigger) bool {
	return t == MorningGreeting || t == NightGreeting
}

// Tier scales cooldowns and the daily quota.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

type tierFactors struct {
	cooldown float64
	quota    float64
}

var tiers = map[Tier]tierFactors{
	TierLow:    {cooldown: 2.0, quota: 0.5},
	TierMedium: {cooldown: 1.0, quota: 1.0},
	TierHigh:   {cooldown: 0.7, quota: 1.5},
}

func (t Tier) Valid() bool {
	_, ok := tiers[t]
	return ok
}

func (t Tier) factors() tierFactors {
	if f, ok := tiers[t]; ok {
		return f
	}
	return tiers[TierMedium]
}

// Cooldown is the scaled cooldown for trigger under tier. Greetings are fixed
// at once a day.
func Cooldown(t Trigger, tier Tier) time.Duration {
	base, ok := baseCooldowns[t]
	if !ok {
		base = fallbackCooldown
	}
	if isGreeting(t) {
		return base
	}
	return time.Duration(math.Round(float64(base) * tier.factors().cooldown))
}

// AffinityBonus scales trigger probabilities by relationship score.
func AffinityBonus(score int) float64 {
	switch {
	case score <= 20:
		return 0.5
	case score <= 40:
		return 0.8
	case score <= 60:
		return 1.0
	case score <= 80:
		return 1.3
	default:
		return 1.6
	}
}

func baseQuota(score int) int {
	switch {
	case score <= 20:
		return 3
	case score <= 40:
		return 5
	case score <= 60:
		return 8
	case score <= 80:
		return 12
	default:
		return 15
	}
}

// DailyLimit is the number of proactive messages allowed per calendar day.
func DailyLimit(score int, tier Tier, custom *int) int {
	if custom != nil {
		return *custom
	}
	return int(math.Round(float64(baseQuota(score)) * tier.factors().quota))
}
