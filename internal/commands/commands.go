// Package commands defines the chat commands shared by the Discord relay and
// the terminal client.
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/keshon/heartline/internal/companion"
	"github.com/keshon/heartline/internal/engage"
	"github.com/keshon/heartline/internal/middleware"
	"github.com/keshon/heartline/internal/tasks"
	"github.com/keshon/heartline/pkg/cmd"
	"github.com/rs/zerolog"
)

type Companion interface {
	State() companion.View
	Mood() companion.MoodView
	Personality() companion.PersonalityView
	ClearHistory(ctx context.Context) error
}

type Engagement interface {
	Status() engage.Status
	UpdateConfig(u engage.Update) engage.Config
}

type TaskStore interface {
	Add(ctx context.Context, in tasks.New) (tasks.Task, error)
	Pending(ctx context.Context) ([]tasks.Task, error)
}

type Deps struct {
	Companion  Companion
	Engagement Engagement
	Tasks      TaskStore
	Log        zerolog.Logger
}

// NewRegistry builds the command set for prefix. Commands whose dependency is
// nil are left out.
func NewRegistry(prefix string, d Deps) *cmd.Registry {
	reg := cmd.NewRegistry(prefix)
	mws := []cmd.Middleware{middleware.WithCommandLogger(d.Log), middleware.WithUsageReply()}

	reg.Register(helpCommand(reg), mws...)
	if d.Companion != nil {
		reg.Register(statusCommand(d.Companion), mws...)
		reg.Register(moodCommand(d.Companion), mws...)
		reg.Register(personalityCommand(d.Companion), mws...)
		reg.Register(forgetCommand(d.Companion), mws...)
	}
	if d.Engagement != nil {
		reg.Register(proactiveCommand(d.Engagement), mws...)
	}
	if d.Tasks != nil {
		reg.Register(tasksCommand(d.Tasks), mws...)
		reg.Register(taskCommand(d.Tasks), mws...)
	}
	return reg
}

func helpCommand(reg *cmd.Registry) cmd.Command {
	return cmd.Func{ID: "help", Help: "list commands", Fn: func(_ context.Context, inv *cmd.Invocation) error {
		var b strings.Builder
		for _, c := range reg.All() {
			fmt.Fprintf(&b, "%s%s: %s\n", reg.Prefix(), c.Name(), c.Description())
		}
		return inv.Respond(b.String())
	}}
}

func statusCommand(c Companion) cmd.Command {
	return cmd.Func{ID: "status", Help: "show affinity and relationship", Fn: func(_ context.Context, inv *cmd.Invocation) error {
		v := c.State()
		return inv.Respond(fmt.Sprintf("Affinity %d/100 (%s). I call you %s. Feeling %s. %d messages in history, %d memories.",
			v.Affinity, v.Level, v.Nickname, v.Emotion, v.HistoryCount, v.MemoryCount))
	}}
}

func moodCommand(c Companion) cmd.Command {
	return cmd.Func{ID: "mood", Help: "show the current mood", Fn: func(_ context.Context, inv *cmd.Invocation) error {
		m := c.Mood()
		return inv.Respond(fmt.Sprintf("%s (%s) P=%.2f A=%.2f D=%.2f", m.Label, m.Summary, m.P, m.A, m.D))
	}}
}

func personalityCommand(c Companion) cmd.Command {
	return cmd.Func{ID: "personality", Help: "show dominant traits", Fn: func(_ context.Context, inv *cmd.Invocation) error {
		p := c.Personality()
		dominant := "balanced"
		if len(p.Dominant) > 0 {
			dominant = strings.Join(p.Dominant, ", ")
		}
		return inv.Respond(fmt.Sprintf("Personality: %s. Active %d of %d days, %.0f%% positive.",
			dominant, p.ActiveDays, p.TotalDays, p.PositiveRatio*100))
	}}
}

func forgetCommand(c Companion) cmd.Command {
	return cmd.Func{ID: "forget", Help: "clear history and memories and reset affinity", Fn: func(ctx context.Context, inv *cmd.Invocation) error {
		if err := c.ClearHistory(ctx); err != nil {
			return err
		}
		return inv.Respond("Okay... let's start over.")
	}}
}

func proactiveCommand(e Engagement) cmd.Command {
	return cmd.Func{ID: "proactive", Help: "proactive [on|off|low|medium|high]", Fn: func(_ context.Context, inv *cmd.Invocation) error {
		var u engage.Update
		if len(inv.Args) > 0 {
			switch arg := strings.ToLower(inv.Args[0]); arg {
			case "on", "off":
				enabled := arg == "on"
				u.Enabled = &enabled
			default:
				tier := engage.Tier(arg)
				if !tier.Valid() {
					return cmd.ErrUsage
				}
				u.Frequency = &tier
			}
			e.UpdateConfig(u)
		}
		st := e.Status()
		state := "off"
		if st.Config.Enabled {
			state = "on"
		}
		return inv.Respond(fmt.Sprintf("Proactive messages %s, frequency %s, %d/%d sent today, %d queued.",
			state, st.Config.Frequency, st.SentToday, st.DailyLimit, st.QueueSize))
	}}
}

func tasksCommand(s TaskStore) cmd.Command {
	return cmd.Func{ID: "tasks", Help: "list pending tasks", Fn: func(ctx context.Context, inv *cmd.Invocation) error {
		pending, err := s.Pending(ctx)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return inv.Respond("Nothing pending.")
		}
		var b strings.Builder
		for _, t := range pending {
			b.WriteString("- ")
			b.WriteString(t.Title)
			if t.DueAt != nil {
				b.WriteString(" (due ")
				b.WriteString(t.DueAt.Local().Format("Jan 2 15:04"))
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
		return inv.Respond(b.String())
	}}
}

func taskCommand(s TaskStore) cmd.Command {
	return cmd.Func{ID: "task", Help: "task <title>", Fn: func(ctx context.Context, inv *cmd.Invocation) error {
		if len(inv.Args) == 0 {
			return cmd.ErrUsage
		}
		t, err := s.Add(ctx, tasks.New{Title: strings.Join(inv.Args, " ")})
		if err != nil {
			return err
		}
		return inv.Respond("Added: " + t.Title)
	}}
}
