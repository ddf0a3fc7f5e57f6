// Package discord relays the companion to a Discord user. Incoming messages
// become chat turns; queued proactive messages are polled and delivered by
// DM or to a fixed channel.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/heartline/internal/companion"
	"github.com/keshon/heartline/internal/engage"
	"github.com/keshon/heartline/pkg/cmd"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	messageLimit  = 2000
	chunkPause    = 200 * time.Millisecond
	defaultPoll   = 15 * time.Second
	maxPerDeliver = engage.MaxQueue
)

type Chatter interface {
	Chat(ctx context.Context, text string) (companion.Reply, error)
}

type Queue interface {
	Consume() (engage.Message, bool)
}

// Sender is the part of *discordgo.Session the relay writes through.
type Sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

type Options struct {
	Token     string
	UserID    string
	ChannelID string
	Poll      time.Duration
}

type Stats struct {
	Received  int64 `json:"received"`
	Replied   int64 `json:"replied"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}

type Relay struct {
	opts     Options
	chat     Chatter
	queue    Queue
	commands *cmd.Registry
	log      zerolog.Logger
	pause    time.Duration

	sender Sender
	botID  string

	mu        sync.Mutex
	dmChannel string

	received  atomic.Int64
	replied   atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

// New validates opts. commands may be nil.
func New(opts Options, chat Chatter, queue Queue, commands *cmd.Registry, log zerolog.Logger) (*Relay, error) {
	if opts.Token == "" {
		return nil, errors.New("discord: token is required")
	}
	if opts.UserID == "" && opts.ChannelID == "" {
		return nil, errors.New("discord: a user id or a channel id is required")
	}
	if opts.Poll <= 0 {
		opts.Poll = defaultPoll
	}
	return &Relay{
		opts:     opts,
		chat:     chat,
		queue:    queue,
		commands: commands,
		log:      log.With().Str("component", "discord").Logger(),
		pause:    chunkPause,
	}, nil
}

// Run connects, relays until ctx is cancelled, then closes the session.
func (r *Relay) Run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + r.opts.Token)
	if err != nil {
		return fmt.Errorf("discord: create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	r.sender = dg

	dg.AddHandler(func(s *discordgo.Session, ready *discordgo.Ready) {
		r.log.Info().Str("action", "ready").Str("user", ready.User.Username).Msg("connected to Discord")
	})
	dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || s.State == nil || s.State.User == nil {
			return
		}
		r.handle(ctx, s.State.User.ID, m.Message)
	})

	if err := dg.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	defer dg.Close()

	t := time.NewTicker(r.opts.Poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Str("action", "shutdown").Interface("stats", r.Stats()).Msg("relay stopped")
			return nil
		case <-t.C:
			r.Deliver(ctx)
		}
	}
}

func (r *Relay) Stats() Stats {
	return Stats{
		Received:  r.received.Load(),
		Replied:   r.replied.Load(),
		Delivered: r.delivered.Load(),
		Failed:    r.failed.Load(),
	}
}

// handle answers one incoming message. Only DMs and the configured channel are
// read, and only from the configured user when one is set.
func (r *Relay) handle(ctx context.Context, botID string, m *discordgo.Message) {
	if m.Author.ID == botID || m.Author.Bot {
		return
	}
	if r.opts.UserID != "" && m.Author.ID != r.opts.UserID {
		return
	}
	if m.GuildID != "" && m.ChannelID != r.opts.ChannelID {
		return
	}

	text := strings.TrimSpace(stripMention(m.Content, botID))
	if text == "" {
		return
	}
	r.received.Inc()

	if r.commands != nil {
		if c, args, ok := r.commands.Parse(text); ok {
			r.runCommand(ctx, m.ChannelID, c, args)
			return
		}
	}

	_ = r.sender.ChannelTyping(m.ChannelID)
	reply, err := r.chat.Chat(ctx, text)
	if err != nil {
		r.log.Error().Err(err).Str("action", "chat").Msg("chat turn failed")
		return
	}
	if reply.Silent {
		r.log.Info().Str("action", "chat").Msg("companion stayed silent")
		return
	}
	if err := r.send(m.ChannelID, reply.Text); err != nil {
		r.failed.Inc()
		r.log.Error().Err(err).Str("action", "send").Str("channel", m.ChannelID).Msg("reply not sent")
		return
	}
	r.replied.Inc()
}

func (r *Relay) runCommand(ctx context.Context, channelID string, c cmd.Command, args []string) {
	if c == nil {
		_ = r.send(channelID, "Unknown command. Try "+r.commands.Prefix()+"help")
		return
	}
	inv := &cmd.Invocation{
		Args:  args,
		Reply: func(text string) error { return r.send(channelID, text) },
	}
	if err := c.Run(ctx, inv); err != nil {
		_ = r.send(channelID, "Something went wrong: "+err.Error())
	}
}

// Deliver sends every queued proactive message.
func (r *Relay) Deliver(ctx context.Context) int {
	var n int
	for i := 0; i < maxPerDeliver && ctx.Err() == nil; i++ {
		msg, ok := r.queue.Consume()
		if !ok {
			break
		}
		channelID, err := r.target()
		if err == nil {
			err = r.send(channelID, msg.Content)
		}
		if err != nil {
			r.failed.Inc()
			r.log.Error().Err(err).Str("action", "deliver").Str("trigger", string(msg.Reason)).Msg("proactive message dropped")
			continue
		}
		r.delivered.Inc()
		n++
		r.log.Info().Str("action", "deliver").Str("trigger", string(msg.Reason)).Str("id", msg.ID).Msg("proactive message delivered")
	}
	return n
}

func (r *Relay) target() (string, error) {
	if r.opts.ChannelID != "" {
		return r.opts.ChannelID, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dmChannel != "" {
		return r.dmChannel, nil
	}
	ch, err := r.sender.UserChannelCreate(r.opts.UserID)
	if err != nil {
		return "", fmt.Errorf("open DM channel: %w", err)
	}
	r.dmChannel = ch.ID
	return ch.ID, nil
}

func (r *Relay) send(channelID, text string) error {
	for i, chunk := range splitMessage(text, messageLimit) {
		if i > 0 && r.pause > 0 {
			time.Sleep(r.pause)
		}
		if _, err := r.sender.ChannelMessageSend(channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func stripMention(content, botID string) string {
	if botID == "" {
		return content
	}
	content = strings.ReplaceAll(content, "<@"+botID+">", "")
	return strings.ReplaceAll(content, "<@!"+botID+">", "")
}

// splitMessage cuts msg into pieces of at most limit bytes, preferring line
// breaks.
func splitMessage(msg string, limit int) []string {
	var result []string
	for len(msg) > limit {
		cut := strings.LastIndex(msg[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(msg[cut]) {
				cut--
			}
			if cut == 0 {
				_, cut = utf8.DecodeRuneInString(msg)
			}
		}
		result = append(result, strings.TrimSpace(msg[:cut]))
		msg = strings.TrimSpace(msg[cut:])
	}
	if msg != "" {
		result = append(result, msg)
	}
	return result
}
