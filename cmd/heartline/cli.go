package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/keshon/heartline/internal/commands"
	"github.com/keshon/heartline/internal/companion"
	"github.com/keshon/heartline/internal/config"
	"github.com/keshon/heartline/internal/discord"
	"github.com/keshon/heartline/internal/engage"
	"github.com/keshon/heartline/internal/httpapi"
	"github.com/keshon/heartline/pkg/cmd"
	"github.com/keshon/heartline/pkg/jobmgr"
)

const backfillWorkers = 4

// newCLIApp creates the CLI application with all commands.
func newCLIApp(in io.Reader, out io.Writer) *cli.App {
	app := &cli.App{
		Name:    "heartline",
		Usage:   "Affective companion with mood, memory and proactive messages",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-dir", Usage: "Override DATA_DIR"},
			&cli.StringFlag{Name: "persona", Usage: "Override PERSONA_PATH"},
			&cli.StringFlag{Name: "log-level", Usage: "Override LOG_LEVEL"},
		},
		Commands: []*cli.Command{
			serveCmd(),
			chatCmd(in, out),
			statusCmd(out),
		},
		Writer:    out,
		ErrWriter: out,
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// loadConfig reads the environment and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	if v := c.String("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v := c.String("persona"); v != "" {
		cfg.PersonaPath = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API, the scheduler and the Discord relay when configured",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Override HTTP_ADDR"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if v := c.String("addr"); v != "" {
				cfg.HTTPAddr = v
			}
			return serve(c.Context, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) (err error) {
	rt, err := openRuntime(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, rt.Close()) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := jobmgr.NewManager(ctx, rt.log)
	defer jobs.Shutdown()
	if err := startJobs(jobs, rt); err != nil {
		return err
	}

	srv := httpapi.New(httpapi.Deps{
		Companion:  rt.session,
		Engagement: rt.sched,
		Tasks:      rt.tasks,
		Jobs:       jobs,
		Log:        rt.log,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Run(ctx, cfg.HTTPAddr); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		rt.log.Info().Str("action", "shutdown").Msg("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

// startJobs registers the background work of a serving process.
func startJobs(jobs *jobmgr.Manager, rt *runtime) error {
	if err := jobs.StartAsync("scheduler", rt.sched.Run); err != nil {
		return err
	}
	if err := jobs.Every("close-days", time.Hour, func(context.Context) error {
		rt.session.CloseDays()
		return nil
	}); err != nil {
		return err
	}
	if rt.cfg.EmbeddingsEnabled() {
		if err := jobs.StartAsync("memory-backfill", func(ctx context.Context) error {
			n, err := rt.memory.Backfill(ctx, backfillWorkers)
			if n > 0 {
				rt.log.Info().Str("action", "backfill").Int("embedded", n).Msg("memory embeddings backfilled")
			}
			return err
		}); err != nil {
			return err
		}
	}
	if rt.cfg.DiscordToken == "" {
		return nil
	}
	relay, err := discord.New(discord.Options{
		Token:     rt.cfg.DiscordToken,
		UserID:    rt.cfg.DiscordUserID,
		ChannelID: rt.cfg.DiscordChannelID,
		Poll:      rt.cfg.DiscordPoll,
	}, rt.session, rt.sched, commands.NewRegistry("!", commandDeps(rt)), rt.log)
	if err != nil {
		return err
	}
	return jobs.StartAsync("discord", relay.Run)
}

func commandDeps(rt *runtime) commands.Deps {
	return commands.Deps{
		Companion:  rt.session,
		Engagement: rt.sched,
		Tasks:      rt.tasks,
		Log:        rt.log,
	}
}

func chatCmd(in io.Reader, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Talk to the companion in the terminal",
		Action: func(c *cli.Context) (err error) {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if !c.IsSet("log-level") {
				cfg.LogLevel = "warn"
			}
			rt, err := openRuntime(c.Context, cfg, true)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, rt.Close()) }()

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()
			jobs := jobmgr.NewManager(ctx, rt.log)
			defer jobs.Shutdown()
			if err := jobs.StartAsync("scheduler", rt.sched.Run); err != nil {
				return err
			}

			r := &repl{
				name:     rt.persona.Name,
				chat:     rt.session,
				queue:    rt.sched,
				commands: commands.NewRegistry("/", commandDeps(rt)),
				out:      out,
			}
			return r.run(ctx, in)
		},
	}
}

type chatter interface {
	Chat(ctx context.Context, text string) (companion.Reply, error)
}

type queue interface {
	Consume() (engage.Message, bool)
}

// repl is the terminal chat loop. Queued proactive messages are printed
// before each prompt.
type repl struct {
	name     string
	chat     chatter
	queue    queue
	commands *cmd.Registry
	out      io.Writer
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	fmt.Fprintf(r.out, "Chatting with %s. Type %shelp for commands, %squit to leave.\n", r.name, r.commands.Prefix(), r.commands.Prefix())
	for {
		r.drain()
		fmt.Fprint(r.out, "> ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case err := <-readErr:
			fmt.Fprintln(r.out)
			return err
		case line = <-lines:
		}

		if !r.handle(ctx, strings.TrimSpace(line)) {
			return nil
		}
	}
}

// handle processes one input line and reports whether the loop continues.
func (r *repl) handle(ctx context.Context, line string) bool {
	if line == "" {
		return true
	}
	if line == r.commands.Prefix()+"quit" || line == r.commands.Prefix()+"exit" {
		return false
	}

	if c, args, ok := r.commands.Parse(line); ok {
		if c == nil {
			fmt.Fprintf(r.out, "Unknown command. Try %shelp\n", r.commands.Prefix())
			return true
		}
		inv := &cmd.Invocation{Args: args, Reply: func(text string) error {
			_, err := fmt.Fprintln(r.out, strings.TrimRight(text, "\n"))
			return err
		}}
		if err := c.Run(ctx, inv); err != nil {
			fmt.Fprintln(r.out, "error:", err)
		}
		return true
	}

	reply, err := r.chat.Chat(ctx, line)
	switch {
	case err != nil:
		fmt.Fprintln(r.out, "error:", err)
	case reply.Silent:
		fmt.Fprintf(r.out, "(%s says nothing)\n", r.name)
	default:
		fmt.Fprintf(r.out, "%s [%s]: %s\n", r.name, reply.Emotion, reply.Text)
	}
	return true
}

func (r *repl) drain() {
	for {
		msg, ok := r.queue.Consume()
		if !ok {
			return
		}
		fmt.Fprintf(r.out, "%s [%s]: %s\n", r.name, msg.Emotion, msg.Content)
	}
}

func statusCmd(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Print the stored relationship, mood, personality and scheduler state as JSON",
		Action: func(c *cli.Context) (err error) {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if !c.IsSet("log-level") {
				cfg.LogLevel = "warn"
			}
			rt, err := openRuntime(c.Context, cfg, false)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, rt.Close()) }()

			return outputJSON(out, map[string]any{
				"state":       rt.session.State(),
				"mood":        rt.session.Mood(),
				"personality": rt.session.Personality(),
				"proactive":   rt.sched.Status(),
			})
		},
	}
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
