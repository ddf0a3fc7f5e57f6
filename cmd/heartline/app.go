package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/keshon/heartline/internal/ai"
	"github.com/keshon/heartline/internal/companion"
	"github.com/keshon/heartline/internal/config"
	"github.com/keshon/heartline/internal/db"
	"github.com/keshon/heartline/internal/engage"
	"github.com/keshon/heartline/internal/logging"
	"github.com/keshon/heartline/internal/memory"
	"github.com/keshon/heartline/internal/statestore"
	"github.com/keshon/heartline/internal/tasks"
	"github.com/rs/zerolog"
)

// runtime holds every long-lived component of one process.
type runtime struct {
	cfg     *config.Config
	persona config.Persona
	log     zerolog.Logger

	logCloser io.Closer
	store     statestore.Store
	saver     *statestore.Saver
	conn      *sql.DB

	memory  *memory.Index
	tasks   *tasks.Store
	session *companion.Session
	sched   *engage.Scheduler
}

// openRuntime builds the components in dependency order. Without withAI the
// session has no completion provider and can only report state.
func openRuntime(ctx context.Context, cfg *config.Config, withAI bool) (_ *runtime, err error) {
	log, logCloser := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, JSON: cfg.LogJSON})
	rt := &runtime{cfg: cfg, log: log, logCloser: logCloser}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	rt.persona, err = config.LoadPersona(cfg.PersonaPath)
	if err != nil {
		return nil, err
	}

	rt.store, err = openStateStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	rt.saver = statestore.NewSaver(rt.store, log)

	rt.conn, err = db.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	rt.memory = memory.NewIndex(memory.NewSQLiteRepository(rt.conn, log), ai.NewEmbedder(cfg, log), log)
	if err := rt.memory.Load(ctx); err != nil {
		return nil, fmt.Errorf("load memories: %w", err)
	}
	rt.tasks = tasks.NewStore(rt.conn, log)

	var provider ai.Provider
	if withAI {
		provider, err = ai.New(cfg, log)
		if err != nil {
			return nil, err
		}
	}

	rt.session = companion.New(rt.persona, companion.Deps{
		Provider:     provider,
		Memory:       rt.memory,
		Tasks:        rt.tasks,
		Persist:      rt.saver,
		HistoryLimit: cfg.HistoryLimit,
		Log:          log,
	})
	rt.session.Load(ctx, rt.store)

	rt.sched = engage.New(rt.session, log,
		engage.WithTasks(rt.tasks),
		engage.WithPersister(rt.saver),
		engage.WithInterval(cfg.TickInterval),
		engage.WithConfig(schedulerConfig(rt.persona.Proactive)),
	)
	var saved engage.State
	ok, err := statestore.LoadJSON(ctx, rt.store, engage.StateKey, &saved)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("action", "restore").Msg("scheduler state unreadable, starting fresh")
	case ok:
		rt.sched.Restore(saved)
	}
	rt.session.SetNotifier(rt.sched)

	return rt, nil
}

func openStateStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (statestore.Store, error) {
	switch cfg.StateBackend {
	case "redis":
		r, err := statestore.OpenRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "memory":
		return statestore.NewMemory(), nil
	default:
		fc := statestore.DefaultFileConfig(cfg.StatePath)
		fc.BackupCount = cfg.StateBackups
		f, err := statestore.OpenFile(fc, log)
		if err != nil {
			return nil, fmt.Errorf("open state file: %w", err)
		}
		return f, nil
	}
}

// schedulerConfig turns the persona's proactive block into scheduler
// settings. Unknown tiers keep the default and unknown trigger names are
// dropped.
func schedulerConfig(p config.ProactiveConfig) engage.Config {
	cfg := engage.DefaultConfig()
	cfg.Enabled = p.Enabled
	if tier := engage.Tier(strings.ToLower(p.Frequency)); tier.Valid() {
		cfg.Frequency = tier
	}
	cfg.CustomDailyLimit = p.DailyLimit
	if len(p.EnabledTypes) > 0 {
		types := make([]engage.Trigger, 0, len(p.EnabledTypes))
		for _, name := range p.EnabledTypes {
			if t := engage.Trigger(name); engage.Known(t) {
				types = append(types, t)
			}
		}
		cfg.EnabledTypes = types
	}
	return cfg
}

// Close flushes pending state and releases storage. Safe on a partially
// built runtime.
func (rt *runtime) Close() error {
	var errs []error
	if rt.sched != nil {
		rt.sched.Wait()
	}
	if rt.saver != nil {
		rt.saver.Close()
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	if rt.conn != nil {
		errs = append(errs, rt.conn.Close())
	}
	rt.log.Info().Str("action", "shutdown").Msg("state flushed")
	if rt.logCloser != nil {
		errs = append(errs, rt.logCloser.Close())
	}
	return errors.Join(errs...)
}
