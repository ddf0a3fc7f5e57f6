// Package jobmgr runs named background jobs with cancellation and in-memory
// tracking. Jobs derive their context from the manager's, so cancelling the
// parent or calling Shutdown stops all of them.
//
// Typical usage:
//
//	jm := jobmgr.NewManager(ctx, log)
//
//	_ = jm.StartAsync("scheduler", sched.Run)
//	_ = jm.Every("close-days", time.Hour, func(ctx context.Context) error {
//	    session.CloseDays()
//	    return nil
//	})
//
//	// on exit
//	jm.Shutdown()
//
// No retries, no persistence. Finished jobs are removed automatically.
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is a running unit of work.
type Job struct {
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
	Runs      int       `json:"runs"`
	LastError string    `json:"last_error,omitempty"`

	cancel context.CancelFunc
}

// Manager starts, stops and tracks jobs. It is safe for concurrent use.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
	now    func() time.Time

	wg   sync.WaitGroup
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewManager creates a Manager whose jobs stop when parent is cancelled.
func NewManager(parent context.Context, log zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		ctx:    ctx,
		cancel: cancel,
		log:    log.With().Str("component", "jobmgr").Logger(),
		now:    time.Now,
		jobs:   make(map[string]*Job),
	}
}

// StartSync runs a job in the current goroutine and blocks until completion.
func (m *Manager) StartSync(name string, runner func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(m.ctx)
	defer cancel()
	m.log.Debug().Str("action", "running").Str("job", name).Msg("job started")
	if err := runner(ctx); err != nil {
		m.log.Error().Err(err).Str("action", "error").Str("job", name).Msg("job failed")
		return err
	}
	m.log.Debug().Str("action", "done").Str("job", name).Msg("job finished")
	return nil
}

// StartAsync runs a job in its own goroutine and returns immediately.
// A job with the same name must not already be running.
func (m *Manager) StartAsync(name string, runner func(ctx context.Context) error) error {
	job, ctx, err := m.register(name)
	if err != nil {
		return err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.remove(job)

		m.log.Info().Str("action", "running").Str("job", name).Msg("job started")
		m.record(job, runner(ctx))
	}()
	return nil
}

// Every runs fn immediately and then on every interval until stopped.
// Errors are logged and recorded; they do not stop the loop.
func (m *Manager) Every(name string, interval time.Duration, fn func(ctx context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("job '%s': interval must be positive", name)
	}
	job, ctx, err := m.register(name)
	if err != nil {
		return err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.remove(job)

		m.log.Info().Str("action", "running").Str("job", name).Dur("interval", interval).Msg("periodic job started")
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			m.record(job, fn(ctx))
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
	return nil
}

func (m *Manager) register(name string) (*Job, context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[name]; exists {
		return nil, nil, fmt.Errorf("job '%s' is already running", name)
	}
	if m.ctx.Err() != nil {
		return nil, nil, fmt.Errorf("job '%s': manager is shut down", name)
	}
	ctx, cancel := context.WithCancel(m.ctx)
	job := &Job{Name: name, StartedAt: m.now(), cancel: cancel}
	m.jobs[name] = job
	return job, ctx, nil
}

func (m *Manager) record(job *Job, err error) {
	m.mu.Lock()
	job.Runs++
	if err != nil {
		job.LastError = err.Error()
	}
	m.mu.Unlock()

	switch {
	case err == nil:
		m.log.Debug().Str("action", "done").Str("job", job.Name).Msg("job run finished")
	case errors.Is(err, context.Canceled):
		m.log.Debug().Str("action", "done").Str("job", job.Name).Msg("job cancelled")
	default:
		m.log.Error().Err(err).Str("action", "error").Str("job", job.Name).Msg("job failed")
	}
}

// remove drops job only if it is still the registered one, so a job restarted
// under the same name is not removed by its predecessor.
func (m *Manager) remove(job *Job) {
	job.cancel()
	m.mu.Lock()
	if m.jobs[job.Name] == job {
		delete(m.jobs, job.Name)
	}
	m.mu.Unlock()
}

// Stop cancels a running job by name.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("job '%s' not running", name)
	}
	job.cancel()
	delete(m.jobs, name)
	return nil
}

// Shutdown cancels every job and waits for them to return.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}

// List returns the names of active jobs, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Jobs returns a copy of every active job.
func (m *Manager) Jobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		c := *j
		c.cancel = nil
		out = append(out, c)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Status returns a human-readable summary, e.g. "Running jobs: backfill, scheduler".
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}
