// Package httpapi exposes the companion, its proactive queue and the task
// list over a JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keshon/heartline/internal/companion"
	"github.com/keshon/heartline/internal/engage"
	"github.com/keshon/heartline/internal/memory"
	"github.com/keshon/heartline/internal/tasks"
	"github.com/keshon/heartline/pkg/jobmgr"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

type Companion interface {
	Chat(ctx context.Context, text string) (companion.Reply, error)
	State() companion.View
	UpdateState(u companion.StateUpdate) companion.View
	ClearHistory(ctx context.Context) error
	History() []companion.Turn
	SystemPrompt() string
	SetSystemPrompt(prompt string)
	Mood() companion.MoodView
	Personality() companion.PersonalityView
	Memories(limit int) []memory.Entry
	ClearMemories(ctx context.Context) error
}

type Engagement interface {
	Consume() (engage.Message, bool)
	Peek() []engage.QueuedSummary
	Status() engage.Status
	UpdateConfig(u engage.Update) engage.Config
}

type TaskStore interface {
	Add(ctx context.Context, in tasks.New) (tasks.Task, error)
	Get(ctx context.Context, id string) (tasks.Task, error)
	List(ctx context.Context) ([]tasks.Task, error)
	Pending(ctx context.Context) ([]tasks.Task, error)
	Update(ctx context.Context, id string, u tasks.Update) (tasks.Task, error)
	Complete(ctx context.Context, id string) (tasks.Task, error)
	Delete(ctx context.Context, id string) error
	Summary(ctx context.Context) (tasks.Summary, error)
}

type JobLister interface {
	Jobs() []jobmgr.Job
}

// Deps wires the server. Tasks and Jobs may be nil; their routes then answer
// 503.
type Deps struct {
	Companion  Companion
	Engagement Engagement
	Tasks      TaskStore
	Jobs       JobLister
	Log        zerolog.Logger
}

type Server struct {
	deps   Deps
	log    zerolog.Logger
	engine *gin.Engine
}

func New(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		log:    deps.Log.With().Str("component", "http").Logger(),
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), requestLogger(s.log))
	s.routes()
	return s
}

// Handler returns the router, for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	r := s.engine
	r.GET("/healthz", s.health)
	r.GET("/jobs", s.listJobs)

	api := r.Group("/api")
	api.POST("/chat", s.chat)
	api.GET("/state", s.getState)
	api.PUT("/state", s.putState)
	api.GET("/history", s.history)
	api.POST("/history/clear", s.clearHistory)
	api.GET("/system-prompt", s.getSystemPrompt)
	api.PUT("/system-prompt", s.putSystemPrompt)
	api.GET("/mood", s.mood)
	api.GET("/personality", s.personality)
	api.GET("/memories", s.listMemories)
	api.DELETE("/memories", s.clearMemories)

	pro := api.Group("/proactive")
	pro.GET("/consume", s.consume)
	pro.GET("/queue", s.queue)
	pro.GET("/status", s.proactiveStatus)
	pro.PUT("/config", s.proactiveConfig)

	t := api.Group("/tasks")
	t.GET("", s.listTasks)
	t.POST("", s.addTask)
	t.GET("/summary", s.taskSummary)
	t.GET("/:id", s.getTask)
	t.PATCH("/:id", s.updateTask)
	t.POST("/:id/complete", s.completeTask)
	t.DELETE("/:id", s.deleteTask)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("action", "listen").Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info().Str("action", "shutdown").Msg("http server stopped")
	return nil
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Debug()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.Str("action", "request").
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("took", time.Since(start)).
			Msg("request handled")
	}
}
