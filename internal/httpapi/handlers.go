package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/keshon/heartline/internal/apperr"
	"github.com/keshon/heartline/internal/companion"
	"github.com/keshon/heartline/internal/engage"
	"github.com/keshon/heartline/internal/tasks"
)

const defaultMemoryLimit = 50

type chatRequest struct {
	Message string `json:"message"`
}

type promptBody struct {
	Prompt string `json:"prompt"`
}

func (s *Server) fail(c *gin.Context, err error) {
	e := apperr.From(err)
	if e.Status >= 500 {
		s.log.Error().Err(err).Str("action", "request").Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(e.Status, gin.H{"error": e})
}

func (s *Server) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		s.fail(c, apperr.InvalidRequest("invalid JSON: "+err.Error()))
		return false
	}
	return true
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listJobs(c *gin.Context) {
	if s.deps.Jobs == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": s.deps.Jobs.Jobs()})
}

func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if !s.bind(c, &req) {
		return
	}
	reply, err := s.deps.Companion.Chat(c.Request.Context(), req.Message)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Companion.State())
}

func (s *Server) putState(c *gin.Context) {
	var u companion.StateUpdate
	if !s.bind(c, &u) {
		return
	}
	if u.Affinity == nil && u.Nickname == nil {
		s.fail(c, apperr.InvalidRequest("affinity or nickname is required"))
		return
	}
	c.JSON(http.StatusOK, s.deps.Companion.UpdateState(u))
}

func (s *Server) history(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": s.deps.Companion.History()})
}

func (s *Server) clearHistory(c *gin.Context) {
	if err := s.deps.Companion.ClearHistory(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Companion.State())
}

func (s *Server) getSystemPrompt(c *gin.Context) {
	c.JSON(http.StatusOK, promptBody{Prompt: s.deps.Companion.SystemPrompt()})
}

func (s *Server) putSystemPrompt(c *gin.Context) {
	var body promptBody
	if !s.bind(c, &body) {
		return
	}
	s.deps.Companion.SetSystemPrompt(body.Prompt)
	c.JSON(http.StatusOK, promptBody{Prompt: s.deps.Companion.SystemPrompt()})
}

func (s *Server) mood(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Companion.Mood())
}

func (s *Server) personality(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Companion.Personality())
}

func (s *Server) listMemories(c *gin.Context) {
	limit := defaultMemoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.fail(c, apperr.InvalidRequest("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"memories": s.deps.Companion.Memories(limit)})
}

func (s *Server) clearMemories(c *gin.Context) {
	if err := s.deps.Companion.ClearMemories(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// consume answers 204 when nothing is queued.
func (s *Server) consume(c *gin.Context) {
	msg, ok := s.deps.Engagement.Consume()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (s *Server) queue(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"queue": s.deps.Engagement.Peek()})
}

func (s *Server) proactiveStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Engagement.Status())
}

func (s *Server) proactiveConfig(c *gin.Context) {
	var u engage.Update
	if !s.bind(c, &u) {
		return
	}
	if u.Frequency != nil && !u.Frequency.Valid() {
		s.fail(c, apperr.InvalidRequest("frequency must be low, medium or high"))
		return
	}
	if u.CustomDailyLimit != nil && *u.CustomDailyLimit < 0 {
		s.fail(c, apperr.InvalidRequest("custom_daily_limit must not be negative"))
		return
	}
	c.JSON(http.StatusOK, s.deps.Engagement.UpdateConfig(u))
}

func (s *Server) taskStore(c *gin.Context) (TaskStore, bool) {
	if s.deps.Tasks == nil {
		s.fail(c, apperr.Unavailable("task store is not configured"))
		return nil, false
	}
	return s.deps.Tasks, true
}

func (s *Server) listTasks(c *gin.Context) {
	st, ok := s.taskStore(c)
	if !ok {
		return
	}
	var (
		list []tasks.Task
		err  error
	)
	if c.Query("pending") == "true" {
		list, err = st.Pending(c.Request.Context())
	} else {
		list, err = st.List(c.Request.Context())
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	if list == nil {
		list = []tasks.Task{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": list})
}

func (s *Server) addTask(c *gin.Context) {
	st, ok := s.taskStore(c)
	if !ok {
		return
	}
	var in tasks.New
	if !s.bind(c, &in) {
		return
	}
	t, err := st.Add(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) taskSummary(c *gin.Context) {
	st, ok := s.taskStore(c)
	if !ok {
		return
	}
	sum, err := st.Summary(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) getTask(c *gin.Context) {
	st, ok := s.taskStore(c)
	if !ok {
		return
	}
	t, err := st.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) updateTask(c *gin.Context) {
	st, ok := s.taskStore(c)
	if !ok {
		return
	}
	var u tasks.Update
	if !s.bind(c, &u) {
		return
	}
	t, err := st.Update(c.Request.Context(), c.Param("id"), u)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) completeTask(c *gin.Context) {
	st, ok := s.taskStore(c)
	if !ok {
		return
	}
	t, err := st.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTask(c *gin.Context) {
	st, ok := s.taskStore(c)
	if !ok {
		return
	}
	if err := st.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
