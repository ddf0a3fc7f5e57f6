package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keshon/heartline/internal/ai"
	"github.com/keshon/heartline/internal/companion"
	"github.com/keshon/heartline/internal/config"
	"github.com/keshon/heartline/internal/db"
	"github.com/keshon/heartline/internal/engage"
	"github.com/keshon/heartline/internal/memory"
	"github.com/keshon/heartline/internal/tasks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

type scriptedProvider struct {
	reply string
	err   error
}

func (p scriptedProvider) Generate(context.Context, []ai.Message) (string, error) {
	return p.reply, p.err
}

type env struct {
	srv     http.Handler
	session *companion.Session
	sched   *engage.Scheduler
	tasks   *tasks.Store
}

func newEnv(t *testing.T, p ai.Provider) env {
	t.Helper()
	conn, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := tasks.NewStore(conn, zerolog.Nop())
	idx := memory.NewIndex(memory.NewInMemoryRepository(), nil, zerolog.Nop())
	session := companion.New(config.DefaultPersona(), companion.Deps{
		Provider: p,
		Memory:   idx,
		Tasks:    store,
		Log:      zerolog.Nop(),
	})
	sched := engage.New(session, zerolog.Nop(), engage.WithTasks(store))
	session.SetNotifier(sched)
	t.Cleanup(sched.Wait)

	srv := New(Deps{Companion: session, Engagement: sched, Tasks: store, Log: zerolog.Nop()})
	return env{srv: srv.Handler(), session: session, sched: sched, tasks: store}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	e := newEnv(t, scriptedProvider{reply: "hi"})
	w := do(t, e.srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestChat(t *testing.T) {
	e := newEnv(t, scriptedProvider{reply: `Hello!<metadata>{"emotion": "happy", "affinity_change": 2}</metadata>`})

	w := do(t, e.srv, http.MethodPost, "/api/chat", chatRequest{Message: "hi"})
	require.Equal(t, http.StatusOK, w.Code)

	var reply companion.Reply
	decode(t, w, &reply)
	assert.Equal(t, "Hello!", reply.Text)
	assert.Equal(t, 37, reply.Affinity)

	w = do(t, e.srv, http.MethodGet, "/api/history", nil)
	var h struct {
		History []companion.Turn `json:"history"`
	}
	decode(t, w, &h)
	assert.Len(t, h.History, 2)
}

func TestChat_Errors(t *testing.T) {
	e := newEnv(t, scriptedProvider{reply: "hi"})

	w := do(t, e.srv, http.MethodPost, "/api/chat", chatRequest{Message: "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"INVALID_REQUEST"`)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_Degraded(t *testing.T) {
	e := newEnv(t, scriptedProvider{err: errors.New("down")})
	w := do(t, e.srv, http.MethodPost, "/api/chat", chatRequest{Message: "hi"})
	require.Equal(t, http.StatusOK, w.Code)

	var reply companion.Reply
	decode(t, w, &reply)
	assert.True(t, reply.Degraded)
}

func TestState(t *testing.T) {
	e := newEnv(t, scriptedProvider{reply: "hi"})

	w := do(t, e.srv, http.MethodPut, "/api/state", map[string]any{"affinity": 70, "nickname": "Sam"})
	require.Equal(t, http.StatusOK, w.Code)
	var v companion.View
	decode(t, w, &v)
	assert.Equal(t, 70, v.Affinity)
	assert.Equal(t, "Sam", v.Nickname)
	assert.Equal(t, "flirty", string(v.Level))

	w = do(t, e.srv, http.MethodPut, "/api/state", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, e.srv, http.MethodPost, "/api/history/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &v)
	assert.Equal(t, 35, v.Affinity)
}

func TestSystemPrompt(t *testing.T) {
	e := newEnv(t, scriptedProvider{reply: "hi"})

	w := do(t, e.srv, http.MethodPut, "/api/system-prompt", promptBody{Prompt: "Be brief."})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, e.srv, http.MethodGet, "/api/system-prompt", nil)
	var body promptBody
	decode(t, w, &body)
	assert.Equal(t, "Be brief.", body.Prompt)
}

func TestMoodAndPersonality(t *testing.T) {
	e := newEnv(t, scriptedProvider{reply: "hi"})

	w := do(t, e.srv, http.MethodGet, "/api/mood", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mood map[string]any
	decode(t, w, &mood)
	assert.Contains(t, mood, "label")
	assert.Contains(t, mood, "baseline")

	w = do(t, e.srv, http.MethodGet, "/api/personality", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pv companion.PersonalityView
	decode(t, w, &pv)
	assert.Equal(t, 60.0, pv.Traits.Security)
}

func TestProactive(t *testing.T) {
	e := newEnv(t, scriptedProvider{reply: `Thinking of you~<metadata>{"emotion": "shy"}</metadata>`})

	w := do(t, e.srv, http.MethodGet, "/api/proactive/consume", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	require.True(t, e.sched.Enqueue(context.Background(), engage.RandomChat, engage.Payload{}))

	w = do(t, e.srv, http.MethodGet, "/api/proactive/queue", nil)
	var q struct {
		Queue []engage.QueuedSummary `json:"queue"`
	}
	decode(t, w, &q)
	require.Len(t, q.Queue, 1)
	assert.Equal(t, engage.RandomChat, q.Queue[0].Reason)

	w = do(t, e.srv, http.MethodGet, "/api/proactive/consume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var msg engage.Message
	decode(t, w, &msg)
	assert.Equal(t, "Thinking of you~", msg.Content)
	assert.Equal(t, "shy", msg.Emotion)

	w = do(t, e.srv, http.MethodGet, "/api/proactive/status", nil)
	var st engage.Status
	decode(t, w, &st)
	assert.Equal(t, 1, st.SentToday)
	assert.Equal(t, 5, st.DailyLimit)
}

func TestProactiveConfig(t *testing.T) {
	e := newEnv(t, scriptedProvider{reply: "hi"})

	w := do(t, e.srv, http.MethodPut, "/api/proactive/config", map[string]any{
		"frequency":          "high",
		"custom_daily_limit": 4,
		"enabled_types":      []string{"morning_greeting", "bogus"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var cfg engage.Config
	decode(t, w, &cfg)
	assert.Equal(t, engage.TierHigh, cfg.Frequency)
	require.NotNil(t, cfg.CustomDailyLimit)
	assert.Equal(t, 4, *cfg.CustomDailyLimit)
	assert.Equal(t, []engage.Trigger{engage.MorningGreeting}, cfg.EnabledTypes)

	w = do(t, e.srv, http.MethodPut, "/api/proactive/config", map[string]any{"frequency": "extreme"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTasks(t *testing.T) {
	e := newEnv(t, scriptedProvider{reply: "hi"})
	due := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)

	w := do(t, e.srv, http.MethodPost, "/api/tasks", tasks.New{Title: "water plants", DueAt: &due})
	require.Equal(t, http.StatusCreated, w.Code)
	var created tasks.Task
	decode(t, w, &created)
	assert.Equal(t, "water plants", created.Title)

	w = do(t, e.srv, http.MethodPost, "/api/tasks", tasks.New{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, e.srv, http.MethodPost, "/api/tasks/"+created.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, e.srv, http.MethodGet, "/api/tasks?pending=true", nil)
	var list struct {
		Tasks []tasks.Task `json:"tasks"`
	}
	decode(t, w, &list)
	assert.Empty(t, list.Tasks)

	w = do(t, e.srv, http.MethodGet, "/api/tasks/summary", nil)
	var sum tasks.Summary
	decode(t, w, &sum)
	assert.Equal(t, tasks.Summary{Total: 1, Completed: 1}, sum)

	w = do(t, e.srv, http.MethodDelete, "/api/tasks/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, e.srv, http.MethodGet, "/api/tasks/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"NOT_FOUND"`)
}

func TestTasks_Unconfigured(t *testing.T) {
	srv := New(Deps{Log: zerolog.Nop()})
	w := do(t, srv.Handler(), http.MethodGet, "/api/tasks", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMemories(t *testing.T) {
	e := newEnv(t, scriptedProvider{reply: "Nice!"})
	_, err := e.session.Chat(context.Background(), "I got a new bike")
	require.NoError(t, err)

	w := do(t, e.srv, http.MethodGet, "/api/memories?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Memories []memory.Entry `json:"memories"`
	}
	decode(t, w, &body)
	require.Len(t, body.Memories, 1)

	w = do(t, e.srv, http.MethodGet, "/api/memories?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, e.srv, http.MethodDelete, "/api/memories", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, e.session.State().MemoryCount)
}
