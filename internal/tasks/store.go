// Package tasks is the user's to-do list. Pending tasks are shown to the
// companion in its context and due tasks trigger proactive reminders.
package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/keshon/heartline/internal/apperr"
	"github.com/rs/zerolog"
)

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// New is the input for Add.
type New struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueAt       *time.Time `json:"due_at"`
}

// Update carries optional changes; nil fields are left as they are.
type Update struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	DueAt       *time.Time `json:"due_at"`
	Completed   *bool      `json:"completed"`
}

type Summary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
}

// Store is a SQLite-backed task list.
type Store struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewStore expects the schema created by db.Open.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{db: db, now: time.Now, log: log.With().Str("component", "tasks").Logger()}
}

func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) Add(ctx context.Context, in New) (Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Task{}, apperr.InvalidRequest("title is required")
	}

	t := Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: in.Description,
		DueAt:       utcPtr(in.DueAt),
		CreatedAt:   s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, due_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, NULL, ?)`,
		t.ID, t.Title, t.Description, nullableMillis(t.DueAt), t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return Task{}, fmt.Errorf("tasks: insert: %w", err)
	}
	s.log.Info().Str("action", "add").Str("id", t.ID).Str("title", t.Title).Msg("task added")
	return t, nil
}

func (s *Store) Get(ctx context.Context, id string) (Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, due_at, completed_at, created_at
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, apperr.NotFound("task", id)
	}
	if err != nil {
		return Task{}, fmt.Errorf("tasks: get: %w", err)
	}
	return t, nil
}

// List returns every task, oldest first.
func (s *Store) List(ctx context.Context) ([]Task, error) {
	return s.query(ctx, `
		SELECT id, title, description, due_at, completed_at, created_at
		FROM tasks ORDER BY created_at ASC, id ASC`)
}

// Pending returns incomplete tasks, earliest due first; undated tasks last.
func (s *Store) Pending(ctx context.Context) ([]Task, error) {
	return s.query(ctx, `
		SELECT id, title, description, due_at, completed_at, created_at
		FROM tasks WHERE completed_at IS NULL
		ORDER BY due_at IS NULL, due_at ASC, created_at ASC`)
}

// DueSoon returns incomplete tasks due in (now, now+within].
func (s *Store) DueSoon(ctx context.Context, now time.Time, within time.Duration) ([]Task, error) {
	return s.query(ctx, `
		SELECT id, title, description, due_at, completed_at, created_at
		FROM tasks
		WHERE completed_at IS NULL AND due_at IS NOT NULL AND due_at > ? AND due_at <= ?
		ORDER BY due_at ASC`,
		now.UnixMilli(), now.Add(within).UnixMilli())
}

func (s *Store) Update(ctx context.Context, id string, u Update) (Task, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		if title == "" {
			return Task{}, apperr.InvalidRequest("title cannot be empty")
		}
		t.Title = title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.DueAt != nil {
		t.DueAt = utcPtr(u.DueAt)
	}
	if u.Completed != nil {
		switch {
		case *u.Completed && t.CompletedAt == nil:
			now := s.now().UTC()
			t.CompletedAt = &now
		case !*u.Completed:
			t.CompletedAt = nil
		}
	}
	t.Completed = t.CompletedAt != nil

	_, err = s.db.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, due_at = ?, completed_at = ?
		WHERE id = ?`,
		t.Title, t.Description, nullableMillis(t.DueAt), nullableMillis(t.CompletedAt), t.ID,
	)
	if err != nil {
		return Task{}, fmt.Errorf("tasks: update: %w", err)
	}
	return t, nil
}

// Complete marks a task done.
func (s *Store) Complete(ctx context.Context, id string) (Task, error) {
	done := true
	return s.Update(ctx, id, Update{Completed: &done})
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("tasks: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("task", id)
	}
	s.log.Info().Str("action", "delete").Str("id", id).Msg("task deleted")
	return nil
}

func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN completed_at IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM tasks`).Scan(&sum.Total, &sum.Completed)
	if err != nil {
		return Summary{}, fmt.Errorf("tasks: summary: %w", err)
	}
	sum.Pending = sum.Total - sum.Completed
	return sum, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("tasks: query: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("tasks: scan: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tasks: iterate rows: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(r scanner) (Task, error) {
	var (
		t         Task
		due, done sql.NullInt64
		created   int64
	)
	if err := r.Scan(&t.ID, &t.Title, &t.Description, &due, &done, &created); err != nil {
		return Task{}, err
	}
	t.DueAt = fromMillis(due)
	t.CompletedAt = fromMillis(done)
	t.Completed = t.CompletedAt != nil
	t.CreatedAt = time.UnixMilli(created).UTC()
	return t, nil
}

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
