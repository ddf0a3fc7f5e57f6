package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/keshon/heartline/internal/affect"
	"github.com/rs/zerolog"
)

// SQLiteRepository stores entries in the memories table. Embeddings, moods
// and metadata are JSON-encoded TEXT columns.
type SQLiteRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteRepository expects the schema created by db.Open.
func NewSQLiteRepository(db *sql.DB, log zerolog.Logger) *SQLiteRepository {
	return &SQLiteRepository{db: db, log: log.With().Str("component", "memory_sqlite").Logger()}
}

func (r *SQLiteRepository) Append(ctx context.Context, e Entry) error {
	embedding, err := marshalNullable(e.Embedding, len(e.Embedding) > 0)
	if err != nil {
		return fmt.Errorf("memory sqlite: marshal embedding: %w", err)
	}
	mood, err := marshalNullable(e.Mood, e.Mood != nil)
	if err != nil {
		return fmt.Errorf("memory sqlite: marshal mood: %w", err)
	}
	meta, err := marshalNullable(e.Metadata, len(e.Metadata) > 0)
	if err != nil {
		return fmt.Errorf("memory sqlite: marshal metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO memories (id, text, embedding, mood, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Text, embedding, mood, meta, e.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("memory sqlite: insert: %w", err)
	}

	r.log.Debug().
		Str("id", e.ID).
		Int("text_len", len(e.Text)).
		Bool("has_embedding", len(e.Embedding) > 0).
		Bool("has_mood", e.Mood != nil).
		Msg("memory stored")
	return nil
}

func (r *SQLiteRepository) All(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, text, embedding, mood, metadata, created_at
		FROM memories
		ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("memory sqlite: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			r.log.Warn().Err(err).Msg("skip malformed memory row")
			continue
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory sqlite: iterate rows: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	raw, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("memory sqlite: marshal embedding: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE memories SET embedding = ? WHERE id = ?`, string(raw), id)
	if err != nil {
		return fmt.Errorf("memory sqlite: update embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory sqlite: no entry %q", id)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM memories`); err != nil {
		return fmt.Errorf("memory sqlite: clear: %w", err)
	}
	return nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e         Entry
		embedding sql.NullString
		mood      sql.NullString
		meta      sql.NullString
		createdMs int64
	)
	if err := rows.Scan(&e.ID, &e.Text, &embedding, &mood, &meta, &createdMs); err != nil {
		return Entry{}, fmt.Errorf("scan row: %w", err)
	}

	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &e.Embedding); err != nil {
			return Entry{}, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	if mood.Valid && mood.String != "" {
		var v affect.Vector
		if err := json.Unmarshal([]byte(mood.String), &v); err != nil {
			return Entry{}, fmt.Errorf("unmarshal mood: %w", err)
		}
		e.Mood = &v
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
			return Entry{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	e.CreatedAt = time.UnixMilli(createdMs).UTC()
	return e, nil
}

func marshalNullable(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

var _ Repository = (*SQLiteRepository)(nil)
