// Package memory keeps the companion's long-term conversational memory and
// ranks it for recall by semantic similarity and mood resonance, with a
// keyword fallback for entries or deployments without embeddings.
package memory

import (
	"context"
	"time"

	"github.com/keshon/heartline/internal/affect"
)

// Entry is one remembered exchange. Entries are append-only apart from
// embedding backfill.
type Entry struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding,omitempty"`
	Mood      *affect.Vector `json:"mood,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Repository persists entries. Implementations return entries in insertion
// order.
type Repository interface {
	Append(ctx context.Context, e Entry) error
	All(ctx context.Context) ([]Entry, error)
	SetEmbedding(ctx context.Context, id string, embedding []float32) error
	Clear(ctx context.Context) error
}

// Embedder turns text into a vector. A nil vector with a nil error means the
// embedder declined.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
