package memory

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryRepository keeps entries in process only.
type InMemoryRepository struct {
	mu      sync.Mutex
	entries []Entry
}

func NewInMemoryRepository() *InMemoryRepository { return &InMemoryRepository{} }

func (r *InMemoryRepository) Append(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *InMemoryRepository) All(_ context.Context) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...), nil
}

func (r *InMemoryRepository) SetEmbedding(_ context.Context, id string, embedding []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].ID == id {
			r.entries[i].Embedding = embedding
			return nil
		}
	}
	return fmt.Errorf("no entry %q", id)
}

func (r *InMemoryRepository) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	return nil
}
