package memory

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keshon/heartline/internal/affect"
	"github.com/keshon/heartline/pkg/util"
	"github.com/rs/zerolog"
)

const (
	DefaultLimit = 3

	// recallSkipNewest keeps memory-share from repeating what was just said.
	recallSkipNewest = 5
)

// Index is the in-process view of all memories, backed by a Repository.
// Safe for concurrent use. No lock is held while the embedder runs.
type Index struct {
	repo     Repository
	embedder Embedder
	log      zerolog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	entries []Entry
}

// NewIndex creates an empty index. embedder may be nil, in which case only the
// keyword path is used.
func NewIndex(repo Repository, embedder Embedder, log zerolog.Logger) *Index {
	return &Index{
		repo:     repo,
		embedder: embedder,
		log:      log.With().Str("component", "memory").Logger(),
		now:      time.Now,
	}
}

func (ix *Index) SetClock(now func() time.Time) { ix.now = now }

// Load replaces the in-memory entries with the repository contents.
func (ix *Index) Load(ctx context.Context) error {
	entries, err := ix.repo.All(ctx)
	if err != nil {
		return fmt.Errorf("load memories: %w", err)
	}
	ix.mu.Lock()
	ix.entries = entries
	ix.mu.Unlock()
	ix.log.Info().Str("action", "load").Int("entries", len(entries)).Msg("memories loaded")
	return nil
}

// Store appends a memory. Embedding and persistence are best-effort; the
// entry is kept in memory either way. Blank text is ignored.
func (ix *Index) Store(ctx context.Context, text string, mood *affect.Vector, meta map[string]any) (Entry, bool) {
	if strings.TrimSpace(text) == "" {
		return Entry{}, false
	}

	e := Entry{
		ID:        uuid.NewString(),
		Text:      text,
		Embedding: ix.embed(ctx, text),
		Metadata:  meta,
		CreatedAt: ix.now().UTC(),
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{"type": "conversation"}
	}
	if mood != nil {
		m := *mood
		e.Mood = &m
	}

	ix.mu.Lock()
	ix.entries = append(ix.entries, e)
	ix.mu.Unlock()

	if err := ix.repo.Append(ctx, e); err != nil {
		ix.log.Error().Err(err).Str("action", "persist").Str("id", e.ID).Msg("memory write failed")
	}
	return e, true
}

// Retrieve returns up to limit relevant memories joined by newlines, or "".
func (ix *Index) Retrieve(ctx context.Context, query string, mood *affect.Vector, limit int) string {
	if limit <= 0 {
		limit = DefaultLimit
	}

	ix.mu.RLock()
	empty := len(ix.entries) == 0
	ix.mu.RUnlock()
	if empty {
		return ""
	}

	q := ix.embed(ctx, query)

	ix.mu.RLock()
	entries := ix.entries
	ix.mu.RUnlock()

	// Entries stored while the embedder was down have no vector and are only
	// reachable by keyword, so an empty semantic result falls through.
	if len(q) > 0 {
		if texts, ok := rankSemantic(entries, q, mood, limit); ok && len(texts) > 0 {
			ix.log.Debug().Str("action", "retrieve").Str("path", "semantic").Int("hits", len(texts)).Msg("memory recall")
			return strings.Join(texts, "\n")
		}
	}

	texts := rankKeyword(entries, query, limit)
	ix.log.Debug().Str("action", "retrieve").Str("path", "keyword").Int("hits", len(texts)).Msg("memory recall")
	return strings.Join(texts, "\n")
}

// Clear removes every memory.
func (ix *Index) Clear(ctx context.Context) error {
	ix.mu.Lock()
	ix.entries = nil
	ix.mu.Unlock()
	if err := ix.repo.Clear(ctx); err != nil {
		return fmt.Errorf("clear memories: %w", err)
	}
	ix.log.Info().Str("action", "clear").Msg("memories cleared")
	return nil
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// List returns the newest limit entries, oldest first. limit <= 0 returns all.
func (ix *Index) List(limit int) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	src := ix.entries
	if limit > 0 && len(src) > limit {
		src = src[len(src)-limit:]
	}
	return append([]Entry(nil), src...)
}

// Recall picks a random older memory, skipping the newest few when there
// are enough to skip.
func (ix *Index) Recall(rng *rand.Rand) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.entries) == 0 {
		return Entry{}, false
	}
	n := len(ix.entries) - recallSkipNewest
	if n < 1 {
		n = 1
	}
	return ix.entries[rng.Intn(n)], true
}

// Backfill embeds entries stored while the embedder was unavailable and
// returns how many were updated.
func (ix *Index) Backfill(ctx context.Context, workers int) (int, error) {
	if ix.embedder == nil {
		return 0, nil
	}

	ix.mu.RLock()
	var missing []Entry
	for _, e := range ix.entries {
		if len(e.Embedding) == 0 {
			missing = append(missing, e)
		}
	}
	ix.mu.RUnlock()

	var (
		mu      sync.Mutex
		updated int
	)
	err := util.Parallel(ctx, missing, workers, func(ctx context.Context, e Entry) error {
		emb := ix.embed(ctx, e.Text)
		if len(emb) == 0 {
			return nil
		}
		if err := ix.repo.SetEmbedding(ctx, e.ID, emb); err != nil {
			return err
		}
		ix.setEmbedding(e.ID, emb)
		mu.Lock()
		updated++
		mu.Unlock()
		return nil
	})

	ix.log.Info().Str("action", "backfill").Int("missing", len(missing)).Int("updated", updated).Msg("embedding backfill finished")
	if err != nil {
		return updated, fmt.Errorf("backfill: %w", err)
	}
	return updated, nil
}

func (ix *Index) setEmbedding(id string, emb []float32) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i := range ix.entries {
		if ix.entries[i].ID == id {
			// Copy-on-write so slices handed out by Retrieve stay consistent.
			next := append([]Entry(nil), ix.entries...)
			next[i].Embedding = emb
			ix.entries = next
			return
		}
	}
}

func (ix *Index) embed(ctx context.Context, text string) []float32 {
	if ix.embedder == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	v, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		ix.log.Warn().Err(err).Str("action", "embed").Msg("embedding unavailable")
		return nil
	}
	return v
}
