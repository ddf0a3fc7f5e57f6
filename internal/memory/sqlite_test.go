package memory

import (
	"context"
	"testing"
	"time"

	"github.com/keshon/heartline/internal/affect"
	"github.com/keshon/heartline/internal/db"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(t.TempDir())
	require.NoError(t, err)
	defer conn.Close()

	repo := NewSQLiteRepository(conn, zerolog.Nop())
	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	require.NoError(t, repo.Append(ctx, Entry{ID: "a", Text: "first", CreatedAt: created}))
	require.NoError(t, repo.Append(ctx, Entry{
		ID:        "b",
		Text:      "second",
		Embedding: []float32{0.5, -0.25},
		Mood:      &affect.Vector{P: 0.2, A: -0.1, D: 0.3},
		Metadata:  map[string]any{"type": "conversation"},
		CreatedAt: created.Add(time.Minute),
	}))

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	assert.Equal(t, "first", all[0].Text)
	assert.Nil(t, all[0].Embedding)
	assert.Nil(t, all[0].Mood)
	assert.True(t, created.Equal(all[0].CreatedAt))

	assert.Equal(t, []float32{0.5, -0.25}, all[1].Embedding)
	assert.Equal(t, affect.Vector{P: 0.2, A: -0.1, D: 0.3}, *all[1].Mood)
	assert.Equal(t, "conversation", all[1].Metadata["type"])

	require.NoError(t, repo.SetEmbedding(ctx, "a", []float32{1}))
	assert.Error(t, repo.SetEmbedding(ctx, "missing", []float32{1}))

	all, err = repo.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, all[0].Embedding)

	require.NoError(t, repo.Clear(ctx))
	all, err = repo.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestIndex_LoadsFromSQLite(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(t.TempDir())
	require.NoError(t, err)
	defer conn.Close()

	repo := NewSQLiteRepository(conn, zerolog.Nop())
	ix := NewIndex(repo, nil, zerolog.Nop())
	ix.Store(ctx, "User: I love jazz", nil, nil)

	reloaded := NewIndex(repo, nil, zerolog.Nop())
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 1, reloaded.Len())
	assert.Equal(t, "User: I love jazz", reloaded.Retrieve(ctx, "jazz", nil, 3))
}
