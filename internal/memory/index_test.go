package memory

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/keshon/heartline/internal/affect"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keyedEmbedder returns a fixed vector for any text containing one of its keys.
type keyedEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	calls   int
}

func (k *keyedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls++
	if k.err != nil {
		return nil, k.err
	}
	for key, v := range k.vectors {
		if strings.Contains(text, key) {
			return v, nil
		}
	}
	return nil, nil
}

func TestRetrieve_EmptyStore(t *testing.T) {
	ix := NewIndex(NewInMemoryRepository(), &keyedEmbedder{}, zerolog.Nop())
	assert.Equal(t, "", ix.Retrieve(context.Background(), "anything", nil, 3))
}

func TestRetrieve_NoOverlapNoEmbeddings(t *testing.T) {
	ctx := context.Background()
	ix := NewIndex(NewInMemoryRepository(), nil, zerolog.Nop())
	ix.Store(ctx, "we talked about the beach", nil, nil)

	assert.Equal(t, "", ix.Retrieve(ctx, "quantum chromodynamics", nil, 3))
}

func TestRetrieve_KeywordRanking(t *testing.T) {
	ctx := context.Background()
	ix := NewIndex(NewInMemoryRepository(), nil, zerolog.Nop())
	ix.Store(ctx, "User: my cat is sick", nil, nil)
	ix.Store(ctx, "User: my cat and dog fought", nil, nil)
	ix.Store(ctx, "User: the dog barked", nil, nil)
	ix.Store(ctx, "User: nothing relevant", nil, nil)

	got := ix.Retrieve(ctx, "Cat dog dog", nil, 3)
	assert.Equal(t, "User: my cat and dog fought\nUser: my cat is sick\nUser: the dog barked", got)

	got = ix.Retrieve(ctx, "cat", nil, 1)
	assert.Equal(t, "User: my cat is sick", got, "ties keep insertion order")
}

func TestRetrieve_EmbedderFailureFallsBackToKeywords(t *testing.T) {
	ctx := context.Background()
	emb := &keyedEmbedder{err: errors.New("503")}
	ix := NewIndex(NewInMemoryRepository(), emb, zerolog.Nop())
	ix.Store(ctx, "we went hiking", nil, nil)

	assert.Equal(t, "we went hiking", ix.Retrieve(ctx, "hiking trip", nil, 3))
}

func TestRetrieve_SemanticWithMoodResonance(t *testing.T) {
	ctx := context.Background()
	emb := &keyedEmbedder{vectors: map[string][]float32{
		"rain":   {1, 0, 0},
		"storm":  {0.9, 0.1, 0},
		"picnic": {0, 1, 0},
	}}
	ix := NewIndex(NewInMemoryRepository(), emb, zerolog.Nop())

	sad := affect.Vector{P: -0.8, A: -0.3, D: -0.2}
	happy := affect.Vector{P: 0.8, A: 0.4, D: 0.2}
	ix.Store(ctx, "rain on the window", &happy, nil)
	ix.Store(ctx, "storm knocked the power out", &sad, nil)
	ix.Store(ctx, "picnic in the park", &happy, nil)

	// Semantic alone favors "rain"; a sad current mood pulls the sad memory up.
	got := ix.Retrieve(ctx, "rain again", &sad, 3)
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 2, "picnic is below the similarity threshold")
	assert.Equal(t, "storm knocked the power out", lines[0])

	got = ix.Retrieve(ctx, "rain again", &happy, 3)
	assert.Equal(t, "rain on the window", strings.Split(got, "\n")[0])
}

func TestRetrieve_SemanticBelowThresholdIsEmpty(t *testing.T) {
	ctx := context.Background()
	emb := &keyedEmbedder{vectors: map[string][]float32{
		"picnic": {0, 1, 0},
		"rain":   {1, 0, 0},
	}}
	ix := NewIndex(NewInMemoryRepository(), emb, zerolog.Nop())
	ix.Store(ctx, "picnic in the park", nil, nil)

	assert.Equal(t, "", ix.Retrieve(ctx, "rain today", nil, 3))
}

func TestRetrieve_MixedStoreFallsBackToKeywords(t *testing.T) {
	ctx := context.Background()
	emb := &keyedEmbedder{vectors: map[string][]float32{
		"cat":     {1, 0, 0},
		"weather": {0, 1, 0},
	}}
	ix := NewIndex(NewInMemoryRepository(), emb, zerolog.Nop())
	ix.Store(ctx, "I love my cat", nil, nil)
	// No key matches, so this entry is stored without a vector.
	ix.Store(ctx, "my birthday is in june", nil, nil)

	assert.Equal(t, "my birthday is in june", ix.Retrieve(ctx, "weather birthday june", nil, 3))
	assert.Equal(t, "I love my cat", ix.Retrieve(ctx, "cat", nil, 3), "semantic hits still win")
}

func TestStore_IgnoresBlankAndCopiesMood(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	ix := NewIndex(repo, nil, zerolog.Nop())

	_, ok := ix.Store(ctx, "   ", nil, nil)
	assert.False(t, ok)

	mood := affect.Vector{P: 0.1}
	e, ok := ix.Store(ctx, "hello", &mood, nil)
	require.True(t, ok)
	mood.P = 0.9

	assert.Equal(t, 0.1, e.Mood.P)
	assert.Equal(t, "conversation", e.Metadata["type"])
	all, _ := repo.All(ctx)
	assert.Len(t, all, 1)
	assert.NotEmpty(t, e.ID)
}

func TestRecall_SkipsNewest(t *testing.T) {
	ctx := context.Background()
	ix := NewIndex(NewInMemoryRepository(), nil, zerolog.Nop())

	_, ok := ix.Recall(rand.New(rand.NewSource(1)))
	assert.False(t, ok)

	for _, s := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		ix.Store(ctx, s, nil, nil)
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		e, ok := ix.Recall(rng)
		require.True(t, ok)
		assert.Contains(t, []string{"a", "b"}, e.Text)
	}
}

func TestClearAndList(t *testing.T) {
	ctx := context.Background()
	ix := NewIndex(NewInMemoryRepository(), nil, zerolog.Nop())
	ix.Store(ctx, "one", nil, nil)
	ix.Store(ctx, "two", nil, nil)
	ix.Store(ctx, "three", nil, nil)

	list := ix.List(2)
	require.Len(t, list, 2)
	assert.Equal(t, "two", list[0].Text)

	require.NoError(t, ix.Clear(ctx))
	assert.Equal(t, 0, ix.Len())
	assert.Equal(t, "", ix.Retrieve(ctx, "one", nil, 3))
}

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	emb := &keyedEmbedder{err: errors.New("offline")}
	ix := NewIndex(repo, emb, zerolog.Nop())
	ix.Store(ctx, "rain one", nil, nil)
	ix.Store(ctx, "rain two", nil, nil)
	ix.Store(ctx, "nothing", nil, nil)

	emb.mu.Lock()
	emb.err = nil
	emb.vectors = map[string][]float32{"rain": {1, 0}}
	emb.mu.Unlock()

	n, err := ix.Backfill(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, _ := repo.All(ctx)
	assert.NotEmpty(t, all[0].Embedding)
	assert.Empty(t, all[2].Embedding)
	assert.Equal(t, "rain one\nrain two", ix.Retrieve(ctx, "rain", nil, 3))
}
