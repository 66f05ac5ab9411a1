package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder produces deterministic embeddings from word-hash buckets so
// that texts sharing words land near each other.
type mockEmbedder struct {
	available bool
	failWith  error
	calls     int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	emb := make([]float32, 8)
	for _, w := range Tokenize(text) {
		h := 0
		for _, r := range w {
			h = h*31 + int(r)
		}
		if h < 0 {
			h = -h
		}
		emb[h%len(emb)] += 1
	}
	return NormalizeVector(emb), nil
}

func (m *mockEmbedder) Available() bool { return m.available }

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *SQLiteStore) {
	t.Helper()
	store := newTestStore(t, 100)
	opts = append([]ServiceOption{WithClock(testClock())}, opts...)
	return NewService(store, opts...), store
}

func seedMemories(t *testing.T, store *SQLiteStore, records ...MemoryRecord) {
	t.Helper()
	for _, rec := range records {
		require.NoError(t, store.Insert(context.Background(), rec))
	}
}

func TestSearchValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	t.Run("missing owner", func(t *testing.T) {
		result := svc.Search(ctx, "", "query", SearchOptions{})
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "owner")
	})

	t.Run("missing query", func(t *testing.T) {
		result := svc.Search(ctx, "alice", "   ", SearchOptions{})
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "query")
	})

	t.Run("unknown strategy", func(t *testing.T) {
		result := svc.Search(ctx, "alice", "query", SearchOptions{Strategy: "psychic"})
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "psychic")
	})

	t.Run("uninitialized store", func(t *testing.T) {
		bare := NewService(nil)
		result := bare.Search(ctx, "alice", "query", SearchOptions{})
		assert.False(t, result.Success)
		assert.Equal(t, ErrNotInitialized.Error(), result.Error)
	})
}

func TestSearchKeywordStrategy(t *testing.T) {
	svc, store := newTestService(t)
	now := testClock()()

	seedMemories(t, store,
		MemoryRecord{ID: "m1", Owner: "alice", Content: "Python list comprehensions", Type: MemoryTypeFact, CreatedAt: now.Add(-time.Hour)},
		MemoryRecord{ID: "m2", Owner: "alice", Content: "Python virtual environments", Type: MemoryTypeFact, CreatedAt: now.Add(-time.Hour)},
		MemoryRecord{ID: "m3", Owner: "alice", Content: "Java garbage collection", Type: MemoryTypeFact, CreatedAt: now.Add(-time.Hour)},
	)

	result := svc.Search(context.Background(), "alice", "Python", SearchOptions{Strategy: StrategyKeyword, Limit: 2})
	require.True(t, result.Success)
	require.Len(t, result.Results, 2)

	for _, r := range result.Results {
		assert.Contains(t, []string{"m1", "m2"}, r.ID)
	}
}

func TestSearchTimeRangeFilter(t *testing.T) {
	svc, store := newTestService(t)
	now := testClock()()

	// The strongest lexical match is two days old; the hour window must
	// exclude it even though it would rank first.
	seedMemories(t, store,
		MemoryRecord{ID: "m_old", Owner: "alice", Content: "deploy checklist deploy checklist", Type: MemoryTypeFact, CreatedAt: now.Add(-48 * time.Hour)},
		MemoryRecord{ID: "m_new", Owner: "alice", Content: "notes about the deploy", Type: MemoryTypeFact, CreatedAt: now.Add(-30 * time.Minute)},
	)

	result := svc.Search(context.Background(), "alice", "deploy checklist", SearchOptions{
		Strategy:  StrategyKeyword,
		TimeRange: TimeRangeHour,
	})
	require.True(t, result.Success)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "m_new", result.Results[0].ID)
}

func TestSearchSemanticFallsBackWithoutEmbedder(t *testing.T) {
	svc, store := newTestService(t)
	now := testClock()()

	seedMemories(t, store,
		MemoryRecord{ID: "m1", Owner: "alice", Content: "gardening tips for tomatoes", Type: MemoryTypeFact, CreatedAt: now},
	)

	result := svc.Search(context.Background(), "alice", "gardening tips", SearchOptions{Strategy: StrategySemantic})
	require.True(t, result.Success, "semantic search degrades to keyword matching, not failure")
	require.Len(t, result.Results, 1)

	metrics := svc.Metrics()
	assert.Equal(t, int64(1), metrics.Fallbacks)
}

func TestSearchSemanticWithEmbedder(t *testing.T) {
	emb := &mockEmbedder{available: true}
	svc, store := newTestService(t, WithEmbedder(emb))
	now := testClock()()

	embed := func(text string) []float32 {
		v, err := emb.Embed(context.Background(), text)
		require.NoError(t, err)
		return v
	}

	seedMemories(t, store,
		MemoryRecord{ID: "m1", Owner: "alice", Content: "golang channels tutorial", Type: MemoryTypeFact, CreatedAt: now, Embedding: embed("golang channels tutorial")},
		MemoryRecord{ID: "m2", Owner: "alice", Content: "sourdough starter feeding", Type: MemoryTypeFact, CreatedAt: now, Embedding: embed("sourdough starter feeding")},
	)

	result := svc.Search(context.Background(), "alice", "golang channels tutorial", SearchOptions{Strategy: StrategySemantic, Limit: 1})
	require.True(t, result.Success)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "m1", result.Results[0].ID)
	require.NotNil(t, result.Results[0].Breakdown)
	assert.InDelta(t, 1.0, result.Results[0].Breakdown.Factors[FactorSemantic], 1e-6)
}

func TestSearchEmbedderFailureDegrades(t *testing.T) {
	emb := &mockEmbedder{available: true, failWith: errors.New("connection refused")}
	svc, store := newTestService(t, WithEmbedder(emb))
	now := testClock()()

	seedMemories(t, store,
		MemoryRecord{ID: "m1", Owner: "alice", Content: "backup schedule notes", Type: MemoryTypeFact, CreatedAt: now},
	)

	result := svc.Search(context.Background(), "alice", "backup schedule", SearchOptions{Strategy: StrategyHierarchical})
	require.True(t, result.Success)
	assert.Len(t, result.Results, 1)
	assert.Equal(t, int64(1), svc.Metrics().Fallbacks)
}

func TestSearchOmitMetadata(t *testing.T) {
	svc, store := newTestService(t)
	now := testClock()()

	rec := MemoryRecord{ID: "m1", Owner: "alice", Content: "tagged memory", Type: MemoryTypeFact, CreatedAt: now, Metadata: map[string]any{"k": "v"}}
	seedMemories(t, store, rec)

	kept := svc.Search(context.Background(), "alice", "tagged memory", SearchOptions{Strategy: StrategyKeyword})
	require.True(t, kept.Success)
	require.Len(t, kept.Results, 1)
	assert.Equal(t, "v", kept.Results[0].Metadata["k"])

	stripped := svc.Search(context.Background(), "alice", "tagged memory", SearchOptions{Strategy: StrategyKeyword, OmitMetadata: true})
	require.True(t, stripped.Success)
	require.Len(t, stripped.Results, 1)
	assert.Nil(t, stripped.Results[0].Metadata)
}

func TestAddAndDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Add(ctx, "alice", "remember the milk", "", "sess_1", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, MemoryTypeConversation, rec.Type, "empty type defaults to conversation")

	require.NoError(t, svc.Delete(ctx, "alice", rec.ID))
	assert.ErrorIs(t, svc.Delete(ctx, "alice", rec.ID), ErrNotFound)

	t.Run("validation", func(t *testing.T) {
		_, err := svc.Add(ctx, "", "content", MemoryTypeFact, "", nil)
		assert.ErrorIs(t, err, ErrValidation)
		_, err = svc.Add(ctx, "alice", "  ", MemoryTypeFact, "", nil)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestGetSessionMemories(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	now := testClock()()

	for i := 0; i < 6; i++ {
		rec := MemoryRecord{
			ID:        fmt.Sprintf("m%d", i),
			Owner:     "alice",
			Content:   fmt.Sprintf("turn %d", i),
			Type:      MemoryTypeConversation,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
			SessionID: "sess_1",
		}
		require.NoError(t, store.Insert(ctx, rec))
	}

	t.Run("full session in order", func(t *testing.T) {
		records, err := svc.GetSessionMemories(ctx, "alice", "sess_1", 0, "")
		require.NoError(t, err)
		require.Len(t, records, 6)
		assert.Equal(t, "m0", records[0].ID)
	})

	t.Run("limit keeps the newest tail", func(t *testing.T) {
		records, err := svc.GetSessionMemories(ctx, "alice", "sess_1", 2, "")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "m4", records[0].ID)
		assert.Equal(t, "m5", records[1].ID)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := svc.GetSessionMemories(ctx, "", "sess_1", 0, "")
		assert.ErrorIs(t, err, ErrValidation)
		_, err = svc.GetSessionMemories(ctx, "alice", "", 0, "")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestCleanupSession(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	now := testClock()()

	mk := func(id, owner, session string) MemoryRecord {
		return MemoryRecord{ID: id, Owner: owner, Content: "c", Type: MemoryTypeConversation, CreatedAt: now, SessionID: session}
	}
	seedMemories(t, store,
		mk("m1", "alice", "sess_x"),
		mk("m2", "bob", "sess_x"),
		mk("m3", "bob", "sess_y"),
	)

	removed, err := svc.CleanupSession(ctx, "sess_x")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	left, err := svc.GetSessionMemories(ctx, "bob", "sess_y", 0, "")
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestClear(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	now := testClock()()

	seedMemories(t, store,
		MemoryRecord{ID: "m1", Owner: "alice", Content: "a", Type: MemoryTypeFact, CreatedAt: now},
		MemoryRecord{ID: "m2", Owner: "alice", Content: "b", Type: MemoryTypeFact, CreatedAt: now},
	)

	removed, err := svc.Clear(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}

func TestServiceScore(t *testing.T) {
	svc, _ := newTestService(t)
	now := testClock()()

	scored := svc.Score(context.Background(), MemoryRecord{
		ID:        "m1",
		Content:   "standup notes from today",
		Type:      MemoryTypeConversation,
		CreatedAt: now,
	}, "standup notes")

	assert.Greater(t, scored.Relevance, 0.0)
	require.NotNil(t, scored.Breakdown)
	assert.InDelta(t, 1.0, scored.Breakdown.Factors[FactorKeyword], 1e-9)
}

func TestServiceClusterLoadsOwnerRecords(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	now := testClock()()

	seedMemories(t, store,
		MemoryRecord{ID: "m1", Owner: "alice", Content: "rust borrow checker", Type: MemoryTypeFact, CreatedAt: now},
		MemoryRecord{ID: "m2", Owner: "alice", Content: "rust borrow checker", Type: MemoryTypeFact, CreatedAt: now},
	)

	clusters, err := svc.Cluster(ctx, "alice", nil, DefaultClusterOptions())
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Members, 2)

	t.Run("validation", func(t *testing.T) {
		_, err := svc.Cluster(ctx, "", nil, DefaultClusterOptions())
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestSearchMetrics(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	now := testClock()()

	seedMemories(t, store,
		MemoryRecord{ID: "m1", Owner: "alice", Content: "kubernetes ingress", Type: MemoryTypeFact, CreatedAt: now},
	)

	svc.Search(ctx, "alice", "kubernetes", SearchOptions{Strategy: StrategyKeyword})
	svc.Search(ctx, "alice", "zzzz qqqq completely unrelated", SearchOptions{Strategy: StrategyKeyword, MinConfidence: 0.99})

	metrics := svc.Metrics()
	assert.Equal(t, int64(2), metrics.TotalSearches)
	assert.Equal(t, int64(1), metrics.Hits)
	assert.Equal(t, int64(1), metrics.Misses)
}

func TestUpdateEmbedding(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	now := testClock()()

	seedMemories(t, store,
		MemoryRecord{ID: "m1", Owner: "alice", Content: "content", Type: MemoryTypeFact, CreatedAt: now},
	)

	updated, err := svc.UpdateEmbedding(ctx, "alice", "m1", []float32{0.5, 0.5})
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = svc.UpdateEmbedding(ctx, "alice", "missing", []float32{1})
	require.NoError(t, err)
	assert.False(t, updated)
}
