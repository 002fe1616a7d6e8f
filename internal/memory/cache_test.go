package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/persistence"
	"github.com/fyrsmithlabs/recalld/internal/vectorizer"
)

func newTestCache(t *testing.T, cfg CacheConfig) (*Cache, persistence.Adapter) {
	t.Helper()
	vec, err := vectorizer.New(vectorizer.Config{Dimension: 64})
	require.NoError(t, err)
	adapter := persistence.NewMemoryAdapter()
	cache, err := NewCache(cfg, vec, adapter, zap.NewNop())
	require.NoError(t, err)
	return cache, adapter
}

func TestCacheRecord(t *testing.T) {
	cache, _ := newTestCache(t, CacheConfig{})
	ctx := context.Background()

	t.Run("assigns id, embedding and importance", func(t *testing.T) {
		turn, err := cache.Record(ctx, &Turn{
			Question: "how much does the startup plan cost",
			Answer:   "the startup plan is $99/month",
			Meta:     TurnMeta{Confidence: 0.8, Category: "pricing"},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, turn.ID)
		assert.Len(t, turn.Embedding, 64)
		assert.InDelta(t, 0.7, turn.Importance, 1e-9)
		assert.Equal(t, "default", turn.SessionID)
		assert.False(t, turn.Timestamp.IsZero())
	})

	t.Run("requires a question", func(t *testing.T) {
		_, err := cache.Record(ctx, &Turn{Answer: "no question"})
		assert.Error(t, err)
	})

	t.Run("creates and grows the session", func(t *testing.T) {
		turn, err := cache.Record(ctx, &Turn{Question: "plan cost again", SessionID: "s1"})
		require.NoError(t, err)

		session, err := cache.SessionByID("s1")
		require.NoError(t, err)
		assert.Contains(t, session.TurnIDs, turn.ID)
	})
}

func TestCacheFind(t *testing.T) {
	cache, _ := newTestCache(t, CacheConfig{})
	ctx := context.Background()

	_, err := cache.Record(ctx, &Turn{Question: "how do I reset my password", Answer: "use the forgot-password link"})
	require.NoError(t, err)
	_, err = cache.Record(ctx, &Turn{Question: "what are the support hours", Answer: "9-17 CET"})
	require.NoError(t, err)

	t.Run("lexical fast path on near-duplicate question", func(t *testing.T) {
		matches := cache.Find(ctx, "how do I reset my password", nil, 5)
		require.NotEmpty(t, matches)
		assert.Equal(t, "how do I reset my password", matches[0].Turn.Question)
		assert.GreaterOrEqual(t, matches[0].Score, 0.5)
	})

	t.Run("vector fallback finds related turn", func(t *testing.T) {
		matches := cache.Find(ctx, "password", nil, 5)
		require.NotEmpty(t, matches)
		assert.Equal(t, "how do I reset my password", matches[0].Turn.Question)
	})

	t.Run("limit respected", func(t *testing.T) {
		matches := cache.Find(ctx, "support hours password reset", nil, 1)
		assert.LessOrEqual(t, len(matches), 1)
	})

	t.Run("returned matches score positive", func(t *testing.T) {
		for _, m := range cache.Find(ctx, "reset hours", nil, 5) {
			assert.Greater(t, m.Score, 0.0)
		}
	})
}

func TestCacheApplyFeedback(t *testing.T) {
	cache, _ := newTestCache(t, CacheConfig{})
	ctx := context.Background()

	turn, err := cache.Record(ctx, &Turn{Question: "q", Answer: "a", Meta: TurnMeta{Confidence: 0.5}})
	require.NoError(t, err)

	t.Run("rejects out-of-range rating", func(t *testing.T) {
		_, err := cache.ApplyFeedback(turn.ID, 0, "")
		assert.ErrorIs(t, err, ErrInvalidRating)
		_, err = cache.ApplyFeedback(turn.ID, 6, "")
		assert.ErrorIs(t, err, ErrInvalidRating)

		// Rejected feedback mutates nothing.
		got, err := cache.Turn(turn.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Feedback)
	})

	t.Run("unknown turn", func(t *testing.T) {
		_, err := cache.ApplyFeedback("missing", 4, "")
		assert.ErrorIs(t, err, ErrTurnNotFound)
	})

	t.Run("rating raises importance", func(t *testing.T) {
		before, err := cache.Turn(turn.ID)
		require.NoError(t, err)

		rated, err := cache.ApplyFeedback(turn.ID, 5, "great")
		require.NoError(t, err)
		require.NotNil(t, rated.Feedback)
		assert.Equal(t, 5, rated.Feedback.Rating)
		assert.Equal(t, "great", rated.Feedback.Comments)
		assert.Greater(t, rated.Importance, before.Importance)
	})

	t.Run("re-rating with the same value is idempotent", func(t *testing.T) {
		once, err := cache.ApplyFeedback(turn.ID, 4, "")
		require.NoError(t, err)
		twice, err := cache.ApplyFeedback(turn.ID, 4, "")
		require.NoError(t, err)
		assert.InDelta(t, once.Importance, twice.Importance, 1e-9)
	})

	t.Run("re-rating overwrites instead of accumulating", func(t *testing.T) {
		up, err := cache.ApplyFeedback(turn.ID, 5, "")
		require.NoError(t, err)
		down, err := cache.ApplyFeedback(turn.ID, 1, "")
		require.NoError(t, err)
		assert.Less(t, down.Importance, up.Importance)
		assert.Equal(t, 1, down.Feedback.Rating)
	})
}

func TestCacheOptimize(t *testing.T) {
	t.Run("bounded at the hard cap", func(t *testing.T) {
		cache, _ := newTestCache(t, CacheConfig{MaxEntries: 500})
		ctx := context.Background()

		for i := 0; i < 600; i++ {
			_, err := cache.Record(ctx, &Turn{Question: fmt.Sprintf("question number %d", i)})
			require.NoError(t, err)
		}
		assert.LessOrEqual(t, cache.Len(), 500)
	})

	t.Run("drops aged low-value turns", func(t *testing.T) {
		cache, _ := newTestCache(t, CacheConfig{MaxEntries: 100, RetentionWindow: 24 * time.Hour})
		ctx := context.Background()

		old, err := cache.Record(ctx, &Turn{
			Question:  "forgettable",
			Timestamp: time.Now().Add(-48 * time.Hour),
		})
		require.NoError(t, err)

		fresh, err := cache.Record(ctx, &Turn{Question: "recent"})
		require.NoError(t, err)

		result := cache.Optimize()
		assert.Equal(t, 1, result.Evicted)

		_, err = cache.Turn(old.ID)
		assert.ErrorIs(t, err, ErrTurnNotFound)
		_, err = cache.Turn(fresh.ID)
		assert.NoError(t, err)
	})

	t.Run("well-rated turns survive regardless of age", func(t *testing.T) {
		cache, _ := newTestCache(t, CacheConfig{MaxEntries: 100, RetentionWindow: 24 * time.Hour})
		ctx := context.Background()

		rated, err := cache.Record(ctx, &Turn{
			Question:  "valuable",
			Timestamp: time.Now().Add(-48 * time.Hour),
		})
		require.NoError(t, err)
		_, err = cache.ApplyFeedback(rated.ID, 5, "")
		require.NoError(t, err)

		cache.Optimize()
		_, err = cache.Turn(rated.ID)
		assert.NoError(t, err)
	})

	t.Run("high importance survives regardless of age", func(t *testing.T) {
		cache, _ := newTestCache(t, CacheConfig{MaxEntries: 100, RetentionWindow: 24 * time.Hour})
		ctx := context.Background()

		urgent, err := cache.Record(ctx, &Turn{
			Question:  "urgent pricing emergency on the startup plan",
			Timestamp: time.Now().Add(-48 * time.Hour),
			Meta:      TurnMeta{Confidence: 0.9, Category: "pricing"},
		})
		require.NoError(t, err)
		require.Greater(t, urgent.Importance, 0.7)

		cache.Optimize()
		_, err = cache.Turn(urgent.ID)
		assert.NoError(t, err)
	})

	t.Run("idempotent with no writes between runs", func(t *testing.T) {
		cache, _ := newTestCache(t, CacheConfig{MaxEntries: 10})
		ctx := context.Background()
		for i := 0; i < 20; i++ {
			_, err := cache.Record(ctx, &Turn{Question: fmt.Sprintf("q %d", i)})
			require.NoError(t, err)
		}

		first := cache.Optimize()
		second := cache.Optimize()
		assert.Equal(t, first.After, second.Before)
		assert.Zero(t, second.Evicted)
	})

	t.Run("eviction removes the turn from its session", func(t *testing.T) {
		cache, _ := newTestCache(t, CacheConfig{MaxEntries: 100, RetentionWindow: 24 * time.Hour})
		ctx := context.Background()

		old, err := cache.Record(ctx, &Turn{
			Question:  "stale",
			SessionID: "s1",
			Timestamp: time.Now().Add(-48 * time.Hour),
		})
		require.NoError(t, err)

		cache.Optimize()
		session, err := cache.SessionByID("s1")
		require.NoError(t, err)
		assert.NotContains(t, session.TurnIDs, old.ID)
	})
}

func TestCachePersistence(t *testing.T) {
	vec, err := vectorizer.New(vectorizer.Config{Dimension: 64})
	require.NoError(t, err)
	adapter := persistence.NewMemoryAdapter()
	ctx := context.Background()

	first, err := NewCache(CacheConfig{}, vec, adapter, zap.NewNop())
	require.NoError(t, err)
	turn, err := first.Record(ctx, &Turn{Question: "survives restart", SessionID: "s1"})
	require.NoError(t, err)

	second, err := NewCache(CacheConfig{}, vec, adapter, zap.NewNop())
	require.NoError(t, err)
	got, err := second.Turn(turn.ID)
	require.NoError(t, err)
	assert.Equal(t, "survives restart", got.Question)

	session, err := second.SessionByID("s1")
	require.NoError(t, err)
	assert.Contains(t, session.TurnIDs, turn.ID)
}

func TestSessionTopicDrift(t *testing.T) {
	cache, _ := newTestCache(t, CacheConfig{})
	ctx := context.Background()

	questions := []string{
		"hello there",
		"hi again",
		"what plans do you offer",
		"how much does the subscription cost",
		"is there a discount on the yearly plan",
	}
	for _, q := range questions {
		_, err := cache.Record(ctx, &Turn{Question: q, SessionID: "drift"})
		require.NoError(t, err)
	}

	session, err := cache.SessionByID("drift")
	require.NoError(t, err)
	assert.Equal(t, "pricing", session.Topic)
}

func TestExportImport(t *testing.T) {
	cache, _ := newTestCache(t, CacheConfig{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cache.Record(ctx, &Turn{
			Question:  fmt.Sprintf("question %d", i),
			Answer:    fmt.Sprintf("answer %d", i),
			SessionID: "s1",
		})
		require.NoError(t, err)
	}
	_, err := cache.Record(ctx, &Turn{Question: "other session", SessionID: "s2"})
	require.NoError(t, err)

	t.Run("session export round-trips", func(t *testing.T) {
		data, err := cache.Export("s1")
		require.NoError(t, err)

		fresh, _ := newTestCache(t, CacheConfig{})
		imported, err := fresh.Import(data)
		require.NoError(t, err)
		assert.Equal(t, 3, imported)
		assert.Equal(t, 3, fresh.Len())
	})

	t.Run("empty session id exports everything", func(t *testing.T) {
		data, err := cache.Export("")
		require.NoError(t, err)

		fresh, _ := newTestCache(t, CacheConfig{})
		imported, err := fresh.Import(data)
		require.NoError(t, err)
		assert.Equal(t, 4, imported)
	})

	t.Run("count mismatch rejected", func(t *testing.T) {
		fresh, _ := newTestCache(t, CacheConfig{})
		_, err := fresh.Import([]byte(`{"totalConversations": 5, "conversations": []}`))
		assert.Error(t, err)
	})

	t.Run("import over cap optimizes", func(t *testing.T) {
		data, err := cache.Export("")
		require.NoError(t, err)

		small, _ := newTestCache(t, CacheConfig{MaxEntries: 2, RetentionWindow: time.Nanosecond})
		_, err = small.Import(data)
		require.NoError(t, err)
		assert.LessOrEqual(t, small.Len(), 2)
	})
}
