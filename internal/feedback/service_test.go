package feedback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/knowledge"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/persistence"
	"github.com/fyrsmithlabs/recalld/internal/vectorizer"
)

func newTestService(t *testing.T) (*Service, *knowledge.Store, *memory.Cache) {
	t.Helper()
	vec, err := vectorizer.New(vectorizer.Config{Dimension: 64})
	require.NoError(t, err)
	adapter := persistence.NewMemoryAdapter()

	store, err := knowledge.NewStore(vec, adapter, zap.NewNop())
	require.NoError(t, err)
	cache, err := memory.NewCache(memory.CacheConfig{}, vec, adapter, zap.NewNop())
	require.NoError(t, err)

	svc, err := NewService(store, cache, NewLedger(0), zap.NewNop())
	require.NoError(t, err)
	return svc, store, cache
}

func recordTurn(t *testing.T, cache *memory.Cache, question, answer string) *memory.Turn {
	t.Helper()
	turn, err := cache.Record(context.Background(), &memory.Turn{
		Question: question,
		Answer:   answer,
		Meta:     memory.TurnMeta{Confidence: 0.6},
	})
	require.NoError(t, err)
	return turn
}

func TestRateValidation(t *testing.T) {
	svc, _, cache := newTestService(t)
	ctx := context.Background()
	turn := recordTurn(t, cache, "q", "a")

	assert.ErrorIs(t, svc.Rate(ctx, turn.ID, 0, ""), ErrInvalidFeedback)
	assert.ErrorIs(t, svc.Rate(ctx, turn.ID, 6, ""), ErrInvalidFeedback)
	assert.ErrorIs(t, svc.Rate(ctx, "missing", 4, ""), ErrTurnNotFound)
}

func TestRatePromotes(t *testing.T) {
	svc, store, cache := newTestService(t)
	ctx := context.Background()
	turn := recordTurn(t, cache, "what does the startup plan cost", "$99/month")

	require.NoError(t, svc.Rate(ctx, turn.ID, 5, "spot on"))

	entry, err := store.Get(ctx, "conv-"+turn.ID)
	require.NoError(t, err)
	assert.Equal(t, knowledge.CategoryConversation, entry.Category)
	assert.Equal(t, knowledge.SourceConversation, entry.Source)
	assert.InDelta(t, 1.0, entry.Confidence, 1e-9)
	assert.Contains(t, entry.Content, "what does the startup plan cost")
	assert.Contains(t, entry.Content, "$99/month")
	require.NotNil(t, entry.Meta.Conversation)
	assert.Equal(t, turn.ID, entry.Meta.Conversation.TurnID)
}

func TestRatePromotionIdempotent(t *testing.T) {
	svc, store, cache := newTestService(t)
	ctx := context.Background()
	turn := recordTurn(t, cache, "q", "a")

	require.NoError(t, svc.Rate(ctx, turn.ID, 4, ""))
	countAfterFirst := store.Len()
	require.NoError(t, svc.Rate(ctx, turn.ID, 4, ""))
	assert.Equal(t, countAfterFirst, store.Len())
}

func TestRateSuppresses(t *testing.T) {
	svc, _, cache := newTestService(t)
	ctx := context.Background()
	turn := recordTurn(t, cache, "how do I reset my password", "just reboot the machine")

	require.NoError(t, svc.Rate(ctx, turn.ID, 1, "wrong"))
	assert.Equal(t, 1, svc.Ledger().Len())

	assert.True(t, svc.Ledger().Suppressed(
		"how do I reset my password", turn.Embedding, "just reboot the machine",
	))
	assert.False(t, svc.Ledger().Suppressed(
		"how do I reset my password", turn.Embedding, "use the forgot-password link",
	))
}

func TestRateReRatingWithdrawsPromotion(t *testing.T) {
	svc, store, cache := newTestService(t)
	ctx := context.Background()
	turn := recordTurn(t, cache, "q", "a")

	require.NoError(t, svc.Rate(ctx, turn.ID, 5, ""))
	_, err := store.Get(ctx, "conv-"+turn.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Rate(ctx, turn.ID, 1, "changed my mind"))
	_, err = store.Get(ctx, "conv-"+turn.ID)
	assert.ErrorIs(t, err, knowledge.ErrNotFound)
	assert.Equal(t, 1, svc.Ledger().Len())
}

func TestRateNeutralMutatesNothing(t *testing.T) {
	svc, store, cache := newTestService(t)
	ctx := context.Background()
	turn := recordTurn(t, cache, "q", "a")

	require.NoError(t, svc.Rate(ctx, turn.ID, 3, "meh"))
	assert.Zero(t, store.Len())
	assert.Zero(t, svc.Ledger().Len())

	got, err := cache.Turn(turn.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, 3, got.Feedback.Rating)
}

func TestLedger(t *testing.T) {
	t.Run("bounded at capacity, oldest evicted", func(t *testing.T) {
		ledger := NewLedger(3)
		for _, id := range []string{"t1", "t2", "t3", "t4"} {
			ledger.Add(SuppressedAnswer{TurnID: id, Question: "q " + id, AnswerPrefix: "a " + id, Rating: 1})
		}
		assert.Equal(t, 3, ledger.Len())
		entries := ledger.Entries()
		assert.Equal(t, "t2", entries[0].TurnID)
		assert.Equal(t, "t4", entries[2].TurnID)
	})

	t.Run("same turn overwrites", func(t *testing.T) {
		ledger := NewLedger(10)
		ledger.Add(SuppressedAnswer{TurnID: "t1", Question: "q", AnswerPrefix: "first", Rating: 2})
		ledger.Add(SuppressedAnswer{TurnID: "t1", Question: "q", AnswerPrefix: "second", Rating: 1})
		require.Equal(t, 1, ledger.Len())
		assert.Equal(t, "second", ledger.Entries()[0].AnswerPrefix)
	})

	t.Run("long answers keep only a prefix", func(t *testing.T) {
		ledger := NewLedger(10)
		long := make([]byte, 500)
		for i := range long {
			long[i] = 'x'
		}
		ledger.Add(SuppressedAnswer{TurnID: "t1", Question: "q", AnswerPrefix: string(long)})
		assert.Len(t, ledger.Entries()[0].AnswerPrefix, answerPrefixLen)
	})

	t.Run("suppression needs question and answer overlap", func(t *testing.T) {
		ledger := NewLedger(10)
		ledger.Add(SuppressedAnswer{
			TurnID:       "t1",
			Question:     "how do I reset my password",
			AnswerPrefix: "just reboot the machine",
			Rating:       1,
		})

		// Same question, same bad answer: suppressed.
		assert.True(t, ledger.Suppressed("how do I reset my password", nil, "just reboot the machine"))
		// Same question, different answer: allowed.
		assert.False(t, ledger.Suppressed("how do I reset my password", nil, "use the forgot-password link"))
		// Different question, same answer text: allowed.
		assert.False(t, ledger.Suppressed("completely unrelated topic here", nil, "just reboot the machine"))
	})
}
