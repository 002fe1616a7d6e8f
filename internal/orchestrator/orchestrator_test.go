package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/feedback"
	"github.com/fyrsmithlabs/recalld/internal/knowledge"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/persistence"
	"github.com/fyrsmithlabs/recalld/internal/vectorizer"
	"github.com/fyrsmithlabs/recalld/internal/websearch"
)

// fixedSearcher returns canned results for every query.
type fixedSearcher struct {
	results []websearch.Result
	calls   int
}

func (f *fixedSearcher) Search(ctx context.Context, query string) []websearch.Result {
	f.calls++
	return f.results
}

type testHarness struct {
	orch   *Orchestrator
	store  *knowledge.Store
	cache  *memory.Cache
	ledger *feedback.Ledger
	search *fixedSearcher
}

func newHarness(t *testing.T, webResults []websearch.Result) *testHarness {
	t.Helper()
	vec, err := vectorizer.New(vectorizer.Config{Dimension: 64})
	require.NoError(t, err)
	adapter := persistence.NewMemoryAdapter()

	store, err := knowledge.NewStore(vec, adapter, zap.NewNop())
	require.NoError(t, err)
	cache, err := memory.NewCache(memory.CacheConfig{}, vec, adapter, zap.NewNop())
	require.NoError(t, err)

	ledger := feedback.NewLedger(0)
	search := &fixedSearcher{results: webResults}

	orch, err := New(Config{}, vec, store, cache, search, ledger, zap.NewNop())
	require.NoError(t, err)

	return &testHarness{orch: orch, store: store, cache: cache, ledger: ledger, search: search}
}

func seedEntry(t *testing.T, h *testHarness, content string, category knowledge.Category) {
	t.Helper()
	require.NoError(t, h.store.Put(context.Background(), &knowledge.Entry{
		Content:    content,
		Category:   category,
		Confidence: 0.9,
		Importance: 0.8,
	}))
}

func TestRespondEmptyQuery(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.Respond(context.Background(), Request{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRespondFromLocalKnowledge(t *testing.T) {
	h := newHarness(t, nil)
	seedEntry(t, h, "startup plan pricing is $99 per month", knowledge.CategoryPricing)

	resp, err := h.orch.Respond(context.Background(), Request{Query: "startup plan pricing"})
	require.NoError(t, err)

	assert.Equal(t, StateAnswerFromLocal, resp.State)
	assert.Contains(t, resp.Answer, "$99")
	assert.GreaterOrEqual(t, resp.Similarity, 0.5)
	assert.Greater(t, resp.Confidence, 0.5)
	assert.NotEmpty(t, resp.Sources)

	// Core business topics never reach external search.
	assert.Zero(t, h.search.calls)
}

func TestRespondLocalIgnoresPunctuation(t *testing.T) {
	h := newHarness(t, nil)
	seedEntry(t, h, "Pricing: $99/month for startups", knowledge.CategoryPricing)

	resp, err := h.orch.Respond(context.Background(), Request{Query: "pricing for startups"})
	require.NoError(t, err)

	// Punctuation in stored content must not hide it from plain queries.
	assert.Equal(t, StateAnswerFromLocal, resp.State)
	assert.Greater(t, resp.Similarity, 0.5)
	assert.Contains(t, resp.Answer, "$99/month")
}

func TestRespondGreetingSkipsEverything(t *testing.T) {
	h := newHarness(t, nil)

	resp, err := h.orch.Respond(context.Background(), Request{Query: "hello"})
	require.NoError(t, err)

	assert.Equal(t, StateFallback, resp.State)
	assert.Contains(t, resp.Answer, "Hello")
	assert.LessOrEqual(t, resp.Confidence, fallbackConfidenceCap)
	assert.Zero(t, h.search.calls)
}

func TestRespondFromWeb(t *testing.T) {
	h := newHarness(t, []websearch.Result{
		{Title: "Go 1.25 released", Snippet: "release notes", URL: "https://example.com/go", Relevance: 0.9},
		{Title: "Weak match", Snippet: "barely related", URL: "https://example.com/weak", Relevance: 0.1},
	})

	resp, err := h.orch.Respond(context.Background(), Request{Query: "latest golang release 2025 announcements"})
	require.NoError(t, err)

	assert.Equal(t, StateAnswerFromWeb, resp.State)
	assert.Contains(t, resp.Answer, "Go 1.25 released")
	// Low-relevance results are not usable evidence.
	assert.NotContains(t, resp.Answer, "Weak match")
	assert.Contains(t, resp.Sources, "https://example.com/go")
	assert.Equal(t, 1, h.search.calls)
}

func TestRespondLearnsFromWeb(t *testing.T) {
	h := newHarness(t, []websearch.Result{
		{Title: "High value", Snippet: "worth keeping", URL: "https://example.com/keep", Relevance: 0.9},
		{Title: "Usable but weak", Snippet: "not worth keeping", URL: "https://example.com/skip", Relevance: 0.4},
	})

	before := h.store.Len()
	_, err := h.orch.Respond(context.Background(), Request{Query: "latest framework releases this year 2025"})
	require.NoError(t, err)

	// Only results above the learn threshold are written back.
	assert.Equal(t, before+1, h.store.Len())
	learned := h.store.ListByCategory(knowledge.CategoryWebSearch)
	require.Len(t, learned, 1)
	assert.Contains(t, learned[0].Content, "High value")
	require.NotNil(t, learned[0].Meta.WebSearch)
	assert.Equal(t, "https://example.com/keep", learned[0].Meta.WebSearch.URL)

	// Asking again overwrites the same entry instead of duplicating.
	_, err = h.orch.Respond(context.Background(), Request{Query: "latest framework releases this year 2025"})
	require.NoError(t, err)
	assert.Len(t, h.store.ListByCategory(knowledge.CategoryWebSearch), 1)
}

func TestRespondHybrid(t *testing.T) {
	h := newHarness(t, []websearch.Result{
		{Title: "Fresh coverage", Snippet: "new details", URL: "https://example.com/fresh", Relevance: 0.8},
	})
	seedEntry(t, h, "latest product update shipped dark mode", knowledge.CategoryTechnical)

	resp, err := h.orch.Respond(context.Background(), Request{Query: "latest product update shipped dark mode"})
	require.NoError(t, err)

	assert.Equal(t, StateAnswerFromHybrid, resp.State)
	assert.Contains(t, resp.Answer, "dark mode")
	assert.Contains(t, resp.Answer, "Fresh coverage")
	assert.GreaterOrEqual(t, len(resp.Sources), 2)
}

func TestRespondWeakWebServesWeakLocal(t *testing.T) {
	h := newHarness(t, []websearch.Result{
		{Title: "barely related", URL: "https://example.com/noise", Relevance: 0.1},
	})
	seedEntry(t, h, "our quarterly report covers revenue and churn", knowledge.CategoryTechnical)

	resp, err := h.orch.Respond(context.Background(), Request{Query: "latest quarterly revenue numbers"})
	require.NoError(t, err)

	// Web evidence below the usable threshold: a local match beats the
	// fallback even when its similarity is under the local-answer bar.
	assert.Equal(t, 1, h.search.calls)
	assert.Equal(t, StateAnswerFromLocal, resp.State)
	assert.Greater(t, resp.Similarity, 0.0)
	assert.Less(t, resp.Similarity, 0.5)
	assert.Contains(t, resp.Answer, "quarterly report")
}

func TestRespondFallback(t *testing.T) {
	h := newHarness(t, nil)

	resp, err := h.orch.Respond(context.Background(), Request{Query: "tell me about quantum gardening"})
	require.NoError(t, err)

	assert.Equal(t, StateFallback, resp.State)
	assert.LessOrEqual(t, resp.Confidence, fallbackConfidenceCap)
	assert.NotEmpty(t, resp.Answer)
}

func TestRespondSuppressedAnswer(t *testing.T) {
	h := newHarness(t, nil)
	seedEntry(t, h, "just reboot the machine to fix it", knowledge.CategoryGeneral)
	h.ledger.Add(feedback.SuppressedAnswer{
		TurnID:       "t1",
		Question:     "just reboot the machine to fix it",
		AnswerPrefix: "just reboot the machine to fix it",
		Rating:       1,
	})

	resp, err := h.orch.Respond(context.Background(), Request{Query: "just reboot the machine to fix it"})
	require.NoError(t, err)

	// The matching entry is withheld, so the pipeline falls back.
	assert.Equal(t, StateFallback, resp.State)
	assert.NotContains(t, resp.Answer, "reboot")
}

func TestRespondRecordsTurn(t *testing.T) {
	h := newHarness(t, nil)
	seedEntry(t, h, "startup plan pricing is $99 per month", knowledge.CategoryPricing)

	resp, err := h.orch.Respond(context.Background(), Request{SessionID: "s1", Query: "startup plan pricing"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.TurnID)

	turn, err := h.cache.Turn(resp.TurnID)
	require.NoError(t, err)
	assert.Equal(t, "startup plan pricing", turn.Question)
	assert.Equal(t, resp.Answer, turn.Answer)
	assert.Equal(t, "s1", turn.SessionID)
	assert.InDelta(t, resp.Confidence, turn.Meta.Confidence, 1e-9)
}

func TestRespondConfidenceBounds(t *testing.T) {
	h := newHarness(t, []websearch.Result{
		{Title: "r1", URL: "https://1", Relevance: 0.9},
		{Title: "r2", URL: "https://2", Relevance: 0.9},
		{Title: "r3", URL: "https://3", Relevance: 0.9},
		{Title: "r4", URL: "https://4", Relevance: 0.9},
	})
	seedEntry(t, h, "latest release notes for everything", knowledge.CategoryTechnical)

	resp, err := h.orch.Respond(context.Background(), Request{Query: "latest release notes for everything"})
	require.NoError(t, err)
	assert.LessOrEqual(t, resp.Confidence, maxConfidence)
	assert.GreaterOrEqual(t, resp.Confidence, 0.0)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		query string
		want  intentKind
	}{
		{query: "hello", want: intentGreeting},
		{query: "thanks a lot", want: intentThanks},
		{query: "how much does the plan cost", want: intentCoreTopic},
		{query: "latest framework news", want: intentFreshness},
		{query: "react versus vue comparison", want: intentComparison},
		{query: "how to install the agent", want: intentHowTo},
		{query: "interesting facts about otters", want: intentGeneral},
		{query: "conference schedule 2026", want: intentFreshness},
		{query: "", want: intentGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.query).kind)
		})
	}
}

func TestWebDecision(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		skip   bool
		search bool
	}{
		{name: "greeting skips", query: "hello there", skip: true, search: false},
		{name: "core topic skips", query: "what does the subscription cost", skip: true, search: false},
		{name: "short query skips", query: "status update", skip: true, search: false},
		{name: "freshness searches", query: "latest news about the framework", skip: false, search: true},
		{name: "general neither", query: "describe the onboarding flow for new customers", skip: false, search: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := classify(tt.query)
			assert.Equal(t, tt.skip, skipWeb(it, tt.query))
			assert.Equal(t, tt.search, searchWeb(it, tt.query))
			// By construction a query never both skips and searches.
			assert.False(t, skipWeb(it, tt.query) && searchWeb(it, tt.query))
		})
	}
}

func TestBlendConfidence(t *testing.T) {
	t.Run("web term capped", func(t *testing.T) {
		few := blendConfidence(0, 0, 2, 0)
		many := blendConfidence(0, 0, 10, 0)
		assert.InDelta(t, 0.05, many-few, 1e-9)
	})

	t.Run("never exceeds max", func(t *testing.T) {
		assert.LessOrEqual(t, blendConfidence(1, 1, 10, 1), maxConfidence)
	})

	t.Run("stronger local evidence raises confidence", func(t *testing.T) {
		assert.Greater(t, blendConfidence(0.9, 0, 0, 0.5), blendConfidence(0.1, 0, 0, 0.5))
	})
}
