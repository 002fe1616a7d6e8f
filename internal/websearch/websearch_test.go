package websearch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClientSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns provider results sorted by relevance", func(t *testing.T) {
		provider := &StubProvider{Results: []Result{
			{Title: "weak", URL: "https://a", Relevance: 0.2},
			{Title: "strong", URL: "https://b", Relevance: 0.9},
		}}
		client := NewClient([]Provider{provider}, ClientConfig{}, zap.NewNop())

		results := client.Search(ctx, "anything")
		require.Len(t, results, 2)
		assert.Equal(t, "strong", results[0].Title)
	})

	t.Run("falls through to the next provider on error", func(t *testing.T) {
		broken := &StubProvider{ProviderName: "broken", Err: errors.New("boom")}
		working := &StubProvider{ProviderName: "working", Results: []Result{{Title: "ok", URL: "https://x", Relevance: 0.5}}}
		client := NewClient([]Provider{broken, working}, ClientConfig{}, zap.NewNop())

		results := client.Search(ctx, "anything")
		require.Len(t, results, 1)
		assert.Equal(t, "ok", results[0].Title)
	})

	t.Run("exhausted providers degrade to empty", func(t *testing.T) {
		broken := &StubProvider{Err: errors.New("boom")}
		client := NewClient([]Provider{broken}, ClientConfig{}, zap.NewNop())
		assert.Empty(t, client.Search(ctx, "anything"))
	})

	t.Run("empty query returns nothing", func(t *testing.T) {
		client := NewClient([]Provider{&StubProvider{}}, ClientConfig{}, zap.NewNop())
		assert.Empty(t, client.Search(ctx, ""))
	})

	t.Run("max results caps output", func(t *testing.T) {
		provider := &StubProvider{Results: []Result{
			{Title: "1", URL: "https://1", Relevance: 0.9},
			{Title: "2", URL: "https://2", Relevance: 0.8},
			{Title: "3", URL: "https://3", Relevance: 0.7},
		}}
		client := NewClient([]Provider{provider}, ClientConfig{MaxResults: 2}, zap.NewNop())
		assert.Len(t, client.Search(ctx, "anything"), 2)
	})

	t.Run("rate limit degrades to empty", func(t *testing.T) {
		provider := &StubProvider{Results: []Result{{Title: "ok", URL: "https://x", Relevance: 0.5}}}
		client := NewClient([]Provider{provider}, ClientConfig{RatePerMinute: 1}, zap.NewNop())

		require.NotEmpty(t, client.Search(ctx, "first"))
		assert.Empty(t, client.Search(ctx, "second"))
	})

	t.Run("cancellation yields empty", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		slow := &StubProvider{Err: context.Canceled}
		client := NewClient([]Provider{slow, slow}, ClientConfig{ProviderTimeout: time.Second}, zap.NewNop())
		assert.Empty(t, client.Search(cancelled, "anything"))
	})
}

const duckduckgoFixture = `
<html><body>
  <div class="result">
    <a class="result__a" href="/l/?uddg=https%3A%2F%2Fexample.com%2Fgo-release">Latest Go release notes</a>
    <div class="result__snippet">The latest Go release adds new features.</div>
  </div>
  <div class="result">
    <a class="result__a" href="https://example.org/unrelated">Something unrelated</a>
    <div class="result__snippet">No overlap here.</div>
  </div>
  <div class="result">
    <a class="result__a" href="">Missing link skipped</a>
  </div>
</body></html>`

func TestDuckDuckGoProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "latest go release", r.PostForm.Get("q"))
		w.Write([]byte(duckduckgoFixture)) //nolint:errcheck
	}))
	defer server.Close()

	provider := NewDuckDuckGoProvider(server.Client())
	provider.endpoint = server.URL

	results, err := provider.Search(context.Background(), "latest go release")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Latest Go release notes", results[0].Title)
	assert.Equal(t, "https://example.com/go-release", results[0].URL)
	assert.Greater(t, results[0].Relevance, results[1].Relevance)
}

func TestDuckDuckGoProviderErrors(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		provider := NewDuckDuckGoProvider(server.Client())
		provider.endpoint = server.URL

		_, err := provider.Search(context.Background(), "query")
		assert.Error(t, err)
	})

	t.Run("context timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		provider := NewDuckDuckGoProvider(server.Client())
		provider.endpoint = server.URL

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := provider.Search(ctx, "query")
		assert.Error(t, err)
	})
}

func TestRelevanceScore(t *testing.T) {
	t.Run("full overlap beats partial", func(t *testing.T) {
		full := relevanceScore("go release", "go release notes", 0)
		partial := relevanceScore("go release", "release calendar", 0)
		assert.Greater(t, full, partial)
	})

	t.Run("rank damps ties", func(t *testing.T) {
		first := relevanceScore("go", "go", 0)
		second := relevanceScore("go", "go", 1)
		assert.Greater(t, first, second)
	})

	t.Run("bounded by one", func(t *testing.T) {
		assert.LessOrEqual(t, relevanceScore("go", "go", 0), 1.0)
	})

	t.Run("empty query scores zero", func(t *testing.T) {
		assert.Zero(t, relevanceScore("", "anything", 0))
	})
}

func TestDisabledSearcher(t *testing.T) {
	assert.Nil(t, Disabled.Search(context.Background(), "anything"))
}
