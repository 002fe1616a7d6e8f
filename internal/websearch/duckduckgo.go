package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fyrsmithlabs/recalld/internal/vectorizer"
)

const duckduckgoEndpoint = "https://html.duckduckgo.com/html/"

// DuckDuckGoProvider scrapes the DuckDuckGo HTML endpoint. It needs no API
// key, which makes it the default provider for local deployments.
type DuckDuckGoProvider struct {
	client   *http.Client
	endpoint string
}

// NewDuckDuckGoProvider creates the provider. A nil client uses
// http.DefaultClient; per-attempt timeouts come from the chain's context.
func NewDuckDuckGoProvider(client *http.Client) *DuckDuckGoProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &DuckDuckGoProvider{client: client, endpoint: duckduckgoEndpoint}
}

// Name identifies the provider.
func (p *DuckDuckGoProvider) Name() string {
	return "duckduckgo"
}

// Search fetches and parses the HTML results page.
func (p *DuckDuckGoProvider) Search(ctx context.Context, query string) ([]Result, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "recalld/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing results page: %w", err)
	}

	return parseResults(doc, query), nil
}

// parseResults extracts ranked results from the parsed page. Relevance is
// lexical overlap between the query and the title+snippet, damped by rank
// so earlier results win ties.
func parseResults(doc *goquery.Document, query string) []Result {
	results := make([]Result, 0)

	doc.Find("div.result").Each(func(i int, s *goquery.Selection) {
		link := s.Find("a.result__a")
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		snippet := strings.TrimSpace(s.Find(".result__snippet").Text())

		if title == "" || href == "" {
			return
		}

		results = append(results, Result{
			Title:     title,
			Snippet:   snippet,
			URL:       resolveRedirect(href),
			Relevance: relevanceScore(query, title+" "+snippet, i),
		})
	})

	return results
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect URLs.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

// relevanceScore combines query/content token overlap with a rank damp.
func relevanceScore(query, content string, rank int) float64 {
	queryTokens := vectorizer.Tokenize(query)
	if len(queryTokens) == 0 {
		return 0
	}
	contentTokens := make(map[string]bool)
	for _, t := range vectorizer.Tokenize(content) {
		contentTokens[t] = true
	}

	shared := 0
	for _, t := range queryTokens {
		if contentTokens[t] {
			shared++
		}
	}

	overlap := float64(shared) / float64(len(queryTokens))
	damp := 1.0 / float64(rank+1)
	// Overlap dominates; rank only separates equally-overlapping results.
	score := overlap*0.8 + damp*0.2
	if score > 1 {
		score = 1
	}
	return score
}
