package websearch

import "context"

// StubProvider is a canned provider for tests and for deployments with
// external search disabled.
type StubProvider struct {
	// ProviderName defaults to "stub".
	ProviderName string

	// Results are returned for every query.
	Results []Result

	// Err, when set, is returned instead.
	Err error
}

// Name identifies the provider.
func (s *StubProvider) Name() string {
	if s.ProviderName == "" {
		return "stub"
	}
	return s.ProviderName
}

// Search returns the canned results or error.
func (s *StubProvider) Search(ctx context.Context, query string) ([]Result, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]Result, len(s.Results))
	copy(out, s.Results)
	return out, nil
}

// Disabled is a Searcher that always returns no results. Used when external
// search is turned off by configuration.
var Disabled Searcher = disabledSearcher{}

type disabledSearcher struct{}

func (disabledSearcher) Search(ctx context.Context, query string) []Result {
	return nil
}
