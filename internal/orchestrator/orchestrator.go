// Package orchestrator drives the answer pipeline.
//
// Each query flows through one explicit state machine: classify intent,
// rank local knowledge, consult the conversation cache, optionally reach
// out to web search, then synthesize an answer and record the turn. The
// resulting state names which branch produced the answer, and the blended
// confidence reflects the evidence each branch contributed.
//
// Example usage:
//
//	orch, err := orchestrator.New(orchestrator.Config{}, vec, store, cache, search, ledger, logger)
//	if err != nil {
//	    // Handle error
//	}
//	resp, err := orch.Respond(ctx, orchestrator.Request{Query: "what does the startup plan cost?"})
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/feedback"
	"github.com/fyrsmithlabs/recalld/internal/knowledge"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/vectorizer"
	"github.com/fyrsmithlabs/recalld/internal/websearch"
)

const instrumentationName = "github.com/fyrsmithlabs/recalld/internal/orchestrator"

// ErrEmptyQuery indicates a request with no query text.
var ErrEmptyQuery = errors.New("query is required")

// Config tunes the decision thresholds.
type Config struct {
	// LocalAnswerThreshold is the knowledge similarity at or above which
	// local knowledge alone answers the query (default 0.5).
	LocalAnswerThreshold float64 `koanf:"local_answer_threshold"`

	// MinLocalConfidence filters knowledge entries below it out of
	// candidate ranking (default 0.4).
	MinLocalConfidence float64 `koanf:"min_local_confidence"`

	// WebUsableRelevance is the relevance above which a web result counts
	// as usable evidence (default 0.3).
	WebUsableRelevance float64 `koanf:"web_usable_relevance"`

	// WebLearnRelevance is the relevance above which a web result is
	// written back into the knowledge store (default 0.5).
	WebLearnRelevance float64 `koanf:"web_learn_relevance"`

	// WebLearnCap bounds write-back per query (default 3).
	WebLearnCap int `koanf:"web_learn_cap"`

	// MaxLocalResults caps local knowledge candidates per query
	// (default 5).
	MaxLocalResults int `koanf:"max_local_results"`
}

func (c *Config) applyDefaults() {
	if c.LocalAnswerThreshold <= 0 {
		c.LocalAnswerThreshold = 0.5
	}
	if c.MinLocalConfidence <= 0 {
		c.MinLocalConfidence = 0.4
	}
	if c.WebUsableRelevance <= 0 {
		c.WebUsableRelevance = 0.3
	}
	if c.WebLearnRelevance <= 0 {
		c.WebLearnRelevance = 0.5
	}
	if c.WebLearnCap <= 0 {
		c.WebLearnCap = 3
	}
	if c.MaxLocalResults <= 0 {
		c.MaxLocalResults = 5
	}
}

// Orchestrator answers queries against local knowledge, the conversation
// cache, and external search.
type Orchestrator struct {
	cfg    Config
	vec    *vectorizer.Vectorizer
	store  *knowledge.Store
	cache  *memory.Cache
	search websearch.Searcher
	ledger *feedback.Ledger
	logger *zap.Logger
	tracer trace.Tracer
}

// New creates an orchestrator. search may be websearch.Disabled when
// external lookup is turned off; ledger may be nil when no feedback loop
// is wired.
func New(cfg Config, vec *vectorizer.Vectorizer, store *knowledge.Store, cache *memory.Cache, search websearch.Searcher, ledger *feedback.Ledger, logger *zap.Logger) (*Orchestrator, error) {
	if vec == nil {
		return nil, errors.New("vectorizer is required")
	}
	if store == nil {
		return nil, errors.New("knowledge store is required")
	}
	if cache == nil {
		return nil, errors.New("memory cache is required")
	}
	if search == nil {
		search = websearch.Disabled
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	return &Orchestrator{
		cfg:    cfg,
		vec:    vec,
		store:  store,
		cache:  cache,
		search: search,
		ledger: ledger,
		logger: logger.Named("orchestrator"),
		tracer: otel.Tracer(instrumentationName),
	}, nil
}

// Respond answers one query.
//
// The query is embedded exactly once; the vector is reused for knowledge
// ranking, cache lookup, and suppression checks. Every turn is recorded in
// the conversation cache, fallbacks included, so feedback can reference it.
func (o *Orchestrator) Respond(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "orchestrator.respond")
	defer span.End()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	it := classify(query)
	queryVec := o.vec.Embed(query)
	span.SetAttributes(
		attribute.String("session_id", req.SessionID),
		attribute.String("intent", string(it.kind)),
	)

	local := o.localCandidates(ctx, query, queryVec)
	localSim := 0.0
	if len(local) > 0 {
		localSim = local[0].Similarity
	}

	cacheMatches := o.cache.Find(ctx, query, queryVec, 3)
	cacheSim := 0.0
	if len(cacheMatches) > 0 {
		cacheSim = cacheMatches[0].Score
	}

	strongLocal := localSim >= o.cfg.LocalAnswerThreshold
	doWeb := searchWeb(it, query)

	var (
		state     State
		answer    string
		sources   []string
		webUsable []websearch.Result
	)

	switch {
	case strongLocal && !doWeb:
		state = StateAnswerFromLocal
		answer, sources = o.composeLocal(local)

	case doWeb:
		webResults := o.search.Search(ctx, query)
		for _, r := range webResults {
			if r.Relevance > o.cfg.WebUsableRelevance {
				webUsable = append(webUsable, r)
			}
		}
		switch {
		case len(webUsable) > 0 && len(local) > 0:
			state = StateAnswerFromHybrid
			answer, sources = o.composeHybrid(local, webUsable)
		case len(webUsable) > 0:
			state = StateAnswerFromWeb
			answer, sources = o.composeWeb(webUsable)
		case len(local) > 0:
			// Weak web evidence: any local match beats the fallback.
			state = StateAnswerFromLocal
			answer, sources = o.composeLocal(local)
		default:
			state = StateFallback
		}
		o.learnFromWeb(ctx, webUsable)

	case strongLocal:
		state = StateAnswerFromLocal
		answer, sources = o.composeLocal(local)

	default:
		state = StateFallback
	}

	// A freshly synthesized answer may still resemble one the user rated
	// poorly; withhold it rather than repeat the mistake.
	if state != StateFallback && o.ledger != nil && o.ledger.Suppressed(query, queryVec, answer) {
		o.logger.Info("answer suppressed by feedback ledger",
			zap.String("session_id", req.SessionID),
			zap.String("state", string(state)),
		)
		SuppressedTotal.Inc()
		state = StateFallback
		answer = ""
		sources = nil
	}

	confidence := blendConfidence(localSim, cacheSim, len(webUsable), it.confidence)
	if state == StateFallback {
		answer = fallbackAnswer(it)
		if confidence > fallbackConfidenceCap {
			confidence = fallbackConfidenceCap
		}
	}

	elapsed := time.Since(start)
	turn, err := o.cache.Record(ctx, &memory.Turn{
		Question:  query,
		Answer:    answer,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Meta: memory.TurnMeta{
			Confidence:   confidence,
			Sources:      sources,
			Category:     turnCategory(state, local),
			ResponseTime: elapsed,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("recording turn: %w", err)
	}

	topic := ""
	if session, err := o.cache.SessionByID(req.SessionID); err == nil {
		topic = session.Topic
	}

	QueriesTotal.WithLabelValues(string(state)).Inc()
	QueryDuration.Observe(elapsed.Seconds())
	span.SetAttributes(
		attribute.String("state", string(state)),
		attribute.Float64("confidence", confidence),
		attribute.Float64("similarity", localSim),
	)
	o.logger.Debug("query answered",
		zap.String("session_id", req.SessionID),
		zap.String("state", string(state)),
		zap.Float64("confidence", confidence),
		zap.Float64("similarity", localSim),
		zap.Duration("elapsed", elapsed),
	)

	return &Response{
		TurnID:       turn.ID,
		Answer:       answer,
		State:        state,
		Confidence:   confidence,
		Similarity:   localSim,
		Sources:      sources,
		Topic:        topic,
		ResponseTime: elapsed,
	}, nil
}

// localCandidates ranks knowledge entries and drops any whose content the
// suppression ledger withholds for this question.
func (o *Orchestrator) localCandidates(ctx context.Context, query string, queryVec []float64) []knowledge.QueryMatch {
	matches, err := o.store.QueryVector(ctx, queryVec, knowledge.QueryOptions{
		MinConfidence: o.cfg.MinLocalConfidence,
		MaxResults:    o.cfg.MaxLocalResults,
	})
	if err != nil {
		o.logger.Warn("knowledge query failed", zap.Error(err))
		return nil
	}
	if o.ledger == nil {
		return matches
	}

	kept := matches[:0]
	for _, m := range matches {
		if o.ledger.Suppressed(query, queryVec, m.Entry.Content) {
			SuppressedTotal.Inc()
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

// composeLocal answers from the best knowledge entry.
func (o *Orchestrator) composeLocal(local []knowledge.QueryMatch) (string, []string) {
	best := local[0].Entry
	sources := []string{best.ID}
	return best.Content, sources
}

// composeWeb answers from usable web results.
func (o *Orchestrator) composeWeb(results []websearch.Result) (string, []string) {
	var b strings.Builder
	sources := make([]string, 0, len(results))
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(r.Title)
		if r.Snippet != "" {
			b.WriteString(": ")
			b.WriteString(r.Snippet)
		}
		sources = append(sources, r.URL)
	}
	return b.String(), sources
}

// composeHybrid leads with local knowledge and appends web evidence.
func (o *Orchestrator) composeHybrid(local []knowledge.QueryMatch, results []websearch.Result) (string, []string) {
	localAnswer, localSources := o.composeLocal(local)
	webAnswer, webSources := o.composeWeb(results)
	return localAnswer + "\n\nRecent information:\n" + webAnswer, append(localSources, webSources...)
}

// learnFromWeb writes high-relevance results back into the knowledge store
// so the next similar query answers locally. Entry ids derive from the URL,
// so re-learning the same result overwrites instead of duplicating.
func (o *Orchestrator) learnFromWeb(ctx context.Context, results []websearch.Result) {
	learned := 0
	for _, r := range results {
		if learned >= o.cfg.WebLearnCap {
			break
		}
		if r.Relevance <= o.cfg.WebLearnRelevance || r.URL == "" {
			continue
		}

		entry := &knowledge.Entry{
			ID:         webEntryID(r.URL),
			Content:    r.Title + ": " + r.Snippet,
			Category:   knowledge.CategoryWebSearch,
			Source:     knowledge.SourceWebSearch,
			Confidence: knowledge.Clamp01(r.Relevance),
			Importance: knowledge.Clamp01(r.Relevance * 0.6),
			Meta: knowledge.Meta{
				WebSearch: &knowledge.WebSearchMeta{
					URL:       r.URL,
					Relevance: r.Relevance,
				},
			},
		}
		if err := o.store.Put(ctx, entry); err != nil {
			o.logger.Warn("learning web result failed",
				zap.String("url", r.URL),
				zap.Error(err),
			)
			continue
		}
		learned++
		WebLearnedTotal.Inc()
	}
}

// webEntryID derives a stable knowledge entry id from a result URL.
func webEntryID(url string) string {
	h := fnv.New64a()
	h.Write([]byte(url))
	return fmt.Sprintf("web-%016x", h.Sum64())
}

// turnCategory tags the recorded turn by where its answer came from.
func turnCategory(state State, local []knowledge.QueryMatch) string {
	switch state {
	case StateAnswerFromLocal, StateAnswerFromHybrid:
		if len(local) > 0 {
			return string(local[0].Entry.Category)
		}
		return string(knowledge.CategoryGeneral)
	case StateAnswerFromWeb:
		return string(knowledge.CategoryWebSearch)
	default:
		return string(knowledge.CategoryGeneral)
	}
}

// fallbackAnswer is the honest low-confidence response; smalltalk gets a
// matching reply instead of an apology.
func fallbackAnswer(it intent) string {
	switch it.kind {
	case intentGreeting:
		return "Hello! How can I help you today?"
	case intentThanks:
		return "You're welcome! Let me know if there's anything else."
	default:
		return "I don't have enough information to answer that confidently. Could you rephrase or give me more detail?"
	}
}
