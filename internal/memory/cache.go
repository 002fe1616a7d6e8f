// Package memory provides the bounded in-process conversation cache.
//
// The cache holds recent conversation turns and their sessions. It is
// bounded by a hard cap with a retention-based eviction policy, and it
// delegates durable copies to a persistence adapter so turns survive
// restarts. All mutations are serialized through a single mutex per cache,
// so a write arriving mid-optimization queues rather than getting lost.
//
// Example usage:
//
//	cache, err := memory.NewCache(memory.CacheConfig{MaxEntries: 500}, vec, adapter, logger)
//	if err != nil {
//	    // Handle error
//	}
//	turn, _ := cache.Record(ctx, &memory.Turn{Question: "hi", Answer: "hello", SessionID: "s1"})
//	matches := cache.Find(ctx, "hi", nil, 5)
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/persistence"
	"github.com/fyrsmithlabs/recalld/internal/similarity"
	"github.com/fyrsmithlabs/recalld/internal/vectorizer"
)

const (
	turnKeyPrefix    = "memory/turn/"
	sessionKeyPrefix = "memory/session/"

	// lexicalFastPathThreshold is the overlap score above which Find
	// skips the similarity fallback.
	lexicalFastPathThreshold = 0.5

	// retainImportance keeps a turn through optimization.
	retainImportance = 0.7

	// retainRating keeps a turn through optimization regardless of age.
	retainRating = 4
)

var (
	// ErrTurnNotFound indicates an unknown turn id.
	ErrTurnNotFound = errors.New("conversation turn not found")

	// ErrInvalidRating indicates a rating outside 1..5. The mutation is
	// rejected at the boundary; nothing changes.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// CacheConfig bounds the cache.
type CacheConfig struct {
	// MaxEntries is the hard cap on cached turns (default 500).
	MaxEntries int `koanf:"max_entries"`

	// RetentionWindow keeps turns younger than this through optimization
	// (default 7 days).
	RetentionWindow time.Duration `koanf:"retention_window"`
}

// Cache is the bounded conversation cache.
type Cache struct {
	cfg     CacheConfig
	vec     *vectorizer.Vectorizer
	adapter persistence.Adapter
	logger  *zap.Logger

	mu       sync.Mutex
	turns    map[string]*Turn
	sessions map[string]*Session
}

// NewCache creates a cache and loads any persisted turns and sessions.
// A failing adapter does not fail construction; the cache starts empty.
func NewCache(cfg CacheConfig, vec *vectorizer.Vectorizer, adapter persistence.Adapter, logger *zap.Logger) (*Cache, error) {
	if vec == nil {
		return nil, errors.New("vectorizer is required")
	}
	if adapter == nil {
		return nil, errors.New("persistence adapter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 500
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = 7 * 24 * time.Hour
	}

	c := &Cache{
		cfg:      cfg,
		vec:      vec,
		adapter:  adapter,
		logger:   logger.Named("memory"),
		turns:    make(map[string]*Turn),
		sessions: make(map[string]*Session),
	}
	c.load()
	return c, nil
}

// load restores persisted turns and sessions, best-effort.
func (c *Cache) load() {
	keys, err := c.adapter.List(turnKeyPrefix)
	if err != nil {
		c.logger.Warn("loading persisted turns failed, starting empty", zap.Error(err))
		return
	}
	for _, key := range keys {
		data, err := c.adapter.Read(key)
		if err != nil {
			continue
		}
		var turn Turn
		if err := json.Unmarshal(data, &turn); err != nil {
			c.logger.Warn("skipping corrupt turn", zap.String("key", key), zap.Error(err))
			continue
		}
		if len(turn.Embedding) != c.vec.Dimension() {
			turn.Embedding = c.vec.Embed(turn.Question)
		}
		c.turns[turn.ID] = &turn
	}

	sessionKeys, err := c.adapter.List(sessionKeyPrefix)
	if err == nil {
		for _, key := range sessionKeys {
			data, err := c.adapter.Read(key)
			if err != nil {
				continue
			}
			var session Session
			if err := json.Unmarshal(data, &session); err != nil {
				continue
			}
			c.sessions[session.ID] = &session
		}
	}

	if len(c.turns) > 0 {
		c.logger.Info("restored conversation cache",
			zap.Int("turns", len(c.turns)),
			zap.Int("sessions", len(c.sessions)),
		)
	}
	CacheSize.Set(float64(len(c.turns)))
}

// Record appends a turn to the cache and its session.
//
// Missing ids and timestamps are assigned, the question is embedded, and
// importance is computed from confidence, category and content. Recording
// past the hard cap triggers an inline optimization pass.
func (c *Cache) Record(ctx context.Context, turn *Turn) (*Turn, error) {
	if turn == nil || turn.Question == "" {
		return nil, errors.New("turn question is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if turn.ID == "" {
		turn.ID = ulid.Make().String()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	if turn.SessionID == "" {
		turn.SessionID = "default"
	}
	turn.Importance = computeImportance(turn.Meta.Category, turn.Meta.Confidence, turn.Question, turn.Answer)
	turn.Embedding = c.vec.Embed(turn.Question)

	stored := turn.Clone()
	c.turns[stored.ID] = stored
	c.updateSessionLocked(stored)

	if len(c.turns) > c.cfg.MaxEntries {
		c.optimizeLocked()
	}
	CacheSize.Set(float64(len(c.turns)))

	c.persistTurn(stored)
	return stored.Clone(), nil
}

// updateSessionLocked appends the turn to its session and re-derives the
// topic once the conversation is long enough to drift. Session identity is
// preserved; only topic and tags change.
func (c *Cache) updateSessionLocked(turn *Turn) {
	session, ok := c.sessions[turn.SessionID]
	if !ok {
		topic, tags := DetectTopic([]string{turn.Question})
		session = &Session{
			ID:        turn.SessionID,
			UserID:    turn.UserID,
			Topic:     topic,
			Tags:      tags,
			CreatedAt: turn.Timestamp,
		}
		c.sessions[session.ID] = session
	}

	session.TurnIDs = append(session.TurnIDs, turn.ID)
	session.UpdatedAt = turn.Timestamp

	if len(session.TurnIDs) > topicDriftMinTurns {
		questions := c.recentQuestionsLocked(session, topicDriftWindow)
		topic, tags := DetectTopic(questions)
		if topic != session.Topic {
			c.logger.Debug("session topic drifted",
				zap.String("session_id", session.ID),
				zap.String("from", session.Topic),
				zap.String("to", topic),
			)
			session.Topic = topic
			session.Tags = tags
		}
	}

	c.persistSession(session)
}

// recentQuestionsLocked returns the last n questions of a session,
// oldest-first.
func (c *Cache) recentQuestionsLocked(session *Session, n int) []string {
	start := len(session.TurnIDs) - n
	if start < 0 {
		start = 0
	}
	questions := make([]string, 0, n)
	for _, id := range session.TurnIDs[start:] {
		if t, ok := c.turns[id]; ok {
			questions = append(questions, t.Question)
		}
	}
	return questions
}

// Find returns turns ranked by relevance to the query.
//
// A cheap lexical-overlap pass runs first; when its best score clears the
// fast-path threshold the similarity engine is skipped entirely. Otherwise
// turns are ranked by cosine similarity of the stored question embeddings.
// queryVec may be nil, in which case the query is embedded here.
func (c *Cache) Find(ctx context.Context, query string, queryVec []float64, limit int) []TurnMatch {
	if limit <= 0 {
		limit = 5
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	lexical := make([]TurnMatch, 0)
	for _, t := range c.turns {
		score := vectorizer.LexicalOverlap(query, t.Question)
		if score > 0 {
			lexical = append(lexical, TurnMatch{Turn: t, Score: score})
		}
	}
	sort.SliceStable(lexical, func(i, j int) bool {
		if lexical[i].Score != lexical[j].Score {
			return lexical[i].Score > lexical[j].Score
		}
		return lexical[i].Turn.Timestamp.After(lexical[j].Turn.Timestamp)
	})

	if len(lexical) > 0 && lexical[0].Score >= lexicalFastPathThreshold {
		FindsTotal.WithLabelValues("lexical").Inc()
		return cloneMatches(lexical, limit)
	}

	// Fall back to the similarity engine over stored embeddings.
	if queryVec == nil {
		queryVec = c.vec.Embed(query)
	}
	candidates := make([]similarity.Candidate, 0, len(c.turns))
	for _, t := range c.turns {
		candidates = append(candidates, similarity.Candidate{
			ID:           t.ID,
			Vector:       t.Embedding,
			Importance:   t.Importance,
			LastAccessed: t.Timestamp,
			CreatedAt:    t.Timestamp,
		})
	}
	ranked := similarity.Rank(queryVec, candidates, nil)

	matches := make([]TurnMatch, 0, limit)
	for _, m := range ranked {
		if m.Score <= 0 {
			break
		}
		if t, ok := c.turns[m.Candidate.ID]; ok {
			matches = append(matches, TurnMatch{Turn: t.Clone(), Score: m.Score})
		}
		if len(matches) >= limit {
			break
		}
	}

	if len(matches) == 0 {
		FindsTotal.WithLabelValues("miss").Inc()
	} else {
		FindsTotal.WithLabelValues("vector").Inc()
	}
	return matches
}

func cloneMatches(matches []TurnMatch, limit int) []TurnMatch {
	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]TurnMatch, len(matches))
	for i, m := range matches {
		out[i] = TurnMatch{Turn: m.Turn.Clone(), Score: m.Score}
	}
	return out
}

// ApplyFeedback attaches a rating to a turn and revises its importance.
//
// Re-rating overwrites the previous feedback: the prior importance shift is
// reverted before the new one applies, so rating the same turn twice with
// the same value leaves state unchanged. Ratings outside 1..5 are rejected
// with ErrInvalidRating and mutate nothing.
func (c *Cache) ApplyFeedback(turnID string, rating int, comments string) (*Turn, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	turn, ok := c.turns[turnID]
	if !ok {
		return nil, ErrTurnNotFound
	}

	previousRating := 0
	if turn.Feedback != nil {
		previousRating = turn.Feedback.Rating
	}

	turn.Feedback = &Feedback{
		Rating:   rating,
		Comments: comments,
		RatedAt:  time.Now(),
	}
	turn.Importance = reviseImportance(turn.Importance, previousRating, rating)

	FeedbackTotal.WithLabelValues(strconv.Itoa(rating)).Inc()
	c.persistTurn(turn)
	return turn.Clone(), nil
}

// Turn returns a copy of the turn with the given id.
func (c *Cache) Turn(id string) (*Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	turn, ok := c.turns[id]
	if !ok {
		return nil, ErrTurnNotFound
	}
	return turn.Clone(), nil
}

// SessionByID returns a copy of the session with the given id.
func (c *Cache) SessionByID(id string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, ErrTurnNotFound)
	}
	return session.Clone(), nil
}

// Len returns the number of cached turns.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Optimize runs the eviction policy and reports what it dropped.
//
// A turn is retained if any of: importance above the retention threshold,
// younger than the retention window, or rated >= 4. Everything else is
// dropped. If the retained set still exceeds the cap, unrated-or-low-rated
// turns are dropped oldest-first until under it; well-rated turns survive
// regardless of age. Running Optimize twice with no writes in between
// produces the same retained set.
func (c *Cache) Optimize() OptimizeResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.optimizeLocked()
}

func (c *Cache) optimizeLocked() OptimizeResult {
	before := len(c.turns)
	now := time.Now()

	retained := make([]*Turn, 0, len(c.turns))
	dropped := make([]*Turn, 0)
	for _, t := range c.turns {
		if c.retainLocked(t, now) {
			retained = append(retained, t)
		} else {
			dropped = append(dropped, t)
		}
	}

	// Still over cap: drop retained turns oldest-first, but never a turn
	// rated >= 4.
	if len(retained) > c.cfg.MaxEntries {
		sort.Slice(retained, func(i, j int) bool {
			return retained[i].Timestamp.Before(retained[j].Timestamp)
		})
		kept := make([]*Turn, 0, c.cfg.MaxEntries)
		overflow := len(retained) - c.cfg.MaxEntries
		for _, t := range retained {
			wellRated := t.Feedback != nil && t.Feedback.Rating >= retainRating
			if overflow > 0 && !wellRated {
				dropped = append(dropped, t)
				overflow--
				continue
			}
			kept = append(kept, t)
		}
		retained = kept
	}

	next := make(map[string]*Turn, len(retained))
	for _, t := range retained {
		next[t.ID] = t
	}
	c.turns = next

	for _, t := range dropped {
		c.deleteSessionTurnLocked(t)
		if err := c.adapter.Delete(turnKeyPrefix + t.ID); err != nil {
			c.logger.Debug("deleting evicted turn from adapter", zap.String("id", t.ID), zap.Error(err))
		}
	}

	after := len(c.turns)
	if before != after {
		EvictionsTotal.Add(float64(before - after))
		c.logger.Info("cache optimized",
			zap.Int("before", before),
			zap.Int("after", after),
			zap.Int("evicted", before-after),
		)
	}
	CacheSize.Set(float64(after))

	return OptimizeResult{Before: before, After: after, Evicted: before - after}
}

// retainLocked is the retention predicate: any single clause keeps a turn.
func (c *Cache) retainLocked(t *Turn, now time.Time) bool {
	if t.Importance > retainImportance {
		return true
	}
	if now.Sub(t.Timestamp) < c.cfg.RetentionWindow {
		return true
	}
	if t.Feedback != nil && t.Feedback.Rating >= retainRating {
		return true
	}
	return false
}

// deleteSessionTurnLocked removes a dropped turn from its session ordering.
func (c *Cache) deleteSessionTurnLocked(turn *Turn) {
	session, ok := c.sessions[turn.SessionID]
	if !ok {
		return
	}
	ids := session.TurnIDs[:0]
	for _, id := range session.TurnIDs {
		if id != turn.ID {
			ids = append(ids, id)
		}
	}
	session.TurnIDs = ids
	c.persistSession(session)
}

// persistTurn writes a turn through to the adapter, best-effort.
func (c *Cache) persistTurn(turn *Turn) {
	data, err := json.Marshal(turn)
	if err != nil {
		c.logger.Error("marshaling turn", zap.String("id", turn.ID), zap.Error(err))
		return
	}
	if err := c.adapter.Write(turnKeyPrefix+turn.ID, data); err != nil {
		c.logger.Debug("persisting turn failed, keeping in-memory copy",
			zap.String("id", turn.ID),
			zap.Error(err),
		)
	}
}

// persistSession writes a session through to the adapter, best-effort.
func (c *Cache) persistSession(session *Session) {
	data, err := json.Marshal(session)
	if err != nil {
		c.logger.Error("marshaling session", zap.String("id", session.ID), zap.Error(err))
		return
	}
	if err := c.adapter.Write(sessionKeyPrefix+session.ID, data); err != nil {
		c.logger.Debug("persisting session failed, keeping in-memory copy",
			zap.String("id", session.ID),
			zap.Error(err),
		)
	}
}
