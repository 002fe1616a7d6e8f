// Package knowledge provides the durable knowledge store.
//
// The store is the single writer of truth for entry metadata within one
// process. Entries live in memory for ranking; durable copies are delegated
// to a pluggable persistence adapter. Adapter failures degrade the store to
// in-memory-only operation with a logged cause, never a fatal error.
//
// Example usage:
//
//	store, err := knowledge.NewStore(vec, adapter, logger)
//	if err != nil {
//	    // Handle error
//	}
//	err = store.Put(ctx, &knowledge.Entry{
//	    Content:  "Pricing: $99/month for startups",
//	    Category: knowledge.CategoryPricing,
//	    Source:   knowledge.SourceManual,
//	})
//	matches, _ := store.Query(ctx, "pricing for startups", knowledge.QueryOptions{})
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/persistence"
	"github.com/fyrsmithlabs/recalld/internal/similarity"
	"github.com/fyrsmithlabs/recalld/internal/vectorizer"
)

const instrumentationName = "github.com/fyrsmithlabs/recalld/internal/knowledge"

// entryKeyPrefix is the adapter key namespace for entries.
const entryKeyPrefix = "knowledge/entry/"

var (
	// ErrNotFound indicates an unknown entry id. Absence is normal:
	// callers treat it as an empty result, not a failure.
	ErrNotFound = errors.New("knowledge entry not found")

	// ErrInvalidEntry indicates an entry that fails validation.
	ErrInvalidEntry = errors.New("invalid knowledge entry")
)

// QueryOptions controls Query behavior.
type QueryOptions struct {
	// MinConfidence filters out entries below the threshold.
	MinConfidence float64

	// MaxResults caps returned matches (default 5).
	MaxResults int

	// Category restricts matches to one category when set.
	Category Category
}

// QueryMatch is one ranked query result.
type QueryMatch struct {
	Entry      *Entry
	Similarity float64
}

// Store holds knowledge entries with vector-ranked retrieval.
type Store struct {
	vec     *vectorizer.Vectorizer
	adapter persistence.Adapter
	logger  *zap.Logger
	tracer  trace.Tracer

	mu       sync.RWMutex
	entries  map[string]*Entry
	degraded bool
	lastSync time.Time
}

// NewStore creates a store and loads any entries already persisted by the
// adapter. A failing adapter does not fail construction: the store starts
// empty and degraded, and keeps serving in-memory.
func NewStore(vec *vectorizer.Vectorizer, adapter persistence.Adapter, logger *zap.Logger) (*Store, error) {
	if vec == nil {
		return nil, errors.New("vectorizer is required")
	}
	if adapter == nil {
		return nil, errors.New("persistence adapter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		vec:     vec,
		adapter: adapter,
		logger:  logger.Named("knowledge"),
		tracer:  otel.Tracer(instrumentationName),
		entries: make(map[string]*Entry),
	}

	if err := s.load(); err != nil {
		s.logger.Warn("loading persisted entries failed, starting degraded",
			zap.Error(err),
		)
		s.degraded = true
	}

	return s, nil
}

// load reads all persisted entries into memory.
func (s *Store) load() error {
	keys, err := s.adapter.List(entryKeyPrefix)
	if err != nil {
		return fmt.Errorf("listing entries: %w", err)
	}

	loaded := 0
	for _, key := range keys {
		data, err := s.adapter.Read(key)
		if err != nil {
			s.logger.Warn("skipping unreadable entry", zap.String("key", key), zap.Error(err))
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			s.logger.Warn("skipping corrupt entry", zap.String("key", key), zap.Error(err))
			continue
		}
		if len(entry.Embedding) != s.vec.Dimension() {
			// Dimension changed since the entry was written; re-embed.
			entry.Embedding = s.vec.Embed(entry.Content)
		}
		s.entries[entry.ID] = &entry
		loaded++
	}

	EntryCount.Set(float64(len(s.entries)))
	if loaded > 0 {
		s.logger.Info("loaded knowledge entries", zap.Int("count", loaded))
	}
	return nil
}

// Put stores an entry, overwriting any existing entry with the same id.
// Missing ids are assigned; missing embeddings are computed; confidence and
// importance are clamped to [0, 1].
func (s *Store) Put(ctx context.Context, entry *Entry) error {
	_, span := s.tracer.Start(ctx, "knowledge.put")
	defer span.End()

	if entry == nil || entry.Content == "" {
		return fmt.Errorf("%w: content required", ErrInvalidEntry)
	}
	if entry.Category == "" {
		entry.Category = CategoryGeneral
	}
	if !KnownCategory(entry.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidEntry, entry.Category)
	}
	if err := entry.Meta.Validate(entry.Category); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if entry.Source == "" {
		entry.Source = SourceManual
	}

	now := time.Now()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.LastAccessed.IsZero() {
		entry.LastAccessed = now
	}
	entry.Confidence = Clamp01(entry.Confidence)
	entry.Importance = Clamp01(entry.Importance)
	if len(entry.Embedding) != s.vec.Dimension() {
		entry.Embedding = s.vec.Embed(entry.Content)
	}

	stored := entry.Clone()

	s.mu.Lock()
	s.entries[stored.ID] = stored
	EntryCount.Set(float64(len(s.entries)))
	s.mu.Unlock()

	span.SetAttributes(
		attribute.String("entry_id", stored.ID),
		attribute.String("category", string(stored.Category)),
	)

	s.persist(stored)
	return nil
}

// Get retrieves an entry by id and records the access (usage count and
// last-accessed timestamp). Unknown ids return ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	_, span := s.tracer.Start(ctx, "knowledge.get")
	defer span.End()

	s.mu.Lock()
	entry, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	entry.UsageCount++
	entry.LastAccessed = time.Now()
	out := entry.Clone()
	s.mu.Unlock()

	s.persist(out)
	return out, nil
}

// Query embeds text and returns ranked matches.
func (s *Store) Query(ctx context.Context, text string, opts QueryOptions) ([]QueryMatch, error) {
	return s.QueryVector(ctx, s.vec.Embed(text), opts)
}

// QueryVector ranks entries against an already-computed query vector. The
// orchestrator computes the vector once per turn and reuses it here.
func (s *Store) QueryVector(ctx context.Context, query []float64, opts QueryOptions) ([]QueryMatch, error) {
	_, span := s.tracer.Start(ctx, "knowledge.query")
	defer span.End()

	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}
	QueriesTotal.Inc()

	s.mu.RLock()
	candidates := make([]similarity.Candidate, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Confidence < opts.MinConfidence {
			continue
		}
		candidates = append(candidates, similarity.Candidate{
			ID:           e.ID,
			Vector:       e.Embedding,
			Importance:   e.Importance,
			LastAccessed: e.LastAccessed,
			Category:     string(e.Category),
			Tags:         e.Tags,
			CreatedAt:    e.CreatedAt,
		})
	}
	s.mu.RUnlock()

	var filter *similarity.Filter
	if opts.Category != "" {
		filter = &similarity.Filter{Category: string(opts.Category)}
	}

	ranked := similarity.Rank(query, candidates, filter)
	if len(ranked) > opts.MaxResults {
		ranked = ranked[:opts.MaxResults]
	}

	now := time.Now()
	matches := make([]QueryMatch, 0, len(ranked))
	touched := make([]*Entry, 0, len(ranked))

	s.mu.Lock()
	for _, m := range ranked {
		entry, ok := s.entries[m.Candidate.ID]
		if !ok {
			continue
		}
		entry.UsageCount++
		entry.LastAccessed = now
		out := entry.Clone()
		matches = append(matches, QueryMatch{Entry: out, Similarity: m.Score})
		touched = append(touched, out)
	}
	s.mu.Unlock()

	for _, e := range touched {
		s.persist(e)
	}

	span.SetAttributes(attribute.Int("result_count", len(matches)))
	return matches, nil
}

// Delete removes an entry. Unknown ids return ErrNotFound, which callers
// treat as a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, span := s.tracer.Start(ctx, "knowledge.delete")
	defer span.End()

	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	EntryCount.Set(float64(len(s.entries)))
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	if err := s.adapter.Delete(entryKeyPrefix + id); err != nil {
		s.setDegraded(err, "deleting persisted entry", id)
	}
	return nil
}

// ListByCategory returns all entries in a category, unranked.
func (s *Store) ListByCategory(category Category) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0)
	for _, e := range s.entries {
		if e.Category == category {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Stats summarizes store contents by category and importance tier.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Total:        len(s.entries),
		ByCategory:   make(map[Category]int),
		ByImportance: make(map[string]int),
	}
	for _, e := range s.entries {
		stats.ByCategory[e.Category]++
		stats.ByImportance[ImportanceTier(e.Importance)]++
	}
	return stats
}

// Reinforce applies a feedback-driven confidence/importance adjustment.
// The feedback loop is the only caller; both values stay clamped to [0, 1].
func (s *Store) Reinforce(ctx context.Context, id string, confidenceDelta, importanceDelta float64) error {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	entry.Confidence = Clamp01(entry.Confidence + confidenceDelta)
	entry.Importance = Clamp01(entry.Importance + importanceDelta)
	out := entry.Clone()
	s.mu.Unlock()

	s.persist(out)
	return nil
}

// Cleanup removes entries older than maxAge whose confidence fell below
// minConfidence. Returns the number of entries removed.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration, minConfidence float64) int {
	_, span := s.tracer.Start(ctx, "knowledge.cleanup")
	defer span.End()

	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	removed := make([]string, 0)
	for id, e := range s.entries {
		if e.CreatedAt.Before(cutoff) && e.Confidence < minConfidence {
			delete(s.entries, id)
			removed = append(removed, id)
		}
	}
	EntryCount.Set(float64(len(s.entries)))
	s.mu.Unlock()

	CleanupRemovedTotal.Add(float64(len(removed)))

	for _, id := range removed {
		if err := s.adapter.Delete(entryKeyPrefix + id); err != nil {
			s.setDegraded(err, "deleting expired entry", id)
		}
	}

	if len(removed) > 0 {
		s.logger.Info("retention cleanup removed entries",
			zap.Int("count", len(removed)),
			zap.Duration("max_age", maxAge),
			zap.Float64("min_confidence", minConfidence),
		)
	}
	span.SetAttributes(attribute.Int("removed", len(removed)))
	return len(removed)
}

// Entries returns a deep copy of every entry, for snapshotting.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e.Clone())
	}
	return out
}

// ReplaceAll overwrites the store contents with the given entries. Used by
// restore: the previous contents are discarded, not merged.
func (s *Store) ReplaceAll(ctx context.Context, entries []Entry) error {
	_, span := s.tracer.Start(ctx, "knowledge.replace_all")
	defer span.End()

	next := make(map[string]*Entry, len(entries))
	for i := range entries {
		e := entries[i].Clone()
		if e.ID == "" || e.Content == "" {
			return fmt.Errorf("%w: entry %d missing id or content", ErrInvalidEntry, i)
		}
		if len(e.Embedding) != s.vec.Dimension() {
			e.Embedding = s.vec.Embed(e.Content)
		}
		e.Confidence = Clamp01(e.Confidence)
		e.Importance = Clamp01(e.Importance)
		next[e.ID] = e
	}

	s.mu.Lock()
	previous := s.entries
	s.entries = next
	EntryCount.Set(float64(len(s.entries)))
	s.mu.Unlock()

	// Rewrite the persisted namespace to match.
	for id := range previous {
		if _, kept := next[id]; !kept {
			if err := s.adapter.Delete(entryKeyPrefix + id); err != nil {
				s.setDegraded(err, "deleting replaced entry", id)
			}
		}
	}
	for _, e := range next {
		s.persist(e)
	}

	span.SetAttributes(attribute.Int("entry_count", len(next)))
	return nil
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Degraded reports whether the adapter has failed since startup.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// LastSync returns the time of the last successful adapter write.
func (s *Store) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// persist writes an entry through to the adapter, best-effort.
func (s *Store) persist(entry *Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Error("marshaling entry", zap.String("id", entry.ID), zap.Error(err))
		return
	}
	if err := s.adapter.Write(entryKeyPrefix+entry.ID, data); err != nil {
		s.setDegraded(err, "persisting entry", entry.ID)
		return
	}

	s.mu.Lock()
	s.degraded = false
	s.lastSync = time.Now()
	s.mu.Unlock()
}

func (s *Store) setDegraded(err error, op, id string) {
	s.mu.Lock()
	already := s.degraded
	s.degraded = true
	s.mu.Unlock()

	if !already {
		s.logger.Warn("persistence degraded, continuing in-memory",
			zap.String("op", op),
			zap.String("id", id),
			zap.Error(err),
		)
	}
}
