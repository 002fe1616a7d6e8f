// Package similarity ranks candidate vectors against a query vector.
//
// The engine is pure and synchronous: the caller supplies the candidate set
// already loaded from storage, and ranking runs in O(candidates * dimension)
// with no I/O. Scores are cosine similarities in [-1, 1]; distance is
// 1 - similarity.
package similarity

import (
	"math"
	"sort"
	"time"
)

// Candidate is one entry to rank against a query vector.
type Candidate struct {
	// ID identifies the underlying entry.
	ID string

	// Vector is the entry's embedding. Must have the same dimension as
	// the query vector; mismatched candidates score 0.
	Vector []float64

	// Importance breaks score ties (higher wins).
	Importance float64

	// LastAccessed breaks remaining ties (more recent wins).
	LastAccessed time.Time

	// Category, Tags and CreatedAt feed metadata filters.
	Category  string
	Tags      []string
	CreatedAt time.Time
}

// Match is a ranked candidate with its similarity score.
type Match struct {
	Candidate Candidate
	Score     float64
}

// Distance returns the distance form of the match score.
func (m Match) Distance() float64 {
	return 1 - m.Score
}

// Filter is a conjunction of exact-match metadata predicates. Zero-valued
// fields are not applied.
type Filter struct {
	// Category requires an exact category match.
	Category string

	// MinImportance requires candidate importance >= the threshold.
	MinImportance float64

	// Tag requires membership in the candidate's tag set.
	Tag string

	// After/Before bound the candidate's creation time.
	After  time.Time
	Before time.Time
}

// Matches reports whether a candidate passes every set predicate.
func (f Filter) Matches(c Candidate) bool {
	if f.Category != "" && c.Category != f.Category {
		return false
	}
	if f.MinImportance > 0 && c.Importance < f.MinImportance {
		return false
	}
	if f.Tag != "" && !containsTag(c.Tags, f.Tag) {
		return false
	}
	if !f.After.IsZero() && c.CreatedAt.Before(f.After) {
		return false
	}
	if !f.Before.IsZero() && c.CreatedAt.After(f.Before) {
		return false
	}
	return true
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Rank scores candidates against the query vector and returns them ordered
// best-first. Ties are broken by higher importance, then by more recent
// last access.
//
// A nil filter ranks every candidate.
func Rank(query []float64, candidates []Candidate, filter *Filter) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if filter != nil && !filter.Matches(c) {
			continue
		}
		matches = append(matches, Match{
			Candidate: c,
			Score:     Cosine(query, c.Vector),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Candidate.Importance != matches[j].Candidate.Importance {
			return matches[i].Candidate.Importance > matches[j].Candidate.Importance
		}
		return matches[i].Candidate.LastAccessed.After(matches[j].Candidate.LastAccessed)
	})

	return matches
}

// Cosine computes cosine similarity between two vectors.
//
// Returns a value in [-1, 1] where 1 = identical direction, 0 = orthogonal,
// -1 = opposite. Mismatched lengths and zero-magnitude vectors score 0
// rather than producing NaN.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
