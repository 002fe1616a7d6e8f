// Package vectorizer provides deterministic bag-of-words text embeddings.
//
// The vectorizer maps text to a fixed-length vector without any external
// model: tokens are hashed into buckets and weighted by position, then the
// vector is L2-normalized. The same input always produces the same vector,
// across calls and across process restarts.
//
// Example usage:
//
//	vec, err := vectorizer.New(vectorizer.Config{Dimension: 256})
//	if err != nil {
//	    // Handle error
//	}
//	embedding := vec.Embed("pricing for startups")
package vectorizer

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimension is the embedding dimension used when none is configured.
const DefaultDimension = 256

// Config holds vectorizer configuration.
//
// Dimension is fixed at process start and shared by every consumer: vectors
// of different dimensions never compare against each other.
type Config struct {
	// Dimension is the length of produced vectors.
	Dimension int `koanf:"dimension"`
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", c.Dimension)
	}
	return nil
}

// Vectorizer converts text into fixed-length vectors.
//
// It is pure and side-effect-free: no I/O, no randomness, safe for
// concurrent use.
type Vectorizer struct {
	dim int
}

// New creates a vectorizer with the given configuration.
func New(cfg Config) (*Vectorizer, error) {
	if cfg.Dimension == 0 {
		cfg.Dimension = DefaultDimension
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &Vectorizer{dim: cfg.Dimension}, nil
}

// Dimension returns the length of vectors produced by Embed.
func (v *Vectorizer) Dimension() int {
	return v.dim
}

// Embed converts text into an L2-normalized vector.
//
// Tokens are case-folded with punctuation stripped. Each token is hashed
// into a bucket and accumulates 1/(position+1), so earlier tokens weigh
// more. Empty input returns the zero vector.
func (v *Vectorizer) Embed(text string) []float64 {
	vec := make([]float64, v.dim)

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return vec
	}

	for i, token := range tokens {
		bucket := bucketIndex(token, v.dim)
		vec[bucket] += 1.0 / float64(i+1)
	}

	return normalize(vec)
}

// Tokenize splits text into lowercase tokens, treating any run of
// non-letter non-digit characters as a separator, so "Pricing:" and
// "pricing" produce the same token.
//
// It is exported because the memory cache and search heuristics use the
// same tokenization for lexical-overlap scoring.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// LexicalOverlap scores shared-token overlap between two texts in [0, 1]:
// the number of distinct shared tokens over the larger token count. It is
// the cheap companion to cosine similarity for near-duplicate detection.
func LexicalOverlap(a, b string) float64 {
	tokensA := Tokenize(a)
	tokensB := Tokenize(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	seen := make(map[string]bool, len(tokensA))
	for _, t := range tokensA {
		seen[t] = true
	}

	shared := 0
	counted := make(map[string]bool, len(tokensB))
	for _, t := range tokensB {
		if seen[t] && !counted[t] {
			shared++
			counted[t] = true
		}
	}

	denom := len(tokensA)
	if len(tokensB) > denom {
		denom = len(tokensB)
	}
	return float64(shared) / float64(denom)
}

// bucketIndex maps a token to a stable bucket in [0, dim).
func bucketIndex(token string, dim int) int {
	h := fnv.New32a()
	// fnv hash writes never fail
	_, _ = h.Write([]byte(token))
	return int(h.Sum32() % uint32(dim))
}

// normalize scales vec to unit length. The zero vector is returned as-is.
func normalize(vec []float64) []float64 {
	var sum float64
	for _, x := range vec {
		sum += x * x
	}
	if sum == 0 {
		return vec
	}
	mag := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= mag
	}
	return vec
}
