package similarity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a    []float64
		b    []float64
		want float64
	}{
		{name: "identical", a: []float64{1, 0, 0}, b: []float64{1, 0, 0}, want: 1},
		{name: "orthogonal", a: []float64{1, 0}, b: []float64{0, 1}, want: 0},
		{name: "opposite", a: []float64{1, 0}, b: []float64{-1, 0}, want: -1},
		{name: "scaled same direction", a: []float64{1, 2}, b: []float64{2, 4}, want: 1},
		{name: "zero a", a: []float64{0, 0}, b: []float64{1, 1}, want: 0},
		{name: "zero b", a: []float64{1, 1}, b: []float64{0, 0}, want: 0},
		{name: "length mismatch", a: []float64{1, 0, 0}, b: []float64{1, 0}, want: 0},
		{name: "both empty", a: nil, b: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestRank(t *testing.T) {
	query := []float64{1, 0, 0}

	t.Run("orders best first", func(t *testing.T) {
		candidates := []Candidate{
			{ID: "far", Vector: []float64{0, 1, 0}},
			{ID: "near", Vector: []float64{1, 0.1, 0}},
			{ID: "exact", Vector: []float64{1, 0, 0}},
		}
		matches := Rank(query, candidates, nil)
		require.Len(t, matches, 3)
		assert.Equal(t, "exact", matches[0].Candidate.ID)
		assert.Equal(t, "near", matches[1].Candidate.ID)
		assert.Equal(t, "far", matches[2].Candidate.ID)
	})

	t.Run("importance breaks score ties", func(t *testing.T) {
		candidates := []Candidate{
			{ID: "low", Vector: []float64{1, 0, 0}, Importance: 0.2},
			{ID: "high", Vector: []float64{1, 0, 0}, Importance: 0.9},
		}
		matches := Rank(query, candidates, nil)
		require.Len(t, matches, 2)
		assert.Equal(t, "high", matches[0].Candidate.ID)
	})

	t.Run("recency breaks remaining ties", func(t *testing.T) {
		now := time.Now()
		candidates := []Candidate{
			{ID: "old", Vector: []float64{1, 0, 0}, Importance: 0.5, LastAccessed: now.Add(-time.Hour)},
			{ID: "recent", Vector: []float64{1, 0, 0}, Importance: 0.5, LastAccessed: now},
		}
		matches := Rank(query, candidates, nil)
		require.Len(t, matches, 2)
		assert.Equal(t, "recent", matches[0].Candidate.ID)
	})

	t.Run("mismatched dimension scores zero", func(t *testing.T) {
		candidates := []Candidate{
			{ID: "short", Vector: []float64{1, 0}},
		}
		matches := Rank(query, candidates, nil)
		require.Len(t, matches, 1)
		assert.Zero(t, matches[0].Score)
	})

	t.Run("distance is one minus score", func(t *testing.T) {
		matches := Rank(query, []Candidate{{ID: "a", Vector: []float64{1, 0, 0}}}, nil)
		require.Len(t, matches, 1)
		assert.InDelta(t, 0, matches[0].Distance(), 1e-9)
	})

	t.Run("empty candidate set", func(t *testing.T) {
		assert.Empty(t, Rank(query, nil, nil))
	})
}

func TestFilter(t *testing.T) {
	now := time.Now()
	candidate := Candidate{
		ID:         "c1",
		Vector:     []float64{1, 0, 0},
		Importance: 0.6,
		Category:   "pricing",
		Tags:       []string{"plan", "startup"},
		CreatedAt:  now,
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "empty filter matches", filter: Filter{}, want: true},
		{name: "category match", filter: Filter{Category: "pricing"}, want: true},
		{name: "category mismatch", filter: Filter{Category: "services"}, want: false},
		{name: "importance met", filter: Filter{MinImportance: 0.5}, want: true},
		{name: "importance not met", filter: Filter{MinImportance: 0.7}, want: false},
		{name: "tag present", filter: Filter{Tag: "startup"}, want: true},
		{name: "tag absent", filter: Filter{Tag: "enterprise"}, want: false},
		{name: "after satisfied", filter: Filter{After: now.Add(-time.Hour)}, want: true},
		{name: "after violated", filter: Filter{After: now.Add(time.Hour)}, want: false},
		{name: "before violated", filter: Filter{Before: now.Add(-time.Hour)}, want: false},
		{name: "conjunction", filter: Filter{Category: "pricing", Tag: "plan", MinImportance: 0.5}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(candidate))
		})
	}

	t.Run("rank applies filter", func(t *testing.T) {
		candidates := []Candidate{
			candidate,
			{ID: "c2", Vector: []float64{1, 0, 0}, Category: "services"},
		}
		matches := Rank([]float64{1, 0, 0}, candidates, &Filter{Category: "pricing"})
		require.Len(t, matches, 1)
		assert.Equal(t, "c1", matches[0].Candidate.ID)
	})
}
