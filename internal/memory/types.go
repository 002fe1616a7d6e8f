package memory

import (
	"time"
)

// Feedback is a user rating attached to a turn. Rating is an integer in
// 1..5 when present.
type Feedback struct {
	Rating   int       `json:"rating"`
	Comments string    `json:"comments,omitempty"`
	RatedAt  time.Time `json:"rated_at"`
}

// TurnMeta carries answer metadata recorded by the orchestrator.
type TurnMeta struct {
	Confidence   float64       `json:"confidence"`
	Sources      []string      `json:"sources,omitempty"`
	Category     string        `json:"category,omitempty"`
	ResponseTime time.Duration `json:"response_time,omitempty"`
}

// Turn is one question/answer exchange.
type Turn struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Feedback  *Feedback `json:"feedback,omitempty"`
	Meta      TurnMeta  `json:"metadata"`

	// Importance is the retention priority in [0, 1], computed at record
	// time and revised on feedback.
	Importance float64 `json:"importance"`

	// Embedding is the question vector, kept so Find can fall back from
	// lexical overlap to similarity ranking without re-embedding.
	Embedding []float64 `json:"embedding,omitempty"`
}

// Clone returns a deep copy of the turn.
func (t *Turn) Clone() *Turn {
	out := *t
	out.Meta.Sources = append([]string(nil), t.Meta.Sources...)
	out.Embedding = append([]float64(nil), t.Embedding...)
	if t.Feedback != nil {
		fb := *t.Feedback
		out.Feedback = &fb
	}
	return &out
}

// Session is an ordered collection of turns sharing a detected topic.
// Turns are ordered by timestamp; the topic may be re-derived as the
// conversation drifts, without changing the session identity.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Topic     string    `json:"topic"`
	Tags      []string  `json:"tags,omitempty"`
	TurnIDs   []string  `json:"turn_ids"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	out := *s
	out.Tags = append([]string(nil), s.Tags...)
	out.TurnIDs = append([]string(nil), s.TurnIDs...)
	return &out
}

// TurnMatch is one ranked Find result.
type TurnMatch struct {
	Turn  *Turn
	Score float64
}

// OptimizeResult reports an eviction pass.
type OptimizeResult struct {
	Before  int `json:"before"`
	After   int `json:"after"`
	Evicted int `json:"evicted"`
}
