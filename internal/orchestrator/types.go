package orchestrator

import "time"

// State identifies which branch of the answer pipeline produced a response.
type State string

const (
	StateAnswerFromLocal  State = "answer_from_local"
	StateAnswerFromWeb    State = "answer_from_web"
	StateAnswerFromHybrid State = "answer_from_hybrid"
	StateFallback         State = "fallback"
)

// Request is one user query.
type Request struct {
	// SessionID groups turns into a conversation (default "default").
	SessionID string

	// UserID attributes the session, optional.
	UserID string

	// Query is the natural-language question.
	Query string
}

// Response is the synthesized answer for one turn.
type Response struct {
	// TurnID identifies the recorded conversation turn, for feedback.
	TurnID string `json:"turn_id"`

	// Answer is the synthesized text.
	Answer string `json:"answer"`

	// State names the branch that produced the answer.
	State State `json:"state"`

	// Confidence is the blended answer confidence in [0, 0.95].
	Confidence float64 `json:"confidence"`

	// Similarity is the best knowledge-store similarity seen this turn.
	Similarity float64 `json:"similarity"`

	// Sources lists where the answer came from (entry ids, URLs).
	Sources []string `json:"sources,omitempty"`

	// Topic is the active conversation topic after this turn.
	Topic string `json:"topic,omitempty"`

	// ResponseTime is how long the turn took end to end.
	ResponseTime time.Duration `json:"response_time"`
}
