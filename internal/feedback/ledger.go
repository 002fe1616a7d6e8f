package feedback

import (
	"sync"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/similarity"
	"github.com/fyrsmithlabs/recalld/internal/vectorizer"
)

const (
	// defaultLedgerCap bounds the suppressed-answers ledger; the oldest
	// entry is evicted beyond it.
	defaultLedgerCap = 100

	// answerPrefixLen is how much of a poorly-rated answer is kept for
	// matching future candidates.
	answerPrefixLen = 120

	// Suppression thresholds: the question must be similar lexically or
	// semantically AND the candidate answer prefix must overlap.
	questionLexicalThreshold  = 0.5
	questionSemanticThreshold = 0.75
	answerOverlapThreshold    = 0.6
)

// SuppressedAnswer records one poorly-rated answer, keyed by its question
// and answer prefix.
type SuppressedAnswer struct {
	TurnID       string    `json:"turn_id"`
	Question     string    `json:"question"`
	AnswerPrefix string    `json:"answer_prefix"`
	Rating       int       `json:"rating"`
	CreatedAt    time.Time `json:"created_at"`

	// QuestionVec caches the question embedding for the semantic half of
	// the suppression test.
	QuestionVec []float64 `json:"question_vec,omitempty"`
}

// Ledger is the bounded suppressed-answers list. A candidate answer is
// suppressed when its question AND its answer prefix both resemble a
// recorded bad answer.
type Ledger struct {
	cap int

	mu      sync.RWMutex
	entries []SuppressedAnswer
}

// NewLedger creates a ledger with the given capacity (default 100).
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = defaultLedgerCap
	}
	return &Ledger{cap: capacity}
}

// Add records a suppressed answer. Re-recording the same turn overwrites
// its previous entry; beyond capacity the oldest entry is evicted.
func (l *Ledger) Add(entry SuppressedAnswer) {
	if len(entry.AnswerPrefix) > answerPrefixLen {
		entry.AnswerPrefix = entry.AnswerPrefix[:answerPrefixLen]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Overwrite a prior entry for the same turn instead of duplicating.
	for i := range l.entries {
		if l.entries[i].TurnID == entry.TurnID && entry.TurnID != "" {
			l.entries[i] = entry
			return
		}
	}

	l.entries = append(l.entries, entry)
	if len(l.entries) > l.cap {
		l.entries = l.entries[len(l.entries)-l.cap:]
	}
}

// Suppressed reports whether a candidate answer for the given question
// should be withheld.
func (l *Ledger) Suppressed(question string, questionVec []float64, candidateAnswer string) bool {
	prefix := candidateAnswer
	if len(prefix) > answerPrefixLen {
		prefix = prefix[:answerPrefixLen]
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := range l.entries {
		e := &l.entries[i]

		questionSimilar := vectorizer.LexicalOverlap(question, e.Question) >= questionLexicalThreshold
		if !questionSimilar && questionVec != nil && e.QuestionVec != nil {
			questionSimilar = similarity.Cosine(questionVec, e.QuestionVec) >= questionSemanticThreshold
		}
		if !questionSimilar {
			continue
		}

		if vectorizer.LexicalOverlap(prefix, e.AnswerPrefix) >= answerOverlapThreshold {
			return true
		}
	}
	return false
}

// Len returns the number of suppressed answers held.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of the ledger contents, oldest first.
func (l *Ledger) Entries() []SuppressedAnswer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]SuppressedAnswer, len(l.entries))
	copy(out, l.entries)
	return out
}
