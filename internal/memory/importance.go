package memory

import (
	"strings"

	"github.com/fyrsmithlabs/recalld/internal/knowledge"
)

// longAnswerChars is the answer length that earns the long-answer bonus.
const longAnswerChars = 300

// urgentKeywords earn the urgency importance bonus when they appear in the
// question.
var urgentKeywords = []string{
	"urgent", "asap", "immediately", "emergency", "critical",
	"broken", "down", "outage", "not working",
}

// computeImportance scores a turn's retention priority at record time.
//
//	0.5*confidence
//	+0.3 if category is pricing or services
//	+0.2 if the question carries an urgency keyword
//	+0.1 if the answer is long
//
// clamped to 1.0.
func computeImportance(category string, confidence float64, question, answer string) float64 {
	importance := 0.5 * confidence

	switch knowledge.Category(category) {
	case knowledge.CategoryPricing, knowledge.CategoryServices:
		importance += 0.3
	}

	lower := strings.ToLower(question)
	for _, kw := range urgentKeywords {
		if strings.Contains(lower, kw) {
			importance += 0.2
			break
		}
	}

	if len(answer) > longAnswerChars {
		importance += 0.1
	}

	return knowledge.Clamp01(importance)
}

// reviseImportance applies a feedback rating shift of (rating-3)*0.2.
// When a previous rating exists its shift is reverted first, so re-rating
// overwrites rather than accumulates.
func reviseImportance(importance float64, previousRating, rating int) float64 {
	if previousRating != 0 {
		importance -= float64(previousRating-3) * 0.2
	}
	importance += float64(rating-3) * 0.2
	return knowledge.Clamp01(importance)
}
