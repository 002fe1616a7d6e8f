package orchestrator

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/recalld/internal/vectorizer"
)

// Intent kinds form one consistent decision table: a query classifies into
// exactly one kind, and the skip-web / search-web decisions both derive
// from it, so a kind can never be both core-topic and web-search-worthy.
type intentKind string

const (
	intentGreeting   intentKind = "greeting"
	intentThanks     intentKind = "thanks"
	intentCoreTopic  intentKind = "core_topic"
	intentFreshness  intentKind = "freshness"
	intentComparison intentKind = "comparison"
	intentHowTo      intentKind = "how_to"
	intentGeneral    intentKind = "general"
)

type intent struct {
	kind       intentKind
	confidence float64
}

// shortQueryTokens is the utterance length at or below which the query is
// considered too short to justify a web round trip.
const shortQueryTokens = 2

var (
	greetingWords = map[string]bool{
		"hello": true, "hi": true, "hey": true, "greetings": true,
		"morning": true, "afternoon": true, "evening": true,
	}
	thanksWords = map[string]bool{
		"thanks": true, "thank": true, "appreciated": true, "cheers": true,
	}

	// coreTopicWords mark business topics the knowledge store already
	// covers; these never trigger a web search.
	coreTopicWords = map[string]bool{
		"price": true, "prices": true, "pricing": true, "cost": true,
		"costs": true, "plan": true, "plans": true, "subscription": true,
		"billing": true, "service": true, "services": true, "support": true,
		"refund": true, "contact": true, "hours": true,
	}

	freshnessWords = map[string]bool{
		"latest": true, "news": true, "today": true, "current": true,
		"recent": true, "update": true, "updated": true, "trending": true,
	}
	comparisonWords = map[string]bool{
		"vs": true, "versus": true, "compare": true, "comparison": true,
		"better": true, "best": true, "alternative": true, "alternatives": true,
	}
	howToWords = map[string]bool{
		"how": true, "tutorial": true, "guide": true, "install": true,
		"setup": true, "configure": true, "build": true,
	}

	yearPattern = regexp.MustCompile(`\b20\d{2}\b`)
)

// classify assigns the query its single intent. Precedence: smalltalk,
// then core business topics, then web-worthy cues.
func classify(query string) intent {
	tokens := vectorizer.Tokenize(query)
	if len(tokens) == 0 {
		return intent{kind: intentGeneral, confidence: 0.3}
	}

	counts := map[intentKind]int{}
	for _, t := range tokens {
		switch {
		case greetingWords[t]:
			counts[intentGreeting]++
		case thanksWords[t]:
			counts[intentThanks]++
		case coreTopicWords[t]:
			counts[intentCoreTopic]++
		case freshnessWords[t]:
			counts[intentFreshness]++
		case comparisonWords[t]:
			counts[intentComparison]++
		case howToWords[t]:
			counts[intentHowTo]++
		}
	}
	if yearPattern.MatchString(strings.ToLower(query)) {
		counts[intentFreshness]++
	}

	// Smalltalk only counts when it dominates the utterance.
	if counts[intentGreeting] > 0 && len(tokens) <= 4 {
		return intent{kind: intentGreeting, confidence: 0.9}
	}
	if counts[intentThanks] > 0 && len(tokens) <= 4 {
		return intent{kind: intentThanks, confidence: 0.9}
	}
	if counts[intentCoreTopic] > 0 {
		return intent{kind: intentCoreTopic, confidence: 0.8}
	}

	best, bestCount := intentGeneral, 0
	for _, kind := range []intentKind{intentFreshness, intentComparison, intentHowTo} {
		if counts[kind] > bestCount {
			best = kind
			bestCount = counts[kind]
		}
	}
	if bestCount > 0 {
		return intent{kind: best, confidence: 0.7}
	}
	return intent{kind: intentGeneral, confidence: 0.5}
}

// skipWeb reports whether the query must never reach external search:
// smalltalk, very short utterances, and core business topics already
// covered locally.
func skipWeb(it intent, query string) bool {
	switch it.kind {
	case intentGreeting, intentThanks, intentCoreTopic:
		return true
	}
	return len(vectorizer.Tokenize(query)) <= shortQueryTokens
}

// searchWeb reports whether the query carries cues worth a web round trip.
// Mutually exclusive with skipWeb by construction.
func searchWeb(it intent, query string) bool {
	if skipWeb(it, query) {
		return false
	}
	switch it.kind {
	case intentFreshness, intentComparison, intentHowTo:
		return true
	}
	return false
}
