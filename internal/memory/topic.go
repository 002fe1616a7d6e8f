package memory

import (
	"strings"
)

// topicDriftMinTurns is the session length after which topic detection
// re-runs on every user turn.
const topicDriftMinTurns = 3

// topicDriftWindow is how many recent questions feed re-detection.
const topicDriftWindow = 5

// topicKeywords is the detection table. A topic wins by keyword hit count
// across the inspected questions.
var topicKeywords = map[string][]string{
	"pricing":   {"price", "prices", "pricing", "cost", "costs", "plan", "plans", "subscription", "billing", "discount"},
	"services":  {"service", "services", "offer", "offering", "package", "consulting", "support"},
	"technical": {"error", "bug", "api", "install", "configure", "integration", "code", "crash", "technical"},
	"greeting":  {"hello", "hi", "hey", "thanks", "thank", "goodbye", "bye"},
}

// DetectTopic derives a topic and its tag set from conversation text.
// Returns "general" with no tags when nothing matches.
func DetectTopic(texts []string) (string, []string) {
	counts := make(map[string]int)
	for _, text := range texts {
		tokens := strings.Fields(strings.ToLower(text))
		for topic, keywords := range topicKeywords {
			for _, token := range tokens {
				for _, kw := range keywords {
					if token == kw {
						counts[topic]++
					}
				}
			}
		}
	}

	best := ""
	bestCount := 0
	for topic, count := range counts {
		if count > bestCount || (count == bestCount && topic < best) {
			best = topic
			bestCount = count
		}
	}

	if bestCount == 0 {
		return "general", nil
	}
	return best, topicKeywordTags(best)
}

// topicKeywordTags returns the tag set recorded on sessions for a topic.
func topicKeywordTags(topic string) []string {
	keywords, ok := topicKeywords[topic]
	if !ok {
		return nil
	}
	// The first few keywords double as session tags.
	n := 3
	if len(keywords) < n {
		n = len(keywords)
	}
	tags := make([]string, n)
	copy(tags, keywords[:n])
	return tags
}
