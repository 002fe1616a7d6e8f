package orchestrator

// fallbackConfidenceCap is the ceiling on fallback-branch confidence. A
// fallback answer must never look more certain than a grounded one.
const fallbackConfidenceCap = 0.3

// maxConfidence keeps the engine from ever claiming certainty.
const maxConfidence = 0.95

// blendConfidence combines the turn's evidence into one answer confidence.
//
// Each term contributes independently: local knowledge similarity dominates,
// cached conversation similarity and web evidence add less, and the intent
// classifier's own certainty rounds it out. The result is clamped to
// [0, maxConfidence].
func blendConfidence(localSim, cacheSim float64, webResultCount int, intentConfidence float64) float64 {
	webTerm := 0.1 * float64(webResultCount)
	if webTerm > 0.25 {
		webTerm = 0.25
	}

	conf := 0.4 + 0.35*localSim + 0.2*cacheSim + webTerm + 0.2*intentConfidence
	if conf < 0 {
		conf = 0
	}
	if conf > maxConfidence {
		conf = maxConfidence
	}
	return conf
}
