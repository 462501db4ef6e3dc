package analysis

const defaultQualityScore = 0.5

type qualityComponent struct {
	name   string
	weight float64
	value  func(m QualityMetrics) (float64, bool)
}

// Components in evaluation order. A component whose value is absent drops out
// of the normalizer, so the remaining weights are rescaled to sum to one.
var qualityComponents = []qualityComponent{
	{"readability_score", 0.2, func(m QualityMetrics) (float64, bool) { return m.ReadabilityScore, true }},
	{"completeness_score", 0.3, func(m QualityMetrics) (float64, bool) { return m.CompletenessScore, true }},
	{"professional_score", 0.2, func(m QualityMetrics) (float64, bool) { return m.ProfessionalScore, true }},
	{"technical_terms_count", 0.1, func(m QualityMetrics) (float64, bool) {
		return clip(float64(m.TechnicalTermsCount)/10, 0, 1), true
	}},
	{"word_count", 0.1, func(m QualityMetrics) (float64, bool) { return wordCountBucket(m.WordCount), true }},
	{"linguistic_complexity", 0.1, func(m QualityMetrics) (float64, bool) {
		if m.LinguisticComplexity == nil {
			return 0, false
		}
		return *m.LinguisticComplexity, true
	}},
}

// wordCountBucket favours proposals between 200 and 1000 words.
func wordCountBucket(words int) float64 {
	switch {
	case words < 50:
		return 0.2
	case words < 200:
		return 0.6
	case words < 1000:
		return 1.0
	case words < 2000:
		return 0.8
	default:
		return 0.5
	}
}

// aggregateQuality returns the weighted mean of the present components and the
// effective weight each one received.
func aggregateQuality(m QualityMetrics) (float64, map[string]float64) {
	score, total := 0.0, 0.0
	present := make([]qualityComponent, 0, len(qualityComponents))

	for _, c := range qualityComponents {
		v, ok := c.value(m)
		if !ok {
			continue
		}
		score += v * c.weight
		total += c.weight
		present = append(present, c)
	}

	if total == 0 {
		return defaultQualityScore, nil
	}

	applied := make(map[string]float64, len(present))
	for _, c := range present {
		applied[c.name] = c.weight / total
	}

	return clip(score/total, 0, 1), applied
}
