package analysis

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// ErrInvalidText is reported in QualityMetrics.Error for empty proposals.
const ErrInvalidText = "Invalid or empty text"

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

var technicalTerms = []string{
	"specification", "requirements", "implementation", "methodology",
	"deliverable", "milestone", "compliance", "quality assurance",
	"project management", "risk assessment", "stakeholder", "framework",
	"infrastructure", "procurement", "contract", "budget", "timeline",
	"resource", "capability", "expertise", "experience", "qualification",
}

var completenessIndicators = []string{
	"objective", "goal", "approach", "method", "timeline", "budget",
	"team", "experience", "qualification", "deliverable", "outcome",
	"benefit", "advantage", "solution", "strategy", "plan",
}

var professionalPhrases = []string{
	"we propose", "our team", "our experience", "we will", "we have",
	"pleased to", "look forward", "thank you", "sincerely", "respectfully",
}

var informalTerms = []string{
	"definitely", "awesome", "super", "totally", "basically",
	"stuff", "things", "whatever", "kinda", "sorta",
}

// Entity is a named entity found by the linguistic pipeline
type Entity struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// QualityMetrics is the full breakdown behind a proposal quality score
type QualityMetrics struct {
	QualityScore         float64            `json:"quality_score"`
	WordCount            int                `json:"word_count"`
	SentenceCount        int                `json:"sentence_count"`
	ReadabilityScore     float64            `json:"readability_score"`
	TechnicalTermsCount  int                `json:"technical_terms_count"`
	CompletenessScore    float64            `json:"completeness_score"`
	ProfessionalScore    float64            `json:"professional_score"`
	LinguisticComplexity *float64           `json:"linguistic_complexity,omitempty"`
	AvgTokenLength       *float64           `json:"avg_token_length,omitempty"`
	Entities             []Entity           `json:"entities,omitempty"`
	POSDistribution      map[string]int     `json:"pos_distribution,omitempty"`
	AppliedWeights       map[string]float64 `json:"applied_weights,omitempty"`
	Error                string             `json:"error,omitempty"`
}

// QualityScorer scores proposal text. The zero value works without the
// linguistic pipeline.
type QualityScorer struct {
	linguistic LinguisticAnalyzer
}

// NewQualityScorer creates a scorer; la may be nil.
func NewQualityScorer(la LinguisticAnalyzer) *QualityScorer {
	return &QualityScorer{linguistic: la}
}

// LinguisticEnabled reports whether the deep pipeline is wired in
func (s *QualityScorer) LinguisticEnabled() bool {
	return s != nil && s.linguistic != nil
}

// Score never fails: empty input yields zeroed metrics with Error set.
func (s *QualityScorer) Score(text string) QualityMetrics {
	if strings.TrimSpace(text) == "" {
		return QualityMetrics{Error: ErrInvalidText}
	}

	folded := foldText(text)
	words := strings.Fields(text)

	m := QualityMetrics{
		WordCount:           len(words),
		SentenceCount:       countSentences(text),
		ReadabilityScore:    readability(text),
		TechnicalTermsCount: countMatches(folded, technicalTerms),
		CompletenessScore:   completeness(folded),
		ProfessionalScore:   professionalism(folded),
	}

	if s.LinguisticEnabled() {
		lf, err := s.linguistic.Analyze(text)
		if err != nil {
			slog.Warn("Linguistic analysis failed", "error", err)
		} else if lf != nil {
			complexity := clip(lf.AvgTokenLength/10, 0, 1)
			avg := lf.AvgTokenLength
			m.LinguisticComplexity = &complexity
			m.AvgTokenLength = &avg
			m.Entities = lf.Entities
			m.POSDistribution = lf.POSDistribution
		}
	}

	m.QualityScore, m.AppliedWeights = aggregateQuality(m)
	return m
}

func countSentences(text string) int {
	return len(sentenceSplit.Split(strings.TrimSpace(text), -1))
}

// readability approximates Flesch reading ease rescaled to [0,1].
func readability(text string) float64 {
	words := strings.Fields(text)
	sentences := countSentences(text)
	if sentences == 0 || len(words) == 0 {
		return 0
	}

	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}

	avgSentenceLen := float64(len(words)) / float64(sentences)
	avgSyllables := float64(syllables) / float64(len(words))
	score := 206.835 - 1.015*avgSentenceLen - 84.6*avgSyllables

	return clip(score/100, 0, 1)
}

func countSyllables(word string) int {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return 0
	}

	count := 0
	prevVowel := false
	for _, r := range word {
		isVowel := strings.ContainsRune("aeiouy", r)
		if isVowel && !prevVowel {
			count++
		}
		prevVowel = isVowel
	}

	// silent trailing e
	if strings.HasSuffix(word, "e") && count > 1 {
		count--
	}
	if count < 1 {
		return 1
	}
	return count
}

func countMatches(folded string, vocabulary []string) int {
	n := 0
	for _, term := range vocabulary {
		if strings.Contains(folded, term) {
			n++
		}
	}
	return n
}

func completeness(folded string) float64 {
	found := countMatches(folded, completenessIndicators)
	return clip(float64(found)/float64(len(completenessIndicators)), 0, 1)
}

func professionalism(folded string) float64 {
	pro := countMatches(folded, professionalPhrases)
	informal := countMatches(folded, informalTerms)
	return clip(0.5+0.1*float64(pro)-0.1*float64(informal), 0, 1)
}

var foldPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFKC,
			cases.Fold(),
			runes.Remove(runes.In(unicode.Cf)), // zero-width joiners and friends
			width.Fold,
		)
	},
}

// foldText normalizes compatibility forms, full-width characters and case so
// vocabulary matching is not fooled by "ＢＵＤＧＥＴ" or "Budget".
func foldText(text string) string {
	text = strings.ToValidUTF8(text, "")

	tr := foldPool.Get().(transform.Transformer)
	out, _, err := transform.String(tr, text)
	tr.Reset()
	foldPool.Put(tr)

	if err != nil {
		return strings.ToLower(text)
	}
	return out
}
