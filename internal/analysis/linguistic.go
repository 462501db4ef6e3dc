package analysis

import (
	"fmt"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"
)

// LinguisticFeatures is what a deep linguistic pass contributes to QualityMetrics
type LinguisticFeatures struct {
	AvgTokenLength  float64
	Entities        []Entity
	POSDistribution map[string]int
}

// LinguisticAnalyzer is an optional tokenizer/tagger/NER pipeline.
type LinguisticAnalyzer interface {
	Analyze(text string) (*LinguisticFeatures, error)
}

// ProseAnalyzer runs prose's tokenizer, perceptron tagger and entity chunker.
type ProseAnalyzer struct{}

func NewProseAnalyzer() *ProseAnalyzer {
	return &ProseAnalyzer{}
}

func (p *ProseAnalyzer) Analyze(text string) (*LinguisticFeatures, error) {
	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil, fmt.Errorf("failed to build prose document: %w", err)
	}

	tokens := doc.Tokens()
	lf := &LinguisticFeatures{
		POSDistribution: make(map[string]int),
	}

	totalLen := 0
	for _, tok := range tokens {
		totalLen += utf8.RuneCountInString(tok.Text)
		lf.POSDistribution[tok.Tag]++
	}
	if len(tokens) > 0 {
		lf.AvgTokenLength = float64(totalLen) / float64(len(tokens))
	}

	for _, ent := range doc.Entities() {
		lf.Entities = append(lf.Entities, Entity{Label: ent.Label, Text: ent.Text})
	}

	return lf, nil
}
