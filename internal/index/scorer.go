package index

import "strings"

// Scorer ranks chunk text against a question. It is the swap point for
// a semantic backend: an embedding-based implementation can replace the
// lexical one without touching Index or its callers. Implementations
// must be safe for concurrent use.
type Scorer interface {
	Name() string
	// Score returns the number of shared tokens and the normalized
	// relevance in [0,1] for the given question/text pair.
	Score(question, text string) (int, float64)
}

// LexicalScorer scores by token-set overlap: both strings are
// lower-cased and split on whitespace, and the score is
// |question tokens ∩ text tokens| / |question tokens|.
type LexicalScorer struct{}

func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

func (s *LexicalScorer) Name() string { return "lexical" }

func (s *LexicalScorer) Score(question, text string) (int, float64) {
	questionTokens := tokenSet(question)
	if len(questionTokens) == 0 {
		return 0, 0
	}

	overlap := 0
	for token := range tokenSet(text) {
		if _, ok := questionTokens[token]; ok {
			overlap++
		}
	}

	return overlap, float64(overlap) / float64(len(questionTokens))
}

func tokenSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
