package retrieval

import (
	"github.com/ddq-agent/backend/internal/index"
	"github.com/ddq-agent/backend/internal/storage/models"
)

// Config bounds the two query passes.
type Config struct {
	AnswerTopK   int
	CitationTopM int
	MinOverlap   int
}

func DefaultConfig() Config {
	return Config{AnswerTopK: 5, CitationTopM: 3, MinOverlap: 1}
}

// Retriever runs ranked queries against the two index tiers. Answer
// context comes from the coarse retrieval tier; citations re-query the
// fine tier independently so a cited span stays small even when the
// supporting context window is large.
type Retriever struct {
	index *index.Index
	cfg   Config
}

func New(idx *index.Index, cfg Config) *Retriever {
	if cfg.AnswerTopK <= 0 {
		cfg.AnswerTopK = 5
	}
	if cfg.CitationTopM <= 0 {
		cfg.CitationTopM = 3
	}
	if cfg.MinOverlap < 1 {
		cfg.MinOverlap = 1
	}
	return &Retriever{index: idx, cfg: cfg}
}

// ForAnswer returns up to AnswerTopK retrieval-tier chunks with at
// least MinOverlap shared tokens. An empty result means the question is
// unanswerable from the current corpus scope.
func (r *Retriever) ForAnswer(question string, scopeDocumentIDs []string) []index.ScoredChunk {
	return r.query(models.TierRetrieval, question, scopeDocumentIDs, r.cfg.AnswerTopK)
}

// ForCitations returns up to CitationTopM citation-tier chunks for the
// same question and scope.
func (r *Retriever) ForCitations(question string, scopeDocumentIDs []string) []index.ScoredChunk {
	return r.query(models.TierCitation, question, scopeDocumentIDs, r.cfg.CitationTopM)
}

func (r *Retriever) query(tier models.ChunkTier, question string, scopeDocumentIDs []string, limit int) []index.ScoredChunk {
	ranked := r.index.Query(tier, question, scopeDocumentIDs)

	filtered := ranked[:0]
	for _, sc := range ranked {
		if sc.Overlap >= r.cfg.MinOverlap {
			filtered = append(filtered, sc)
		}
	}

	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}
