package answering

import (
	"context"

	"go.uber.org/zap"

	"github.com/ddq-agent/backend/internal/index"
	"github.com/ddq-agent/backend/internal/retrieval"
	"github.com/ddq-agent/backend/internal/storage/models"
	"github.com/ddq-agent/backend/pkg/logger"
)

// Draft is the outcome of one generation attempt, before it is
// persisted onto an Answer record. An unanswerable draft carries no
// text, citations or confidence.
type Draft struct {
	IsAnswerable bool
	Text         string
	Confidence   float64
	Citations    []models.Citation
	Selected     []index.ScoredChunk
}

// DocumentNamer resolves a document ID to its display name for
// citation references.
type DocumentNamer func(documentID string) string

// Generator produces answer drafts: context selection from the
// retrieval tier, citation selection from the citation tier, text from
// the configured Composer. Confidence is the mean relevance of the
// selected retrieval chunks, clamped to [0,1], and is independent of
// the composer.
type Generator struct {
	retriever *retrieval.Retriever
	composer  Composer
}

func NewGenerator(retriever *retrieval.Retriever, composer Composer) *Generator {
	if composer == nil {
		composer = NewConcatComposer()
	}
	return &Generator{retriever: retriever, composer: composer}
}

func (g *Generator) Draft(ctx context.Context, question string, scopeDocumentIDs []string, namer DocumentNamer) (*Draft, error) {
	selected := g.retriever.ForAnswer(question, scopeDocumentIDs)
	if len(selected) == 0 {
		return &Draft{}, nil
	}

	passages := make([]string, len(selected))
	for i, sc := range selected {
		passages[i] = sc.Chunk.Text
	}

	text, err := g.composer.Compose(ctx, question, passages)
	if err != nil {
		logger.Warn("Composer failed, falling back to passage concatenation",
			zap.String("composer", g.composer.Name()),
			zap.Error(err),
		)
		text, _ = NewConcatComposer().Compose(ctx, question, passages)
	}

	var sum float64
	for _, sc := range selected {
		sum += sc.Score
	}
	confidence := sum / float64(len(selected))
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &Draft{
		IsAnswerable: true,
		Text:         text,
		Confidence:   confidence,
		Citations:    g.citations(question, scopeDocumentIDs, namer),
		Selected:     selected,
	}, nil
}

// citations re-queries the fine-grained tier so each cited span maps to
// a small region of its source document.
func (g *Generator) citations(question string, scopeDocumentIDs []string, namer DocumentNamer) []models.Citation {
	cited := g.retriever.ForCitations(question, scopeDocumentIDs)
	if len(cited) == 0 {
		return nil
	}

	citations := make([]models.Citation, 0, len(cited))
	for _, sc := range cited {
		name := ""
		if namer != nil {
			name = namer(sc.Chunk.DocumentID)
		}
		citations = append(citations, models.Citation{
			Text: sc.Chunk.Text,
			References: []models.Reference{
				{
					DocumentID:   sc.Chunk.DocumentID,
					DocumentName: name,
					ChunkID:      sc.Chunk.ID,
					PageNumber:   sc.Chunk.PageNumber,
					Text:         sc.Chunk.Text,
				},
			},
		})
	}
	return citations
}
