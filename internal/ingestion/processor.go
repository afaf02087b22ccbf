package ingestion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ddq-agent/backend/internal/cache/redis"
	"github.com/ddq-agent/backend/internal/extraction"
	"github.com/ddq-agent/backend/internal/index"
	"github.com/ddq-agent/backend/internal/lifecycle"
	"github.com/ddq-agent/backend/internal/metrics"
	"github.com/ddq-agent/backend/internal/storage/models"
	"github.com/ddq-agent/backend/internal/storage/sqlite"
	"github.com/ddq-agent/backend/internal/workers"
	"github.com/ddq-agent/backend/pkg/logger"
	"github.com/ddq-agent/backend/pkg/utils"
)

// Processor runs the indexing pipeline: extract text, chunk it into
// both tiers, and commit the chunk set to storage and the in-memory
// index in one atomic replacement.
type Processor struct {
	db        *sqlite.Client
	idx       *index.Index
	chunker   *index.Chunker
	control   *lifecycle.Controller
	extractor *extraction.Extractor
	cache     *redis.Client
}

func NewProcessor(db *sqlite.Client, idx *index.Index, chunker *index.Chunker, control *lifecycle.Controller, extractor *extraction.Extractor, cache *redis.Client) *Processor {
	return &Processor{
		db:        db,
		idx:       idx,
		chunker:   chunker,
		control:   control,
		extractor: extractor,
		cache:     cache,
	}
}

// IndexDocument indexes or re-indexes one document. The document's
// previous chunks are cleared when the run starts, so a failed run
// leaves the document FAILED with no chunks rather than half-replaced.
// A document with no extractable text commits as INDEXED with zero
// chunks.
func (p *Processor) IndexDocument(ctx context.Context, documentID string) error {
	doc, err := p.db.GetDocument(documentID)
	if err != nil {
		return err
	}

	if err := p.control.TransitionDocument(documentID, models.IndexingRunning, ""); err != nil {
		return err
	}

	start := time.Now()

	metrics.IndexChunksTotal.WithLabelValues(string(models.TierRetrieval)).
		Sub(float64(p.idx.CountDocument(models.TierRetrieval, documentID)))
	metrics.IndexChunksTotal.WithLabelValues(string(models.TierCitation)).
		Sub(float64(p.idx.CountDocument(models.TierCitation, documentID)))

	p.idx.RemoveDocument(documentID)
	if err := p.db.ReplaceDocumentChunks(documentID, nil); err != nil {
		return p.failDocument(documentID, fmt.Errorf("failed to clear chunks: %w", err))
	}

	pages, err := p.extractor.Extract(doc.FilePath)
	if err != nil {
		return p.failDocument(documentID, err)
	}

	retrieval := p.chunkPages(documentID, models.TierRetrieval, p.chunker.RetrievalConfig(), pages)
	citation := p.chunkPages(documentID, models.TierCitation, p.chunker.CitationConfig(), pages)

	all := make([]models.Chunk, 0, len(retrieval)+len(citation))
	all = append(all, retrieval...)
	all = append(all, citation...)

	if err := p.db.ReplaceDocumentChunks(documentID, all); err != nil {
		return p.failDocument(documentID, fmt.Errorf("failed to store chunks: %w", err))
	}
	p.idx.ReplaceDocument(documentID, retrieval, citation)

	if err := p.control.CommitIndexed(documentID); err != nil {
		return err
	}

	if p.cache != nil {
		if err := p.cache.InvalidateDrafts(ctx); err != nil {
			logger.Warn("Draft cache invalidation failed", zap.Error(err))
		}
	}

	metrics.IndexingTotal.WithLabelValues("indexed").Inc()
	metrics.IndexingDuration.WithLabelValues(doc.FileType).Observe(time.Since(start).Seconds())
	metrics.IndexChunksTotal.WithLabelValues(string(models.TierRetrieval)).Add(float64(len(retrieval)))
	metrics.IndexChunksTotal.WithLabelValues(string(models.TierCitation)).Add(float64(len(citation)))

	logger.Info("Document indexed",
		zap.String("doc_id", documentID),
		zap.Int("retrieval_chunks", len(retrieval)),
		zap.Int("citation_chunks", len(citation)),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}

func (p *Processor) failDocument(documentID string, cause error) error {
	metrics.IndexingTotal.WithLabelValues("failed").Inc()

	if err := p.control.TransitionDocument(documentID, models.IndexingFailed, cause.Error()); err != nil {
		logger.Error("Failed to record indexing failure",
			zap.String("doc_id", documentID),
			zap.Error(err),
		)
	}
	return cause
}

func (p *Processor) chunkPages(documentID string, tier models.ChunkTier, cfg index.TierConfig, pages []extraction.Page) []models.Chunk {
	now := time.Now().UTC()

	var chunks []models.Chunk
	for _, page := range pages {
		for _, span := range index.Chunk(page.Text, cfg) {
			chunks = append(chunks, models.Chunk{
				ID:         utils.HashString(fmt.Sprintf("%s|%s|%d|%d", documentID, tier, page.Number, span.Offset)),
				DocumentID: documentID,
				Tier:       tier,
				Text:       span.Text,
				PageNumber: page.Number,
				Offset:     span.Offset,
				Seq:        p.idx.NextSeq(),
				CreatedAt:  now,
			})
		}
	}
	return chunks
}

// Job wraps IndexDocument for the async tracker.
func (p *Processor) Job(documentID string) workers.Job {
	return func(ctx context.Context, report func(progress int)) ([]byte, error) {
		if err := p.IndexDocument(ctx, documentID); err != nil {
			return nil, err
		}
		report(100)
		return []byte(fmt.Sprintf(`{"document_id":%q,"status":"INDEXED"}`, documentID)), nil
	}
}
