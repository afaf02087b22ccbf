package index

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ddq-agent/backend/internal/storage/models"
	"github.com/ddq-agent/backend/pkg/logger"
)

// ScoredChunk is one ranked query result.
type ScoredChunk struct {
	Chunk   models.Chunk
	Overlap int
	Score   float64
}

type tierStore struct {
	chunks     map[string]models.Chunk
	byDocument map[string]map[string]struct{}
}

func newTierStore() *tierStore {
	return &tierStore{
		chunks:     make(map[string]models.Chunk),
		byDocument: make(map[string]map[string]struct{}),
	}
}

func (t *tierStore) add(chunk models.Chunk) {
	t.chunks[chunk.ID] = chunk
	docChunks, ok := t.byDocument[chunk.DocumentID]
	if !ok {
		docChunks = make(map[string]struct{})
		t.byDocument[chunk.DocumentID] = docChunks
	}
	docChunks[chunk.ID] = struct{}{}
}

func (t *tierStore) removeDocument(documentID string) int {
	docChunks, ok := t.byDocument[documentID]
	if !ok {
		return 0
	}
	for id := range docChunks {
		delete(t.chunks, id)
	}
	delete(t.byDocument, documentID)
	return len(docChunks)
}

// Index is the in-memory two-tier chunk store. All per-document
// mutations run under a single write lock covering both tiers, so a
// reader never observes a document with a partial or mixed chunk set.
type Index struct {
	mu     sync.RWMutex
	scorer Scorer
	tiers  map[models.ChunkTier]*tierStore
	seq    int64
}

func New(scorer Scorer) *Index {
	return &Index{
		scorer: scorer,
		tiers: map[models.ChunkTier]*tierStore{
			models.TierRetrieval: newTierStore(),
			models.TierCitation:  newTierStore(),
		},
	}
}

// NextSeq reserves a monotonically increasing insertion sequence used
// for stable tie-breaks in ranking.
func (i *Index) NextSeq() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.seq++
	return i.seq
}

// Add inserts chunks for a document into one tier.
func (i *Index) Add(tier models.ChunkTier, chunks []models.Chunk) {
	i.mu.Lock()
	defer i.mu.Unlock()

	store := i.tiers[tier]
	for _, chunk := range chunks {
		store.add(chunk)
	}
}

// RemoveDocument deletes all chunks owned by the document from both
// tiers. Deleting an unindexed document is a no-op.
func (i *Index) RemoveDocument(documentID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	removed := 0
	for _, store := range i.tiers {
		removed += store.removeDocument(documentID)
	}

	if removed > 0 {
		logger.Debug("Document removed from index",
			zap.String("doc_id", documentID),
			zap.Int("chunks", removed),
		)
	}
}

// ReplaceDocument atomically swaps the document's chunk set in both
// tiers. Re-indexing goes through here so no query can see a mix of
// old and new chunks, or a document present in only one tier.
func (i *Index) ReplaceDocument(documentID string, retrieval, citation []models.Chunk) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, store := range i.tiers {
		store.removeDocument(documentID)
	}
	for _, chunk := range retrieval {
		i.tiers[models.TierRetrieval].add(chunk)
	}
	for _, chunk := range citation {
		i.tiers[models.TierCitation].add(chunk)
	}
}

// Load bulk-inserts persisted chunks at startup, preserving their
// original insertion sequence.
func (i *Index) Load(chunks []models.Chunk) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, chunk := range chunks {
		store, ok := i.tiers[chunk.Tier]
		if !ok {
			continue
		}
		store.add(chunk)
		if chunk.Seq > i.seq {
			i.seq = chunk.Seq
		}
	}

	logger.Info("Index loaded", zap.Int("chunks", len(chunks)))
}

// Query scores every candidate chunk in the tier against the question
// and returns matches with at least one shared token, ranked by score
// descending with ties broken by insertion order. A nil scope searches
// the whole tier; a non-nil scope restricts candidates to the given
// documents.
func (i *Index) Query(tier models.ChunkTier, question string, scopeDocumentIDs []string) []ScoredChunk {
	i.mu.RLock()
	defer i.mu.RUnlock()

	store := i.tiers[tier]

	var scope map[string]struct{}
	if scopeDocumentIDs != nil {
		scope = make(map[string]struct{}, len(scopeDocumentIDs))
		for _, id := range scopeDocumentIDs {
			scope[id] = struct{}{}
		}
	}

	var results []ScoredChunk
	for _, chunk := range store.chunks {
		if scope != nil {
			if _, ok := scope[chunk.DocumentID]; !ok {
				continue
			}
		}

		overlap, score := i.scorer.Score(question, chunk.Text)
		if overlap == 0 {
			continue
		}

		results = append(results, ScoredChunk{Chunk: chunk, Overlap: overlap, Score: score})
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].Chunk.Seq < results[b].Chunk.Seq
	})

	return results
}

// CountDocument returns the number of chunks the document owns in a tier.
func (i *Index) CountDocument(tier models.ChunkTier, documentID string) int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return len(i.tiers[tier].byDocument[documentID])
}
