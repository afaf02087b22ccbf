package answering

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddq-agent/backend/internal/index"
	"github.com/ddq-agent/backend/internal/retrieval"
	"github.com/ddq-agent/backend/internal/storage/models"
)

type failingComposer struct{}

func (failingComposer) Name() string { return "failing" }

func (failingComposer) Compose(context.Context, string, []string) (string, error) {
	return "", errors.New("composer down")
}

func buildIndex() *index.Index {
	idx := index.New(index.NewLexicalScorer())

	idx.Add(models.TierRetrieval, []models.Chunk{
		{ID: "r1", DocumentID: "d1", Tier: models.TierRetrieval, Text: "revenue growth reached 40% in fiscal 2023", Seq: idx.NextSeq()},
		{ID: "r2", DocumentID: "d1", Tier: models.TierRetrieval, Text: "growth was driven by subscriptions", Seq: idx.NextSeq()},
	})
	idx.Add(models.TierCitation, []models.Chunk{
		{ID: "f1", DocumentID: "d1", Tier: models.TierCitation, Text: "revenue growth 40%", PageNumber: 2, Seq: idx.NextSeq()},
	})

	return idx
}

func testGenerator(composer Composer) *Generator {
	retriever := retrieval.New(buildIndex(), retrieval.DefaultConfig())
	return NewGenerator(retriever, composer)
}

func TestDraftAnswerable(t *testing.T) {
	g := testGenerator(nil)

	namer := func(string) string { return "report.pdf" }
	draft, err := g.Draft(context.Background(), "what was the revenue growth", nil, namer)

	require.NoError(t, err)
	assert.True(t, draft.IsAnswerable)
	assert.Contains(t, draft.Text, "revenue growth reached 40% in fiscal 2023")
	assert.Contains(t, draft.Text, "growth was driven by subscriptions")
	require.Len(t, draft.Selected, 2)

	expected := (draft.Selected[0].Score + draft.Selected[1].Score) / 2
	assert.InDelta(t, expected, draft.Confidence, 1e-9)
	assert.GreaterOrEqual(t, draft.Confidence, 0.0)
	assert.LessOrEqual(t, draft.Confidence, 1.0)
}

func TestDraftCitations(t *testing.T) {
	g := testGenerator(nil)

	namer := func(string) string { return "report.pdf" }
	draft, err := g.Draft(context.Background(), "revenue growth", nil, namer)

	require.NoError(t, err)
	require.Len(t, draft.Citations, 1)

	citation := draft.Citations[0]
	assert.Equal(t, "revenue growth 40%", citation.Text)
	require.Len(t, citation.References, 1)

	ref := citation.References[0]
	assert.Equal(t, "d1", ref.DocumentID)
	assert.Equal(t, "report.pdf", ref.DocumentName)
	assert.Equal(t, "f1", ref.ChunkID)
	assert.Equal(t, 2, ref.PageNumber)
}

func TestDraftUnanswerable(t *testing.T) {
	g := testGenerator(nil)

	draft, err := g.Draft(context.Background(), "zzz qqq xyzzy", nil, nil)

	require.NoError(t, err)
	assert.False(t, draft.IsAnswerable)
	assert.Empty(t, draft.Text)
	assert.Zero(t, draft.Confidence)
	assert.Empty(t, draft.Citations)
	assert.Empty(t, draft.Selected)
}

func TestDraftComposerFailureFallsBack(t *testing.T) {
	g := testGenerator(failingComposer{})

	draft, err := g.Draft(context.Background(), "revenue growth", nil, nil)

	require.NoError(t, err)
	assert.True(t, draft.IsAnswerable)
	assert.Contains(t, draft.Text, "revenue growth reached 40% in fiscal 2023")
}

func TestConcatComposerJoinsPassages(t *testing.T) {
	c := NewConcatComposer()

	text, err := c.Compose(context.Background(), "q", []string{"first", "second"})

	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond", text)
}
