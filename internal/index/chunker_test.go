package index

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkEmptyText(t *testing.T) {
	assert.Nil(t, Chunk("", TierConfig{Size: 100, Overlap: 10}))
}

func TestChunkShortText(t *testing.T) {
	spans := Chunk("hello world", TierConfig{Size: 100, Overlap: 10})

	require.Len(t, spans, 1)
	assert.Equal(t, "hello world", spans[0].Text)
	assert.Equal(t, 0, spans[0].Offset)
}

func TestChunkWindowGeometry(t *testing.T) {
	text := strings.Repeat("a", 25)
	spans := Chunk(text, TierConfig{Size: 10, Overlap: 2})

	require.Len(t, spans, 3)
	assert.Equal(t, 0, spans[0].Offset)
	assert.Equal(t, 8, spans[1].Offset)
	assert.Equal(t, 16, spans[2].Offset)
	assert.Len(t, spans[0].Text, 10)
	assert.Len(t, spans[1].Text, 10)
	assert.Len(t, spans[2].Text, 9)
}

func TestChunkCoversAllText(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog and keeps running far away"
	cfg := TierConfig{Size: 20, Overlap: 5}

	spans := Chunk(text, cfg)
	require.NotEmpty(t, spans)

	covered := make([]bool, len([]rune(text)))
	for _, span := range spans {
		for i := range []rune(span.Text) {
			covered[span.Offset+i] = true
		}
	}
	for i, c := range covered {
		assert.True(t, c, "rune %d not covered", i)
	}
}

func TestChunkOverlapAtLeastSize(t *testing.T) {
	// Degenerate overlap must not stall the window advance.
	text := strings.Repeat("x", 12)
	spans := Chunk(text, TierConfig{Size: 4, Overlap: 4})

	require.Len(t, spans, 3)
	assert.Equal(t, 0, spans[0].Offset)
	assert.Equal(t, 4, spans[1].Offset)
	assert.Equal(t, 8, spans[2].Offset)
}

func TestChunkMultibyteRunes(t *testing.T) {
	text := strings.Repeat("é", 15)
	spans := Chunk(text, TierConfig{Size: 10, Overlap: 0})

	require.Len(t, spans, 2)
	assert.Equal(t, strings.Repeat("é", 10), spans[0].Text)
	assert.Equal(t, 10, spans[1].Offset)
	assert.Equal(t, strings.Repeat("é", 5), spans[1].Text)
}

func TestNewChunkerDefaults(t *testing.T) {
	c := NewChunker(TierConfig{}, TierConfig{})

	assert.Equal(t, TierConfig{Size: 1000, Overlap: 100}, c.RetrievalConfig())
	assert.Equal(t, TierConfig{Size: 300, Overlap: 30}, c.CitationConfig())
}
