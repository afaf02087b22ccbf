package index

// TierConfig is the chunk geometry of one index tier.
type TierConfig struct {
	Size    int
	Overlap int
}

// Span is a single chunk window produced by the chunker. Offset is the
// rune position of the window start within the source text.
type Span struct {
	Text   string
	Offset int
}

// Chunker splits extracted text into fixed-size overlapping windows.
// The retrieval tier uses large windows for answer context; the
// citation tier uses small windows so a cited span maps tightly to a
// location in the source document.
type Chunker struct {
	retrieval TierConfig
	citation  TierConfig
}

func NewChunker(retrieval, citation TierConfig) *Chunker {
	if retrieval.Size <= 0 {
		retrieval = TierConfig{Size: 1000, Overlap: 100}
	}
	if citation.Size <= 0 {
		citation = TierConfig{Size: 300, Overlap: 30}
	}
	if retrieval.Overlap < 0 {
		retrieval.Overlap = 0
	}
	if citation.Overlap < 0 {
		citation.Overlap = 0
	}
	return &Chunker{retrieval: retrieval, citation: citation}
}

func (c *Chunker) RetrievalConfig() TierConfig { return c.retrieval }
func (c *Chunker) CitationConfig() TierConfig  { return c.citation }

// Chunk produces contiguous windows of cfg.Size runes, each advancing
// by cfg.Size-cfg.Overlap. The final window may be shorter. Empty text
// yields no spans; text shorter than one window yields exactly one span
// covering the whole text.
func Chunk(text string, cfg TierConfig) []Span {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := cfg.Size - cfg.Overlap
	if step <= 0 {
		step = cfg.Size
	}

	var spans []Span
	for start := 0; start < len(runes); start += step {
		end := start + cfg.Size
		if end > len(runes) {
			end = len(runes)
		}

		spans = append(spans, Span{
			Text:   string(runes[start:end]),
			Offset: start,
		})

		if end == len(runes) {
			break
		}
	}

	return spans
}
