package answering

import (
	"context"
	"strings"
)

// Composer turns retrieved passages into answer text. The default
// implementation concatenates the passages verbatim; an LLM-backed
// implementation can rewrite them into prose without changing which
// passages were selected or how confidence is computed.
type Composer interface {
	Name() string
	Compose(ctx context.Context, question string, passages []string) (string, error)
}

type ConcatComposer struct{}

func NewConcatComposer() *ConcatComposer {
	return &ConcatComposer{}
}

func (c *ConcatComposer) Name() string { return "concat" }

func (c *ConcatComposer) Compose(_ context.Context, _ string, passages []string) (string, error) {
	return strings.Join(passages, "\n\n"), nil
}
