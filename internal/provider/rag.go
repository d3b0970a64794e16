package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/llm"
	"github.com/hyperjump/ruiji/internal/models"
)

// passage is a retrieved record text with its distance to the question.
type passage struct {
	hit  models.Hit
	text string
}

// retrieveFunc returns the k passages closest to query, nearest first.
type retrieveFunc func(ctx context.Context, query string, k int) ([]passage, error)

// answer retrieves k passages, builds a prompt from them and streams the
// completion through onChunk.
func answer(ctx context.Context, opts Options, log *zap.Logger, retrieve retrieveFunc, question string, k int, onChunk ChunkFunc) (*Completion, error) {
	if opts.Generator == nil {
		return nil, llm.ErrNoGenerator
	}
	passages, err := retrieve(ctx, question, k)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	items := make([]llm.ContextItem, len(passages))
	sources := make([]models.Hit, len(passages))
	for i, p := range passages {
		items[i] = llm.ContextItem{ID: p.hit.ID, Text: p.text}
		sources[i] = p.hit
	}
	system := opts.SystemPrompt
	if system == "" {
		system = llm.DefaultSystemPrompt
	}

	log.Debug("ask", zap.Int("k", k), zap.Int("passages", len(passages)), zap.String("model", opts.Generator.Name()))
	text, err := opts.Generator.Generate(ctx, llm.Request{
		System:      system,
		Prompt:      llm.BuildPrompt(question, items),
		Temperature: opts.Temperature,
	}, onChunk)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	return &Completion{Text: text, Sources: sources, Model: opts.Generator.Name()}, nil
}
