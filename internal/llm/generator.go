// Package llm streams completions from a language model for the ask
// operation of the vector search providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoGenerator is returned when ask is used without a configured model.
var ErrNoGenerator = errors.New("no language model configured")

// ChunkFunc receives each completion chunk as it arrives.
type ChunkFunc func(chunk string)

// Request is a single completion request.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
}

// Generator produces a completion for a prompt. When onChunk is non-nil it is
// called once per chunk, in order, before Generate returns. The returned
// string is the concatenation of all chunks.
type Generator interface {
	Generate(ctx context.Context, req Request, onChunk ChunkFunc) (string, error)
	Name() string
}

// Config selects and configures a Generator.
type Config struct {
	Provider string // ollama, openai, none
	URL      string
	Model    string
	APIKey   string
}

// New creates the generator named by cfg.Provider. "none" and "" return
// (nil, nil); callers treat a nil generator as ErrNoGenerator on ask.
func New(cfg Config) (Generator, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "ollama":
		return NewOllamaGenerator(cfg.URL, cfg.Model), nil
	case "openai":
		return NewOpenAIGenerator(cfg.URL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// StaticGenerator replays fixed chunks. Used in tests and for offline demos.
type StaticGenerator struct {
	Chunks []string
	Err    error
	// Requests records every request received.
	Requests []Request
	mu       sync.Mutex
}

// NewStaticGenerator returns a generator that streams chunks.
func NewStaticGenerator(chunks ...string) *StaticGenerator {
	return &StaticGenerator{Chunks: chunks}
}

// Generate streams the configured chunks.
func (g *StaticGenerator) Generate(ctx context.Context, req Request, onChunk ChunkFunc) (string, error) {
	g.mu.Lock()
	g.Requests = append(g.Requests, req)
	g.mu.Unlock()
	if g.Err != nil {
		return "", g.Err
	}
	var out string
	for _, c := range g.Chunks {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if onChunk != nil {
			onChunk(c)
		}
		out += c
	}
	return out, nil
}

// Name returns "static".
func (g *StaticGenerator) Name() string {
	return "static"
}
