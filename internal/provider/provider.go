// Package provider adapts vector search backends to the four operations a
// searchable record type needs: add texts, update texts, similarity search
// and ask. Every adapter normalizes its native results to models.Hit.
package provider

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/llm"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/pkg/utils"
)

// ChunkFunc receives each chunk of a streamed completion.
type ChunkFunc = llm.ChunkFunc

// Completion is the answer to an ask along with the records it was built from.
type Completion struct {
	Text    string
	Sources []models.Hit
	Model   string
}

// Provider is a vector search backend bound to one record type.
type Provider interface {
	AddTexts(ctx context.Context, texts, ids []string) error
	UpdateTexts(ctx context.Context, texts, ids []string) error
	SimilaritySearch(ctx context.Context, query string, k int) ([]models.Hit, error)
	Ask(ctx context.Context, question string, k int, onChunk ChunkFunc) (*Completion, error)
	Name() string
	Close() error
}

// SchemaBinder is implemented by providers that keep per-record-type schema
// (a table or collection) and must create it when a type is declared.
type SchemaBinder interface {
	BindRecordType(ctx context.Context, recordType string) error
}

// Remover is implemented by providers that can drop the texts of deleted
// records, so they no longer reach answers built from retrieved context.
type Remover interface {
	RemoveTexts(ctx context.Context, ids []string) error
}

// Persister is implemented by providers whose index lives in process memory
// and is written to disk on shutdown.
type Persister interface {
	Persist() error
}

// ErrNotBound is returned by schema-backed providers used before BindRecordType.
var ErrNotBound = errors.New("provider not bound to a record type")

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateRecordType checks that a record type name is usable as a table or
// collection name.
func ValidateRecordType(recordType string) error {
	if !identPattern.MatchString(recordType) {
		return fmt.Errorf("invalid record type name %q", recordType)
	}
	return nil
}

func checkPairs(texts, ids []string) error {
	if len(texts) != len(ids) {
		return fmt.Errorf("texts and ids length mismatch: %d != %d", len(texts), len(ids))
	}
	for _, id := range ids {
		if id == "" {
			return errors.New("empty record id")
		}
	}
	return nil
}

// Options holds what every provider shares: the answer generator and logging.
type Options struct {
	Generator    llm.Generator
	SystemPrompt string
	Temperature  float64
	Logger       *zap.Logger
}

func (o Options) logger(component string) *zap.Logger {
	return utils.Named(o.Logger, component)
}
