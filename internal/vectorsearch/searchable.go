// Package vectorsearch binds record types to vector search providers. A
// Searchable upserts each saved record's text representation into its
// provider and resolves similarity hits back to records in the primary store.
package vectorsearch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/provider"
	"github.com/hyperjump/ruiji/internal/storage"
)

// Searchable is the binding of one record type to its provider.
type Searchable struct {
	recordType     string
	provider       provider.Provider
	store          storage.Storage
	serializer     Serializer
	embeddingField string
	exclude        []string
	batchSize      int
	log            *zap.Logger
}

// ReembedReport summarizes a ReembedAll run.
type ReembedReport struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

func newSearchable(recordType string, p provider.Provider, store storage.Storage, opts ...Option) *Searchable {
	s := &Searchable{
		recordType:     recordType,
		provider:       p,
		store:          store,
		embeddingField: DefaultEmbeddingField,
		batchSize:      DefaultBatchSize,
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.serializer == nil {
		s.serializer = JSONSerializer(append([]string{s.embeddingField}, s.exclude...)...)
	}
	s.log = s.log.With(zap.String("record_type", recordType))
	return s
}

// RecordType returns the bound record type.
func (s *Searchable) RecordType() string {
	return s.recordType
}

// Provider returns the bound provider.
func (s *Searchable) Provider() provider.Provider {
	return s.provider
}

// Store returns the primary store records are resolved through.
func (s *Searchable) Store() storage.Storage {
	return s.store
}

// Representation returns the text that is embedded for rec.
func (s *Searchable) Representation(rec *models.Record) (string, error) {
	return s.serializer(rec)
}

// Upsert writes rec's representation to the provider: AddTexts when created,
// UpdateTexts otherwise. Provider failures are returned as *IndexingError.
func (s *Searchable) Upsert(ctx context.Context, rec *models.Record, created bool) error {
	text, err := s.Representation(rec)
	if err != nil {
		return fmt.Errorf("serialize %s/%s: %w", s.recordType, rec.ID, err)
	}
	texts, ids := []string{text}, []string{rec.ID}

	op := "update_texts"
	if created {
		op = "add_texts"
		err = s.provider.AddTexts(ctx, texts, ids)
	} else {
		err = s.provider.UpdateTexts(ctx, texts, ids)
	}
	if err != nil {
		return &IndexingError{RecordType: s.recordType, RecordID: rec.ID, Op: op, Err: err}
	}
	s.log.Debug("upserted", zap.String("id", rec.ID), zap.String("op", op))
	return nil
}

// Save creates or updates the record in the store and then upserts it. A
// record without an ID gets a new UUID. When indexing fails the stored record
// is returned along with the error.
func (s *Searchable) Save(ctx context.Context, input models.RecordInput) (*models.Record, error) {
	if input.Type != "" && input.Type != s.recordType {
		return nil, fmt.Errorf("record type %q does not match %q", input.Type, s.recordType)
	}
	rec := &models.Record{
		ID:        input.ID,
		Type:      s.recordType,
		Fields:    input.Fields,
		Embedding: input.Embedding,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Fields == nil {
		rec.Fields = map[string]interface{}{}
	}

	created, err := s.store.UpsertRecord(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("save %s/%s: %w", s.recordType, rec.ID, err)
	}
	if err := s.Upsert(ctx, rec, created); err != nil {
		return rec, err
	}
	return rec, nil
}

// Delete removes the record from the store and, when the provider supports
// it, its text from the provider. Providers without removal keep the vector;
// search hits for it no longer resolve and drop out of results.
func (s *Searchable) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteRecord(ctx, s.recordType, id); err != nil {
		return err
	}
	remover, ok := s.provider.(provider.Remover)
	if !ok {
		return nil
	}
	if err := remover.RemoveTexts(ctx, []string{id}); err != nil {
		return &IndexingError{RecordType: s.recordType, RecordID: id, Op: "remove_texts", Err: err}
	}
	s.log.Debug("removed", zap.String("id", id))
	return nil
}

// ReembedAll upserts every stored record of the type as an update, in batches
// ordered by ID. A failing record is logged and counted and the run goes on;
// the returned error combines every failure. Cancelling ctx stops the run.
func (s *Searchable) ReembedAll(ctx context.Context) (ReembedReport, error) {
	var report ReembedReport
	var failures error

	err := s.store.FindInBatches(ctx, s.recordType, s.batchSize, func(batch []*models.Record) error {
		for _, rec := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.Upsert(ctx, rec, false); err != nil {
				report.Failed++
				failures = multierr.Append(failures, err)
				s.log.Warn("reembed failed", zap.String("id", rec.ID), zap.Error(err))
				continue
			}
			report.Processed++
		}
		return nil
	})

	s.log.Info("reembed finished",
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed))
	return report, multierr.Append(err, failures)
}

// SimilaritySearch asks the provider for the nearest records to query and
// returns a store query restricted to them, in provider order, and to any
// filters.
func (s *Searchable) SimilaritySearch(ctx context.Context, query string, opts ...SearchOption) (*storage.Query, error) {
	o := s.searchOptions(opts)
	hits, err := s.provider.SimilaritySearch(ctx, query, o.limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.ID == "" {
			return nil, ErrMissingID
		}
		ids = append(ids, h.ID)
	}
	return s.query(ids, o.filters), nil
}

// SimilaritySearchWithDistance is SimilaritySearch that also drops hits
// farther than the maximum distance, or without a distance, and returns the
// distance of every kept record.
func (s *Searchable) SimilaritySearchWithDistance(ctx context.Context, query string, opts ...SearchOption) (*storage.Query, map[string]float64, error) {
	o := s.searchOptions(opts)
	hits, err := s.provider.SimilaritySearch(ctx, query, o.limit)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, 0, len(hits))
	distances := make(map[string]float64, len(hits))
	for _, h := range hits {
		if h.ID == "" {
			return nil, nil, ErrMissingID
		}
		if !h.HasDistance() || *h.Distance > o.maxDistance {
			continue
		}
		if _, seen := distances[h.ID]; seen {
			continue
		}
		ids = append(ids, h.ID)
		distances[h.ID] = *h.Distance
	}
	return s.query(ids, o.filters), distances, nil
}

func (s *Searchable) searchOptions(opts []SearchOption) searchOptions {
	o := searchOptions{limit: DefaultLimit, maxDistance: DefaultMaxDistance}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (s *Searchable) query(ids []string, filters []storage.Filter) *storage.Query {
	return storage.NewQuery(s.store, s.recordType).IDs(ids...).WhereAll(filters)
}

// Ask answers question from the nearest records and returns the completion
// text. Chunks are passed to the OnChunk sink, in order, before Ask returns.
func (s *Searchable) Ask(ctx context.Context, question string, opts ...AskOption) (string, error) {
	c, err := s.Completion(ctx, question, opts...)
	if err != nil {
		return "", err
	}
	return c.Text, nil
}

// Completion is Ask returning the full provider completion with its sources.
func (s *Searchable) Completion(ctx context.Context, question string, opts ...AskOption) (*provider.Completion, error) {
	o := askOptions{k: DefaultAskContextSize}
	for _, opt := range opts {
		opt(&o)
	}
	c, err := s.provider.Ask(ctx, question, o.k, o.onChunk)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return &provider.Completion{}, nil
	}
	return c, nil
}
