package provider

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/models"
)

// PgvectorProvider stores record embeddings in a Postgres table per record
// type (record type + suffix) with a pgvector column and an HNSW index.
type PgvectorProvider struct {
	db       *sql.DB
	ownsDB   bool
	embedder embedding.Embedder
	suffix   string
	opts     Options
	log      *zap.Logger

	mu    sync.RWMutex
	table string
}

// NewPgvectorProvider opens a connection pool to dsn.
func NewPgvectorProvider(dsn, suffix string, embedder embedding.Embedder, opts Options) (*PgvectorProvider, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pgvector provider requires a dsn")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	p := NewPgvectorProviderWithDB(db, suffix, embedder, opts)
	p.ownsDB = true
	return p, nil
}

// NewPgvectorProviderWithDB builds a provider over an existing pool.
func NewPgvectorProviderWithDB(db *sql.DB, suffix string, embedder embedding.Embedder, opts Options) *PgvectorProvider {
	if suffix == "" {
		suffix = "_embeddings"
	}
	return &PgvectorProvider{
		db:       db,
		embedder: embedder,
		suffix:   suffix,
		opts:     opts,
		log:      opts.logger("pgvector"),
	}
}

// TableName returns the embeddings table for a record type.
func (p *PgvectorProvider) TableName(recordType string) string {
	return recordType + p.suffix
}

// schemaStatements returns the DDL creating the embeddings table for table.
func schemaStatements(table string, dims int) []string {
	quoted := pq.QuoteIdentifier(table)
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			record_id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, quoted, dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pq.QuoteIdentifier(table+"_embedding_idx"), quoted),
	}
}

// BindRecordType creates the embeddings table and its nearest-neighbour
// index for recordType.
func (p *PgvectorProvider) BindRecordType(ctx context.Context, recordType string) error {
	if err := ValidateRecordType(recordType); err != nil {
		return err
	}
	table := p.TableName(recordType)
	for _, stmt := range schemaStatements(table, p.embedder.Dimensions()) {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema for %s: %w", recordType, err)
		}
	}
	p.mu.Lock()
	p.table = table
	p.mu.Unlock()
	p.log.Info("bound record type", zap.String("record_type", recordType), zap.String("table", table))
	return nil
}

func (p *PgvectorProvider) bound() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.table == "" {
		return "", ErrNotBound
	}
	return pq.QuoteIdentifier(p.table), nil
}

// AddTexts embeds texts and inserts them.
func (p *PgvectorProvider) AddTexts(ctx context.Context, texts, ids []string) error {
	return p.upsert(ctx, texts, ids)
}

// UpdateTexts re-embeds texts and overwrites their rows.
func (p *PgvectorProvider) UpdateTexts(ctx context.Context, texts, ids []string) error {
	return p.upsert(ctx, texts, ids)
}

func (p *PgvectorProvider) upsert(ctx context.Context, texts, ids []string) error {
	table, err := p.bound()
	if err != nil {
		return err
	}
	if err := checkPairs(texts, ids); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (record_id, content, embedding, updated_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (record_id) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding, updated_at = now()`,
		table))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, id := range ids {
		if _, err := stmt.ExecContext(ctx, id, texts[i], pgvector.NewVector(vecs[i])); err != nil {
			return fmt.Errorf("upsert %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	p.log.Debug("upserted", zap.String("table", table), zap.Int("count", len(ids)))
	return nil
}

// RemoveTexts deletes the rows of ids.
func (p *PgvectorProvider) RemoveTexts(ctx context.Context, ids []string) error {
	table, err := p.bound()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := p.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE record_id = ANY($1)`, table), pq.Array(ids)); err != nil {
		return fmt.Errorf("delete %d rows: %w", len(ids), err)
	}
	return nil
}

func (p *PgvectorProvider) search(ctx context.Context, query string, k int) ([]passage, error) {
	table, err := p.bound()
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	qv, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT record_id, content, embedding <=> $1 AS distance FROM %s ORDER BY embedding <=> $1 LIMIT $2`,
		table), pgvector.NewVector(qv), k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var out []passage
	for rows.Next() {
		var id, content string
		var distance float64
		if err := rows.Scan(&id, &content, &distance); err != nil {
			return nil, err
		}
		out = append(out, passage{hit: models.NewHit(id, distance), text: content})
	}
	return out, rows.Err()
}

// SimilaritySearch returns the k nearest records by cosine distance.
func (p *PgvectorProvider) SimilaritySearch(ctx context.Context, query string, k int) ([]models.Hit, error) {
	passages, err := p.search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	hits := make([]models.Hit, len(passages))
	for i, ps := range passages {
		hits[i] = ps.hit
	}
	return hits, nil
}

// Ask answers question from the k nearest record texts.
func (p *PgvectorProvider) Ask(ctx context.Context, question string, k int, onChunk ChunkFunc) (*Completion, error) {
	return answer(ctx, p.opts, p.log, p.search, question, k, onChunk)
}

// Name returns "pgvector".
func (p *PgvectorProvider) Name() string {
	return "pgvector"
}

// Close closes the pool if the provider opened it.
func (p *PgvectorProvider) Close() error {
	if !p.ownsDB {
		return nil
	}
	return p.db.Close()
}
