package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/ruiji/internal/models"
)

// maxIDsPerQuery bounds the number of bound parameters in one IN clause.
const maxIDsPerQuery = 500

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStorage implements Storage using SQLite. Record fields are stored as a
// JSON document and filtered with json_extract.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a
// private in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	inMemory := dbPath == ":memory:"
	if !inMemory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// every new connection would see its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		type TEXT NOT NULL,
		id TEXT NOT NULL,
		fields TEXT NOT NULL DEFAULT '{}',
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (type, id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(type, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateRecord inserts a record and sets its timestamps.
func (s *SQLiteStorage) CreateRecord(ctx context.Context, rec *models.Record) error {
	fieldsJSON, err := marshalFields(rec.Fields)
	if err != nil {
		return err
	}
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (type, id, fields, embedding, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Type, rec.ID, fieldsJSON, encodeEmbedding(rec.Embedding), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create record %s/%s: %w", rec.Type, rec.ID, err)
	}
	return nil
}

// GetRecord returns a record by type and ID.
func (s *SQLiteStorage) GetRecord(ctx context.Context, recordType, id string) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT type, id, fields, embedding, created_at, updated_at
		 FROM records WHERE type = ? AND id = ?`, recordType, id,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, recordType, id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateRecord replaces the fields and embedding of an existing record.
func (s *SQLiteStorage) UpdateRecord(ctx context.Context, rec *models.Record) error {
	fieldsJSON, err := marshalFields(rec.Fields)
	if err != nil {
		return err
	}
	rec.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx,
		`UPDATE records SET fields = ?, embedding = ?, updated_at = ?
		 WHERE type = ? AND id = ?`,
		fieldsJSON, encodeEmbedding(rec.Embedding), rec.UpdatedAt, rec.Type, rec.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, rec.Type, rec.ID)
	}
	return s.db.QueryRowContext(ctx,
		`SELECT created_at FROM records WHERE type = ? AND id = ?`, rec.Type, rec.ID,
	).Scan(&rec.CreatedAt)
}

// UpsertRecord creates the record or updates it if it already exists, and
// reports whether a new row was created.
func (s *SQLiteStorage) UpsertRecord(ctx context.Context, rec *models.Record) (bool, error) {
	fieldsJSON, err := marshalFields(rec.Fields)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var createdAt time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT created_at FROM records WHERE type = ? AND id = ?`, rec.Type, rec.ID,
	).Scan(&createdAt)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return false, err
	}

	now := time.Now()
	if created {
		createdAt = now
		_, err = tx.ExecContext(ctx,
			`INSERT INTO records (type, id, fields, embedding, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			rec.Type, rec.ID, fieldsJSON, encodeEmbedding(rec.Embedding), now, now,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE records SET fields = ?, embedding = ?, updated_at = ?
			 WHERE type = ? AND id = ?`,
			fieldsJSON, encodeEmbedding(rec.Embedding), now, rec.Type, rec.ID,
		)
	}
	if err != nil {
		return false, fmt.Errorf("failed to save record %s/%s: %w", rec.Type, rec.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	rec.CreatedAt = createdAt
	rec.UpdatedAt = now
	return created, nil
}

// DeleteRecord removes a record by type and ID.
func (s *SQLiteStorage) DeleteRecord(ctx context.Context, recordType, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE type = ? AND id = ?`, recordType, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, recordType, id)
	}
	return nil
}

// RecordExists reports whether a record is stored.
func (s *SQLiteStorage) RecordExists(ctx context.Context, recordType, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM records WHERE type = ? AND id = ?`, recordType, id,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// ListRecords returns records of a type, newest first, with offset and limit.
func (s *SQLiteStorage) ListRecords(ctx context.Context, recordType string, offset, limit int) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, id, fields, embedding, created_at, updated_at
		 FROM records WHERE type = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		recordType, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// FindRecords returns the records of a type matching ids and all filters.
// Results are in ascending ID order; callers that need relevance order
// reorder them.
func (s *SQLiteStorage) FindRecords(ctx context.Context, recordType string, ids []string, filters []Filter) ([]*models.Record, error) {
	where, args, err := filterClause(filters)
	if err != nil {
		return nil, err
	}

	if ids == nil {
		query := `SELECT type, id, fields, embedding, created_at, updated_at
			FROM records WHERE type = ?` + where + ` ORDER BY id`
		rows, err := s.db.QueryContext(ctx, query, append([]interface{}{recordType}, args...)...)
		if err != nil {
			return nil, err
		}
		return collectRecords(rows)
	}

	var out []*models.Record
	for start := 0; start < len(ids); start += maxIDsPerQuery {
		end := start + maxIDsPerQuery
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		query := `SELECT type, id, fields, embedding, created_at, updated_at
			FROM records WHERE type = ? AND id IN (` + placeholders(len(chunk)) + `)` + where + ` ORDER BY id`
		queryArgs := make([]interface{}, 0, 1+len(chunk)+len(args))
		queryArgs = append(queryArgs, recordType)
		for _, id := range chunk {
			queryArgs = append(queryArgs, id)
		}
		queryArgs = append(queryArgs, args...)

		rows, err := s.db.QueryContext(ctx, query, queryArgs...)
		if err != nil {
			return nil, err
		}
		recs, err := collectRecords(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// FindInBatches walks all records of a type in ascending ID order using
// keyset pagination. Each batch is fully read before fn runs, so fn may
// write to the store.
func (s *SQLiteStorage) FindInBatches(ctx context.Context, recordType string, batchSize int, fn BatchFunc) error {
	if batchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	lastID := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := s.db.QueryContext(ctx,
			`SELECT type, id, fields, embedding, created_at, updated_at
			 FROM records WHERE type = ? AND id > ? ORDER BY id LIMIT ?`,
			recordType, lastID, batchSize,
		)
		if err != nil {
			return err
		}
		batch, err := collectRecords(rows)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		lastID = batch[len(batch)-1].ID
	}
}

// CountRecords returns the number of records of a type.
func (s *SQLiteStorage) CountRecords(ctx context.Context, recordType string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE type = ?`, recordType).Scan(&count)
	return count, err
}

// CountByType returns the number of records per record type.
func (s *SQLiteStorage) CountByType(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM records GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var t string
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var rec models.Record
	var fieldsJSON string
	var embedding []byte
	if err := row.Scan(&rec.Type, &rec.ID, &fieldsJSON, &embedding, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if fieldsJSON != "" {
		if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fields of %s/%s: %w", rec.Type, rec.ID, err)
		}
	}
	if rec.Fields == nil {
		rec.Fields = map[string]interface{}{}
	}
	rec.Embedding = decodeEmbedding(embedding)
	return &rec, nil
}

// collectRecords reads and closes rows.
func collectRecords(rows *sql.Rows) ([]*models.Record, error) {
	defer rows.Close()
	var recs []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func filterClause(filters []Filter) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	var b strings.Builder
	args := make([]interface{}, 0, len(filters))
	for _, f := range filters {
		if !fieldNamePattern.MatchString(f.Field) {
			return "", nil, fmt.Errorf("invalid filter field %q", f.Field)
		}
		column := "json_extract(fields, '$." + f.Field + "')"
		if f.Field == "id" {
			column = "id"
		}
		switch v := f.Value.(type) {
		case nil:
			b.WriteString(" AND " + column + " IS NULL")
			continue
		case bool:
			if v {
				args = append(args, 1)
			} else {
				args = append(args, 0)
			}
		case string, int, int32, int64, float32, float64:
			args = append(args, v)
		default:
			return "", nil, fmt.Errorf("unsupported filter value for %q: %T", f.Field, f.Value)
		}
		b.WriteString(" AND " + column + " = ?")
	}
	return b.String(), args, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func marshalFields(fields map[string]interface{}) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal fields: %w", err)
	}
	return string(data), nil
}

// encodeEmbedding stores a vector as little-endian float32s.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) < 4 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
