// Package storage defines the primary record store that searchable record
// types persist to and resolve search hits through.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/ruiji/internal/models"
)

// ErrNotFound is returned when a record does not exist in the store.
var ErrNotFound = errors.New("record not found")

// Filter is an equality condition on a record field. A nil Value matches
// records where the field is null or missing.
type Filter struct {
	Field string
	Value interface{}
}

// BatchFunc receives one batch of records during FindInBatches. Returning an
// error stops the iteration.
type BatchFunc func(batch []*models.Record) error

// Storage defines record persistence operations.
type Storage interface {
	// Record operations
	CreateRecord(ctx context.Context, rec *models.Record) error
	GetRecord(ctx context.Context, recordType, id string) (*models.Record, error)
	UpdateRecord(ctx context.Context, rec *models.Record) error
	UpsertRecord(ctx context.Context, rec *models.Record) (created bool, err error)
	DeleteRecord(ctx context.Context, recordType, id string) error
	RecordExists(ctx context.Context, recordType, id string) (bool, error)
	ListRecords(ctx context.Context, recordType string, offset, limit int) ([]*models.Record, error)

	// Lookup. A nil ids slice places no restriction on identifiers; an empty
	// non-nil slice matches nothing.
	FindRecords(ctx context.Context, recordType string, ids []string, filters []Filter) ([]*models.Record, error)

	// Batch iteration in ascending ID order.
	FindInBatches(ctx context.Context, recordType string, batchSize int, fn BatchFunc) error

	// Stats
	CountRecords(ctx context.Context, recordType string) (int64, error)
	CountByType(ctx context.Context) (map[string]int64, error)

	Close() error
}
