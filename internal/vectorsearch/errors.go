package vectorsearch

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSearchable is returned for record types that were never declared.
	ErrNotSearchable = errors.New("record type is not searchable")
	// ErrMissingID is returned when a provider hit carries no record identifier.
	ErrMissingID = errors.New("search hit without record id")
	// ErrProviderShared is returned when a provider that keeps one table or
	// collection is declared for a second record type.
	ErrProviderShared = errors.New("provider already serves another record type")
)

// IndexingError reports a provider failure while upserting a record's vector
// representation. Unwrap returns the provider error unchanged.
type IndexingError struct {
	RecordType string
	RecordID   string
	Op         string // add_texts, update_texts or remove_texts
	Err        error
}

func (e *IndexingError) Error() string {
	return fmt.Sprintf("indexing %s/%s: %s: %v", e.RecordType, e.RecordID, e.Op, e.Err)
}

func (e *IndexingError) Unwrap() error {
	return e.Err
}
