package storage

import (
	"context"

	"github.com/hyperjump/ruiji/internal/models"
)

// Query is a chainable, lazily evaluated lookup of records of one type.
// Nothing touches the store until All, First or Count is called.
type Query struct {
	store      Storage
	recordType string
	ids        []string
	restricted bool
	filters    []Filter
	limit      int
}

// NewQuery returns an unrestricted query over the records of recordType.
func NewQuery(store Storage, recordType string) *Query {
	return &Query{store: store, recordType: recordType}
}

func (q *Query) clone() *Query {
	c := *q
	c.ids = append([]string(nil), q.ids...)
	c.filters = append([]Filter(nil), q.filters...)
	return &c
}

// IDs restricts the query to the given identifiers. Records come back in the
// order of ids; repeated calls intersect.
func (q *Query) IDs(ids ...string) *Query {
	c := q.clone()
	if !c.restricted {
		c.ids = dedupe(ids)
		c.restricted = true
		return c
	}
	allowed := make(map[string]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}
	kept := c.ids[:0]
	for _, id := range c.ids {
		if allowed[id] {
			kept = append(kept, id)
		}
	}
	c.ids = kept
	return c
}

// Where adds an equality condition on a record field.
func (q *Query) Where(field string, value interface{}) *Query {
	c := q.clone()
	c.filters = append(c.filters, Filter{Field: field, Value: value})
	return c
}

// WhereAll adds an equality condition for every entry of filters.
func (q *Query) WhereAll(filters []Filter) *Query {
	c := q.clone()
	c.filters = append(c.filters, filters...)
	return c
}

// Limit caps the number of records returned; zero or negative means no cap.
func (q *Query) Limit(n int) *Query {
	c := q.clone()
	c.limit = n
	return c
}

// RecordType returns the record type the query ranges over.
func (q *Query) RecordType() string {
	return q.recordType
}

// RestrictedIDs returns the identifier restriction and whether one is set.
func (q *Query) RestrictedIDs() ([]string, bool) {
	return append([]string(nil), q.ids...), q.restricted
}

// Filters returns the equality conditions of the query.
func (q *Query) Filters() []Filter {
	return append([]Filter(nil), q.filters...)
}

// All runs the query.
func (q *Query) All(ctx context.Context) ([]*models.Record, error) {
	var ids []string
	if q.restricted {
		if len(q.ids) == 0 {
			return []*models.Record{}, nil
		}
		ids = q.ids
	}
	recs, err := q.store.FindRecords(ctx, q.recordType, ids, q.filters)
	if err != nil {
		return nil, err
	}
	if q.restricted {
		recs = orderByIDs(recs, q.ids)
	}
	if q.limit > 0 && len(recs) > q.limit {
		recs = recs[:q.limit]
	}
	if recs == nil {
		recs = []*models.Record{}
	}
	return recs, nil
}

// First returns the first record of the query or ErrNotFound.
func (q *Query) First(ctx context.Context) (*models.Record, error) {
	recs, err := q.Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// Count returns the number of records the query matches.
func (q *Query) Count(ctx context.Context) (int, error) {
	recs, err := q.All(ctx)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// orderByIDs returns recs sorted by the position of their ID in ids.
func orderByIDs(recs []*models.Record, ids []string) []*models.Record {
	byID := make(map[string]*models.Record, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}
	out := make([]*models.Record, 0, len(recs))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
