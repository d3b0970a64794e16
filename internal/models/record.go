// Package models defines the core data structures for records, hits, and requests.
package models

import "time"

// Record is a stored entity of a record type (its Type) with arbitrary fields.
// Embedding holds a previously computed vector, if any; it is never serialized
// into the record's vector representation.
type Record struct {
	ID        string                 `json:"id" db:"id"`
	Type      string                 `json:"type" db:"type"`
	Fields    map[string]interface{} `json:"fields" db:"fields"`
	Embedding []float32              `json:"-" db:"embedding"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`
}

// Field returns the named field and whether it is set.
func (r *Record) Field(name string) (interface{}, bool) {
	if r == nil || r.Fields == nil {
		return nil, false
	}
	v, ok := r.Fields[name]
	return v, ok
}

// RecordInput is the input for saving a record. An empty ID means a new record.
type RecordInput struct {
	ID        string                 `json:"id,omitempty" yaml:"id,omitempty"`
	Type      string                 `json:"type,omitempty" yaml:"type,omitempty"`
	Fields    map[string]interface{} `json:"fields" yaml:"fields"`
	Embedding []float32              `json:"embedding,omitempty" yaml:"embedding,omitempty"`
}

// Hit is a provider search result normalized to a record identifier and an
// optional distance (lower is closer).
type Hit struct {
	ID       string   `json:"id"`
	Distance *float64 `json:"distance,omitempty"`
}

// NewHit returns a hit with a distance.
func NewHit(id string, distance float64) Hit {
	return Hit{ID: id, Distance: &distance}
}

// HasDistance reports whether the provider returned a distance for the hit.
func (h Hit) HasDistance() bool {
	return h.Distance != nil
}
