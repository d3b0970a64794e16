package models

import "fmt"

// SearchRequest is a similarity search request for one record type.
type SearchRequest struct {
	Query        string                 `json:"query"`
	Limit        int                    `json:"limit,omitempty"`
	Filters      map[string]interface{} `json:"filters,omitempty"`
	WithDistance bool                   `json:"with_distance,omitempty"`
	MaxDistance  *float64               `json:"max_distance,omitempty"` // only used with WithDistance; nil means the configured default
}

// Validate rejects empty queries and clamps Limit into [1, maxLimit], using
// defaultLimit when unset.
func (q *SearchRequest) Validate(defaultLimit, maxLimit int) error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.MaxDistance != nil && *q.MaxDistance < 0 {
		return fmt.Errorf("max_distance must not be negative")
	}
	return nil
}

// SearchResponse is the response for a similarity search.
type SearchResponse struct {
	Records   []*Record          `json:"records"`
	Distances map[string]float64 `json:"distances,omitempty"`
	Total     int                `json:"total"`
	QueryTime int64              `json:"query_time_ms"`
	Query     string             `json:"query"`
}

// AskRequest is a question answered from the most relevant records of a type.
type AskRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
	Stream   bool   `json:"stream,omitempty"`
}

// Validate rejects empty questions and applies defaultK when K is unset.
func (a *AskRequest) Validate(defaultK int) error {
	if a.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	if a.K <= 0 {
		a.K = defaultK
	}
	return nil
}

// AskResponse is the non-streaming answer to an AskRequest.
type AskResponse struct {
	Answer    string `json:"answer"`
	Sources   []Hit  `json:"sources,omitempty"`
	Model     string `json:"model,omitempty"`
	QueryTime int64  `json:"query_time_ms"`
}
