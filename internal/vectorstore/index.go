// Package vectorstore wraps the external vector index behind a small,
// backend-neutral contract.
package vectorstore

import "context"

// Point represents a vector point with its flat payload.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// SearchResult is a single scored or listed point.
type SearchResult struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Condition is an exact match on one payload key.
type Condition struct {
	Key   string
	Value string
}

// Filter is a conjunction of exact-match conditions. The zero value matches
// every point.
type Filter struct {
	Must []Condition
}

// Match returns a filter with a single condition.
func Match(key, value string) Filter {
	return Filter{Must: []Condition{{Key: key, Value: value}}}
}

// And returns a copy of f with an extra condition.
func (f Filter) And(key, value string) Filter {
	must := make([]Condition, 0, len(f.Must)+1)
	must = append(must, f.Must...)
	return Filter{Must: append(must, Condition{Key: key, Value: value})}
}

// Has reports whether the filter constrains key.
func (f Filter) Has(key string) bool {
	for _, c := range f.Must {
		if c.Key == key {
			return true
		}
	}
	return false
}

// Value returns the value the filter requires for key.
func (f Filter) Value(key string) (string, bool) {
	for _, c := range f.Must {
		if c.Key == key {
			return c.Value, true
		}
	}
	return "", false
}

// Index is the vector database contract used by the memory service.
type Index interface {
	HealthCheck(ctx context.Context) error
	// EnsureCollection is idempotent and treats a concurrent create as success.
	EnsureCollection(ctx context.Context, name string, dimension int) error
	// Upsert overwrites points with the same id.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search returns up to limit points matching filter, best score first.
	Search(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]SearchResult, error)
	// Scroll returns one page of up to limit points matching filter, unranked.
	Scroll(ctx context.Context, collection string, filter Filter, limit int) ([]SearchResult, error)
	// DeleteByID removes points; absent ids are ignored.
	DeleteByID(ctx context.Context, collection string, ids []string) error
	// DeleteByFilter removes every point matching a non-empty filter.
	DeleteByFilter(ctx context.Context, collection string, filter Filter) error
}
