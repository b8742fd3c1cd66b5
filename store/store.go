// Package store provides the generic table-query surface the module
// runtime persists through, plus two backends: SQLite for the daemon and an
// in-memory implementation for tests and degraded boot.
//
// Rows are JSON documents keyed by id. The query surface is a small
// chainable builder in the style of hosted-database client SDKs:
//
//	rows, err := backend.Table("module_data").
//		Eq("module_id", id).
//		Eq("company_id", company).
//		Order("created_at", true).
//		Select(ctx)
//
// Collections are provisioned explicitly via EnsureCollections; querying a
// missing collection returns ErrNotProvisioned so callers can distinguish
// "feature not yet set up" from "genuinely empty".
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotProvisioned marks a query against a collection that does not
	// exist yet. Expected during early boot; callers typically degrade
	// to an empty result with a logged warning.
	ErrNotProvisioned = errors.New("collection not provisioned")

	// ErrRowNotFound marks a lookup by id that matched nothing.
	ErrRowNotFound = errors.New("row not found")

	// ErrMissingID marks an insert of a document without an "id" key.
	ErrMissingID = errors.New("document is missing an id")
)

// Query is a chainable filter builder over one collection. Builder methods
// return the query for chaining; executor methods (Select, Insert, Update,
// Delete) run the accumulated query.
type Query interface {
	// Eq adds an equality filter on a document field.
	Eq(field string, value any) Query

	// Order sorts results by a document field, descending when desc.
	Order(field string, desc bool) Query

	// Limit caps the number of returned rows.
	Limit(n int) Query

	// Select returns the matching documents.
	Select(ctx context.Context) ([]map[string]any, error)

	// Insert stores a new document and returns it. The document must
	// carry a string "id".
	Insert(ctx context.Context, doc map[string]any) (map[string]any, error)

	// Update merges values into every matching document and returns the
	// updated documents.
	Update(ctx context.Context, values map[string]any) ([]map[string]any, error)

	// Delete removes every matching document.
	Delete(ctx context.Context) error
}

// Backend is a row-oriented data store reachable through the generic query
// surface. Implementations must be safe for concurrent use.
type Backend interface {
	// Table returns a fresh query over the named collection.
	Table(name string) Query

	// EnsureCollections provisions the named collections if absent.
	EnsureCollections(ctx context.Context, names ...string) error

	// Close releases backend resources.
	Close() error
}

// eqFilter is one accumulated equality condition.
type eqFilter struct {
	field string
	value any
}

// docID extracts the string id of a document.
func docID(doc map[string]any) (string, bool) {
	id, ok := doc["id"].(string)
	return id, ok && id != ""
}
