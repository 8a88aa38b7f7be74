// Package store provides document persistence for staging sessions, chat
// histories and properties. Documents live in named collections and are
// addressed by id. Three implementations share one contract:
//
//   - DynamoStore: single table, PK = collection, SK = document id.
//   - SQLStore: one SQLite table (via gorm) holding JSON bodies.
//   - MemoryStore: process-local map, used by tests and local runs.
//
// Documents that take part in optimistic concurrency carry a top-level
// "version" field. PutVersioned writes version N only when the stored
// document is at version N-1 (or absent, for N = 1).
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrVersionConflict is returned by PutVersioned when the stored version
// does not match the expected predecessor.
var ErrVersionConflict = errors.New("store: version conflict")

// Op is a comparison operator for single-field queries.
type Op string

const (
	OpEq Op = "=="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

func (o Op) valid() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

var fieldRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Filter selects documents whose top-level Field compares to Value with Op.
// Value must be a string, bool, or numeric type.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where builds a Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Validate checks the filter before any I/O is attempted.
func (f Filter) Validate() error {
	if !fieldRegex.MatchString(f.Field) {
		return fmt.Errorf("store: invalid filter field %q", f.Field)
	}
	if !f.Op.valid() {
		return fmt.Errorf("store: unsupported operator %q", f.Op)
	}
	switch f.Value.(type) {
	case string, int, int32, int64, float32, float64, uint, uint32, uint64:
	case bool:
		if f.Op != OpEq && f.Op != OpNe {
			return fmt.Errorf("store: operator %q not supported for bool values", f.Op)
		}
	default:
		return fmt.Errorf("store: unsupported filter value type %T", f.Value)
	}
	return nil
}

// Document is one query result.
type Document struct {
	ID     string
	decode func(out any) error
}

// Decode unmarshals the document body into out.
func (d Document) Decode(out any) error {
	if d.decode == nil {
		return errors.New("store: empty document")
	}
	return d.decode(out)
}

// DocumentStore is safe for concurrent use.
//
// Get returns (false, nil) when the document does not exist; out is left
// untouched in that case. Put is an unconditional upsert. Delete of an
// absent document is not an error. Query results are ordered by id.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string, out any) (bool, error)
	Put(ctx context.Context, collection, id string, doc any) error
	PutVersioned(ctx context.Context, collection, id string, doc any, version int64) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, f Filter) ([]Document, error)
}
