// Package store defines the keyed entity store contract: records addressed
// by a (partition, row) key with compare-and-swap updates and atomic
// multi-record batches within a single partition. Implementations live in
// subpackages; nothing in here may import a storage SDK.
package store

import (
	"context"
	"fmt"

	appErrors "coursehub-backend/pkg/errors"
)

// Key identifies a record: Partition groups records that are scanned or
// batch-mutated together, Row is unique within a partition.
type Key struct {
	Partition string
	Row       string
}

// Version is the store-assigned token attached to every read. It changes on
// every successful write and is required by compare-and-swap updates.
// Callers must treat it as opaque.
type Version string

// NoVersion is the zero token carried by records that have never been read.
const NoVersion Version = ""

// Record is a schemaless stored entity. Attrs holds scalar values; structured
// fields are serialized by the mapping layer before they reach the store.
type Record struct {
	Key     Key
	Version Version
	Kind    string
	Attrs   map[string]any
}

// UpdateMode selects how Update applies the supplied record.
type UpdateMode int

const (
	// Replace overwrites all attributes of the stored record.
	Replace UpdateMode = iota
	// Merge patches only the attributes present in the supplied record.
	Merge
)

// OpType discriminates batch operations.
type OpType int

const (
	OpPut OpType = iota
	OpDelete
)

// Op is a single operation inside a Batch.
type Op struct {
	Type   OpType
	Record Record // OpPut: the record to write
	Row    string // OpDelete: the row to remove
}

// Iterator is a lazy, finite, non-restartable sequence of records. Consumers
// may stop early by returning from the read loop and calling Close; the
// underlying scan is not completed in that case.
//
//	it := s.List(ctx, partition)
//	defer it.Close()
//	for it.Next() {
//		rec := it.Record()
//		...
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator interface {
	Next() bool
	Record() *Record
	Err() error
	Close() error
}

// Store is the keyed entity store contract.
type Store interface {
	// Get returns the record at (partition, row), or a NotFound error.
	Get(ctx context.Context, partition, row string) (*Record, error)

	// List lazily scans a single partition.
	List(ctx context.Context, partition string) Iterator

	// Scan lazily walks every record whose partition key begins with prefix.
	// An empty prefix walks the whole table. Callers filter client-side.
	Scan(ctx context.Context, prefix string) Iterator

	// Page returns up to limit records of a partition, starting after the
	// given key (nil for the first page). The returned key is nil when the
	// partition is exhausted.
	Page(ctx context.Context, partition string, limit int, startAfter *Key) ([]Record, *Key, error)

	// Create writes a new record, failing with AlreadyExists if the key is
	// taken. The stored record's new version is returned.
	Create(ctx context.Context, rec Record) (*Record, error)

	// Update rewrites the record at rec.Key if its stored version equals
	// expected, failing with Conflict otherwise. Mode selects Replace or
	// Merge semantics. The stored record's new version is returned.
	Update(ctx context.Context, rec Record, expected Version, mode UpdateMode) (*Record, error)

	// Delete removes the record at (partition, row), failing with NotFound
	// if it is absent.
	Delete(ctx context.Context, partition, row string) error

	// Batch applies ops atomically. Every op must target the given
	// partition; cross-partition batches are rejected with a Validation
	// error and must be decomposed by the caller into sequential writes
	// with their partial-failure risk owned explicitly.
	Batch(ctx context.Context, partition string, ops []Op) error
}

// ValidateBatch rejects batches whose puts stray outside partition, and
// batches touching one row more than once. A second op on the same row would
// fail mid-apply and break the all-or-nothing guarantee, so it is rejected
// before anything runs. Implementations call this before touching the store.
func ValidateBatch(partition string, ops []Op) error {
	seen := make(map[string]bool, len(ops))
	for _, op := range ops {
		row := op.Row
		if op.Type == OpPut {
			if op.Record.Key.Partition != partition {
				return appErrors.NewValidation(
					"batch operations must target a single partition")
			}
			row = op.Record.Key.Row
		}
		if seen[row] {
			return appErrors.NewValidation(
				fmt.Sprintf("batch touches row %s/%s more than once", partition, row))
		}
		seen[row] = true
	}
	return nil
}

// String returns a string attribute, tolerating absence and foreign types so
// records written by older code decode cleanly.
func (r *Record) String(name string) string {
	if v, ok := r.Attrs[name].(string); ok {
		return v
	}
	return ""
}

// Int returns an integer attribute. Numeric attributes round-trip through
// some backends as float64; both shapes are accepted.
func (r *Record) Int(name string) int {
	switch v := r.Attrs[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Float returns a float attribute.
func (r *Record) Float(name string) float64 {
	switch v := r.Attrs[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Bool returns a boolean attribute.
func (r *Record) Bool(name string) bool {
	if v, ok := r.Attrs[name].(bool); ok {
		return v
	}
	return false
}

// Has reports whether the attribute is present at all.
func (r *Record) Has(name string) bool {
	_, ok := r.Attrs[name]
	return ok
}
