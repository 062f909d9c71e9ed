// Package memstore implements the store contract in process memory. It backs
// package tests and local development; version tokens are monotonic counters
// rendered opaque, and batches are applied under one lock so the
// single-partition atomicity guarantee holds.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"coursehub-backend/internal/store"
	appErrors "coursehub-backend/pkg/errors"
)

type stored struct {
	kind    string
	version int
	attrs   map[string]any
}

// Store is a concurrency-safe in-memory keyed entity store.
type Store struct {
	mu         sync.Mutex
	partitions map[string]map[string]*stored
	nextVer    int

	// failNext maps an operation name ("Get", "Create", "Update", "Delete",
	// "Batch") to an error injected on its next call. Tests use it to force
	// conflicts and outages.
	failNext map[string]error
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		partitions: make(map[string]map[string]*stored),
		failNext:   make(map[string]error),
	}
}

// FailNext injects err into the next call of the named operation.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[op] = err
}

func (s *Store) takeInjected(op string) error {
	if err, ok := s.failNext[op]; ok {
		delete(s.failNext, op)
		return err
	}
	return nil
}

func (s *Store) bump() store.Version {
	s.nextVer++
	return store.Version("v" + strconv.Itoa(s.nextVer))
}

func copyAttrs(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *Store) toRecord(partition, row string, st *stored) *store.Record {
	return &store.Record{
		Key:     store.Key{Partition: partition, Row: row},
		Version: store.Version("v" + strconv.Itoa(st.version)),
		Kind:    st.kind,
		Attrs:   copyAttrs(st.attrs),
	}
}

// Get returns the record at (partition, row).
func (s *Store) Get(ctx context.Context, partition, row string) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected("Get"); err != nil {
		return nil, err
	}
	st, ok := s.partitions[partition][row]
	if !ok {
		return nil, appErrors.NewNotFoundf("record %s/%s not found", partition, row)
	}
	return s.toRecord(partition, row, st), nil
}

// Create writes a new record.
func (s *Store) Create(ctx context.Context, rec store.Record) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected("Create"); err != nil {
		return nil, err
	}
	return s.createLocked(rec)
}

func (s *Store) createLocked(rec store.Record) (*store.Record, error) {
	part := s.partitions[rec.Key.Partition]
	if part == nil {
		part = make(map[string]*stored)
		s.partitions[rec.Key.Partition] = part
	}
	if _, exists := part[rec.Key.Row]; exists {
		return nil, appErrors.NewAlreadyExists(
			fmt.Sprintf("record %s/%s already exists", rec.Key.Partition, rec.Key.Row))
	}
	ver := s.bump()
	n, _ := strconv.Atoi(strings.TrimPrefix(string(ver), "v"))
	part[rec.Key.Row] = &stored{kind: rec.Kind, version: n, attrs: copyAttrs(rec.Attrs)}
	out := rec
	out.Version = ver
	out.Attrs = copyAttrs(rec.Attrs)
	return &out, nil
}

// Update rewrites the record at rec.Key if the stored version matches.
func (s *Store) Update(ctx context.Context, rec store.Record, expected store.Version, mode store.UpdateMode) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected("Update"); err != nil {
		return nil, err
	}
	st, ok := s.partitions[rec.Key.Partition][rec.Key.Row]
	if !ok {
		return nil, appErrors.NewNotFoundf("record %s/%s not found", rec.Key.Partition, rec.Key.Row)
	}
	current := store.Version("v" + strconv.Itoa(st.version))
	if current != expected {
		return nil, appErrors.NewConflict(
			fmt.Sprintf("version mismatch on %s/%s: expected %s, stored %s",
				rec.Key.Partition, rec.Key.Row, expected, current))
	}
	switch mode {
	case store.Replace:
		st.attrs = copyAttrs(rec.Attrs)
	case store.Merge:
		for k, v := range rec.Attrs {
			st.attrs[k] = v
		}
	}
	if rec.Kind != "" {
		st.kind = rec.Kind
	}
	ver := s.bump()
	st.version, _ = strconv.Atoi(strings.TrimPrefix(string(ver), "v"))
	return s.toRecord(rec.Key.Partition, rec.Key.Row, st), nil
}

// Delete removes the record at (partition, row).
func (s *Store) Delete(ctx context.Context, partition, row string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected("Delete"); err != nil {
		return err
	}
	return s.deleteLocked(partition, row)
}

func (s *Store) deleteLocked(partition, row string) error {
	part := s.partitions[partition]
	if _, ok := part[row]; !ok {
		return appErrors.NewNotFoundf("record %s/%s not found", partition, row)
	}
	delete(part, row)
	return nil
}

// Batch applies ops atomically under the store lock. All puts must target
// the given partition.
func (s *Store) Batch(ctx context.Context, partition string, ops []store.Op) error {
	if err := store.ValidateBatch(partition, ops); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected("Batch"); err != nil {
		return err
	}
	// Validate before mutating so a failed op leaves nothing applied.
	for _, op := range ops {
		switch op.Type {
		case store.OpPut:
			if _, exists := s.partitions[partition][op.Record.Key.Row]; exists {
				return appErrors.NewAlreadyExists(
					fmt.Sprintf("record %s/%s already exists", partition, op.Record.Key.Row))
			}
		case store.OpDelete:
			if _, ok := s.partitions[partition][op.Row]; !ok {
				return appErrors.NewNotFoundf("record %s/%s not found", partition, op.Row)
			}
		}
	}
	for _, op := range ops {
		switch op.Type {
		case store.OpPut:
			if _, err := s.createLocked(op.Record); err != nil {
				return err
			}
		case store.OpDelete:
			if err := s.deleteLocked(partition, op.Row); err != nil {
				return err
			}
		}
	}
	return nil
}

type sliceIterator struct {
	records []store.Record
	pos     int
	closed  bool
}

func (it *sliceIterator) Next() bool {
	if it.closed || it.pos >= len(it.records) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Record() *store.Record { return &it.records[it.pos-1] }
func (it *sliceIterator) Err() error            { return nil }
func (it *sliceIterator) Close() error          { it.closed = true; return nil }

func (s *Store) snapshot(filter func(partition string) bool) []store.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Record
	for partition, rows := range s.partitions {
		if !filter(partition) {
			continue
		}
		for row, st := range rows {
			out = append(out, *s.toRecord(partition, row, st))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Partition != out[j].Key.Partition {
			return out[i].Key.Partition < out[j].Key.Partition
		}
		return out[i].Key.Row < out[j].Key.Row
	})
	return out
}

// List lazily walks one partition in row order.
func (s *Store) List(ctx context.Context, partition string) store.Iterator {
	return &sliceIterator{records: s.snapshot(func(p string) bool { return p == partition })}
}

// Scan walks every record whose partition begins with prefix.
func (s *Store) Scan(ctx context.Context, prefix string) store.Iterator {
	return &sliceIterator{records: s.snapshot(func(p string) bool { return strings.HasPrefix(p, prefix) })}
}

// Page returns up to limit records of a partition after startAfter.
func (s *Store) Page(ctx context.Context, partition string, limit int, startAfter *store.Key) ([]store.Record, *store.Key, error) {
	all := s.snapshot(func(p string) bool { return p == partition })
	start := 0
	if startAfter != nil {
		for i, rec := range all {
			if rec.Key.Row > startAfter.Row {
				start = i
				break
			}
			start = i + 1
		}
	}
	if start >= len(all) {
		return nil, nil, nil
	}
	end := start + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	page := all[start:end]
	var next *store.Key
	if end < len(all) {
		k := page[len(page)-1].Key
		next = &k
	}
	return page, next, nil
}

var _ store.Store = (*Store)(nil)
