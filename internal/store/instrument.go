package store

import (
	"context"

	"coursehub-backend/internal/observability"
)

// InstrumentedStore counts every store operation by kind and outcome.
// Contract errors are still errors from the caller's point of view but are
// labeled separately so dashboards can tell outcomes from outages.
type InstrumentedStore struct {
	inner   Store
	metrics *observability.Metrics
}

// NewInstrumentedStore wraps inner with operation counters.
func NewInstrumentedStore(inner Store, metrics *observability.Metrics) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, metrics: metrics}
}

func (s *InstrumentedStore) count(op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case isContractError(err):
		result = "outcome"
	default:
		result = "error"
	}
	s.metrics.StoreOps.WithLabelValues(op, result).Inc()
}

func (s *InstrumentedStore) Get(ctx context.Context, partition, row string) (*Record, error) {
	rec, err := s.inner.Get(ctx, partition, row)
	s.count("get", err)
	return rec, err
}

func (s *InstrumentedStore) Create(ctx context.Context, rec Record) (*Record, error) {
	out, err := s.inner.Create(ctx, rec)
	s.count("create", err)
	return out, err
}

func (s *InstrumentedStore) Update(ctx context.Context, rec Record, expected Version, mode UpdateMode) (*Record, error) {
	out, err := s.inner.Update(ctx, rec, expected, mode)
	s.count("update", err)
	return out, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, partition, row string) error {
	err := s.inner.Delete(ctx, partition, row)
	s.count("delete", err)
	return err
}

func (s *InstrumentedStore) Batch(ctx context.Context, partition string, ops []Op) error {
	err := s.inner.Batch(ctx, partition, ops)
	s.count("batch", err)
	return err
}

// List and Scan do their I/O during consumption; the counter records the
// iterator handout, errors surface through Iterator.Err.
func (s *InstrumentedStore) List(ctx context.Context, partition string) Iterator {
	s.count("list", nil)
	return s.inner.List(ctx, partition)
}

func (s *InstrumentedStore) Scan(ctx context.Context, prefix string) Iterator {
	s.count("scan", nil)
	return s.inner.Scan(ctx, prefix)
}

func (s *InstrumentedStore) Page(ctx context.Context, partition string, limit int, startAfter *Key) ([]Record, *Key, error) {
	records, next, err := s.inner.Page(ctx, partition, limit, startAfter)
	s.count("page", err)
	return records, next, err
}

var _ Store = (*InstrumentedStore)(nil)
