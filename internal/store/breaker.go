package store

import (
	"context"

	appErrors "coursehub-backend/pkg/errors"

	"github.com/sony/gobreaker"
)

// BreakerStore wraps a Store so backend outages trip a circuit breaker
// instead of piling up blocked requests. Contract errors (NotFound,
// Conflict, AlreadyExists, Validation) are outcomes, not failures, and do
// not count against the breaker.
type BreakerStore struct {
	inner   Store
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps inner with a named circuit breaker.
func NewBreakerStore(inner Store, name string) *BreakerStore {
	return &BreakerStore{
		inner: inner,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: name,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func isContractError(err error) bool {
	return appErrors.IsNotFound(err) ||
		appErrors.IsConflict(err) ||
		appErrors.IsAlreadyExists(err) ||
		appErrors.IsValidation(err)
}

func (b *BreakerStore) execute(op func() (any, error)) (any, error) {
	out, err := b.breaker.Execute(func() (any, error) {
		out, err := op()
		if err != nil && isContractError(err) {
			// Smuggle the outcome past the breaker's failure counting.
			return contractOutcome{out: out, err: err}, nil
		}
		return out, err
	})
	if err != nil {
		return nil, err
	}
	if outcome, ok := out.(contractOutcome); ok {
		return outcome.out, outcome.err
	}
	return out, nil
}

type contractOutcome struct {
	out any
	err error
}

func (b *BreakerStore) Get(ctx context.Context, partition, row string) (*Record, error) {
	out, err := b.execute(func() (any, error) { return b.inner.Get(ctx, partition, row) })
	if err != nil {
		return nil, err
	}
	return out.(*Record), nil
}

func (b *BreakerStore) Create(ctx context.Context, rec Record) (*Record, error) {
	out, err := b.execute(func() (any, error) { return b.inner.Create(ctx, rec) })
	if err != nil {
		return nil, err
	}
	return out.(*Record), nil
}

func (b *BreakerStore) Update(ctx context.Context, rec Record, expected Version, mode UpdateMode) (*Record, error) {
	out, err := b.execute(func() (any, error) { return b.inner.Update(ctx, rec, expected, mode) })
	if err != nil {
		return nil, err
	}
	return out.(*Record), nil
}

func (b *BreakerStore) Delete(ctx context.Context, partition, row string) error {
	_, err := b.execute(func() (any, error) { return nil, b.inner.Delete(ctx, partition, row) })
	return err
}

func (b *BreakerStore) Batch(ctx context.Context, partition string, ops []Op) error {
	_, err := b.execute(func() (any, error) { return nil, b.inner.Batch(ctx, partition, ops) })
	return err
}

// List and Scan hand back lazy iterators; their I/O happens during
// consumption, outside any breaker window, so they pass through.
func (b *BreakerStore) List(ctx context.Context, partition string) Iterator {
	return b.inner.List(ctx, partition)
}

func (b *BreakerStore) Scan(ctx context.Context, prefix string) Iterator {
	return b.inner.Scan(ctx, prefix)
}

func (b *BreakerStore) Page(ctx context.Context, partition string, limit int, startAfter *Key) ([]Record, *Key, error) {
	out, err := b.execute(func() (any, error) {
		records, next, err := b.inner.Page(ctx, partition, limit, startAfter)
		if err != nil {
			return nil, err
		}
		return pageOutcome{records: records, next: next}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	p := out.(pageOutcome)
	return p.records, p.next, nil
}

type pageOutcome struct {
	records []Record
	next    *Key
}

var _ Store = (*BreakerStore)(nil)
