package store_test

import (
	"context"
	"testing"

	"coursehub-backend/internal/store"
	"coursehub-backend/internal/store/memstore"
	appErrors "coursehub-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sony/gobreaker"
)

func TestBreakerPassesThroughHealthyCalls(t *testing.T) {
	ctx := context.Background()
	inner := memstore.New()
	b := store.NewBreakerStore(inner, "test")

	created, err := b.Create(ctx, store.Record{
		Key:   store.Key{Partition: "P1", Row: "a"},
		Kind:  "TEST",
		Attrs: map[string]any{"x": 1},
	})
	require.NoError(t, err)

	got, err := b.Get(ctx, "P1", "a")
	require.NoError(t, err)
	assert.Equal(t, created.Version, got.Version)
}

func TestBreakerIgnoresContractErrors(t *testing.T) {
	ctx := context.Background()
	b := store.NewBreakerStore(memstore.New(), "test")

	// Far more than the trip threshold; outcomes are not failures.
	for i := 0; i < 10; i++ {
		_, err := b.Get(ctx, "P1", "missing")
		require.Error(t, err)
		assert.True(t, appErrors.IsNotFound(err), "contract error passes through, got: %v", err)
	}
}

func TestBreakerTripsOnConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	inner := memstore.New()
	b := store.NewBreakerStore(inner, "test")

	outage := appErrors.NewInternal("store offline", nil)
	for i := 0; i < 5; i++ {
		inner.FailNext("Get", outage)
		_, err := b.Get(ctx, "P1", "a")
		require.Error(t, err)
	}

	// The breaker is now open; calls fail fast without reaching the store.
	_, err := b.Get(ctx, "P1", "a")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
