package index

import (
	"context"
	"testing"

	"coursehub-backend/internal/store/memstore"
	appErrors "coursehub-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memstore.New(), zap.NewNop())

	lu := Lookup{Partition: "LOOKUP_CODE", Key: "CS101", TargetID: "c1", Extra: map[string]any{"Semester": 2}}
	require.NoError(t, m.Upsert(ctx, lu))

	t.Run("idempotent for the same target", func(t *testing.T) {
		refreshed := lu
		refreshed.Extra = map[string]any{"Semester": 4}
		require.NoError(t, m.Upsert(ctx, refreshed))

		got, err := m.Resolve(ctx, "LOOKUP_CODE", "CS101")
		require.NoError(t, err)
		assert.Equal(t, "c1", got.TargetID)
		assert.Equal(t, 4, got.Extra["Semester"], "payload refreshed in place")
	})

	t.Run("uniqueness violation for a different target", func(t *testing.T) {
		err := m.Upsert(ctx, Lookup{Partition: "LOOKUP_CODE", Key: "CS101", TargetID: "c2"})
		require.Error(t, err)
		assert.True(t, appErrors.IsAlreadyExists(err))

		got, err := m.Resolve(ctx, "LOOKUP_CODE", "CS101")
		require.NoError(t, err)
		assert.Equal(t, "c1", got.TargetID, "loser changed nothing")
	})
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memstore.New(), zap.NewNop())

	_, err := m.Resolve(ctx, "LOOKUP_EXTERNAL", "ext-1")
	require.Error(t, err)
	assert.True(t, appErrors.IsNotFound(err))
	assert.Contains(t, err.Error(), `no entity registered under "ext-1"`)
}

func TestRelocate(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memstore.New(), zap.NewNop())

	require.NoError(t, m.Upsert(ctx, Lookup{Partition: "LOOKUP_CODE", Key: "CS101", TargetID: "c1"}))
	require.NoError(t, m.Relocate(ctx, "CS101", Lookup{Partition: "LOOKUP_CODE", Key: "CS111", TargetID: "c1"}))

	_, err := m.Resolve(ctx, "LOOKUP_CODE", "CS101")
	assert.True(t, appErrors.IsNotFound(err))

	got, err := m.Resolve(ctx, "LOOKUP_CODE", "CS111")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.TargetID)
}

func TestDeleteToleratesAbsence(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memstore.New(), zap.NewNop())

	assert.NoError(t, m.Delete(ctx, "LOOKUP_CODE", "never-existed"))
}
