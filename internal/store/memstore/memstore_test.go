package memstore

import (
	"context"
	"fmt"
	"testing"

	"coursehub-backend/internal/store"
	appErrors "coursehub-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(partition, row string, attrs map[string]any) store.Record {
	return store.Record{
		Key:   store.Key{Partition: partition, Row: row},
		Kind:  "TEST",
		Attrs: attrs,
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.Create(ctx, rec("P1", "a", map[string]any{"x": 1}))
	require.NoError(t, err)
	assert.NotEqual(t, store.NoVersion, created.Version)

	_, err = s.Create(ctx, rec("P1", "a", map[string]any{"x": 2}))
	require.Error(t, err)
	assert.True(t, appErrors.IsAlreadyExists(err))

	got, err := s.Get(ctx, "P1", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Int("x"), "duplicate create left the original intact")
}

func TestUpdateCAS(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.Create(ctx, rec("P1", "a", map[string]any{"x": 1}))
	require.NoError(t, err)

	t.Run("matching version succeeds and rotates the token", func(t *testing.T) {
		updated, err := s.Update(ctx, rec("P1", "a", map[string]any{"x": 2}), created.Version, store.Replace)
		require.NoError(t, err)
		assert.NotEqual(t, created.Version, updated.Version)
		assert.Equal(t, 2, updated.Int("x"))
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		_, err := s.Update(ctx, rec("P1", "a", map[string]any{"x": 3}), created.Version, store.Replace)
		require.Error(t, err)
		assert.True(t, appErrors.IsConflict(err))

		got, err := s.Get(ctx, "P1", "a")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Int("x"), "losing write changed nothing")
	})

	t.Run("missing row is not found", func(t *testing.T) {
		_, err := s.Update(ctx, rec("P1", "ghost", nil), created.Version, store.Replace)
		assert.True(t, appErrors.IsNotFound(err))
	})
}

func TestUpdateMergeVsReplace(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.Create(ctx, rec("P1", "a", map[string]any{"keep": "yes", "x": 1}))
	require.NoError(t, err)

	merged, err := s.Update(ctx, rec("P1", "a", map[string]any{"x": 2}), created.Version, store.Merge)
	require.NoError(t, err)
	assert.Equal(t, "yes", merged.String("keep"), "merge preserves untouched attributes")
	assert.Equal(t, 2, merged.Int("x"))

	replaced, err := s.Update(ctx, rec("P1", "a", map[string]any{"x": 3}), merged.Version, store.Replace)
	require.NoError(t, err)
	assert.False(t, replaced.Has("keep"), "replace drops absent attributes")
	assert.Equal(t, 3, replaced.Int("x"))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Create(ctx, rec("P1", "a", nil))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "P1", "a"))

	err = s.Delete(ctx, "P1", "a")
	assert.True(t, appErrors.IsNotFound(err))
}

func TestBatchAtomicity(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Create(ctx, rec("P1", "existing", nil))
	require.NoError(t, err)

	t.Run("cross-partition put rejected up front", func(t *testing.T) {
		err := s.Batch(ctx, "P1", []store.Op{
			{Type: store.OpPut, Record: rec("P2", "b", nil)},
		})
		require.Error(t, err)
		assert.True(t, appErrors.IsValidation(err))
	})

	t.Run("one failing op applies nothing", func(t *testing.T) {
		err := s.Batch(ctx, "P1", []store.Op{
			{Type: store.OpPut, Record: rec("P1", "new", nil)},
			{Type: store.OpPut, Record: rec("P1", "existing", nil)},
		})
		require.Error(t, err)
		assert.True(t, appErrors.IsAlreadyExists(err))

		_, err = s.Get(ctx, "P1", "new")
		assert.True(t, appErrors.IsNotFound(err), "partial batch rolled into nothing")
	})

	t.Run("duplicate row in one batch rejected up front", func(t *testing.T) {
		err := s.Batch(ctx, "P1", []store.Op{
			{Type: store.OpPut, Record: rec("P1", "twice", nil)},
			{Type: store.OpPut, Record: rec("P1", "twice", nil)},
		})
		require.Error(t, err)
		assert.True(t, appErrors.IsValidation(err))

		_, err = s.Get(ctx, "P1", "twice")
		assert.True(t, appErrors.IsNotFound(err), "neither put applied")

		err = s.Batch(ctx, "P1", []store.Op{
			{Type: store.OpDelete, Row: "existing"},
			{Type: store.OpDelete, Row: "existing"},
		})
		require.Error(t, err)
		assert.True(t, appErrors.IsValidation(err))

		_, err = s.Get(ctx, "P1", "existing")
		assert.NoError(t, err, "record survives the rejected batch")
	})

	t.Run("mixed puts and deletes apply together", func(t *testing.T) {
		err := s.Batch(ctx, "P1", []store.Op{
			{Type: store.OpDelete, Row: "existing"},
			{Type: store.OpPut, Record: rec("P1", "fresh", map[string]any{"x": 1})},
		})
		require.NoError(t, err)

		_, err = s.Get(ctx, "P1", "existing")
		assert.True(t, appErrors.IsNotFound(err))
		got, err := s.Get(ctx, "P1", "fresh")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Int("x"))
	})
}

func TestListAndScan(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, rec("REVIEW_c1", fmt.Sprintf("r%d", i), map[string]any{"i": i}))
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, rec("REVIEW_c2", "other", nil))
	require.NoError(t, err)
	_, err = s.Create(ctx, rec("USER", "u1", nil))
	require.NoError(t, err)

	t.Run("list walks one partition in row order", func(t *testing.T) {
		it := s.List(ctx, "REVIEW_c1")
		defer it.Close()
		var rows []string
		for it.Next() {
			rows = append(rows, it.Record().Key.Row)
		}
		require.NoError(t, it.Err())
		assert.Equal(t, []string{"r0", "r1", "r2"}, rows)
	})

	t.Run("scan matches partition prefix", func(t *testing.T) {
		it := s.Scan(ctx, "REVIEW_")
		defer it.Close()
		count := 0
		for it.Next() {
			count++
		}
		require.NoError(t, it.Err())
		assert.Equal(t, 4, count)
	})

	t.Run("closed iterator stops yielding", func(t *testing.T) {
		it := s.List(ctx, "REVIEW_c1")
		require.True(t, it.Next())
		require.NoError(t, it.Close())
		assert.False(t, it.Next())
	})
}

func TestPage(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, row := range []string{"a", "b", "c", "d", "e"} {
		_, err := s.Create(ctx, rec("P1", row, nil))
		require.NoError(t, err)
	}

	page1, next, err := s.Page(ctx, "P1", 2, nil)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "a", page1[0].Key.Row)
	require.NotNil(t, next)
	assert.Equal(t, "b", next.Row)

	page2, next, err := s.Page(ctx, "P1", 2, next)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "c", page2[0].Key.Row)
	require.NotNil(t, next)

	page3, next, err := s.Page(ctx, "P1", 2, next)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "e", page3[0].Key.Row)
	assert.Nil(t, next, "final page carries no continuation")

	empty, next, err := s.Page(ctx, "P1", 2, &store.Key{Partition: "P1", Row: "e"})
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Nil(t, next)
}

func TestFailNextInjection(t *testing.T) {
	ctx := context.Background()
	s := New()

	injected := appErrors.NewInternal("store offline", nil)
	s.FailNext("Get", injected)

	_, err := s.Get(ctx, "P1", "a")
	require.Error(t, err)
	assert.Equal(t, appErrors.KindInternal, appErrors.KindOf(err))

	// Injection is one-shot.
	_, err = s.Get(ctx, "P1", "a")
	assert.True(t, appErrors.IsNotFound(err))
}
