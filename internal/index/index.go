// Package index keeps synthetic lookup records consistent with exactly one
// primary entity each. Lookups emulate the unique indexes and reverse
// lookups the keyed store cannot provide natively; their write ordering
// rules (primary first) live here so a future move to a relational store
// can collapse this package into real indexes.
package index

import (
	"context"
	"fmt"

	"coursehub-backend/internal/keymap"
	"coursehub-backend/internal/store"
	appErrors "coursehub-backend/pkg/errors"

	"go.uber.org/zap"
)

// Lookup is a synthetic record resolving a natural or external key to a
// primary entity. Extra carries denormalized attributes the caller needs to
// address the primary's partition (e.g. a course's semester).
type Lookup struct {
	Partition string
	Key       string
	TargetID  string
	Extra     map[string]any
}

// Manager owns all lookup reads and writes.
type Manager struct {
	store  store.Store
	logger *zap.Logger
}

// NewManager creates a lookup manager over the given store.
func NewManager(s store.Store, logger *zap.Logger) *Manager {
	return &Manager{store: s, logger: logger}
}

func (lu Lookup) record() store.Record {
	attrs := map[string]any{"TargetID": lu.TargetID}
	for k, v := range lu.Extra {
		attrs[k] = v
	}
	return store.Record{
		Key:   store.Key{Partition: lu.Partition, Row: lu.Key},
		Kind:  keymap.KindLookup,
		Attrs: attrs,
	}
}

// Upsert writes the lookup. It is idempotent for a lookup already pointing
// at the same target (the denormalized payload is refreshed); a lookup
// pointing elsewhere is a uniqueness violation surfaced as AlreadyExists so
// the caller aborts its primary write instead of overwriting silently.
func (m *Manager) Upsert(ctx context.Context, lu Lookup) error {
	_, err := m.store.Create(ctx, lu.record())
	if err == nil {
		return nil
	}
	if !appErrors.IsAlreadyExists(err) {
		return appErrors.Wrap(err, "failed to create lookup")
	}

	existing, getErr := m.store.Get(ctx, lu.Partition, lu.Key)
	if getErr != nil {
		return appErrors.Wrap(getErr, "failed to read conflicting lookup")
	}
	if existing.String("TargetID") != lu.TargetID {
		return appErrors.NewAlreadyExists(
			fmt.Sprintf("lookup %s/%s already resolves to another entity", lu.Partition, lu.Key))
	}
	if _, err := m.store.Update(ctx, lu.record(), existing.Version, store.Merge); err != nil {
		return appErrors.Wrap(err, "failed to refresh lookup payload")
	}
	return nil
}

// Resolve returns the lookup at (partition, key). Store-level absence is
// reported to the caller as the target not existing, not as a store fault.
func (m *Manager) Resolve(ctx context.Context, partition, key string) (*Lookup, error) {
	rec, err := m.store.Get(ctx, partition, key)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return nil, appErrors.NewNotFoundf("no entity registered under %q", key)
		}
		return nil, appErrors.Wrap(err, "failed to resolve lookup")
	}
	lu := &Lookup{
		Partition: partition,
		Key:       key,
		TargetID:  rec.String("TargetID"),
		Extra:     make(map[string]any),
	}
	for name, value := range rec.Attrs {
		if name != "TargetID" {
			lu.Extra[name] = value
		}
	}
	return lu, nil
}

// Relocate moves a lookup from oldKey to the new lookup's key, delete then
// create. It must run only after the primary entity's own relocation
// succeeded: a failure part-way leaves the lookup stale but resolvable to
// the old location, never dangling.
func (m *Manager) Relocate(ctx context.Context, oldKey string, lu Lookup) error {
	if err := m.store.Delete(ctx, lu.Partition, oldKey); err != nil && !appErrors.IsNotFound(err) {
		return appErrors.Wrap(err, "failed to remove old lookup")
	}
	if err := m.Upsert(ctx, lu); err != nil {
		m.logger.Error("lookup relocation left no entry; reconciliation required",
			zap.String("partition", lu.Partition),
			zap.String("oldKey", oldKey),
			zap.String("newKey", lu.Key),
			zap.Error(err),
		)
		return appErrors.Wrap(err, "failed to create relocated lookup")
	}
	return nil
}

// Delete removes a lookup. Absence is not an error: delete ordering means a
// half-finished earlier teardown may already have removed it.
func (m *Manager) Delete(ctx context.Context, partition, key string) error {
	if err := m.store.Delete(ctx, partition, key); err != nil && !appErrors.IsNotFound(err) {
		return appErrors.Wrap(err, "failed to delete lookup")
	}
	return nil
}
