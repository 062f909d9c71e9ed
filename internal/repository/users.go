// Package repository composes the keyed store, the key mapping, and the
// lookup manager into per-entity persistence. Write ordering across
// partitions follows one rule everywhere: primary first, lookups second, so
// a failure window leaves an unindexed primary (repairable by the
// reconciliation sweep) rather than an index entry pointing at nothing.
package repository

import (
	"context"
	"time"

	"coursehub-backend/internal/domain"
	"coursehub-backend/internal/index"
	"coursehub-backend/internal/keymap"
	"coursehub-backend/internal/store"
	appErrors "coursehub-backend/pkg/errors"

	"go.uber.org/zap"
)

// UserRepository persists users and their external-id lookup.
type UserRepository struct {
	store   store.Store
	lookups *index.Manager
	retry   *store.RetryPolicy
	logger  *zap.Logger
}

// NewUserRepository creates a user repository.
func NewUserRepository(s store.Store, lookups *index.Manager, retry *store.RetryPolicy, logger *zap.Logger) *UserRepository {
	return &UserRepository{store: s, lookups: lookups, retry: retry, logger: logger}
}

// Create writes the user and registers its external-id lookup. On a lookup
// uniqueness violation the primary is rolled back best-effort and
// AlreadyExists is surfaced.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	if _, err := r.store.Create(ctx, keymap.UserRecord(user)); err != nil {
		return appErrors.Wrap(err, "failed to create user")
	}
	err := r.lookups.Upsert(ctx, index.Lookup{
		Partition: keymap.ExternalLookupPartition,
		Key:       user.ExternalID,
		TargetID:  user.UserID,
	})
	if err != nil {
		key := keymap.UserKey(user.UserID)
		if delErr := r.store.Delete(ctx, key.Partition, key.Row); delErr != nil {
			r.logger.Error("orphaned user after lookup failure; reconciliation required",
				zap.String("userId", user.UserID),
				zap.NamedError("lookupErr", err),
				zap.NamedError("rollbackErr", delErr),
			)
		}
		return appErrors.Wrap(err, "failed to register external id")
	}
	return nil
}

// GetByID returns the user with the given id.
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	key := keymap.UserKey(userID)
	rec, err := r.store.Get(ctx, key.Partition, key.Row)
	if err != nil {
		return nil, err
	}
	user := keymap.UserFromRecord(rec)
	return &user, nil
}

// GetByExternalID resolves an external account id to its user.
func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	lu, err := r.lookups.Resolve(ctx, keymap.ExternalLookupPartition, externalID)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, lu.TargetID)
}

// Update applies fn to the current user state under compare-and-swap,
// retrying version conflicts within the driver's bound.
func (r *UserRepository) Update(ctx context.Context, userID string, fn func(*domain.User)) (*domain.User, error) {
	var updated domain.User
	key := keymap.UserKey(userID)
	err := store.RetryCAS(ctx, r.retry.Load(), func(ctx context.Context) error {
		rec, err := r.store.Get(ctx, key.Partition, key.Row)
		if err != nil {
			return err
		}
		user := keymap.UserFromRecord(rec)
		fn(&user)
		user.UserID = userID
		user.UpdatedAt = time.Now().UTC()
		if _, err := r.store.Update(ctx, keymap.UserRecord(user), rec.Version, store.Replace); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Deactivate soft-deletes the user. The external-id lookup stays in place
// so the account resolves (inactive) rather than vanishing.
func (r *UserRepository) Deactivate(ctx context.Context, userID string) error {
	_, err := r.Update(ctx, userID, func(u *domain.User) {
		u.IsActive = false
	})
	return err
}

// SetRefreshCredential stores the refresh token and its expiry. Token
// issuance happens elsewhere.
func (r *UserRepository) SetRefreshCredential(ctx context.Context, userID, token string, expiry time.Time) error {
	_, err := r.Update(ctx, userID, func(u *domain.User) {
		u.RefreshToken = token
		u.RefreshTokenExpiry = expiry
	})
	return err
}
