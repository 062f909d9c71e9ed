package repository

import (
	"context"
	"time"

	"coursehub-backend/internal/domain"
	"coursehub-backend/internal/keymap"
	"coursehub-backend/internal/store"
	appErrors "coursehub-backend/pkg/errors"

	"go.uber.org/zap"
)

// CommentRepository persists comments under their review's partition.
type CommentRepository struct {
	store  store.Store
	retry  *store.RetryPolicy
	logger *zap.Logger
}

// NewCommentRepository creates a comment repository.
func NewCommentRepository(s store.Store, retry *store.RetryPolicy, logger *zap.Logger) *CommentRepository {
	return &CommentRepository{store: s, retry: retry, logger: logger}
}

// Create writes the comment row.
func (r *CommentRepository) Create(ctx context.Context, comment domain.Comment) error {
	if _, err := r.store.Create(ctx, keymap.CommentRecord(comment)); err != nil {
		return appErrors.Wrap(err, "failed to create comment")
	}
	return nil
}

func (r *CommentRepository) getRecordByID(ctx context.Context, commentID string) (*store.Record, error) {
	it := r.store.Scan(ctx, keymap.CommentPartitionPrefix)
	defer it.Close()
	for it.Next() {
		rec := it.Record()
		if rec.Kind == keymap.KindComment && rec.Key.Row == commentID {
			return rec, nil
		}
	}
	if err := it.Err(); err != nil {
		return nil, appErrors.Wrap(err, "failed to scan comments")
	}
	return nil, appErrors.NewNotFoundf("comment %s not found", commentID)
}

// GetByID returns the comment with the given id.
func (r *CommentRepository) GetByID(ctx context.Context, commentID string) (*domain.Comment, error) {
	rec, err := r.getRecordByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	comment := keymap.CommentFromRecord(rec)
	return &comment, nil
}

// ListByReview returns one page of a review's comment partition.
func (r *CommentRepository) ListByReview(ctx context.Context, reviewID string, limit int, token string) ([]domain.Comment, string, error) {
	startAfter, err := DecodeToken(token)
	if err != nil {
		return nil, "", err
	}
	records, next, err := r.store.Page(ctx, keymap.CommentPartition(reviewID), EffectiveLimit(limit), startAfter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, "failed to page comments")
	}
	comments := make([]domain.Comment, 0, len(records))
	for i := range records {
		if records[i].Kind != keymap.KindComment {
			continue
		}
		comments = append(comments, keymap.CommentFromRecord(&records[i]))
	}
	return comments, EncodeToken(next), nil
}

// Delete hard-deletes the comment and clears its vote partition.
func (r *CommentRepository) Delete(ctx context.Context, commentID string) error {
	rec, err := r.getRecordByID(ctx, commentID)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, rec.Key.Partition, rec.Key.Row); err != nil {
		return appErrors.Wrap(err, "failed to delete comment")
	}

	partition := keymap.VotePartition(domain.TargetComment, commentID)
	it := r.store.List(ctx, partition)
	defer it.Close()
	var ops []store.Op
	for it.Next() {
		ops = append(ops, store.Op{Type: store.OpDelete, Row: it.Record().Key.Row})
	}
	if err := it.Err(); err != nil {
		return appErrors.Wrap(err, "failed to list comment votes")
	}
	if len(ops) > 0 {
		if err := r.store.Batch(ctx, partition, ops); err != nil {
			return appErrors.Wrap(err, "failed to delete comment votes")
		}
	}
	return nil
}

// setVoteCounts patches the cached vote counters under compare-and-swap.
func (r *CommentRepository) setVoteCounts(ctx context.Context, commentID string, upvotes, downvotes int) error {
	return store.RetryCAS(ctx, r.retry.Load(), func(ctx context.Context) error {
		rec, err := r.getRecordByID(ctx, commentID)
		if err != nil {
			return err
		}
		patch := store.Record{
			Key:  rec.Key,
			Kind: keymap.KindComment,
			Attrs: map[string]any{
				"Upvotes":   upvotes,
				"Downvotes": downvotes,
				"UpdatedAt": time.Now().UTC().Format(time.RFC3339),
			},
		}
		_, err = r.store.Update(ctx, patch, rec.Version, store.Merge)
		return err
	})
}
