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

// ReviewRepository persists reviews, their per-user membership rows, and the
// cascade over comments and votes on hard delete.
type ReviewRepository struct {
	store  store.Store
	retry  *store.RetryPolicy
	logger *zap.Logger
}

// NewReviewRepository creates a review repository.
func NewReviewRepository(s store.Store, retry *store.RetryPolicy, logger *zap.Logger) *ReviewRepository {
	return &ReviewRepository{store: s, retry: retry, logger: logger}
}

func membershipRecord(rv domain.Review) store.Record {
	return store.Record{
		Key:  store.Key{Partition: keymap.UserReviewsPartition(rv.UserID), Row: rv.ReviewID},
		Kind: keymap.KindLookup,
		Attrs: map[string]any{
			"ReviewID": rv.ReviewID,
			"CourseID": rv.CourseID,
		},
	}
}

// Create writes the review row and then its membership row under the owning
// user. The two live in different partitions, so this is a sequence, not a
// transaction: a failure after the first write leaves a review missing from
// "reviews by user" until the next write repairs it.
func (r *ReviewRepository) Create(ctx context.Context, review domain.Review) error {
	if _, err := r.store.Create(ctx, keymap.ReviewRecord(review)); err != nil {
		return appErrors.Wrap(err, "failed to create review")
	}
	if _, err := r.store.Create(ctx, membershipRecord(review)); err != nil {
		r.logger.Error("review missing its membership row; reconciliation required",
			zap.String("reviewId", review.ReviewID),
			zap.String("userId", review.UserID),
			zap.Error(err),
		)
		return appErrors.Wrap(err, "failed to create review membership")
	}
	return nil
}

// getRecordByID locates a review without knowing its course: a prefix scan
// over review partitions filtered client-side by row key.
func (r *ReviewRepository) getRecordByID(ctx context.Context, reviewID string) (*store.Record, error) {
	it := r.store.Scan(ctx, keymap.ReviewPartitionPrefix)
	defer it.Close()
	for it.Next() {
		rec := it.Record()
		if rec.Kind == keymap.KindReview && rec.Key.Row == reviewID {
			return rec, nil
		}
	}
	if err := it.Err(); err != nil {
		return nil, appErrors.Wrap(err, "failed to scan reviews")
	}
	return nil, appErrors.NewNotFoundf("review %s not found", reviewID)
}

// GetByID returns the review with the given id.
func (r *ReviewRepository) GetByID(ctx context.Context, reviewID string) (*domain.Review, error) {
	rec, err := r.getRecordByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	review := keymap.ReviewFromRecord(rec)
	return &review, nil
}

// ListByCourse returns one page of a course's review partition.
func (r *ReviewRepository) ListByCourse(ctx context.Context, courseID string, limit int, token string) ([]domain.Review, string, error) {
	startAfter, err := DecodeToken(token)
	if err != nil {
		return nil, "", err
	}
	records, next, err := r.store.Page(ctx, keymap.ReviewPartition(courseID), EffectiveLimit(limit), startAfter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, "failed to page reviews")
	}
	reviews := make([]domain.Review, 0, len(records))
	for i := range records {
		if records[i].Kind != keymap.KindReview {
			continue
		}
		reviews = append(reviews, keymap.ReviewFromRecord(&records[i]))
	}
	return reviews, EncodeToken(next), nil
}

// ListByUser answers "reviews by this user" from the membership partition,
// then point-reads each review through the course id the membership row
// denormalizes. Memberships whose review vanished mid-delete are skipped.
func (r *ReviewRepository) ListByUser(ctx context.Context, userID string) ([]domain.Review, error) {
	it := r.store.List(ctx, keymap.UserReviewsPartition(userID))
	defer it.Close()
	var reviews []domain.Review
	for it.Next() {
		m := it.Record()
		rec, err := r.store.Get(ctx, keymap.ReviewPartition(m.String("CourseID")), m.String("ReviewID"))
		if err != nil {
			if appErrors.IsNotFound(err) {
				r.logger.Warn("membership row points at missing review",
					zap.String("userId", userID),
					zap.String("reviewId", m.String("ReviewID")),
				)
				continue
			}
			return nil, err
		}
		reviews = append(reviews, keymap.ReviewFromRecord(rec))
	}
	if err := it.Err(); err != nil {
		return nil, appErrors.Wrap(err, "failed to list review memberships")
	}
	return reviews, nil
}

// clearPartition batch-deletes every row of one partition. Within a single
// partition the batch is all-or-nothing.
func (r *ReviewRepository) clearPartition(ctx context.Context, partition string) error {
	it := r.store.List(ctx, partition)
	defer it.Close()
	var ops []store.Op
	for it.Next() {
		ops = append(ops, store.Op{Type: store.OpDelete, Row: it.Record().Key.Row})
	}
	if err := it.Err(); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	return r.store.Batch(ctx, partition, ops)
}

// Delete hard-deletes a review and cascades over its dependents. The review
// row goes first so the target disappears immediately; its votes, comments,
// comment votes, and membership row follow as per-partition batches.
// Stragglers from a failure mid-cascade are orphans with no reachable
// parent and are cleaned by the sweep.
func (r *ReviewRepository) Delete(ctx context.Context, reviewID string) error {
	rec, err := r.getRecordByID(ctx, reviewID)
	if err != nil {
		return err
	}
	review := keymap.ReviewFromRecord(rec)

	if err := r.store.Delete(ctx, rec.Key.Partition, rec.Key.Row); err != nil {
		return appErrors.Wrap(err, "failed to delete review")
	}
	if err := r.clearPartition(ctx, keymap.VotePartition(domain.TargetReview, reviewID)); err != nil {
		return appErrors.Wrap(err, "failed to delete review votes")
	}

	// Comments carry their own vote partitions; collect ids before clearing.
	it := r.store.List(ctx, keymap.CommentPartition(reviewID))
	var commentIDs []string
	for it.Next() {
		commentIDs = append(commentIDs, it.Record().Key.Row)
	}
	scanErr := it.Err()
	it.Close()
	if scanErr != nil {
		return appErrors.Wrap(scanErr, "failed to list review comments")
	}
	for _, commentID := range commentIDs {
		if err := r.clearPartition(ctx, keymap.VotePartition(domain.TargetComment, commentID)); err != nil {
			return appErrors.Wrap(err, "failed to delete comment votes")
		}
	}
	if err := r.clearPartition(ctx, keymap.CommentPartition(reviewID)); err != nil {
		return appErrors.Wrap(err, "failed to delete review comments")
	}

	membership := keymap.UserReviewsPartition(review.UserID)
	if err := r.store.Delete(ctx, membership, reviewID); err != nil && !appErrors.IsNotFound(err) {
		return appErrors.Wrap(err, "failed to delete review membership")
	}
	return nil
}

// CourseStats recomputes the cached rating projection for a course by a
// fresh scan of its review partition.
func (r *ReviewRepository) CourseStats(ctx context.Context, courseID string) (average float64, total int, err error) {
	it := r.store.List(ctx, keymap.ReviewPartition(courseID))
	defer it.Close()
	sum := 0
	for it.Next() {
		rec := it.Record()
		if rec.Kind != keymap.KindReview {
			continue
		}
		sum += rec.Int("OverallRating")
		total++
	}
	if err := it.Err(); err != nil {
		return 0, 0, appErrors.Wrap(err, "failed to scan reviews for stats")
	}
	if total > 0 {
		average = float64(sum) / float64(total)
	}
	return average, total, nil
}

// setVoteCounts patches the cached vote counters under compare-and-swap.
func (r *ReviewRepository) setVoteCounts(ctx context.Context, reviewID string, upvotes, downvotes int) error {
	return store.RetryCAS(ctx, r.retry.Load(), func(ctx context.Context) error {
		rec, err := r.getRecordByID(ctx, reviewID)
		if err != nil {
			return err
		}
		patch := store.Record{
			Key:  rec.Key,
			Kind: keymap.KindReview,
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
