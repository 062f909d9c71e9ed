package repository

import (
	"context"

	"coursehub-backend/internal/domain"
	appErrors "coursehub-backend/pkg/errors"
)

// Targets adapts the review and comment repositories to the vote service's
// TargetStore: one place that dispatches on target type.
type Targets struct {
	reviews  *ReviewRepository
	comments *CommentRepository
}

// NewTargets creates the vote-target adapter.
func NewTargets(reviews *ReviewRepository, comments *CommentRepository) *Targets {
	return &Targets{reviews: reviews, comments: comments}
}

// Owner returns the userId owning the target, or NotFound.
func (t *Targets) Owner(ctx context.Context, target domain.TargetType, targetID string) (string, error) {
	switch target {
	case domain.TargetReview:
		review, err := t.reviews.GetByID(ctx, targetID)
		if err != nil {
			return "", err
		}
		return review.UserID, nil
	case domain.TargetComment:
		comment, err := t.comments.GetByID(ctx, targetID)
		if err != nil {
			return "", err
		}
		return comment.UserID, nil
	}
	return "", appErrors.NewValidation("unknown target type")
}

// SetVoteCounts writes the recomputed counters onto the target row.
func (t *Targets) SetVoteCounts(ctx context.Context, target domain.TargetType, targetID string, upvotes, downvotes int) error {
	switch target {
	case domain.TargetReview:
		return t.reviews.setVoteCounts(ctx, targetID, upvotes, downvotes)
	case domain.TargetComment:
		return t.comments.setVoteCounts(ctx, targetID, upvotes, downvotes)
	}
	return appErrors.NewValidation("unknown target type")
}
