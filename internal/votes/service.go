package votes

import (
	"context"

	"coursehub-backend/internal/domain"
	appErrors "coursehub-backend/pkg/errors"

	"go.uber.org/zap"
)

// TargetStore resolves vote targets and receives their recomputed counters.
// The review and comment repositories implement it.
type TargetStore interface {
	// Owner returns the userId owning the target, or NotFound when the
	// target does not exist.
	Owner(ctx context.Context, target domain.TargetType, targetID string) (string, error)

	// SetVoteCounts writes the recomputed cached counters onto the target.
	SetVoteCounts(ctx context.Context, target domain.TargetType, targetID string, upvotes, downvotes int) error
}

// Service fronts the engine with the business-rule guards that are not
// structural properties of the store: target existence and the self-vote
// ban.
type Service struct {
	engine  *Engine
	targets TargetStore
	logger  *zap.Logger
}

// NewService creates the vote service.
func NewService(engine *Engine, targets TargetStore, logger *zap.Logger) *Service {
	return &Service{engine: engine, targets: targets, logger: logger}
}

// Cast validates and processes one vote request. Voting on a missing target
// fails with NotFound before any vote row is touched; voting on one's own
// review or comment is rejected with InvalidTransition, not a state
// transition. The cached counters on the target are refreshed after the
// toggle settles.
func (s *Service) Cast(ctx context.Context, voterID string, target domain.TargetType, targetID string, requested domain.VoteType) (*Result, error) {
	if !target.IsValid() {
		return nil, appErrors.NewValidation("unknown target type")
	}
	if !requested.IsValid() {
		return nil, appErrors.NewValidation("unknown vote type")
	}

	ownerID, err := s.targets.Owner(ctx, target, targetID)
	if err != nil {
		return nil, err
	}
	if ownerID == voterID {
		return nil, appErrors.NewInvalidTransition("cannot vote on own target")
	}

	result, err := s.engine.Process(ctx, voterID, target, targetID, requested)
	if err != nil {
		return nil, err
	}

	// Counter write-back is a cached projection, not the source of truth; a
	// failure here leaves the counters one recount behind and the next vote
	// repairs them.
	if err := s.targets.SetVoteCounts(ctx, target, targetID, result.Upvotes, result.Downvotes); err != nil {
		s.logger.Warn("failed to write back vote counters",
			zap.String("target", string(target)),
			zap.String("targetId", targetID),
			zap.Error(err),
		)
	}
	return result, nil
}
