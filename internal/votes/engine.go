// Package votes implements the vote toggle state machine and counter
// aggregation over a per-target vote partition. One row per voting user,
// keyed by the voter's id, is what bounds each user to a single standing
// vote; everything else is compare-and-swap plus a fresh recount.
package votes

import (
	"context"
	"time"

	"coursehub-backend/internal/domain"
	"coursehub-backend/internal/keymap"
	"coursehub-backend/internal/observability"
	"coursehub-backend/internal/store"
	appErrors "coursehub-backend/pkg/errors"

	"go.uber.org/zap"
)

// Action is the reported outcome of one toggle.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionRemoved Action = "removed"
)

// Result describes the outcome of processing one vote request.
type Result struct {
	Action       Action
	PreviousVote *domain.VoteType
	CurrentVote  *domain.VoteType
	Upvotes      int
	Downvotes    int
}

// Engine runs the toggle state machine. It holds no per-request state;
// correctness under concurrent voters relies entirely on the store's
// per-record compare-and-swap, not on any in-process lock.
type Engine struct {
	store   store.Store
	retry   *store.RetryPolicy
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewEngine creates a vote engine with the given retry policy.
func NewEngine(s store.Store, retry *store.RetryPolicy, logger *zap.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{store: s, retry: retry, logger: logger, metrics: metrics}
}

// Process resolves one vote request against the current row state:
//
//	NoVote  + X         -> X-voted  (created)
//	X-voted + X (same)  -> NoVote   (removed)
//	X-voted + Y (other) -> Y-voted  (updated)
//
// Version races re-read the row and retry within the driver's bound, so a
// concurrent toggle on the same row is never lost, only reordered. Counters
// are recomputed by a fresh partition scan afterwards rather than
// incremented, so partially-failed earlier writes cannot compound drift.
func (e *Engine) Process(ctx context.Context, userID string, target domain.TargetType, targetID string, requested domain.VoteType) (*Result, error) {
	partition := keymap.VotePartition(target, targetID)
	var result Result
	attempts := 0

	err := store.RetryCAS(ctx, e.retry.Load(), func(ctx context.Context) error {
		attempts++
		rec, err := e.store.Get(ctx, partition, userID)
		if err != nil && !appErrors.IsNotFound(err) {
			return err
		}

		if err != nil { // no standing vote
			now := time.Now().UTC()
			vote := domain.Vote{
				TargetType: target,
				TargetID:   targetID,
				UserID:     userID,
				VoteType:   requested,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if _, err := e.store.Create(ctx, keymap.VoteRecord(vote)); err != nil {
				if appErrors.IsAlreadyExists(err) {
					// A concurrent request created the row between our read
					// and write; re-reading resolves the new state.
					return appErrors.NewConflict("vote row created concurrently")
				}
				return err
			}
			current := requested
			result = Result{Action: ActionCreated, CurrentVote: &current}
			return nil
		}

		existing := keymap.VoteFromRecord(rec)
		previous := existing.VoteType

		if existing.VoteType == requested {
			if err := e.store.Delete(ctx, partition, userID); err != nil {
				if appErrors.IsNotFound(err) {
					return appErrors.NewConflict("vote row removed concurrently")
				}
				return err
			}
			result = Result{Action: ActionRemoved, PreviousVote: &previous}
			return nil
		}

		existing.VoteType = requested
		existing.UpdatedAt = time.Now().UTC()
		if _, err := e.store.Update(ctx, keymap.VoteRecord(existing), rec.Version, store.Replace); err != nil {
			if appErrors.IsConflict(err) {
				e.metrics.CASConflicts.Inc()
			}
			if appErrors.IsNotFound(err) {
				// A concurrent removal deleted the row after our read; the
				// next attempt sees no standing vote and creates.
				return appErrors.NewConflict("vote row removed concurrently")
			}
			return err
		}
		current := requested
		result = Result{Action: ActionUpdated, PreviousVote: &previous, CurrentVote: &current}
		return nil
	})
	if attempts > 1 {
		e.metrics.CASRetries.Add(float64(attempts - 1))
	}
	if err != nil {
		return nil, err
	}

	up, down, err := e.Recount(ctx, target, targetID)
	if err != nil {
		return nil, appErrors.Wrap(err, "vote applied but recount failed")
	}
	result.Upvotes = up
	result.Downvotes = down

	e.metrics.VoteActions.WithLabelValues(string(result.Action)).Inc()
	e.logger.Debug("vote processed",
		zap.String("target", string(target)),
		zap.String("targetId", targetID),
		zap.String("userId", userID),
		zap.String("action", string(result.Action)),
		zap.Int("upvotes", up),
		zap.Int("downvotes", down),
	)
	return &result, nil
}

// Recount scans the target's vote partition and tallies rows by vote type.
// Always a full fresh scan; partitions hold tens of votes, so the read cost
// buys drift-free counters.
func (e *Engine) Recount(ctx context.Context, target domain.TargetType, targetID string) (upvotes, downvotes int, err error) {
	it := e.store.List(ctx, keymap.VotePartition(target, targetID))
	defer it.Close()
	for it.Next() {
		switch domain.VoteType(it.Record().String("VoteType")) {
		case domain.Upvote:
			upvotes++
		case domain.Downvote:
			downvotes++
		}
	}
	if err := it.Err(); err != nil {
		return 0, 0, appErrors.Wrap(err, "failed to scan vote partition")
	}
	return upvotes, downvotes, nil
}
