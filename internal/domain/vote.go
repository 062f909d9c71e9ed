package domain

import "time"

// TargetType names what a vote is attached to.
type TargetType string

const (
	TargetReview  TargetType = "review"
	TargetComment TargetType = "comment"
)

// IsValid reports whether the target type is known.
func (t TargetType) IsValid() bool {
	return t == TargetReview || t == TargetComment
}

// VoteType is the direction of a vote.
type VoteType string

const (
	Upvote   VoteType = "upvote"
	Downvote VoteType = "downvote"
)

// IsValid reports whether the vote type is known.
func (v VoteType) IsValid() bool {
	return v == Upvote || v == Downvote
}

// Vote is one user's standing vote on one target. Its row key is the voter's
// id, which is what structurally enforces at most one vote per user per
// target.
type Vote struct {
	TargetType TargetType
	TargetID   string
	UserID     string
	VoteType   VoteType
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
