package domain

import "time"

// Review is one user's rating of a course. Upvotes and Downvotes are cached
// projections of the review's vote partition.
type Review struct {
	ReviewID      string
	CourseID      string
	UserID        string
	OverallRating int
	Difficulty    int
	Workload      int
	Text          string
	Upvotes       int
	Downvotes     int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Comment is a reply on a review.
type Comment struct {
	CommentID string
	ReviewID  string
	UserID    string
	Text      string
	Upvotes   int
	Downvotes int
	CreatedAt time.Time
	UpdatedAt time.Time
}
