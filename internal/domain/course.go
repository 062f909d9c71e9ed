package domain

import "time"

// MinSemester and MaxSemester bound the semester attribute a course's
// partition key is derived from.
const (
	MinSemester = 1
	MaxSemester = 8
)

// Course is a reviewable course. Code is human-readable and globally unique;
// AverageRating and TotalReviews are cached projections recomputed from the
// course's reviews, never a source of truth.
type Course struct {
	CourseID      string
	Code          string
	Name          string
	Description   string
	Semester      int
	Credits       int
	Instructors   []string
	Tags          []string
	AverageRating float64
	TotalReviews  int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ValidSemester reports whether s addresses a real course partition.
func ValidSemester(s int) bool {
	return s >= MinSemester && s <= MaxSemester
}
