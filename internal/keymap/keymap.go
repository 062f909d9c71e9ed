// Package keymap is the entity mapping and partition scheme: pure functions
// assigning every domain entity a (partition, row) key and converting between
// typed entities and raw store records. No I/O happens here.
//
// Partition grammar:
//
//	USER                          row = userId
//	COURSE_S{semester}            row = courseId
//	REVIEW_{courseId}             row = reviewId
//	COMMENT_{reviewId}            row = commentId
//	VOTE_{TARGETTYPE}_{targetId}  row = voter's userId
//	LOOKUP_EXTERNAL               row = external id
//	LOOKUP_CODE                   row = course code
//	USER_REVIEWS_{userId}         row = reviewId
package keymap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"coursehub-backend/internal/domain"
	"coursehub-backend/internal/store"
	appErrors "coursehub-backend/pkg/errors"
)

// Record kinds. A partition-prefix scan returns lookup rows alongside primary
// rows that share a storage area; the kind tag is what filters them apart.
const (
	KindUser    = "USER"
	KindCourse  = "COURSE"
	KindReview  = "REVIEW"
	KindComment = "COMMENT"
	KindVote    = "VOTE"
	KindLookup  = "LOOKUP"
)

// Fixed partitions.
const (
	UserPartition           = "USER"
	ExternalLookupPartition = "LOOKUP_EXTERNAL"
	CodeLookupPartition     = "LOOKUP_CODE"
)

// Partition prefixes used for cross-partition scans of one entity family.
const (
	CoursePartitionPrefix  = "COURSE_S"
	ReviewPartitionPrefix  = "REVIEW_"
	CommentPartitionPrefix = "COMMENT_"
)

// MaxSerializedList bounds the textual form of a serialized string list.
// Oversized lists are truncated deterministically, never rejected.
const MaxSerializedList = 2048

const (
	listSeparator = '|'
	listEscape    = '\\'
)

// escapeListItem makes an element safe to embed in the joined form by
// prefixing separator and escape bytes with the escape byte.
func escapeListItem(s string) string {
	if !strings.ContainsAny(s, string(listSeparator)+string(listEscape)) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	for i := 0; i < len(s); i++ {
		if s[i] == listSeparator || s[i] == listEscape {
			b.WriteByte(listEscape)
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// CoursePartition returns the partition for a course in the given semester.
// The partition key is derived from the mutable semester attribute; changing
// it relocates the course.
func CoursePartition(semester int) string {
	return CoursePartitionPrefix + strconv.Itoa(semester)
}

// ReviewPartition returns the partition holding a course's reviews.
func ReviewPartition(courseID string) string {
	return ReviewPartitionPrefix + courseID
}

// CommentPartition returns the partition holding a review's comments.
func CommentPartition(reviewID string) string {
	return CommentPartitionPrefix + reviewID
}

// VotePartition returns the partition holding all votes for one target. One
// row per voting user lives inside it.
func VotePartition(target domain.TargetType, targetID string) string {
	return "VOTE_" + strings.ToUpper(string(target)) + "_" + targetID
}

// UserReviewsPartition returns the membership partition answering "reviews by
// this user" without a cross-partition scan.
func UserReviewsPartition(userID string) string {
	return "USER_REVIEWS_" + userID
}

// SemesterFromPartition recovers the semester a course partition addresses.
func SemesterFromPartition(partition string) (int, bool) {
	raw, ok := strings.CutPrefix(partition, CoursePartitionPrefix)
	if !ok {
		return 0, false
	}
	s, err := strconv.Atoi(raw)
	if err != nil || !domain.ValidSemester(s) {
		return 0, false
	}
	return s, true
}

// JoinBounded serializes a string list to its bounded textual form. Elements
// containing the separator are escaped so they round-trip intact. When the
// joined form would exceed limit bytes it is cut at the last whole element
// that fits; the second return reports whether anything was dropped.
func JoinBounded(items []string, limit int) (string, bool) {
	var b strings.Builder
	truncated := false
	for i, item := range items {
		escaped := escapeListItem(item)
		sep := 0
		if i > 0 {
			sep = 1
		}
		if b.Len()+sep+len(escaped) > limit {
			truncated = true
			break
		}
		if i > 0 {
			b.WriteByte(listSeparator)
		}
		b.WriteString(escaped)
	}
	return b.String(), truncated
}

// SplitList parses the bounded textual form back to a list, undoing the
// escaping applied by JoinBounded.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	var items []string
	var b strings.Builder
	escaped := false
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			b.WriteByte(s[i])
			escaped = false
		case s[i] == listEscape:
			escaped = true
		case s[i] == listSeparator:
			items = append(items, b.String())
			b.Reset()
		default:
			b.WriteByte(s[i])
		}
	}
	items = append(items, b.String())
	return items
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// UserKey returns the key of a user record.
func UserKey(userID string) store.Key {
	return store.Key{Partition: UserPartition, Row: userID}
}

// UserRecord converts a user to its stored form.
func UserRecord(u domain.User) store.Record {
	return store.Record{
		Key:  UserKey(u.UserID),
		Kind: KindUser,
		Attrs: map[string]any{
			"UserID":             u.UserID,
			"ExternalID":         u.ExternalID,
			"Name":               u.Name,
			"Email":              u.Email,
			"Role":               string(u.Role),
			"IsActive":           u.IsActive,
			"CreatedAt":          formatTime(u.CreatedAt),
			"UpdatedAt":          formatTime(u.UpdatedAt),
			"RefreshToken":       u.RefreshToken,
			"RefreshTokenExpiry": formatTime(u.RefreshTokenExpiry),
		},
	}
}

// UserFromRecord reconstructs a user, tolerating fields absent from records
// written by older code.
func UserFromRecord(rec *store.Record) domain.User {
	role := domain.Role(rec.String("Role"))
	if !role.IsValid() {
		role = domain.RoleUser
	}
	return domain.User{
		UserID:             rec.String("UserID"),
		ExternalID:         rec.String("ExternalID"),
		Name:               rec.String("Name"),
		Email:              rec.String("Email"),
		Role:               role,
		IsActive:           rec.Bool("IsActive"),
		CreatedAt:          parseTime(rec.String("CreatedAt")),
		UpdatedAt:          parseTime(rec.String("UpdatedAt")),
		RefreshToken:       rec.String("RefreshToken"),
		RefreshTokenExpiry: parseTime(rec.String("RefreshTokenExpiry")),
	}
}

// CourseKey returns the key of a course record.
func CourseKey(semester int, courseID string) store.Key {
	return store.Key{Partition: CoursePartition(semester), Row: courseID}
}

// CourseRecord converts a course to its stored form. When a serialized list
// had to be cut to fit, the record is still usable and a non-fatal Truncated
// error reports the data loss; callers log it and proceed.
func CourseRecord(c domain.Course) (store.Record, error) {
	instructors, truncIns := JoinBounded(c.Instructors, MaxSerializedList)
	tags, truncTags := JoinBounded(c.Tags, MaxSerializedList)
	var truncErr error
	if truncIns || truncTags {
		truncErr = appErrors.NewTruncated(
			fmt.Sprintf("course %s list fields shortened to %d bytes", c.CourseID, MaxSerializedList))
	}
	return store.Record{
		Key:  CourseKey(c.Semester, c.CourseID),
		Kind: KindCourse,
		Attrs: map[string]any{
			"CourseID":      c.CourseID,
			"Code":          c.Code,
			"Name":          c.Name,
			"Description":   c.Description,
			"Semester":      c.Semester,
			"Credits":       c.Credits,
			"Instructors":   instructors,
			"Tags":          tags,
			"AverageRating": c.AverageRating,
			"TotalReviews":  c.TotalReviews,
			"IsActive":      c.IsActive,
			"CreatedAt":     formatTime(c.CreatedAt),
			"UpdatedAt":     formatTime(c.UpdatedAt),
		},
	}, truncErr
}

// CourseFromRecord reconstructs a course. Semester falls back to the value
// embedded in the partition key when the attribute is missing.
func CourseFromRecord(rec *store.Record) domain.Course {
	semester := rec.Int("Semester")
	if semester == 0 {
		if s, ok := SemesterFromPartition(rec.Key.Partition); ok {
			semester = s
		}
	}
	return domain.Course{
		CourseID:      rec.String("CourseID"),
		Code:          rec.String("Code"),
		Name:          rec.String("Name"),
		Description:   rec.String("Description"),
		Semester:      semester,
		Credits:       rec.Int("Credits"),
		Instructors:   SplitList(rec.String("Instructors")),
		Tags:          SplitList(rec.String("Tags")),
		AverageRating: rec.Float("AverageRating"),
		TotalReviews:  rec.Int("TotalReviews"),
		IsActive:      rec.Bool("IsActive"),
		CreatedAt:     parseTime(rec.String("CreatedAt")),
		UpdatedAt:     parseTime(rec.String("UpdatedAt")),
	}
}

// ReviewKey returns the key of a review record.
func ReviewKey(courseID, reviewID string) store.Key {
	return store.Key{Partition: ReviewPartition(courseID), Row: reviewID}
}

// ReviewRecord converts a review to its stored form.
func ReviewRecord(r domain.Review) store.Record {
	return store.Record{
		Key:  ReviewKey(r.CourseID, r.ReviewID),
		Kind: KindReview,
		Attrs: map[string]any{
			"ReviewID":      r.ReviewID,
			"CourseID":      r.CourseID,
			"UserID":        r.UserID,
			"OverallRating": r.OverallRating,
			"Difficulty":    r.Difficulty,
			"Workload":      r.Workload,
			"Text":          r.Text,
			"Upvotes":       r.Upvotes,
			"Downvotes":     r.Downvotes,
			"CreatedAt":     formatTime(r.CreatedAt),
			"UpdatedAt":     formatTime(r.UpdatedAt),
		},
	}
}

// ReviewFromRecord reconstructs a review.
func ReviewFromRecord(rec *store.Record) domain.Review {
	return domain.Review{
		ReviewID:      rec.String("ReviewID"),
		CourseID:      rec.String("CourseID"),
		UserID:        rec.String("UserID"),
		OverallRating: rec.Int("OverallRating"),
		Difficulty:    rec.Int("Difficulty"),
		Workload:      rec.Int("Workload"),
		Text:          rec.String("Text"),
		Upvotes:       rec.Int("Upvotes"),
		Downvotes:     rec.Int("Downvotes"),
		CreatedAt:     parseTime(rec.String("CreatedAt")),
		UpdatedAt:     parseTime(rec.String("UpdatedAt")),
	}
}

// CommentKey returns the key of a comment record.
func CommentKey(reviewID, commentID string) store.Key {
	return store.Key{Partition: CommentPartition(reviewID), Row: commentID}
}

// CommentRecord converts a comment to its stored form.
func CommentRecord(c domain.Comment) store.Record {
	return store.Record{
		Key:  CommentKey(c.ReviewID, c.CommentID),
		Kind: KindComment,
		Attrs: map[string]any{
			"CommentID": c.CommentID,
			"ReviewID":  c.ReviewID,
			"UserID":    c.UserID,
			"Text":      c.Text,
			"Upvotes":   c.Upvotes,
			"Downvotes": c.Downvotes,
			"CreatedAt": formatTime(c.CreatedAt),
			"UpdatedAt": formatTime(c.UpdatedAt),
		},
	}
}

// CommentFromRecord reconstructs a comment.
func CommentFromRecord(rec *store.Record) domain.Comment {
	return domain.Comment{
		CommentID: rec.String("CommentID"),
		ReviewID:  rec.String("ReviewID"),
		UserID:    rec.String("UserID"),
		Text:      rec.String("Text"),
		Upvotes:   rec.Int("Upvotes"),
		Downvotes: rec.Int("Downvotes"),
		CreatedAt: parseTime(rec.String("CreatedAt")),
		UpdatedAt: parseTime(rec.String("UpdatedAt")),
	}
}

// VoteKey returns the key of a vote record: the row key is the voter's id.
func VoteKey(target domain.TargetType, targetID, userID string) store.Key {
	return store.Key{Partition: VotePartition(target, targetID), Row: userID}
}

// VoteRecord converts a vote to its stored form.
func VoteRecord(v domain.Vote) store.Record {
	return store.Record{
		Key:  VoteKey(v.TargetType, v.TargetID, v.UserID),
		Kind: KindVote,
		Attrs: map[string]any{
			"TargetType": string(v.TargetType),
			"TargetID":   v.TargetID,
			"UserID":     v.UserID,
			"VoteType":   string(v.VoteType),
			"CreatedAt":  formatTime(v.CreatedAt),
			"UpdatedAt":  formatTime(v.UpdatedAt),
		},
	}
}

// VoteFromRecord reconstructs a vote.
func VoteFromRecord(rec *store.Record) domain.Vote {
	return domain.Vote{
		TargetType: domain.TargetType(rec.String("TargetType")),
		TargetID:   rec.String("TargetID"),
		UserID:     rec.String("UserID"),
		VoteType:   domain.VoteType(rec.String("VoteType")),
		CreatedAt:  parseTime(rec.String("CreatedAt")),
		UpdatedAt:  parseTime(rec.String("UpdatedAt")),
	}
}
