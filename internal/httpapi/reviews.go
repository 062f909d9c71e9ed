package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"coursehub-backend/internal/domain"
	appErrors "coursehub-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type createReviewRequest struct {
	CourseID      string `json:"courseId" validate:"required"`
	OverallRating int    `json:"overallRating" validate:"required,min=1,max=5"`
	Difficulty    int    `json:"difficulty" validate:"min=0,max=5"`
	Workload      int    `json:"workload" validate:"min=0,max=5"`
	Text          string `json:"text" validate:"max=8000"`
}

type reviewResponse struct {
	ReviewID      string `json:"reviewId"`
	CourseID      string `json:"courseId"`
	UserID        string `json:"userId"`
	OverallRating int    `json:"overallRating"`
	Difficulty    int    `json:"difficulty,omitempty"`
	Workload      int    `json:"workload,omitempty"`
	Text          string `json:"text,omitempty"`
	Upvotes       int    `json:"upvotes"`
	Downvotes     int    `json:"downvotes"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

func toReviewResponse(rv *domain.Review) reviewResponse {
	createdAt := ""
	if !rv.CreatedAt.IsZero() {
		createdAt = rv.CreatedAt.Format(time.RFC3339)
	}
	return reviewResponse{
		ReviewID:      rv.ReviewID,
		CourseID:      rv.CourseID,
		UserID:        rv.UserID,
		OverallRating: rv.OverallRating,
		Difficulty:    rv.Difficulty,
		Workload:      rv.Workload,
		Text:          rv.Text,
		Upvotes:       rv.Upvotes,
		Downvotes:     rv.Downvotes,
		CreatedAt:     createdAt,
	}
}

// refreshCourseStats recomputes and writes back a course's cached rating
// projection. Failures only delay the projection; the next review repairs
// it.
func (h *handlers) refreshCourseStats(r *http.Request, courseID string) {
	average, total, err := h.Reviews.CourseStats(r.Context(), courseID)
	if err == nil {
		err = h.Courses.SetRatingStats(r.Context(), courseID, average, total)
	}
	if err != nil {
		h.Logger.Warn("failed to refresh course rating stats",
			zap.String("courseId", courseID),
			zap.Error(err),
		)
	}
}

func (h *handlers) createReview(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, appErrors.NewValidation(err.Error()))
		return
	}
	course, err := h.Courses.GetByID(r.Context(), req.CourseID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !course.IsActive {
		writeError(w, appErrors.NewInvalidTransition("course is not accepting reviews"))
		return
	}
	now := time.Now().UTC()
	review := domain.Review{
		ReviewID:      uuid.New().String(),
		CourseID:      req.CourseID,
		UserID:        callerID(r),
		OverallRating: req.OverallRating,
		Difficulty:    req.Difficulty,
		Workload:      req.Workload,
		Text:          req.Text,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := h.Reviews.Create(r.Context(), review); err != nil {
		writeError(w, err)
		return
	}
	h.refreshCourseStats(r, req.CourseID)
	writeJSON(w, http.StatusCreated, toReviewResponse(&review))
}

func (h *handlers) getReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.Reviews.GetByID(r.Context(), chi.URLParam(r, "reviewId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewResponse(review))
}

func (h *handlers) listCourseReviews(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	reviews, next, err := h.Reviews.ListByCourse(r.Context(), chi.URLParam(r, "courseId"), limit, r.URL.Query().Get("nextToken"))
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]reviewResponse, 0, len(reviews))
	for i := range reviews {
		items = append(items, toReviewResponse(&reviews[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":     items,
		"nextToken": next,
	})
}

func (h *handlers) listMyReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.Reviews.ListByUser(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]reviewResponse, 0, len(reviews))
	for i := range reviews {
		items = append(items, toReviewResponse(&reviews[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *handlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.Reviews.GetByID(r.Context(), chi.URLParam(r, "reviewId"))
	if err != nil {
		writeError(w, err)
		return
	}
	if review.UserID != callerID(r) {
		user, err := h.Users.GetByID(r.Context(), callerID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		if !user.IsAdmin() {
			writeError(w, appErrors.NewInvalidTransition("only the owner or an admin may delete a review"))
			return
		}
	}
	if err := h.Reviews.Delete(r.Context(), review.ReviewID); err != nil {
		writeError(w, err)
		return
	}
	h.refreshCourseStats(r, review.CourseID)
	writeJSON(w, http.StatusNoContent, nil)
}
