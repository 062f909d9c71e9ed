package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"coursehub-backend/internal/domain"
	appErrors "coursehub-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type createCommentRequest struct {
	ReviewID string `json:"reviewId" validate:"required"`
	Text     string `json:"text" validate:"required,max=4000"`
}

type commentResponse struct {
	CommentID string `json:"commentId"`
	ReviewID  string `json:"reviewId"`
	UserID    string `json:"userId"`
	Text      string `json:"text"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
}

func toCommentResponse(c *domain.Comment) commentResponse {
	return commentResponse{
		CommentID: c.CommentID,
		ReviewID:  c.ReviewID,
		UserID:    c.UserID,
		Text:      c.Text,
		Upvotes:   c.Upvotes,
		Downvotes: c.Downvotes,
	}
}

func (h *handlers) createComment(w http.ResponseWriter, r *http.Request) {
	var req createCommentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, appErrors.NewValidation(err.Error()))
		return
	}
	if _, err := h.Reviews.GetByID(r.Context(), req.ReviewID); err != nil {
		writeError(w, err)
		return
	}
	now := time.Now().UTC()
	comment := domain.Comment{
		CommentID: uuid.New().String(),
		ReviewID:  req.ReviewID,
		UserID:    callerID(r),
		Text:      req.Text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Comments.Create(r.Context(), comment); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentResponse(&comment))
}

func (h *handlers) listReviewComments(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	comments, next, err := h.Comments.ListByReview(r.Context(), chi.URLParam(r, "reviewId"), limit, r.URL.Query().Get("nextToken"))
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]commentResponse, 0, len(comments))
	for i := range comments {
		items = append(items, toCommentResponse(&comments[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":     items,
		"nextToken": next,
	})
}

func (h *handlers) deleteComment(w http.ResponseWriter, r *http.Request) {
	comment, err := h.Comments.GetByID(r.Context(), chi.URLParam(r, "commentId"))
	if err != nil {
		writeError(w, err)
		return
	}
	if comment.UserID != callerID(r) {
		user, err := h.Users.GetByID(r.Context(), callerID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		if !user.IsAdmin() {
			writeError(w, appErrors.NewInvalidTransition("only the owner or an admin may delete a comment"))
			return
		}
	}
	if err := h.Comments.Delete(r.Context(), comment.CommentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
