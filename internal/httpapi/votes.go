package httpapi

import (
	"net/http"

	"coursehub-backend/internal/domain"
	"coursehub-backend/internal/votes"
	appErrors "coursehub-backend/pkg/errors"
)

type castVoteRequest struct {
	TargetType string `json:"targetType" validate:"required,oneof=review comment"`
	TargetID   string `json:"targetId" validate:"required"`
	VoteType   string `json:"voteType" validate:"required,oneof=upvote downvote"`
}

type castVoteResponse struct {
	Success      bool    `json:"success"`
	Action       string  `json:"action"`
	PreviousVote *string `json:"previousVote"`
	CurrentVote  *string `json:"currentVote"`
	Upvotes      int     `json:"upvotes"`
	Downvotes    int     `json:"downvotes"`
}

func toVoteResponse(res *votes.Result) castVoteResponse {
	out := castVoteResponse{
		Success:   true,
		Action:    string(res.Action),
		Upvotes:   res.Upvotes,
		Downvotes: res.Downvotes,
	}
	if res.PreviousVote != nil {
		s := string(*res.PreviousVote)
		out.PreviousVote = &s
	}
	if res.CurrentVote != nil {
		s := string(*res.CurrentVote)
		out.CurrentVote = &s
	}
	return out
}

func (h *handlers) castVote(w http.ResponseWriter, r *http.Request) {
	var req castVoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, appErrors.NewValidation(err.Error()))
		return
	}
	result, err := h.Votes.Cast(r.Context(), callerID(r),
		domain.TargetType(req.TargetType), req.TargetID, domain.VoteType(req.VoteType))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVoteResponse(result))
}
