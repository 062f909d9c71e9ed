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

type createCourseRequest struct {
	Code        string   `json:"code" validate:"required,max=32"`
	Name        string   `json:"name" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=4000"`
	Semester    int      `json:"semester" validate:"required,min=1,max=8"`
	Credits     int      `json:"credits" validate:"min=0,max=30"`
	Instructors []string `json:"instructors" validate:"dive,max=100"`
	Tags        []string `json:"tags" validate:"dive,max=50"`
}

type updateCourseRequest struct {
	Name        *string  `json:"name" validate:"omitempty,max=200"`
	Description *string  `json:"description" validate:"omitempty,max=4000"`
	Semester    *int     `json:"semester" validate:"omitempty,min=1,max=8"`
	Credits     *int     `json:"credits" validate:"omitempty,min=0,max=30"`
	Instructors []string `json:"instructors" validate:"dive,max=100"`
	Tags        []string `json:"tags" validate:"dive,max=50"`
}

type courseResponse struct {
	CourseID      string   `json:"courseId"`
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Semester      int      `json:"semester"`
	Credits       int      `json:"credits"`
	Instructors   []string `json:"instructors,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	AverageRating float64  `json:"averageRating"`
	TotalReviews  int      `json:"totalReviews"`
	IsActive      bool     `json:"isActive"`
}

func toCourseResponse(c *domain.Course) courseResponse {
	return courseResponse{
		CourseID:      c.CourseID,
		Code:          c.Code,
		Name:          c.Name,
		Description:   c.Description,
		Semester:      c.Semester,
		Credits:       c.Credits,
		Instructors:   c.Instructors,
		Tags:          c.Tags,
		AverageRating: c.AverageRating,
		TotalReviews:  c.TotalReviews,
		IsActive:      c.IsActive,
	}
}

// requireAdmin loads the caller and checks the admin role.
func (h *handlers) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	user, err := h.Users.GetByID(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return false
	}
	if !user.IsAdmin() {
		writeError(w, appErrors.NewInvalidTransition("admin role required"))
		return false
	}
	return true
}

func (h *handlers) createCourse(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var req createCourseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, appErrors.NewValidation(err.Error()))
		return
	}
	now := time.Now().UTC()
	course := domain.Course{
		CourseID:    uuid.New().String(),
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Semester:    req.Semester,
		Credits:     req.Credits,
		Instructors: req.Instructors,
		Tags:        req.Tags,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.Courses.Create(r.Context(), course); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCourseResponse(&course))
}

func (h *handlers) getCourse(w http.ResponseWriter, r *http.Request) {
	course, err := h.Courses.GetByID(r.Context(), chi.URLParam(r, "courseId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponse(course))
}

func (h *handlers) getCourseByCode(w http.ResponseWriter, r *http.Request) {
	course, err := h.Courses.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponse(course))
}

func (h *handlers) listCourses(w http.ResponseWriter, r *http.Request) {
	semester, err := strconv.Atoi(r.URL.Query().Get("semester"))
	if err != nil {
		writeError(w, appErrors.NewValidation("semester query parameter is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	courses, next, err := h.Courses.ListBySemester(r.Context(), semester, limit, r.URL.Query().Get("nextToken"))
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]courseResponse, 0, len(courses))
	for i := range courses {
		items = append(items, toCourseResponse(&courses[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":     items,
		"nextToken": next,
	})
}

func (h *handlers) updateCourse(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var req updateCourseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, appErrors.NewValidation(err.Error()))
		return
	}
	courseID := chi.URLParam(r, "courseId")

	// A semester change relocates the course to another partition; do that
	// first, then patch the descriptive fields in place.
	if req.Semester != nil {
		if _, err := h.Courses.ChangeSemester(r.Context(), courseID, callerID(r), *req.Semester); err != nil {
			writeError(w, err)
			return
		}
	}
	course, err := h.Courses.Update(r.Context(), courseID, func(c *domain.Course) {
		if req.Name != nil {
			c.Name = *req.Name
		}
		if req.Description != nil {
			c.Description = *req.Description
		}
		if req.Credits != nil {
			c.Credits = *req.Credits
		}
		if req.Instructors != nil {
			c.Instructors = req.Instructors
		}
		if req.Tags != nil {
			c.Tags = req.Tags
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponse(course))
}

func (h *handlers) deleteCourse(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	if err := h.Courses.SoftDelete(r.Context(), chi.URLParam(r, "courseId")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
