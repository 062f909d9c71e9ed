// Package httpapi is the thin HTTP boundary over the repositories and the
// vote service. Authentication happens upstream; the caller identity arrives
// as the X-User-ID header. Handlers validate, dispatch, and map error kinds
// to status codes, nothing more.
package httpapi

import (
	"net/http"

	"coursehub-backend/internal/repository"
	"coursehub-backend/internal/votes"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the wired collaborators the router exposes.
type Deps struct {
	Users    *repository.UserRepository
	Courses  *repository.CourseRepository
	Reviews  *repository.ReviewRepository
	Comments *repository.CommentRepository
	Votes    *votes.Service
	Logger   *zap.Logger
}

type handlers struct {
	Deps
	validate *validator.Validate
}

// NewRouter builds the chi router with the standard middleware stack.
func NewRouter(deps Deps) http.Handler {
	h := &handlers{Deps: deps, validate: validator.New()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(identity)

		r.Route("/courses", func(r chi.Router) {
			r.Post("/", h.createCourse)
			r.Get("/", h.listCourses)
			r.Get("/{courseId}", h.getCourse)
			r.Get("/code/{code}", h.getCourseByCode)
			r.Put("/{courseId}", h.updateCourse)
			r.Delete("/{courseId}", h.deleteCourse)
			r.Get("/{courseId}/reviews", h.listCourseReviews)
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Post("/", h.createReview)
			r.Get("/mine", h.listMyReviews)
			r.Get("/{reviewId}", h.getReview)
			r.Delete("/{reviewId}", h.deleteReview)
			r.Get("/{reviewId}/comments", h.listReviewComments)
		})

		r.Route("/comments", func(r chi.Router) {
			r.Post("/", h.createComment)
			r.Delete("/{commentId}", h.deleteComment)
		})

		r.Post("/votes", h.castVote)
	})

	return r
}
