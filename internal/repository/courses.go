package repository

import (
	"context"
	"time"

	"coursehub-backend/internal/domain"
	"coursehub-backend/internal/index"
	"coursehub-backend/internal/keymap"
	"coursehub-backend/internal/store"
	appErrors "coursehub-backend/pkg/errors"

	"go.uber.org/zap"
)

// CourseRepository persists courses. A course's partition is derived from
// its semester, so a semester change is a relocation: create at the new
// partition, delete at the old, then refresh the code lookup's denormalized
// semester.
type CourseRepository struct {
	store   store.Store
	lookups *index.Manager
	retry   *store.RetryPolicy
	logger  *zap.Logger
}

// NewCourseRepository creates a course repository.
func NewCourseRepository(s store.Store, lookups *index.Manager, retry *store.RetryPolicy, logger *zap.Logger) *CourseRepository {
	return &CourseRepository{store: s, lookups: lookups, retry: retry, logger: logger}
}

func (r *CourseRepository) codeLookup(c domain.Course) index.Lookup {
	return index.Lookup{
		Partition: keymap.CodeLookupPartition,
		Key:       c.Code,
		TargetID:  c.CourseID,
		// Semester is denormalized here because it addresses the course's
		// own partition.
		Extra: map[string]any{"Semester": c.Semester},
	}
}

// Create writes the course and registers its code lookup, primary first. A
// taken code aborts the primary with a best-effort rollback and surfaces
// AlreadyExists; a failed rollback leaves an unindexed orphan for the
// reconciliation sweep.
func (r *CourseRepository) Create(ctx context.Context, course domain.Course) error {
	if !domain.ValidSemester(course.Semester) {
		return appErrors.NewValidation("semester out of range")
	}
	rec, truncErr := keymap.CourseRecord(course)
	if truncErr != nil {
		r.logger.Warn("course list fields truncated on write",
			zap.String("courseId", course.CourseID),
			zap.Error(truncErr),
		)
	}
	if _, err := r.store.Create(ctx, rec); err != nil {
		return appErrors.Wrap(err, "failed to create course")
	}
	if err := r.lookups.Upsert(ctx, r.codeLookup(course)); err != nil {
		if delErr := r.store.Delete(ctx, rec.Key.Partition, rec.Key.Row); delErr != nil {
			r.logger.Error("orphaned course after code lookup failure; reconciliation required",
				zap.String("courseId", course.CourseID),
				zap.String("code", course.Code),
				zap.NamedError("lookupErr", err),
				zap.NamedError("rollbackErr", delErr),
			)
		}
		return appErrors.Wrap(err, "failed to register course code")
	}
	return nil
}

// getRecordByID probes each semester partition for the course row. Bounded
// by the semester range, so at most eight point reads.
func (r *CourseRepository) getRecordByID(ctx context.Context, courseID string) (*store.Record, error) {
	for semester := domain.MinSemester; semester <= domain.MaxSemester; semester++ {
		rec, err := r.store.Get(ctx, keymap.CoursePartition(semester), courseID)
		if err == nil {
			return rec, nil
		}
		if !appErrors.IsNotFound(err) {
			return nil, err
		}
	}
	return nil, appErrors.NewNotFoundf("course %s not found", courseID)
}

// GetByID returns the course with the given id, whatever semester partition
// it currently lives in.
func (r *CourseRepository) GetByID(ctx context.Context, courseID string) (*domain.Course, error) {
	rec, err := r.getRecordByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	course := keymap.CourseFromRecord(rec)
	return &course, nil
}

// GetByCode resolves a course code through its lookup. A stale denormalized
// semester (mid-relocation) falls back to the partition probe.
func (r *CourseRepository) GetByCode(ctx context.Context, code string) (*domain.Course, error) {
	lu, err := r.lookups.Resolve(ctx, keymap.CodeLookupPartition, code)
	if err != nil {
		return nil, err
	}
	semester, _ := lu.Extra["Semester"].(int)
	if f, ok := lu.Extra["Semester"].(float64); ok {
		semester = int(f)
	}
	if domain.ValidSemester(semester) {
		rec, err := r.store.Get(ctx, keymap.CoursePartition(semester), lu.TargetID)
		if err == nil {
			course := keymap.CourseFromRecord(rec)
			return &course, nil
		}
		if !appErrors.IsNotFound(err) {
			return nil, err
		}
		r.logger.Warn("code lookup semester is stale, probing partitions",
			zap.String("code", code),
			zap.Int("semester", semester),
		)
	}
	return r.GetByID(ctx, lu.TargetID)
}

// ListBySemester returns one page of a semester partition. The returned
// token continues the listing; empty means exhausted.
func (r *CourseRepository) ListBySemester(ctx context.Context, semester, limit int, token string) ([]domain.Course, string, error) {
	if !domain.ValidSemester(semester) {
		return nil, "", appErrors.NewValidation("semester out of range")
	}
	startAfter, err := DecodeToken(token)
	if err != nil {
		return nil, "", err
	}
	records, next, err := r.store.Page(ctx, keymap.CoursePartition(semester), EffectiveLimit(limit), startAfter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, "failed to page courses")
	}
	courses := make([]domain.Course, 0, len(records))
	for i := range records {
		if records[i].Kind != keymap.KindCourse {
			continue
		}
		courses = append(courses, keymap.CourseFromRecord(&records[i]))
	}
	return courses, EncodeToken(next), nil
}

// ListAll scans every semester partition. Lookup rows sharing the storage
// area are filtered out by kind.
func (r *CourseRepository) ListAll(ctx context.Context) ([]domain.Course, error) {
	it := r.store.Scan(ctx, keymap.CoursePartitionPrefix)
	defer it.Close()
	var courses []domain.Course
	for it.Next() {
		rec := it.Record()
		if rec.Kind != keymap.KindCourse {
			continue
		}
		courses = append(courses, keymap.CourseFromRecord(rec))
	}
	if err := it.Err(); err != nil {
		return nil, appErrors.Wrap(err, "failed to scan courses")
	}
	return courses, nil
}

// Update applies fn to the current course state under compare-and-swap.
// Semester changes are rejected here; they go through ChangeSemester.
func (r *CourseRepository) Update(ctx context.Context, courseID string, fn func(*domain.Course)) (*domain.Course, error) {
	var updated domain.Course
	err := store.RetryCAS(ctx, r.retry.Load(), func(ctx context.Context) error {
		rec, err := r.getRecordByID(ctx, courseID)
		if err != nil {
			return err
		}
		course := keymap.CourseFromRecord(rec)
		before := course.Semester
		fn(&course)
		if course.Semester != before {
			return appErrors.NewValidation("semester changes must relocate the course")
		}
		course.CourseID = courseID
		course.UpdatedAt = time.Now().UTC()
		next, truncErr := keymap.CourseRecord(course)
		if truncErr != nil {
			r.logger.Warn("course list fields truncated on write",
				zap.String("courseId", courseID),
				zap.Error(truncErr),
			)
		}
		if _, err := r.store.Update(ctx, next, rec.Version, store.Replace); err != nil {
			return err
		}
		updated = course
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ChangeSemester relocates a course to the partition of its new semester:
// create at the new partition, delete at the old, then refresh the code
// lookup. The steps are not atomic across partitions; the ordering makes
// the transient anomaly a duplicate visible in two partitions rather than a
// gap visible in none, and list consumers de-duplicate by course id.
func (r *CourseRepository) ChangeSemester(ctx context.Context, courseID, actorID string, newSemester int) (*domain.Course, error) {
	if !domain.ValidSemester(newSemester) {
		return nil, appErrors.NewValidation("semester out of range")
	}
	rec, err := r.getRecordByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	course := keymap.CourseFromRecord(rec)
	oldPartition := rec.Key.Partition
	if course.Semester == newSemester {
		return &course, nil
	}

	course.Semester = newSemester
	course.UpdatedAt = time.Now().UTC()
	moved, truncErr := keymap.CourseRecord(course)
	if truncErr != nil {
		r.logger.Warn("course list fields truncated on write",
			zap.String("courseId", courseID),
			zap.Error(truncErr),
		)
	}
	if _, err := r.store.Create(ctx, moved); err != nil {
		return nil, appErrors.Wrap(err, "failed to create course at new partition")
	}
	if err := r.store.Delete(ctx, oldPartition, courseID); err != nil {
		r.logger.Error("course visible in two partitions after relocation failure",
			zap.String("courseId", courseID),
			zap.String("oldPartition", oldPartition),
			zap.Int("newSemester", newSemester),
			zap.Error(err),
		)
		return nil, appErrors.Wrap(err, "failed to remove course from old partition")
	}
	// Lookup refresh runs last so a failure leaves it stale but resolvable;
	// GetByCode falls back to the partition probe until repaired.
	if err := r.lookups.Upsert(ctx, r.codeLookup(course)); err != nil {
		r.logger.Warn("code lookup still carries old semester after relocation",
			zap.String("code", course.Code),
			zap.Error(err),
		)
	}
	r.logger.Info("course relocated",
		zap.String("courseId", courseID),
		zap.String("actorId", actorID),
		zap.String("from", oldPartition),
		zap.Int("to", newSemester),
	)
	return &course, nil
}

// SoftDelete marks the course inactive. The code lookup is deliberately
// kept: the code stays resolvable and reserved.
func (r *CourseRepository) SoftDelete(ctx context.Context, courseID string) error {
	_, err := r.Update(ctx, courseID, func(c *domain.Course) {
		c.IsActive = false
	})
	return err
}

// SetRatingStats writes the cached rating projection recomputed from the
// course's reviews.
func (r *CourseRepository) SetRatingStats(ctx context.Context, courseID string, average float64, total int) error {
	_, err := r.Update(ctx, courseID, func(c *domain.Course) {
		c.AverageRating = average
		c.TotalReviews = total
	})
	return err
}

// ReconcileLookups sweeps every course and re-creates missing or stale code
// lookups. It closes the known orphan window left by the primary-first
// write order; run it out of band.
func (r *CourseRepository) ReconcileLookups(ctx context.Context) (repaired int, err error) {
	courses, err := r.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, course := range courses {
		lu, err := r.lookups.Resolve(ctx, keymap.CodeLookupPartition, course.Code)
		if err == nil && lu.TargetID == course.CourseID {
			continue
		}
		if err != nil && !appErrors.IsNotFound(err) {
			return repaired, err
		}
		if err == nil && lu.TargetID != course.CourseID {
			r.logger.Error("course code claimed by another course, skipping",
				zap.String("code", course.Code),
				zap.String("courseId", course.CourseID),
				zap.String("claimedBy", lu.TargetID),
			)
			continue
		}
		if err := r.lookups.Upsert(ctx, r.codeLookup(course)); err != nil {
			return repaired, appErrors.Wrap(err, "failed to repair code lookup")
		}
		r.logger.Info("repaired missing code lookup",
			zap.String("code", course.Code),
			zap.String("courseId", course.CourseID),
		)
		repaired++
	}
	return repaired, nil
}
