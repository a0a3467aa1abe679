package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"course-progress-service/internal/domain"
)

// ProgressCache is a read-through, write-through cache of learner progress.
//
// Writes are optimistic: the cache and the local snapshot are updated first and
// the persistence API is called afterwards. A failed remote write is logged and
// never rolled back, so the learner's session keeps moving; the next Seed pushes
// local progress that is ahead of the remote back up.
type ProgressCache struct {
	remote ProgressStore
	local  SnapshotStore
	now    func() time.Time

	mu       sync.Mutex
	learners map[string]*learnerProgress
}

type learnerProgress struct {
	mu     sync.Mutex
	loaded bool
	snap   domain.ProgressSnapshot

	// guarded by ProgressCache.mu
	refs     int
	lastUsed time.Time
}

func NewProgressCache(remote ProgressStore, local SnapshotStore) *ProgressCache {
	return NewProgressCacheWithClock(remote, local, time.Now)
}

// NewProgressCacheWithClock is test-only for deterministic timestamps.
func NewProgressCacheWithClock(remote ProgressStore, local SnapshotStore, now func() time.Time) *ProgressCache {
	return &ProgressCache{
		remote:   remote,
		local:    local,
		now:      now,
		learners: make(map[string]*learnerProgress),
	}
}

// Seed loads the learner's remote state and reconciles it with the local snapshot.
// The merge is monotonic: completion wins, then the higher question index.
func (c *ProgressCache) Seed(ctx context.Context, learnerID string) error {
	// When a listing fails nothing is pushed back, since the remote may be ahead.
	lessons, lessonErr := c.remote.ListLessonStates(ctx, learnerID)
	if lessonErr != nil {
		log.Printf("progress seed: list lesson states for %s: %v", learnerID, lessonErr)
	}
	courses, courseErr := c.remote.ListCourseProgress(ctx, learnerID)
	if courseErr != nil {
		log.Printf("progress seed: list course progress for %s: %v", learnerID, courseErr)
	}

	lp := c.acquire(learnerID)
	defer c.release(lp)
	lp.mu.Lock()
	lp.loaded = false
	c.loadLocalLocked(ctx, lp, learnerID)

	var pushLessons []domain.LessonProgress
	remoteLessons := make(map[string]domain.LessonProgress, len(lessons))
	for _, p := range lessons {
		remoteLessons[p.LessonID] = p
		if local, ok := lp.snap.Lessons[p.LessonID]; !ok || p.Ahead(local) {
			lp.snap.Lessons[p.LessonID] = p
		}
	}
	for id, p := range lp.snap.Lessons {
		if lessonErr != nil {
			break
		}
		if r, ok := remoteLessons[id]; !ok || p.Ahead(r) {
			pushLessons = append(pushLessons, p)
		}
	}

	var pushCourses []domain.CourseProgress
	remoteCourses := make(map[string]domain.CourseProgress, len(courses))
	for _, p := range courses {
		remoteCourses[p.CourseID] = p
		if local, ok := lp.snap.Courses[p.CourseID]; !ok || p.Ahead(local) {
			lp.snap.Courses[p.CourseID] = p
		}
	}
	for id, p := range lp.snap.Courses {
		if courseErr != nil {
			break
		}
		if r, ok := remoteCourses[id]; !ok || p.Ahead(r) {
			pushCourses = append(pushCourses, p)
		}
	}
	snap := cloneSnapshot(lp.snap)
	lp.mu.Unlock()

	c.saveLocal(ctx, snap)
	for _, p := range pushLessons {
		c.mirrorLesson(ctx, p)
	}
	for _, p := range pushCourses {
		c.mirrorCourse(ctx, p)
	}
	return nil
}

// GetProgress returns the learner's lesson state; unknown lessons are NotStarted.
// A failed remote read is logged and also reported as NotStarted.
func (c *ProgressCache) GetProgress(ctx context.Context, learnerID, lessonID string) domain.LessonProgress {
	p, _ := c.LessonState(ctx, learnerID, lessonID)
	return p
}

// LessonState is GetProgress that reports a failed remote read as
// ErrProgressUnavailable instead of assuming the lesson was never started.
func (c *ProgressCache) LessonState(ctx context.Context, learnerID, lessonID string) (domain.LessonProgress, error) {
	lp := c.acquire(learnerID)
	defer c.release(lp)
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return c.lessonLocked(ctx, lp, learnerID, lessonID)
}

// StartLesson applies NotStarted -> InProgress and creates the lesson record.
// Nothing is applied while the stored state cannot be read.
func (c *ProgressCache) StartLesson(ctx context.Context, learnerID, courseID, lessonID string) (domain.LessonProgress, bool) {
	return c.updateLesson(ctx, learnerID, lessonID, func(p *domain.LessonProgress) bool {
		if p.State() != domain.StateNotStarted {
			return false
		}
		p.CourseID = courseID
		p.InProgress = true
		p.CurrentQuestion = 0
		return true
	})
}

// AdvanceQuestion moves the current question forward. Rewinds, replays and
// writes to completed lessons are ignored.
func (c *ProgressCache) AdvanceQuestion(ctx context.Context, learnerID, lessonID string, newIndex int) bool {
	_, applied := c.updateLesson(ctx, learnerID, lessonID, func(p *domain.LessonProgress) bool {
		if p.Completed || newIndex <= p.CurrentQuestion {
			return false
		}
		p.CurrentQuestion = newIndex
		p.InProgress = true
		return true
	})
	return applied
}

// MarkLessonComplete applies InProgress -> Completed. Completing twice is a no-op.
func (c *ProgressCache) MarkLessonComplete(ctx context.Context, learnerID, lessonID string) bool {
	_, applied := c.updateLesson(ctx, learnerID, lessonID, func(p *domain.LessonProgress) bool {
		if p.Completed {
			return false
		}
		p.Completed = true
		p.InProgress = false
		return true
	})
	return applied
}

// GetCourseProgress returns the learner's course state.
func (c *ProgressCache) GetCourseProgress(ctx context.Context, learnerID, courseID string) domain.CourseProgress {
	p, _ := c.CourseState(ctx, learnerID, courseID)
	return p
}

// CourseState is GetCourseProgress that reports a failed remote read.
func (c *ProgressCache) CourseState(ctx context.Context, learnerID, courseID string) (domain.CourseProgress, error) {
	lp := c.acquire(learnerID)
	defer c.release(lp)
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return c.courseLocked(ctx, lp, learnerID, courseID)
}

// EnrollCourse creates the course progress record.
func (c *ProgressCache) EnrollCourse(ctx context.Context, learnerID, courseID string) bool {
	return c.updateCourse(ctx, learnerID, courseID, func(p *domain.CourseProgress) bool {
		if p.InProgress || p.Completed {
			return false
		}
		p.InProgress = true
		return true
	})
}

// MarkCourseComplete completes the course exactly once.
func (c *ProgressCache) MarkCourseComplete(ctx context.Context, learnerID, courseID string) bool {
	return c.updateCourse(ctx, learnerID, courseID, func(p *domain.CourseProgress) bool {
		if p.Completed {
			return false
		}
		p.Completed = true
		p.InProgress = false
		return true
	})
}

// Clear forgets the learner locally (logout). Remote state is untouched.
func (c *ProgressCache) Clear(ctx context.Context, learnerID string) error {
	c.mu.Lock()
	delete(c.learners, learnerID)
	c.mu.Unlock()
	return c.local.ClearLearner(ctx, learnerID)
}

// EvictIdle forgets learners nobody has touched for maxIdle. Their progress is
// reloaded from the local snapshot on next use.
func (c *ProgressCache) EvictIdle(maxIdle time.Duration) int {
	cutoff := c.now().Add(-maxIdle)
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for id, lp := range c.learners {
		if lp.refs == 0 && !lp.lastUsed.After(cutoff) {
			delete(c.learners, id)
			evicted++
		}
	}
	return evicted
}

// acquire pins the learner entry so EvictIdle leaves it alone until release.
func (c *ProgressCache) acquire(learnerID string) *learnerProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	lp, ok := c.learners[learnerID]
	if !ok {
		lp = &learnerProgress{snap: domain.NewSnapshot(learnerID)}
		c.learners[learnerID] = lp
	}
	lp.refs++
	return lp
}

func (c *ProgressCache) release(lp *learnerProgress) {
	c.mu.Lock()
	lp.refs--
	lp.lastUsed = c.now()
	c.mu.Unlock()
}

func (c *ProgressCache) loadLocalLocked(ctx context.Context, lp *learnerProgress, learnerID string) {
	if lp.loaded {
		return
	}
	lp.loaded = true
	snap, ok, err := c.local.LoadSnapshot(ctx, learnerID)
	if err != nil {
		log.Printf("progress snapshot load for %s: %v", learnerID, err)
		return
	}
	if !ok {
		return
	}
	for id, p := range snap.Lessons {
		if cur, ok := lp.snap.Lessons[id]; !ok || p.Ahead(cur) {
			lp.snap.Lessons[id] = p
		}
	}
	for id, p := range snap.Courses {
		if cur, ok := lp.snap.Courses[id]; !ok || p.Ahead(cur) {
			lp.snap.Courses[id] = p
		}
	}
}

func (c *ProgressCache) lessonLocked(ctx context.Context, lp *learnerProgress, learnerID, lessonID string) (domain.LessonProgress, error) {
	c.loadLocalLocked(ctx, lp, learnerID)
	if p, ok := lp.snap.Lessons[lessonID]; ok {
		return p, nil
	}
	zero := domain.LessonProgress{LearnerID: learnerID, LessonID: lessonID}
	p, err := c.remote.GetLessonState(ctx, learnerID, lessonID)
	switch {
	case err == nil:
		lp.snap.Lessons[lessonID] = p
		return p, nil
	case errors.Is(err, domain.ErrNotFound):
		return zero, nil
	}
	log.Printf("progress read-through for %s/%s: %v", learnerID, lessonID, err)
	return zero, fmt.Errorf("%w: lesson %s: %w", domain.ErrProgressUnavailable, lessonID, err)
}

func (c *ProgressCache) courseLocked(ctx context.Context, lp *learnerProgress, learnerID, courseID string) (domain.CourseProgress, error) {
	c.loadLocalLocked(ctx, lp, learnerID)
	if p, ok := lp.snap.Courses[courseID]; ok {
		return p, nil
	}
	zero := domain.CourseProgress{LearnerID: learnerID, CourseID: courseID}
	p, err := c.remote.GetCourseProgress(ctx, learnerID, courseID)
	switch {
	case err == nil:
		lp.snap.Courses[courseID] = p
		return p, nil
	case errors.Is(err, domain.ErrNotFound):
		return zero, nil
	}
	log.Printf("course progress read-through for %s/%s: %v", learnerID, courseID, err)
	return zero, fmt.Errorf("%w: course %s: %w", domain.ErrProgressUnavailable, courseID, err)
}

func (c *ProgressCache) updateLesson(ctx context.Context, learnerID, lessonID string, mutate func(*domain.LessonProgress) bool) (domain.LessonProgress, bool) {
	lp := c.acquire(learnerID)
	defer c.release(lp)
	lp.mu.Lock()
	p, err := c.lessonLocked(ctx, lp, learnerID, lessonID)
	if err != nil || !mutate(&p) {
		lp.mu.Unlock()
		return p, false
	}
	p.UpdatedAt = c.now()
	lp.snap.Lessons[lessonID] = p
	snap := cloneSnapshot(lp.snap)
	lp.mu.Unlock()

	c.saveLocal(ctx, snap)
	c.mirrorLesson(ctx, p)
	return p, true
}

func (c *ProgressCache) updateCourse(ctx context.Context, learnerID, courseID string, mutate func(*domain.CourseProgress) bool) bool {
	lp := c.acquire(learnerID)
	defer c.release(lp)
	lp.mu.Lock()
	p, err := c.courseLocked(ctx, lp, learnerID, courseID)
	if err != nil || !mutate(&p) {
		lp.mu.Unlock()
		return false
	}
	p.UpdatedAt = c.now()
	lp.snap.Courses[courseID] = p
	snap := cloneSnapshot(lp.snap)
	lp.mu.Unlock()

	c.saveLocal(ctx, snap)
	c.mirrorCourse(ctx, p)
	return true
}

func (c *ProgressCache) saveLocal(ctx context.Context, snap domain.ProgressSnapshot) {
	snap.SavedAt = c.now()
	if err := c.local.SaveSnapshot(ctx, snap); err != nil {
		log.Printf("progress snapshot save for %s: %v", snap.LearnerID, err)
	}
}

func (c *ProgressCache) mirrorLesson(ctx context.Context, p domain.LessonProgress) {
	if err := c.remote.PatchLessonState(ctx, p); err != nil {
		log.Printf("progress mirror failed for %s/%s: %v", p.LearnerID, p.LessonID, err)
	}
}

func (c *ProgressCache) mirrorCourse(ctx context.Context, p domain.CourseProgress) {
	if err := c.remote.PatchCourseProgress(ctx, p); err != nil {
		log.Printf("course progress mirror failed for %s/%s: %v", p.LearnerID, p.CourseID, err)
	}
}

func cloneSnapshot(s domain.ProgressSnapshot) domain.ProgressSnapshot {
	out := domain.NewSnapshot(s.LearnerID)
	out.SavedAt = s.SavedAt
	for k, v := range s.Lessons {
		out.Lessons[k] = v
	}
	for k, v := range s.Courses {
		out.Courses[k] = v
	}
	return out
}
