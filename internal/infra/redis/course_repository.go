package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"course-progress-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CourseLoader fetches course structure from a backing store (e.g., document DB).
type CourseLoader interface {
	LoadCourse(ctx context.Context, courseID string) (domain.Course, error)
}

// CourseRepository caches course documents in Redis and falls back to a loader on cache miss.
// Courses are stored as JSON: SET course:{courseID} {json} EX ttl
type CourseRepository struct {
	client *redis.Client
	loader CourseLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewCourseRepository(client *redis.Client, loader CourseLoader, ttl time.Duration) *CourseRepository {
	return &CourseRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CourseRepository) GetCourse(ctx context.Context, courseID string) (domain.Course, error) {
	if course, ok := r.cached(ctx, courseID); ok {
		return course, nil
	}

	result, err, _ := r.sf.Do(courseID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if course, ok := r.cached(ctx, courseID); ok {
			return course, nil
		}

		course, err := r.loader.LoadCourse(ctx, courseID)
		if err != nil {
			return domain.Course{}, err
		}

		raw, err := json.Marshal(course)
		if err != nil {
			return domain.Course{}, err
		}
		if err := r.client.Set(ctx, courseKey(courseID), raw, r.ttlWithJitter()).Err(); err != nil {
			log.Printf("course cache fill for %s: %v", courseID, err)
		}
		return course, nil
	})
	if err != nil {
		return domain.Course{}, err
	}
	return result.(domain.Course), nil
}

// Invalidate drops the cached document so the next read goes to the loader.
func (r *CourseRepository) Invalidate(ctx context.Context, courseID string) error {
	return r.client.Del(ctx, courseKey(courseID)).Err()
}

func (r *CourseRepository) cached(ctx context.Context, courseID string) (domain.Course, bool) {
	raw, err := r.client.Get(ctx, courseKey(courseID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("course cache read for %s: %v", courseID, err)
		}
		return domain.Course{}, false
	}
	var course domain.Course
	if err := json.Unmarshal(raw, &course); err != nil {
		log.Printf("course cache decode for %s: %v", courseID, err)
		return domain.Course{}, false
	}
	return course, true
}

func courseKey(courseID string) string {
	return "course:" + courseID
}

func (r *CourseRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
