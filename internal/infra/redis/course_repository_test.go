package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"course-progress-service/internal/domain"
	"course-progress-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestCourseRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		CourseLoader: memory.NewStaticCourseLoader(map[string]domain.Course{
			"course-1": sampleCourse(),
		}),
	}
	repo := NewCourseRepository(client, loader, time.Minute)

	_, err = repo.GetCourse(context.Background(), "course-1")
	if err != nil {
		t.Fatalf("get course: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("course:course-1") {
		t.Fatalf("expected course document cached")
	}
	if ttl := mr.TTL("course:course-1"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with jitter, got %s", ttl)
	}

	// Second call should hit cache, loader not incremented.
	course, err := repo.GetCourse(context.Background(), "course-1")
	if err != nil {
		t.Fatalf("get course 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	q := course.Chapters[0].Lessons[0].Questions[0]
	if q.MultipleChoice == nil || q.MultipleChoice.Correct != "B" {
		t.Fatalf("expected question payload to survive the cache, got %+v", q)
	}

	if err := repo.Invalidate(context.Background(), "course-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = repo.GetCourse(context.Background(), "course-1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls)
	}
}

func TestCourseRepositoryPassesLoaderErrors(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewCourseRepository(newClient(mr), memory.NewStaticCourseLoader(nil), time.Minute)
	if _, err := repo.GetCourse(context.Background(), "missing"); !errors.Is(err, domain.ErrCourseNotFound) {
		t.Fatalf("expected course not found, got %v", err)
	}
	if mr.Exists("course:missing") {
		t.Fatalf("expected no cache entry for a failed load")
	}
}

type countingLoader struct {
	memory.CourseLoader
	calls int
}

func (l *countingLoader) LoadCourse(ctx context.Context, courseID string) (domain.Course, error) {
	l.calls++
	return l.CourseLoader.LoadCourse(ctx, courseID)
}

func sampleCourse() domain.Course {
	return domain.Course{
		ID:     "course-1",
		Title:  "Basics",
		Active: true,
		Chapters: []domain.Chapter{
			{
				ID: "c1",
				Lessons: []domain.Lesson{
					{
						ID:   "l1",
						Type: domain.LessonPractice,
						Questions: []domain.Question{
							{
								ID:      "q1",
								Variant: domain.VariantMultipleChoice,
								Prompt:  "Pick B",
								MultipleChoice: &domain.MultipleChoice{
									Options: []string{"A", "B"},
									Correct: "B",
								},
							},
						},
					},
				},
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
