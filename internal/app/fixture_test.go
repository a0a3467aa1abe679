package app_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"course-progress-service/internal/app"
	"course-progress-service/internal/domain"
	"course-progress-service/internal/infra/memory"
)

var errUnavailable = errors.New("persistence unavailable")

type fixture struct {
	store       *memory.Store
	local       *memory.LocalStore
	hub         *memory.NotificationHub
	progress    *app.ProgressCache
	progression *app.ProgressionService
	quizzes     *app.QuizService
	feedback    *app.FeedbackService
}

func fixedClock() func() time.Time {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// newFixture wires the services over memory stores. answers overrides the answer store when set.
func newFixture(answers app.AnswerStore) *fixture {
	f := &fixture{
		store: memory.NewStore(),
		local: memory.NewLocalStore(),
		hub:   memory.NewNotificationHub(),
	}
	if answers == nil {
		answers = f.store
	}
	courses := memory.NewCourseRepository(memory.NewStaticCourseLoader(map[string]domain.Course{
		"course-1": sampleCourse(),
		"inactive": inactiveCourse(),
		"journal":  journalCourse(),
	}), time.Minute)
	f.progress = app.NewProgressCacheWithClock(f.store, f.local, fixedClock())
	f.progression = app.NewProgressionService(courses, f.progress, answers)
	f.quizzes = app.NewQuizService(f.local, answers, f.store, f.progression, app.WithClock(fixedClock()), app.WithMaxParallel(2))
	f.feedback = app.NewFeedbackService(f.store, answers, f.hub)
	return f
}

// enrolledThroughPractice enrolls u1 and completes both lessons of chapter 1.
func (f *fixture) enrolledThroughPractice(ctx context.Context) error {
	if _, err := f.progression.Enroll(ctx, "u1", "course-1"); err != nil {
		return err
	}
	if _, err := f.progression.CompleteInstructional(ctx, "u1", "course-1", "intro"); err != nil {
		return err
	}
	for _, step := range []struct {
		id     string
		answer domain.Answer
	}{
		{"p1", domain.Answer{Choice: "true"}},
		{"p2", domain.Answer{Choice: "4"}},
	} {
		if _, err := f.progression.AnswerPractice(ctx, "u1", "course-1", "drill", step.id, step.answer); err != nil {
			return err
		}
	}
	return nil
}

func sampleCourse() domain.Course {
	return domain.Course{
		ID:     "course-1",
		Title:  "Animals",
		Active: true,
		Chapters: []domain.Chapter{
			{
				ID: "ch1",
				Lessons: []domain.Lesson{
					{ID: "intro", Type: domain.LessonInstructional},
					{
						ID:   "drill",
						Type: domain.LessonPractice,
						Questions: []domain.Question{
							{ID: "p1", Variant: domain.VariantTrueFalse, TrueFalse: &domain.TrueFalse{Correct: true}},
							{ID: "p2", Variant: domain.VariantMultipleChoice, MultipleChoice: &domain.MultipleChoice{Options: []string{"3", "4"}, Correct: "4"}},
						},
					},
				},
			},
			{
				ID: "ch2",
				Lessons: []domain.Lesson{
					{
						ID:   "final",
						Type: domain.LessonQuiz,
						Questions: []domain.Question{
							{ID: "q1", Variant: domain.VariantMultipleChoice, MultipleChoice: &domain.MultipleChoice{Options: []string{"A", "B", "C"}, Correct: "B"}},
							{ID: "q2", Variant: domain.VariantFillTyping, FillBlank: &domain.FillBlank{
								Text:   "The {1} chased the {2}",
								Blanks: []domain.Blank{{ID: "1", Value: "cat"}, {ID: "2", Value: "dog"}},
							}},
							{ID: "q3", Variant: domain.VariantOpenEnded, Prompt: "Describe your pet"},
						},
					},
				},
			},
		},
	}
}

func inactiveCourse() domain.Course {
	c := sampleCourse()
	c.ID = "inactive"
	c.Active = false
	return c
}

// journalCourse has a practice lesson made only of instructor-reviewed questions.
func journalCourse() domain.Course {
	return domain.Course{
		ID:     "journal",
		Active: true,
		Chapters: []domain.Chapter{{
			ID: "week1",
			Lessons: []domain.Lesson{{
				ID:   "reflect",
				Type: domain.LessonPractice,
				Questions: []domain.Question{
					{ID: "j1", Variant: domain.VariantOpenEnded, Prompt: "What did you learn?"},
					{ID: "j2", Variant: domain.VariantAudioVideo, Prompt: "Read the paragraph aloud", Media: &domain.Media{Kind: domain.MediaAudio}},
				},
			}},
		}},
	}
}

// flakyAnswers fails UpsertAnswer for one question until healed.
type flakyAnswers struct {
	*memory.Store
	mu     sync.Mutex
	failOn string
}

func (s *flakyAnswers) UpsertAnswer(ctx context.Context, a domain.UserAnswer) (domain.UserAnswer, error) {
	s.mu.Lock()
	fail := a.QuestionID == s.failOn
	s.mu.Unlock()
	if fail {
		return domain.UserAnswer{}, errUnavailable
	}
	return s.Store.UpsertAnswer(ctx, a)
}

func (s *flakyAnswers) heal() {
	s.mu.Lock()
	s.failOn = ""
	s.mu.Unlock()
}

// downRemote is a progress store whose every call fails.
type downRemote struct{}

func (downRemote) GetLessonState(context.Context, string, string) (domain.LessonProgress, error) {
	return domain.LessonProgress{}, errUnavailable
}
func (downRemote) ListLessonStates(context.Context, string) ([]domain.LessonProgress, error) {
	return nil, errUnavailable
}
func (downRemote) PatchLessonState(context.Context, domain.LessonProgress) error { return errUnavailable }
func (downRemote) GetCourseProgress(context.Context, string, string) (domain.CourseProgress, error) {
	return domain.CourseProgress{}, errUnavailable
}
func (downRemote) ListCourseProgress(context.Context, string) ([]domain.CourseProgress, error) {
	return nil, errUnavailable
}
func (downRemote) PatchCourseProgress(context.Context, domain.CourseProgress) error {
	return errUnavailable
}

// flakyProgress fails lesson reads while down is set.
type flakyProgress struct {
	*memory.Store
	mu   sync.Mutex
	down bool
}

func (s *flakyProgress) GetLessonState(ctx context.Context, learnerID, lessonID string) (domain.LessonProgress, error) {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		return domain.LessonProgress{}, errUnavailable
	}
	return s.Store.GetLessonState(ctx, learnerID, lessonID)
}

func (s *flakyProgress) setDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

// flakyNotifier fails the first failures deliveries and counts every attempt.
type flakyNotifier struct {
	mu        sync.Mutex
	failures  int
	attempts  int
	delivered []domain.Notification
}

func (n *flakyNotifier) Notify(_ context.Context, note domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempts++
	if n.failures > 0 {
		n.failures--
		return errUnavailable
	}
	n.delivered = append(n.delivered, note)
	return nil
}

func (n *flakyNotifier) counts() (attempts, delivered int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.attempts, len(n.delivered)
}
