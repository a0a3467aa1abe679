package app

import (
	"context"

	"course-progress-service/internal/domain"
)

// CourseRepository loads course structure (from cache/backing store).
type CourseRepository interface {
	GetCourse(ctx context.Context, courseID string) (domain.Course, error)
}

// ProgressStore is the remote lesson-state and course-progress API.
// Get methods return domain.ErrNotFound for unknown keys.
type ProgressStore interface {
	GetLessonState(ctx context.Context, learnerID, lessonID string) (domain.LessonProgress, error)
	ListLessonStates(ctx context.Context, learnerID string) ([]domain.LessonProgress, error)
	PatchLessonState(ctx context.Context, p domain.LessonProgress) error
	GetCourseProgress(ctx context.Context, learnerID, courseID string) (domain.CourseProgress, error)
	ListCourseProgress(ctx context.Context, learnerID string) ([]domain.CourseProgress, error)
	PatchCourseProgress(ctx context.Context, p domain.CourseProgress) error
}

// AnswerStore persists answers keyed by learner, question and lesson.
type AnswerStore interface {
	// UpsertAnswer creates the answer or replaces answer and correctness of an
	// existing one, keeping its ID and any instructor feedback.
	UpsertAnswer(ctx context.Context, a domain.UserAnswer) (domain.UserAnswer, error)
	GetAnswer(ctx context.Context, answerID string) (domain.UserAnswer, error)
	ListAnswers(ctx context.Context, learnerID, lessonID string) ([]domain.UserAnswer, error)
	PatchAnswerFeedback(ctx context.Context, answerID string, fb domain.AnswerFeedback) (domain.UserAnswer, error)
}

// SubmissionStore persists quiz submission records.
type SubmissionStore interface {
	// CreateSubmission is idempotent per (learner, lesson): a retry returns the existing record.
	CreateSubmission(ctx context.Context, s domain.QuizSubmission) (domain.QuizSubmission, error)
	GetSubmission(ctx context.Context, id string) (domain.QuizSubmission, error)
	FindSubmission(ctx context.Context, learnerID, lessonID string) (domain.QuizSubmission, error)
	// ListSubmissions returns submissions with the given checked flag, oldest first.
	ListSubmissions(ctx context.Context, checked bool) ([]domain.QuizSubmission, error)
	// MarkChecked flips IsChecked from false to true and reports whether this call did it.
	MarkChecked(ctx context.Context, id string) (domain.QuizSubmission, bool, error)
	SetQuizFeedback(ctx context.Context, id, text string) (domain.QuizSubmission, error)
	// ClaimNotification sets NotifiedAt on a checked submission that has none and
	// reports whether this call did it. ReleaseNotification clears it again.
	ClaimNotification(ctx context.Context, id string) (domain.QuizSubmission, bool, error)
	ReleaseNotification(ctx context.Context, id string) error
}

// SnapshotStore keeps the learner's local progress snapshot.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, learnerID string) (domain.ProgressSnapshot, bool, error)
	SaveSnapshot(ctx context.Context, snap domain.ProgressSnapshot) error
	// ClearLearner drops the snapshot and every quiz buffer of the learner.
	ClearLearner(ctx context.Context, learnerID string) error
}

// BufferStore keeps draft quiz answers between page loads.
type BufferStore interface {
	LoadBuffer(ctx context.Context, learnerID, lessonID string) (domain.QuizBuffer, bool, error)
	SaveBuffer(ctx context.Context, buf domain.QuizBuffer) error
	DeleteBuffer(ctx context.Context, learnerID, lessonID string) error
}

// Notifier delivers learner notifications.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}
