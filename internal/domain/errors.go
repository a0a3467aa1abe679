package domain

import "errors"

var (
	// ErrCourseNotFound indicates the course content could not be loaded.
	ErrCourseNotFound = errors.New("course not found")
	// ErrCourseInactive is returned when a learner navigates a deactivated course.
	ErrCourseInactive = errors.New("course is not active")
	// ErrNotEnrolled is returned when a learner opens a lesson of a course they never enrolled in.
	ErrNotEnrolled = errors.New("learner not enrolled in course")
	// ErrLessonNotFound indicates the lesson is not part of the course.
	ErrLessonNotFound = errors.New("lesson not found")
	// ErrLessonLocked is returned when the preceding lesson is not completed yet.
	ErrLessonLocked = errors.New("lesson not reachable yet")
	// ErrWrongLessonType is returned when an action does not apply to the lesson type.
	ErrWrongLessonType = errors.New("operation not supported for lesson type")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuestionLocked is returned when a learner reaches past the current question.
	ErrQuestionLocked = errors.New("question not reached yet")
	// ErrInvalidAnswer marks a structurally invalid candidate answer.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrInvalidQuestion marks a question that fails authoring-time checks.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrQuizCompleted is returned when buffering into a submitted quiz.
	ErrQuizCompleted = errors.New("quiz already completed")
	// ErrQuizIncomplete is returned when submitting with unanswered questions.
	ErrQuizIncomplete = errors.New("quiz has unanswered questions")
	// ErrSubmissionFailed wraps the transient failure of a quiz submission; the buffer is kept.
	ErrSubmissionFailed = errors.New("quiz submission failed")
	// ErrNotifyFailed is returned when a checked submission could not be announced; calling MarkChecked again retries.
	ErrNotifyFailed = errors.New("learner notification failed")
	// ErrProgressUnavailable is returned when stored progress could not be read.
	ErrProgressUnavailable = errors.New("progress unavailable")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("record not found")
)
