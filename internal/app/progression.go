package app

import (
	"context"
	"log"
	"time"

	"course-progress-service/internal/domain"
	"course-progress-service/internal/evaluator"
	"github.com/google/uuid"
)

// Transition names the state machine step an action took.
type Transition string

const (
	TransitionNone     Transition = "none"
	TransitionStart    Transition = "start"
	TransitionAdvance  Transition = "advance"
	TransitionComplete Transition = "complete"
	// TransitionRevise republishes an answer without touching lesson state.
	TransitionRevise Transition = "revise"
)

// LessonView is what a learner sees when opening a lesson.
type LessonView struct {
	CourseID   string                `json:"courseId"`
	ChapterID  string                `json:"chapterId"`
	Lesson     domain.Lesson         `json:"lesson"`
	Progress   domain.LessonProgress `json:"progress"`
	State      domain.LessonState    `json:"state"`
	Transition Transition            `json:"transition"`
	ReadOnly   bool                  `json:"readOnly"`
	Answers    []domain.UserAnswer   `json:"answers,omitempty"`
}

// Completion is the outcome of completing a lesson.
type Completion struct {
	Next            domain.NextUnit `json:"next"`
	LessonCompleted bool            `json:"lessonCompleted"`
	CourseCompleted bool            `json:"courseCompleted"`
}

// PracticeResult summarizes one practice answer.
type PracticeResult struct {
	QuestionID string                `json:"questionId"`
	Result     evaluator.Result      `json:"result"`
	Transition Transition            `json:"transition"`
	Progress   domain.LessonProgress `json:"progress"`
	Completion *Completion           `json:"completion,omitempty"`
}

// ProgressionService decides what a learner may access and what comes next.
type ProgressionService struct {
	courses  CourseRepository
	progress *ProgressCache
	answers  AnswerStore
	now      func() time.Time
}

func NewProgressionService(courses CourseRepository, progress *ProgressCache, answers AnswerStore) *ProgressionService {
	return &ProgressionService{courses: courses, progress: progress, answers: answers, now: time.Now}
}

// Enroll creates the learner's course progress and returns the first lesson.
func (s *ProgressionService) Enroll(ctx context.Context, learnerID, courseID string) (domain.NextUnit, error) {
	course, err := s.activeCourse(ctx, courseID)
	if err != nil {
		return domain.NextUnit{}, err
	}
	first, ok := course.FirstLesson()
	if !ok {
		return domain.NextUnit{}, domain.ErrLessonNotFound
	}
	if _, err := s.progress.CourseState(ctx, learnerID, courseID); err != nil {
		return domain.NextUnit{}, err
	}
	s.progress.EnrollCourse(ctx, learnerID, courseID)
	return domain.NextUnit{Kind: domain.NextLesson, ChapterID: first.Chapter.ID, LessonID: first.Lesson.ID}, nil
}

// OpenLesson checks navigability and applies the start transition on first view.
// Completed lessons are returned read-only together with the recorded answers.
func (s *ProgressionService) OpenLesson(ctx context.Context, learnerID, courseID, lessonID string) (LessonView, error) {
	_, ref, progress, transition, err := s.enter(ctx, learnerID, courseID, lessonID)
	if err != nil {
		return LessonView{}, err
	}
	view := LessonView{
		CourseID:   courseID,
		ChapterID:  ref.Chapter.ID,
		Lesson:     *ref.Lesson,
		Progress:   progress,
		State:      progress.State(),
		Transition: transition,
		ReadOnly:   progress.Completed && ref.Lesson.Type != domain.LessonPractice,
	}
	if progress.Completed && ref.Lesson.Type != domain.LessonInstructional {
		answers, err := s.answers.ListAnswers(ctx, learnerID, lessonID)
		if err != nil {
			log.Printf("list answers for %s/%s: %v", learnerID, lessonID, err)
		}
		view.Answers = answers
	}
	return view, nil
}

// ViewQuestion returns the question at index unless it has not been reached yet.
func (s *ProgressionService) ViewQuestion(ctx context.Context, learnerID, courseID, lessonID string, index int) (domain.Question, error) {
	_, ref, progress, _, err := s.enter(ctx, learnerID, courseID, lessonID)
	if err != nil {
		return domain.Question{}, err
	}
	if index < 0 || index >= len(ref.Lesson.Questions) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if !progress.Completed && index > progress.CurrentQuestion {
		return domain.Question{}, domain.ErrQuestionLocked
	}
	return ref.Lesson.Questions[index], nil
}

// AnswerPractice evaluates and records an answer in a practice lesson.
//
// A passing answer to the current question advances the lesson, or completes it
// on the last question. Open-ended and audio/video answers pass once given and
// are left to instructor feedback. Answers to earlier questions, or to any question of a
// completed lesson, are revisions: they are republished and leave state alone.
func (s *ProgressionService) AnswerPractice(ctx context.Context, learnerID, courseID, lessonID, questionID string, answer domain.Answer) (PracticeResult, error) {
	course, ref, progress, _, err := s.enter(ctx, learnerID, courseID, lessonID)
	if err != nil {
		return PracticeResult{}, err
	}
	if ref.Lesson.Type != domain.LessonPractice {
		return PracticeResult{}, domain.ErrWrongLessonType
	}
	idx := ref.Lesson.QuestionIndex(questionID)
	if idx < 0 {
		return PracticeResult{}, domain.ErrQuestionNotFound
	}
	if !progress.Completed && idx > progress.CurrentQuestion {
		return PracticeResult{}, domain.ErrQuestionLocked
	}
	question := ref.Lesson.Questions[idx]
	res, err := evaluator.Evaluate(question, answer)
	if err != nil {
		return PracticeResult{}, err
	}

	s.publishAnswer(ctx, domain.UserAnswer{
		LearnerID:  learnerID,
		CourseID:   courseID,
		LessonID:   lessonID,
		QuestionID: questionID,
		Variant:    question.Variant,
		Answer:     answer,
		IsCorrect:  res.IsCorrect(),
	})

	out := PracticeResult{QuestionID: questionID, Result: res, Transition: TransitionNone, Progress: progress}
	switch {
	case progress.Completed || idx < progress.CurrentQuestion:
		out.Transition = TransitionRevise
	case !res.Passes():
	case idx == len(ref.Lesson.Questions)-1:
		completion := s.complete(ctx, learnerID, course, ref)
		out.Transition = TransitionComplete
		out.Completion = &completion
	default:
		s.progress.AdvanceQuestion(ctx, learnerID, lessonID, idx+1)
		out.Transition = TransitionAdvance
	}
	out.Progress = s.progress.GetProgress(ctx, learnerID, lessonID)
	return out, nil
}

// CompleteInstructional is the explicit mark-complete action of instructional lessons.
func (s *ProgressionService) CompleteInstructional(ctx context.Context, learnerID, courseID, lessonID string) (Completion, error) {
	course, ref, _, _, err := s.enter(ctx, learnerID, courseID, lessonID)
	if err != nil {
		return Completion{}, err
	}
	if ref.Lesson.Type != domain.LessonInstructional {
		return Completion{}, domain.ErrWrongLessonType
	}
	return s.complete(ctx, learnerID, course, ref), nil
}

// CompleteQuiz completes a quiz lesson after its submission went through.
func (s *ProgressionService) CompleteQuiz(ctx context.Context, learnerID, courseID, lessonID string) (Completion, error) {
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return Completion{}, err
	}
	ref, ok := course.FindLesson(lessonID)
	if !ok {
		return Completion{}, domain.ErrLessonNotFound
	}
	if ref.Lesson.Type != domain.LessonQuiz {
		return Completion{}, domain.ErrWrongLessonType
	}
	s.progress.StartLesson(ctx, learnerID, courseID, lessonID)
	return s.complete(ctx, learnerID, course, ref), nil
}

// Next returns the unit that follows lessonID.
func (s *ProgressionService) Next(ctx context.Context, courseID, lessonID string) (domain.NextUnit, error) {
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return domain.NextUnit{}, err
	}
	ref, ok := course.FindLesson(lessonID)
	if !ok {
		return domain.NextUnit{}, domain.ErrLessonNotFound
	}
	return NextAfter(course, ref), nil
}

// NextAfter is the next lesson in the chapter, else the first lesson of the
// next non-empty chapter, else none.
func NextAfter(course domain.Course, ref domain.LessonRef) domain.NextUnit {
	if ref.LessonIndex+1 < len(ref.Chapter.Lessons) {
		return domain.NextUnit{Kind: domain.NextLesson, ChapterID: ref.Chapter.ID, LessonID: ref.Chapter.Lessons[ref.LessonIndex+1].ID}
	}
	for ci := ref.ChapterIndex + 1; ci < len(course.Chapters); ci++ {
		if chapter := course.Chapters[ci]; len(chapter.Lessons) > 0 {
			return domain.NextUnit{Kind: domain.NextChapter, ChapterID: chapter.ID, LessonID: chapter.Lessons[0].ID}
		}
	}
	return domain.NextUnit{Kind: domain.NextNone}
}

// locate loads an active course the learner is enrolled in and finds the lesson.
func (s *ProgressionService) locate(ctx context.Context, learnerID, courseID, lessonID string) (domain.Course, domain.LessonRef, error) {
	course, err := s.activeCourse(ctx, courseID)
	if err != nil {
		return domain.Course{}, domain.LessonRef{}, err
	}
	ref, ok := course.FindLesson(lessonID)
	if !ok {
		return domain.Course{}, domain.LessonRef{}, domain.ErrLessonNotFound
	}
	cp, err := s.progress.CourseState(ctx, learnerID, courseID)
	if err != nil {
		return domain.Course{}, domain.LessonRef{}, err
	}
	if !cp.InProgress && !cp.Completed {
		return domain.Course{}, domain.LessonRef{}, domain.ErrNotEnrolled
	}
	return course, ref, nil
}

// enter checks reachability and starts the lesson if needed.
func (s *ProgressionService) enter(ctx context.Context, learnerID, courseID, lessonID string) (domain.Course, domain.LessonRef, domain.LessonProgress, Transition, error) {
	course, ref, err := s.locate(ctx, learnerID, courseID, lessonID)
	if err != nil {
		return domain.Course{}, domain.LessonRef{}, domain.LessonProgress{}, TransitionNone, err
	}
	progress, err := s.progress.LessonState(ctx, learnerID, lessonID)
	if err != nil {
		return domain.Course{}, domain.LessonRef{}, domain.LessonProgress{}, TransitionNone, err
	}
	if progress.State() != domain.StateNotStarted {
		return course, ref, progress, TransitionNone, nil
	}
	if prev, ok := course.PreviousLesson(lessonID); ok {
		prevProgress, err := s.progress.LessonState(ctx, learnerID, prev.Lesson.ID)
		if err != nil {
			return domain.Course{}, domain.LessonRef{}, domain.LessonProgress{}, TransitionNone, err
		}
		if !prevProgress.Completed {
			return domain.Course{}, domain.LessonRef{}, domain.LessonProgress{}, TransitionNone, domain.ErrLessonLocked
		}
	}
	progress, started := s.progress.StartLesson(ctx, learnerID, courseID, lessonID)
	if !started && progress.State() == domain.StateNotStarted {
		return domain.Course{}, domain.LessonRef{}, domain.LessonProgress{}, TransitionNone, domain.ErrProgressUnavailable
	}
	if !started {
		return course, ref, progress, TransitionNone, nil
	}
	return course, ref, progress, TransitionStart, nil
}

func (s *ProgressionService) complete(ctx context.Context, learnerID string, course domain.Course, ref domain.LessonRef) Completion {
	out := Completion{
		LessonCompleted: s.progress.MarkLessonComplete(ctx, learnerID, ref.Lesson.ID),
		Next:            NextAfter(course, ref),
	}
	if out.Next.Kind == domain.NextNone {
		out.CourseCompleted = s.progress.MarkCourseComplete(ctx, learnerID, course.ID)
	}
	return out
}

func (s *ProgressionService) activeCourse(ctx context.Context, courseID string) (domain.Course, error) {
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return domain.Course{}, err
	}
	if !course.Active {
		return domain.Course{}, domain.ErrCourseInactive
	}
	return course, nil
}

// publishAnswer writes a practice answer through; failures are logged so the
// learner can keep going.
func (s *ProgressionService) publishAnswer(ctx context.Context, a domain.UserAnswer) {
	a.ID = uuid.NewString()
	a.UpdatedAt = s.now()
	if _, err := s.answers.UpsertAnswer(ctx, a); err != nil {
		log.Printf("publish answer %s/%s: %v", a.LearnerID, a.QuestionID, err)
	}
}
