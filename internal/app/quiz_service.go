package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"course-progress-service/internal/domain"
	"course-progress-service/internal/evaluator"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// QuizService buffers quiz drafts and submits them as one unit of work.
type QuizService struct {
	buffers     BufferStore
	answers     AnswerStore
	submissions SubmissionStore
	progression *ProgressionService
	maxParallel int
	now         func() time.Time
}

// QuizOption configures a QuizService.
type QuizOption func(*QuizService)

// WithMaxParallel bounds the number of concurrent answer writes on submit.
func WithMaxParallel(n int) QuizOption { return func(s *QuizService) { s.maxParallel = n } }

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) QuizOption { return func(s *QuizService) { s.now = now } }

func NewQuizService(buffers BufferStore, answers AnswerStore, submissions SubmissionStore, progression *ProgressionService, opts ...QuizOption) *QuizService {
	s := &QuizService{
		buffers:     buffers,
		answers:     answers,
		submissions: submissions,
		progression: progression,
		maxParallel: 8,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SubmissionResult is the outcome of a successful quiz submission.
type SubmissionResult struct {
	Submission domain.QuizSubmission `json:"submission"`
	Answers    []domain.UserAnswer   `json:"answers,omitempty"`
	Completion Completion            `json:"completion"`
	// Replayed is set when the quiz had already been submitted.
	Replayed bool `json:"replayed,omitempty"`
}

// BufferAnswer stores a draft answer, replacing any earlier draft for the question.
func (s *QuizService) BufferAnswer(ctx context.Context, learnerID, courseID, lessonID, questionID string, answer domain.Answer) (domain.QuizBuffer, error) {
	ref, progress, err := s.quizLesson(ctx, learnerID, courseID, lessonID)
	if err != nil {
		return domain.QuizBuffer{}, err
	}
	if progress.Completed {
		return domain.QuizBuffer{}, domain.ErrQuizCompleted
	}
	idx := ref.Lesson.QuestionIndex(questionID)
	if idx < 0 {
		return domain.QuizBuffer{}, domain.ErrQuestionNotFound
	}
	if idx > progress.CurrentQuestion {
		return domain.QuizBuffer{}, domain.ErrQuestionLocked
	}
	if err := evaluator.Validate(ref.Lesson.Questions[idx], answer); err != nil {
		return domain.QuizBuffer{}, err
	}

	buf, _, err := s.buffers.LoadBuffer(ctx, learnerID, lessonID)
	if err != nil {
		return domain.QuizBuffer{}, fmt.Errorf("load quiz buffer: %w", err)
	}
	buf.LearnerID, buf.CourseID, buf.LessonID = learnerID, courseID, lessonID
	buf.Put(domain.Draft{QuestionID: questionID, Answer: answer, UpdatedAt: s.now()})
	if err := s.buffers.SaveBuffer(ctx, buf); err != nil {
		return domain.QuizBuffer{}, fmt.Errorf("save quiz buffer: %w", err)
	}

	if last := len(ref.Lesson.Questions) - 1; idx < last {
		s.progression.progress.AdvanceQuestion(ctx, learnerID, lessonID, idx+1)
	}
	return buf, nil
}

// ResumeQuiz returns the drafts of an interrupted attempt. Without a local buffer
// the drafts are rebuilt from answers already stored remotely.
func (s *QuizService) ResumeQuiz(ctx context.Context, learnerID, courseID, lessonID string) (domain.QuizBuffer, error) {
	ref, progress, err := s.quizLesson(ctx, learnerID, courseID, lessonID)
	if err != nil {
		return domain.QuizBuffer{}, err
	}
	if progress.Completed {
		return domain.QuizBuffer{}, domain.ErrQuizCompleted
	}
	buf, ok, err := s.buffers.LoadBuffer(ctx, learnerID, lessonID)
	if err != nil {
		return domain.QuizBuffer{}, fmt.Errorf("load quiz buffer: %w", err)
	}
	if ok {
		return buf, nil
	}

	buf = domain.QuizBuffer{LearnerID: learnerID, CourseID: courseID, LessonID: lessonID}
	stored, err := s.answers.ListAnswers(ctx, learnerID, lessonID)
	if err != nil {
		log.Printf("resume quiz %s/%s: %v", learnerID, lessonID, err)
		return buf, nil
	}
	byQuestion := make(map[string]domain.UserAnswer, len(stored))
	for _, a := range stored {
		byQuestion[a.QuestionID] = a
	}
	for _, q := range ref.Lesson.Questions {
		if a, ok := byQuestion[q.ID]; ok {
			buf.Put(domain.Draft{QuestionID: q.ID, Answer: a.Answer, UpdatedAt: a.UpdatedAt})
		}
	}
	if len(buf.Drafts) > 0 {
		if err := s.buffers.SaveBuffer(ctx, buf); err != nil {
			log.Printf("save resumed quiz buffer %s/%s: %v", learnerID, lessonID, err)
		}
	}
	return buf, nil
}

// SubmitQuiz writes every buffered answer concurrently and waits for all of them.
// Only when every write succeeded is the submission recorded, the lesson
// completed and the buffer dropped; otherwise the buffer is kept for a retry.
func (s *QuizService) SubmitQuiz(ctx context.Context, learnerID, courseID, lessonID string) (SubmissionResult, error) {
	ref, progress, err := s.quizLesson(ctx, learnerID, courseID, lessonID)
	if err != nil {
		return SubmissionResult{}, err
	}
	if progress.Completed {
		return s.replayed(ctx, learnerID, courseID, lessonID)
	}

	buf, _, err := s.buffers.LoadBuffer(ctx, learnerID, lessonID)
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("load quiz buffer: %w", err)
	}
	now := s.now()
	pending := make([]domain.UserAnswer, 0, len(ref.Lesson.Questions))
	for _, q := range ref.Lesson.Questions {
		draft, ok := buf.Get(q.ID)
		if !ok {
			return SubmissionResult{}, fmt.Errorf("%w: question %s", domain.ErrQuizIncomplete, q.ID)
		}
		res, err := evaluator.Evaluate(q, draft.Answer)
		if err != nil {
			return SubmissionResult{}, err
		}
		pending = append(pending, domain.UserAnswer{
			ID:         uuid.NewString(),
			LearnerID:  learnerID,
			CourseID:   courseID,
			LessonID:   lessonID,
			QuestionID: q.ID,
			Variant:    q.Variant,
			Answer:     draft.Answer,
			IsCorrect:  evaluator.StoredCorrectness(q, res),
			UpdatedAt:  now,
		})
	}

	stored := make([]domain.UserAnswer, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	if s.maxParallel > 0 {
		g.SetLimit(s.maxParallel)
	}
	for i := range pending {
		i := i
		g.Go(func() error {
			a, err := s.answers.UpsertAnswer(gctx, pending[i])
			if err != nil {
				return fmt.Errorf("answer %s: %w", pending[i].QuestionID, err)
			}
			stored[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SubmissionResult{}, fmt.Errorf("%w: %w", domain.ErrSubmissionFailed, err)
	}

	sub, err := s.submissions.CreateSubmission(ctx, domain.QuizSubmission{
		ID:          uuid.NewString(),
		LearnerID:   learnerID,
		CourseID:    courseID,
		LessonID:    lessonID,
		SubmittedAt: now,
	})
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("%w: create submission: %w", domain.ErrSubmissionFailed, err)
	}
	completion, err := s.progression.CompleteQuiz(ctx, learnerID, courseID, lessonID)
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("%w: complete lesson: %w", domain.ErrSubmissionFailed, err)
	}
	if err := s.buffers.DeleteBuffer(ctx, learnerID, lessonID); err != nil {
		log.Printf("drop quiz buffer %s/%s: %v", learnerID, lessonID, err)
	}
	return SubmissionResult{Submission: sub, Answers: stored, Completion: completion}, nil
}

// replayed answers a submit for a quiz that is already completed.
func (s *QuizService) replayed(ctx context.Context, learnerID, courseID, lessonID string) (SubmissionResult, error) {
	sub, err := s.submissions.FindSubmission(ctx, learnerID, lessonID)
	if errors.Is(err, domain.ErrNotFound) {
		return SubmissionResult{}, domain.ErrQuizCompleted
	}
	if err != nil {
		return SubmissionResult{}, err
	}
	next, err := s.progression.Next(ctx, courseID, lessonID)
	if err != nil {
		return SubmissionResult{}, err
	}
	return SubmissionResult{Submission: sub, Completion: Completion{Next: next}, Replayed: true}, nil
}

func (s *QuizService) quizLesson(ctx context.Context, learnerID, courseID, lessonID string) (domain.LessonRef, domain.LessonProgress, error) {
	_, ref, progress, _, err := s.progression.enter(ctx, learnerID, courseID, lessonID)
	if err != nil {
		return domain.LessonRef{}, domain.LessonProgress{}, err
	}
	if ref.Lesson.Type != domain.LessonQuiz {
		return domain.LessonRef{}, domain.LessonProgress{}, domain.ErrWrongLessonType
	}
	return ref, progress, nil
}
