package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"course-progress-service/internal/domain"
	"github.com/google/uuid"
)

// FeedbackService is the instructor side: it reads committed submissions,
// attaches feedback and marks submissions checked. It never sees quiz buffers.
type FeedbackService struct {
	submissions SubmissionStore
	answers     AnswerStore
	notifier    Notifier
	now         func() time.Time
}

func NewFeedbackService(submissions SubmissionStore, answers AnswerStore, notifier Notifier) *FeedbackService {
	return &FeedbackService{submissions: submissions, answers: answers, notifier: notifier, now: time.Now}
}

// ListUngraded returns unchecked submissions, oldest first.
func (s *FeedbackService) ListUngraded(ctx context.Context) ([]domain.QuizSubmission, error) {
	return s.submissions.ListSubmissions(ctx, false)
}

// SubmissionAnswers returns the answers committed with a submission.
func (s *FeedbackService) SubmissionAnswers(ctx context.Context, submissionID string) ([]domain.UserAnswer, error) {
	sub, err := s.submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	return s.answers.ListAnswers(ctx, sub.LearnerID, sub.LessonID)
}

// AttachFeedback sets text and/or audio feedback on one answer. Nil fields are
// left as they are. Once the submission is checked the answer is returned unchanged.
func (s *FeedbackService) AttachFeedback(ctx context.Context, answerID string, text, audioURL *string) (domain.UserAnswer, error) {
	answer, err := s.answers.GetAnswer(ctx, answerID)
	if err != nil {
		return domain.UserAnswer{}, err
	}
	if s.checked(ctx, answer.LearnerID, answer.LessonID) {
		return answer, nil
	}
	if text == nil && audioURL == nil {
		return answer, nil
	}
	return s.answers.PatchAnswerFeedback(ctx, answerID, domain.AnswerFeedback{Text: text, AudioURL: audioURL})
}

// AttachQuizFeedback sets the quiz-level feedback of a learner's submission.
func (s *FeedbackService) AttachQuizFeedback(ctx context.Context, learnerID, lessonID, text string) (domain.QuizSubmission, error) {
	sub, err := s.submissions.FindSubmission(ctx, learnerID, lessonID)
	if err != nil {
		return domain.QuizSubmission{}, err
	}
	if sub.IsChecked {
		return sub, nil
	}
	return s.submissions.SetQuizFeedback(ctx, sub.ID, text)
}

// MarkChecked flips the submission to checked and notifies the learner once.
// Delivery is claimed on the submission before Notify runs; when Notify fails the
// claim is released and ErrNotifyFailed is returned, so calling again retries the
// notification. Calls after a delivered notification return the record silently.
func (s *FeedbackService) MarkChecked(ctx context.Context, submissionID string) (domain.QuizSubmission, error) {
	sub, _, err := s.submissions.MarkChecked(ctx, submissionID)
	if err != nil {
		return domain.QuizSubmission{}, err
	}
	if sub.NotifiedAt != nil {
		return sub, nil
	}
	claimed, ok, err := s.submissions.ClaimNotification(ctx, sub.ID)
	if err != nil {
		return sub, fmt.Errorf("%w: %w", domain.ErrNotifyFailed, err)
	}
	if !ok {
		return claimed, nil
	}
	n := domain.Notification{
		ID:           uuid.NewString(),
		LearnerID:    sub.LearnerID,
		Kind:         domain.NotificationSubmissionChecked,
		SubmissionID: sub.ID,
		LessonID:     sub.LessonID,
		CreatedAt:    s.now(),
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		if rerr := s.submissions.ReleaseNotification(context.WithoutCancel(ctx), sub.ID); rerr != nil {
			log.Printf("release notification claim on %s: %v", sub.ID, rerr)
		}
		return sub, fmt.Errorf("%w: %w", domain.ErrNotifyFailed, err)
	}
	return claimed, nil
}

func (s *FeedbackService) checked(ctx context.Context, learnerID, lessonID string) bool {
	sub, err := s.submissions.FindSubmission(ctx, learnerID, lessonID)
	return err == nil && sub.IsChecked
}
