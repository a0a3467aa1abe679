package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"course-progress-service/internal/app"
	"course-progress-service/internal/domain"
)

func submittedFixture(t *testing.T) (*fixture, domain.QuizSubmission) {
	t.Helper()
	ctx := context.Background()
	f := newFixture(nil)
	if err := f.enrolledThroughPractice(ctx); err != nil {
		t.Fatalf("setup: %v", err)
	}
	bufferAll(t, f, ctx)
	res, err := f.quizzes.SubmitQuiz(ctx, "u1", "course-1", "final")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return f, res.Submission
}

func TestMarkCheckedNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	f, sub := submittedFixture(t)

	updates, cancel, err := f.hub.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	ungraded, _ := f.feedback.ListUngraded(ctx)
	if len(ungraded) != 1 || ungraded[0].ID != sub.ID {
		t.Fatalf("expected submission listed as ungraded, got %+v", ungraded)
	}

	checked, err := f.feedback.MarkChecked(ctx, sub.ID)
	if err != nil {
		t.Fatalf("mark checked: %v", err)
	}
	if !checked.IsChecked {
		t.Fatalf("expected checked submission")
	}
	again, err := f.feedback.MarkChecked(ctx, sub.ID)
	if err != nil || !again.IsChecked {
		t.Fatalf("expected idempotent check, got %+v err=%v", again, err)
	}

	select {
	case n := <-updates:
		if n.Kind != domain.NotificationSubmissionChecked || n.SubmissionID != sub.ID || n.LessonID != "final" {
			t.Fatalf("unexpected notification %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for notification")
	}
	select {
	case n := <-updates:
		t.Fatalf("expected a single notification, got another %+v", n)
	default:
	}

	ungraded, _ = f.feedback.ListUngraded(ctx)
	if len(ungraded) != 0 {
		t.Fatalf("expected no ungraded submissions, got %d", len(ungraded))
	}
}

func TestMarkCheckedRetriesFailedNotification(t *testing.T) {
	ctx := context.Background()
	f, sub := submittedFixture(t)
	notifier := &flakyNotifier{failures: 1}
	feedback := app.NewFeedbackService(f.store, f.store, notifier)

	checked, err := feedback.MarkChecked(ctx, sub.ID)
	if !errors.Is(err, domain.ErrNotifyFailed) {
		t.Fatalf("expected notify failure surfaced, got %v", err)
	}
	if !checked.IsChecked {
		t.Fatalf("expected submission checked despite failed notification")
	}
	stored, _ := f.store.GetSubmission(ctx, sub.ID)
	if stored.NotifiedAt != nil {
		t.Fatalf("expected notification claim released, got %v", stored.NotifiedAt)
	}

	checked, err = feedback.MarkChecked(ctx, sub.ID)
	if err != nil || checked.NotifiedAt == nil {
		t.Fatalf("expected retry to notify, got %+v err=%v", checked, err)
	}
	if _, err := feedback.MarkChecked(ctx, sub.ID); err != nil {
		t.Fatalf("third check: %v", err)
	}

	attempts, delivered := notifier.counts()
	if attempts != 2 || delivered != 1 {
		t.Fatalf("expected 2 attempts and 1 delivery, got %d and %d", attempts, delivered)
	}
	if notifier.delivered[0].SubmissionID != sub.ID {
		t.Fatalf("unexpected notification %+v", notifier.delivered[0])
	}
}

func TestFeedbackIsFrozenAfterCheck(t *testing.T) {
	ctx := context.Background()
	f, sub := submittedFixture(t)

	answers, err := f.feedback.SubmissionAnswers(ctx, sub.ID)
	if err != nil || len(answers) != 3 {
		t.Fatalf("expected 3 submission answers, got %d err=%v", len(answers), err)
	}
	var openEnded domain.UserAnswer
	for _, a := range answers {
		if a.QuestionID == "q3" {
			openEnded = a
		}
	}

	audio := "https://cdn.example.com/fb.mp3"
	updated, err := f.feedback.AttachFeedback(ctx, openEnded.ID, nil, &audio)
	if err != nil {
		t.Fatalf("attach audio: %v", err)
	}
	text := "Great description"
	updated, _ = f.feedback.AttachFeedback(ctx, openEnded.ID, &text, nil)
	if updated.TeacherFeedback != text || updated.TeacherAudioFeedbackURL != audio {
		t.Fatalf("expected independent feedback fields, got %+v", updated)
	}

	quizSub, err := f.feedback.AttachQuizFeedback(ctx, "u1", "final", "Solid work")
	if err != nil || quizSub.Feedback != "Solid work" {
		t.Fatalf("expected quiz feedback, got %+v err=%v", quizSub, err)
	}

	if _, err := f.feedback.MarkChecked(ctx, sub.ID); err != nil {
		t.Fatalf("mark checked: %v", err)
	}

	late := "changed my mind"
	frozen, err := f.feedback.AttachFeedback(ctx, openEnded.ID, &late, nil)
	if err != nil {
		t.Fatalf("late feedback: %v", err)
	}
	if frozen.TeacherFeedback != text {
		t.Fatalf("expected feedback unchanged after check, got %q", frozen.TeacherFeedback)
	}
	quizSub, _ = f.feedback.AttachQuizFeedback(ctx, "u1", "final", late)
	if quizSub.Feedback != "Solid work" {
		t.Fatalf("expected quiz feedback unchanged after check, got %q", quizSub.Feedback)
	}
}
