package app_test

import (
	"context"
	"errors"
	"testing"

	"course-progress-service/internal/domain"
	"course-progress-service/internal/infra/memory"
)

func bufferAll(t *testing.T, f *fixture, ctx context.Context) {
	t.Helper()
	drafts := []struct {
		id     string
		answer domain.Answer
	}{
		{"q1", domain.Answer{Choice: "B"}},
		{"q2", domain.Answer{Blanks: map[string]string{"1": "cat", "2": "dog"}}},
		{"q3", domain.Answer{Text: "A very loud parrot."}},
	}
	for _, d := range drafts {
		if _, err := f.quizzes.BufferAnswer(ctx, "u1", "course-1", "final", d.id, d.answer); err != nil {
			t.Fatalf("buffer %s: %v", d.id, err)
		}
	}
}

func TestSubmitQuizCommitsAllAnswers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	if err := f.enrolledThroughPractice(ctx); err != nil {
		t.Fatalf("setup: %v", err)
	}
	bufferAll(t, f, ctx)

	res, err := f.quizzes.SubmitQuiz(ctx, "u1", "course-1", "final")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if len(res.Answers) != 3 {
		t.Fatalf("expected 3 answers, got %d", len(res.Answers))
	}
	if c := res.Answers[0].IsCorrect; c == nil || !*c {
		t.Fatalf("expected q1 correct, got %v", c)
	}
	if c := res.Answers[1].IsCorrect; c == nil || !*c {
		t.Fatalf("expected q2 correct, got %v", c)
	}
	if c := res.Answers[2].IsCorrect; c != nil {
		t.Fatalf("expected q3 left to the instructor, got %v", *c)
	}
	if res.Submission.IsChecked {
		t.Fatalf("expected new submission unchecked")
	}
	if !res.Completion.LessonCompleted || !res.Completion.CourseCompleted || res.Completion.Next.Kind != domain.NextNone {
		t.Fatalf("unexpected completion %+v", res.Completion)
	}

	if _, ok, _ := f.local.LoadBuffer(ctx, "u1", "final"); ok {
		t.Fatalf("expected buffer dropped after submit")
	}
	if !f.progress.GetProgress(ctx, "u1", "final").Completed {
		t.Fatalf("expected quiz lesson completed")
	}

	again, err := f.quizzes.SubmitQuiz(ctx, "u1", "course-1", "final")
	if err != nil {
		t.Fatalf("replayed submit: %v", err)
	}
	if !again.Replayed || again.Submission.ID != res.Submission.ID {
		t.Fatalf("expected replay of %s, got %+v", res.Submission.ID, again)
	}
	open, _ := f.store.ListSubmissions(ctx, false)
	if len(open) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(open))
	}
}

func TestSubmitQuizFailureKeepsBuffer(t *testing.T) {
	ctx := context.Background()
	answers := &flakyAnswers{Store: memory.NewStore(), failOn: "q2"}
	f := newFixture(answers)
	if err := f.enrolledThroughPractice(ctx); err != nil {
		t.Fatalf("setup: %v", err)
	}
	bufferAll(t, f, ctx)

	_, err := f.quizzes.SubmitQuiz(ctx, "u1", "course-1", "final")
	if !errors.Is(err, domain.ErrSubmissionFailed) {
		t.Fatalf("expected submission failure, got %v", err)
	}
	if !errors.Is(err, errUnavailable) {
		t.Fatalf("expected cause to be kept, got %v", err)
	}
	buf, ok, _ := f.local.LoadBuffer(ctx, "u1", "final")
	if !ok || len(buf.Drafts) != 3 {
		t.Fatalf("expected buffer kept for retry, got %+v", buf)
	}
	if f.progress.GetProgress(ctx, "u1", "final").Completed {
		t.Fatalf("expected quiz not completed after a failed submit")
	}
	if _, err := f.store.FindSubmission(ctx, "u1", "final"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no submission record, got %v", err)
	}

	answers.heal()
	res, err := f.quizzes.SubmitQuiz(ctx, "u1", "course-1", "final")
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if len(res.Answers) != 3 {
		t.Fatalf("expected retry to commit every answer, got %d", len(res.Answers))
	}
	stored, _ := answers.ListAnswers(ctx, "u1", "final")
	if len(stored) != 3 {
		t.Fatalf("expected one stored answer per question, got %d", len(stored))
	}
}

func TestSubmitQuizRequiresEveryQuestion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	if err := f.enrolledThroughPractice(ctx); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := f.quizzes.BufferAnswer(ctx, "u1", "course-1", "final", "q1", domain.Answer{Choice: "A"}); err != nil {
		t.Fatalf("buffer: %v", err)
	}
	if _, err := f.quizzes.SubmitQuiz(ctx, "u1", "course-1", "final"); !errors.Is(err, domain.ErrQuizIncomplete) {
		t.Fatalf("expected incomplete quiz, got %v", err)
	}
}

func TestBufferAnswerReplacesDraftAndGuardsOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	if err := f.enrolledThroughPractice(ctx); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, err := f.quizzes.BufferAnswer(ctx, "u1", "course-1", "final", "q3", domain.Answer{Text: "early"}); !errors.Is(err, domain.ErrQuestionLocked) {
		t.Fatalf("expected locked question, got %v", err)
	}
	if _, err := f.quizzes.BufferAnswer(ctx, "u1", "course-1", "final", "q1", domain.Answer{Choice: "Z"}); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected invalid answer, got %v", err)
	}

	_, _ = f.quizzes.BufferAnswer(ctx, "u1", "course-1", "final", "q1", domain.Answer{Choice: "A"})
	buf, err := f.quizzes.BufferAnswer(ctx, "u1", "course-1", "final", "q1", domain.Answer{Choice: "C"})
	if err != nil {
		t.Fatalf("re-buffer: %v", err)
	}
	if len(buf.Drafts) != 1 || buf.Drafts[0].Answer.Choice != "C" {
		t.Fatalf("expected draft replaced in place, got %+v", buf.Drafts)
	}
	if got := f.progress.GetProgress(ctx, "u1", "final").CurrentQuestion; got != 1 {
		t.Fatalf("expected current question 1, got %d", got)
	}
}

func TestResumeQuizRebuildsFromStoredAnswers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	if err := f.enrolledThroughPractice(ctx); err != nil {
		t.Fatalf("setup: %v", err)
	}
	bufferAll(t, f, ctx)

	// simulate a lost local buffer after answers reached the remote
	_, _ = f.store.UpsertAnswer(ctx, domain.UserAnswer{ID: "a1", LearnerID: "u1", CourseID: "course-1", LessonID: "final", QuestionID: "q1", Answer: domain.Answer{Choice: "B"}})
	_ = f.local.DeleteBuffer(ctx, "u1", "final")

	buf, err := f.quizzes.ResumeQuiz(ctx, "u1", "course-1", "final")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if d, ok := buf.Get("q1"); !ok || d.Answer.Choice != "B" {
		t.Fatalf("expected q1 draft rebuilt, got %+v", buf)
	}
	if _, ok, _ := f.local.LoadBuffer(ctx, "u1", "final"); !ok {
		t.Fatalf("expected rebuilt buffer saved")
	}
}

func TestQuizOperationsRejectOtherLessonTypes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	if _, err := f.progression.Enroll(ctx, "u1", "course-1"); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if _, err := f.quizzes.BufferAnswer(ctx, "u1", "course-1", "intro", "x", domain.Answer{}); !errors.Is(err, domain.ErrWrongLessonType) {
		t.Fatalf("expected wrong lesson type, got %v", err)
	}
}
