package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"course-progress-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Store implements the progress, answer and submission persistence API on Postgres.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

const lessonCols = `learner_id, course_id, lesson_id, current_question, is_in_progress, is_completed, notes, updated_at`

func scanLesson(row pgx.Row) (domain.LessonProgress, error) {
	var p domain.LessonProgress
	err := row.Scan(&p.LearnerID, &p.CourseID, &p.LessonID, &p.CurrentQuestion, &p.InProgress, &p.Completed, &p.Notes, &p.UpdatedAt)
	return p, err
}

func (s *Store) GetLessonState(ctx context.Context, learnerID, lessonID string) (domain.LessonProgress, error) {
	p, err := scanLesson(s.pool.QueryRow(ctx,
		`SELECT `+lessonCols+` FROM lesson_progress WHERE learner_id=$1 AND lesson_id=$2`, learnerID, lessonID))
	if err != nil {
		return domain.LessonProgress{}, notFound(err, "get lesson state")
	}
	return p, nil
}

func (s *Store) ListLessonStates(ctx context.Context, learnerID string) ([]domain.LessonProgress, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+lessonCols+` FROM lesson_progress WHERE learner_id=$1 ORDER BY lesson_id`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list lesson states: %w", err)
	}
	defer rows.Close()
	var out []domain.LessonProgress
	for rows.Next() {
		p, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson state: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PatchLessonState upserts a lesson state. Completion and the question index never move backwards.
func (s *Store) PatchLessonState(ctx context.Context, p domain.LessonProgress) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO lesson_progress (`+lessonCols+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (learner_id, lesson_id) DO UPDATE SET
	course_id = EXCLUDED.course_id,
	current_question = GREATEST(lesson_progress.current_question, EXCLUDED.current_question),
	is_completed = lesson_progress.is_completed OR EXCLUDED.is_completed,
	is_in_progress = EXCLUDED.is_in_progress AND NOT (lesson_progress.is_completed OR EXCLUDED.is_completed),
	notes = EXCLUDED.notes,
	updated_at = EXCLUDED.updated_at`,
		p.LearnerID, p.CourseID, p.LessonID, p.CurrentQuestion, p.InProgress, p.Completed, p.Notes, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("patch lesson state: %w", err)
	}
	return nil
}

const courseCols = `learner_id, course_id, is_in_progress, is_completed, updated_at`

func scanCourse(row pgx.Row) (domain.CourseProgress, error) {
	var p domain.CourseProgress
	err := row.Scan(&p.LearnerID, &p.CourseID, &p.InProgress, &p.Completed, &p.UpdatedAt)
	return p, err
}

func (s *Store) GetCourseProgress(ctx context.Context, learnerID, courseID string) (domain.CourseProgress, error) {
	p, err := scanCourse(s.pool.QueryRow(ctx,
		`SELECT `+courseCols+` FROM course_progress WHERE learner_id=$1 AND course_id=$2`, learnerID, courseID))
	if err != nil {
		return domain.CourseProgress{}, notFound(err, "get course progress")
	}
	return p, nil
}

func (s *Store) ListCourseProgress(ctx context.Context, learnerID string) ([]domain.CourseProgress, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+courseCols+` FROM course_progress WHERE learner_id=$1 ORDER BY course_id`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list course progress: %w", err)
	}
	defer rows.Close()
	var out []domain.CourseProgress
	for rows.Next() {
		p, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course progress: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) PatchCourseProgress(ctx context.Context, p domain.CourseProgress) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO course_progress (`+courseCols+`)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (learner_id, course_id) DO UPDATE SET
	is_completed = course_progress.is_completed OR EXCLUDED.is_completed,
	is_in_progress = (course_progress.is_in_progress OR EXCLUDED.is_in_progress)
		AND NOT (course_progress.is_completed OR EXCLUDED.is_completed),
	updated_at = EXCLUDED.updated_at`,
		p.LearnerID, p.CourseID, p.InProgress, p.Completed, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("patch course progress: %w", err)
	}
	return nil
}

const answerCols = `id, learner_id, course_id, lesson_id, question_id, variant, answer, is_correct,
	teacher_feedback, teacher_audio_feedback_url, updated_at`

func scanAnswer(row pgx.Row) (domain.UserAnswer, error) {
	var (
		a       domain.UserAnswer
		variant string
		raw     []byte
	)
	err := row.Scan(&a.ID, &a.LearnerID, &a.CourseID, &a.LessonID, &a.QuestionID, &variant, &raw, &a.IsCorrect,
		&a.TeacherFeedback, &a.TeacherAudioFeedbackURL, &a.UpdatedAt)
	if err != nil {
		return domain.UserAnswer{}, err
	}
	a.Variant = domain.Variant(variant)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &a.Answer); err != nil {
			return domain.UserAnswer{}, fmt.Errorf("unmarshal answer %s: %w", a.ID, err)
		}
	}
	return a, nil
}

// UpsertAnswer is keyed by (learner, lesson, question); the first ID and any feedback survive.
func (s *Store) UpsertAnswer(ctx context.Context, a domain.UserAnswer) (domain.UserAnswer, error) {
	raw, err := json.Marshal(a.Answer)
	if err != nil {
		return domain.UserAnswer{}, err
	}
	out, err := scanAnswer(s.pool.QueryRow(ctx, `
INSERT INTO user_answers (id, learner_id, course_id, lesson_id, question_id, variant, answer, is_correct, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (learner_id, lesson_id, question_id) DO UPDATE SET
	variant = EXCLUDED.variant,
	answer = EXCLUDED.answer,
	is_correct = EXCLUDED.is_correct,
	updated_at = EXCLUDED.updated_at
RETURNING `+answerCols,
		a.ID, a.LearnerID, a.CourseID, a.LessonID, a.QuestionID, string(a.Variant), string(raw), a.IsCorrect, a.UpdatedAt))
	if err != nil {
		return domain.UserAnswer{}, fmt.Errorf("upsert answer: %w", err)
	}
	return out, nil
}

func (s *Store) GetAnswer(ctx context.Context, answerID string) (domain.UserAnswer, error) {
	a, err := scanAnswer(s.pool.QueryRow(ctx, `SELECT `+answerCols+` FROM user_answers WHERE id=$1`, answerID))
	if err != nil {
		return domain.UserAnswer{}, notFound(err, "get answer")
	}
	return a, nil
}

func (s *Store) ListAnswers(ctx context.Context, learnerID, lessonID string) ([]domain.UserAnswer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+answerCols+` FROM user_answers WHERE learner_id=$1 AND lesson_id=$2 ORDER BY question_id`,
		learnerID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()
	var out []domain.UserAnswer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) PatchAnswerFeedback(ctx context.Context, answerID string, fb domain.AnswerFeedback) (domain.UserAnswer, error) {
	a, err := scanAnswer(s.pool.QueryRow(ctx, `
UPDATE user_answers SET
	teacher_feedback = COALESCE($2, teacher_feedback),
	teacher_audio_feedback_url = COALESCE($3, teacher_audio_feedback_url),
	updated_at = $4
WHERE id = $1
RETURNING `+answerCols, answerID, fb.Text, fb.AudioURL, s.now()))
	if err != nil {
		return domain.UserAnswer{}, notFound(err, "patch answer feedback")
	}
	return a, nil
}

const submissionCols = `id, learner_id, course_id, lesson_id, is_checked, feedback, submitted_at, checked_at, notified_at`

func scanSubmission(row pgx.Row) (domain.QuizSubmission, error) {
	var sub domain.QuizSubmission
	err := row.Scan(&sub.ID, &sub.LearnerID, &sub.CourseID, &sub.LessonID, &sub.IsChecked, &sub.Feedback, &sub.SubmittedAt, &sub.CheckedAt, &sub.NotifiedAt)
	return sub, err
}

// CreateSubmission inserts once per (learner, lesson); a retry returns the existing row.
func (s *Store) CreateSubmission(ctx context.Context, sub domain.QuizSubmission) (domain.QuizSubmission, error) {
	_, err := s.pool.Exec(ctx, `
INSERT INTO quiz_submissions (id, learner_id, course_id, lesson_id, submitted_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (learner_id, lesson_id) DO NOTHING`,
		sub.ID, sub.LearnerID, sub.CourseID, sub.LessonID, sub.SubmittedAt)
	if err != nil {
		return domain.QuizSubmission{}, fmt.Errorf("create submission: %w", err)
	}
	return s.FindSubmission(ctx, sub.LearnerID, sub.LessonID)
}

func (s *Store) GetSubmission(ctx context.Context, id string) (domain.QuizSubmission, error) {
	sub, err := scanSubmission(s.pool.QueryRow(ctx, `SELECT `+submissionCols+` FROM quiz_submissions WHERE id=$1`, id))
	if err != nil {
		return domain.QuizSubmission{}, notFound(err, "get submission")
	}
	return sub, nil
}

func (s *Store) FindSubmission(ctx context.Context, learnerID, lessonID string) (domain.QuizSubmission, error) {
	sub, err := scanSubmission(s.pool.QueryRow(ctx,
		`SELECT `+submissionCols+` FROM quiz_submissions WHERE learner_id=$1 AND lesson_id=$2`, learnerID, lessonID))
	if err != nil {
		return domain.QuizSubmission{}, notFound(err, "find submission")
	}
	return sub, nil
}

func (s *Store) ListSubmissions(ctx context.Context, checked bool) ([]domain.QuizSubmission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+submissionCols+` FROM quiz_submissions WHERE is_checked=$1 ORDER BY submitted_at, id`, checked)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()
	var out []domain.QuizSubmission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// MarkChecked is a conditional update, so only one concurrent caller sees flipped=true.
func (s *Store) MarkChecked(ctx context.Context, id string) (domain.QuizSubmission, bool, error) {
	sub, err := scanSubmission(s.pool.QueryRow(ctx, `
UPDATE quiz_submissions SET is_checked = true, checked_at = $2
WHERE id = $1 AND NOT is_checked
RETURNING `+submissionCols, id, s.now()))
	if err == nil {
		return sub, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizSubmission{}, false, fmt.Errorf("mark checked: %w", err)
	}
	sub, err = s.GetSubmission(ctx, id)
	return sub, false, err
}

// ClaimNotification is conditional like MarkChecked: one caller wins the claim.
func (s *Store) ClaimNotification(ctx context.Context, id string) (domain.QuizSubmission, bool, error) {
	sub, err := scanSubmission(s.pool.QueryRow(ctx, `
UPDATE quiz_submissions SET notified_at = $2
WHERE id = $1 AND is_checked AND notified_at IS NULL
RETURNING `+submissionCols, id, s.now()))
	if err == nil {
		return sub, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizSubmission{}, false, fmt.Errorf("claim notification: %w", err)
	}
	sub, err = s.GetSubmission(ctx, id)
	return sub, false, err
}

func (s *Store) ReleaseNotification(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE quiz_submissions SET notified_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("release notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) SetQuizFeedback(ctx context.Context, id, text string) (domain.QuizSubmission, error) {
	sub, err := scanSubmission(s.pool.QueryRow(ctx,
		`UPDATE quiz_submissions SET feedback=$2 WHERE id=$1 RETURNING `+submissionCols, id, text))
	if err != nil {
		return domain.QuizSubmission{}, notFound(err, "set quiz feedback")
	}
	return sub, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
