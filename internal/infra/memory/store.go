package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"course-progress-service/internal/domain"
)

// Store is an in-memory persistence API: lesson states, course progress,
// answers and quiz submissions. It backs local runs and tests.
type Store struct {
	now func() time.Time

	mu          sync.RWMutex
	lessons     map[progressKey]domain.LessonProgress
	courses     map[progressKey]domain.CourseProgress
	answers     map[string]domain.UserAnswer // by answer ID
	answerIndex map[answerKey]string
	submissions map[string]domain.QuizSubmission // by submission ID
	subIndex    map[progressKey]string
}

type progressKey struct{ learnerID, id string }

type answerKey struct{ learnerID, lessonID, questionID string }

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock is test-only for deterministic timestamps.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		now:         now,
		lessons:     make(map[progressKey]domain.LessonProgress),
		courses:     make(map[progressKey]domain.CourseProgress),
		answers:     make(map[string]domain.UserAnswer),
		answerIndex: make(map[answerKey]string),
		submissions: make(map[string]domain.QuizSubmission),
		subIndex:    make(map[progressKey]string),
	}
}

func (s *Store) GetLessonState(_ context.Context, learnerID, lessonID string) (domain.LessonProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.lessons[progressKey{learnerID, lessonID}]
	if !ok {
		return domain.LessonProgress{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListLessonStates(_ context.Context, learnerID string) ([]domain.LessonProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.LessonProgress
	for k, p := range s.lessons {
		if k.learnerID == learnerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessonID < out[j].LessonID })
	return out, nil
}

// PatchLessonState stores p unless the stored state is already ahead of it.
func (s *Store) PatchLessonState(_ context.Context, p domain.LessonProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := progressKey{p.LearnerID, p.LessonID}
	if cur, ok := s.lessons[k]; ok && cur.Ahead(p) {
		return nil
	}
	s.lessons[k] = p
	return nil
}

func (s *Store) GetCourseProgress(_ context.Context, learnerID, courseID string) (domain.CourseProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.courses[progressKey{learnerID, courseID}]
	if !ok {
		return domain.CourseProgress{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListCourseProgress(_ context.Context, learnerID string) ([]domain.CourseProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CourseProgress
	for k, p := range s.courses {
		if k.learnerID == learnerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out, nil
}

func (s *Store) PatchCourseProgress(_ context.Context, p domain.CourseProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := progressKey{p.LearnerID, p.CourseID}
	if cur, ok := s.courses[k]; ok && cur.Ahead(p) {
		return nil
	}
	s.courses[k] = p
	return nil
}

// UpsertAnswer keys answers by (learner, lesson, question). A second write keeps
// the first ID and the instructor feedback.
func (s *Store) UpsertAnswer(_ context.Context, a domain.UserAnswer) (domain.UserAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := answerKey{a.LearnerID, a.LessonID, a.QuestionID}
	if id, ok := s.answerIndex[k]; ok {
		cur := s.answers[id]
		cur.Answer = a.Answer
		cur.IsCorrect = a.IsCorrect
		cur.Variant = a.Variant
		cur.UpdatedAt = a.UpdatedAt
		s.answers[id] = cur
		return cur, nil
	}
	s.answers[a.ID] = a
	s.answerIndex[k] = a.ID
	return a, nil
}

func (s *Store) GetAnswer(_ context.Context, answerID string) (domain.UserAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[answerID]
	if !ok {
		return domain.UserAnswer{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAnswers(_ context.Context, learnerID, lessonID string) ([]domain.UserAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.UserAnswer
	for k, id := range s.answerIndex {
		if k.learnerID == learnerID && k.lessonID == lessonID {
			out = append(out, s.answers[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (s *Store) PatchAnswerFeedback(_ context.Context, answerID string, fb domain.AnswerFeedback) (domain.UserAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[answerID]
	if !ok {
		return domain.UserAnswer{}, domain.ErrNotFound
	}
	if fb.Text != nil {
		a.TeacherFeedback = *fb.Text
	}
	if fb.AudioURL != nil {
		a.TeacherAudioFeedbackURL = *fb.AudioURL
	}
	a.UpdatedAt = s.now()
	s.answers[answerID] = a
	return a, nil
}

func (s *Store) CreateSubmission(_ context.Context, sub domain.QuizSubmission) (domain.QuizSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := progressKey{sub.LearnerID, sub.LessonID}
	if id, ok := s.subIndex[k]; ok {
		return s.submissions[id], nil
	}
	sub.IsChecked = false
	sub.CheckedAt = nil
	s.submissions[sub.ID] = sub
	s.subIndex[k] = sub.ID
	return sub, nil
}

func (s *Store) GetSubmission(_ context.Context, id string) (domain.QuizSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return domain.QuizSubmission{}, domain.ErrNotFound
	}
	return sub, nil
}

func (s *Store) FindSubmission(_ context.Context, learnerID, lessonID string) (domain.QuizSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.subIndex[progressKey{learnerID, lessonID}]
	if !ok {
		return domain.QuizSubmission{}, domain.ErrNotFound
	}
	return s.submissions[id], nil
}

func (s *Store) ListSubmissions(_ context.Context, checked bool) ([]domain.QuizSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.QuizSubmission
	for _, sub := range s.submissions {
		if sub.IsChecked == checked {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) MarkChecked(_ context.Context, id string) (domain.QuizSubmission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return domain.QuizSubmission{}, false, domain.ErrNotFound
	}
	if sub.IsChecked {
		return sub, false, nil
	}
	now := s.now()
	sub.IsChecked = true
	sub.CheckedAt = &now
	s.submissions[id] = sub
	return sub, true, nil
}

func (s *Store) ClaimNotification(_ context.Context, id string) (domain.QuizSubmission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return domain.QuizSubmission{}, false, domain.ErrNotFound
	}
	if !sub.IsChecked || sub.NotifiedAt != nil {
		return sub, false, nil
	}
	now := s.now()
	sub.NotifiedAt = &now
	s.submissions[id] = sub
	return sub, true, nil
}

func (s *Store) ReleaseNotification(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return domain.ErrNotFound
	}
	sub.NotifiedAt = nil
	s.submissions[id] = sub
	return nil
}

func (s *Store) SetQuizFeedback(_ context.Context, id, text string) (domain.QuizSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return domain.QuizSubmission{}, domain.ErrNotFound
	}
	sub.Feedback = text
	s.submissions[id] = sub
	return sub, nil
}
