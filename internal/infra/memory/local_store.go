package memory

import (
	"context"
	"sync"

	"course-progress-service/internal/domain"
)

// LocalStore keeps progress snapshots and quiz buffers in process memory.
// Values are copied in and out so callers never share maps.
type LocalStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.ProgressSnapshot
	buffers   map[string]map[string]domain.QuizBuffer // learner -> lesson
}

func NewLocalStore() *LocalStore {
	return &LocalStore{
		snapshots: make(map[string]domain.ProgressSnapshot),
		buffers:   make(map[string]map[string]domain.QuizBuffer),
	}
}

func (s *LocalStore) LoadSnapshot(_ context.Context, learnerID string) (domain.ProgressSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[learnerID]
	if !ok {
		return domain.ProgressSnapshot{}, false, nil
	}
	return copySnapshot(snap), true, nil
}

func (s *LocalStore) SaveSnapshot(_ context.Context, snap domain.ProgressSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.LearnerID] = copySnapshot(snap)
	return nil
}

func (s *LocalStore) ClearLearner(_ context.Context, learnerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, learnerID)
	delete(s.buffers, learnerID)
	return nil
}

func (s *LocalStore) LoadBuffer(_ context.Context, learnerID, lessonID string) (domain.QuizBuffer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf, ok := s.buffers[learnerID][lessonID]
	if !ok {
		return domain.QuizBuffer{LearnerID: learnerID, LessonID: lessonID}, false, nil
	}
	return copyBuffer(buf), true, nil
}

func (s *LocalStore) SaveBuffer(_ context.Context, buf domain.QuizBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lessons, ok := s.buffers[buf.LearnerID]
	if !ok {
		lessons = make(map[string]domain.QuizBuffer)
		s.buffers[buf.LearnerID] = lessons
	}
	lessons[buf.LessonID] = copyBuffer(buf)
	return nil
}

func (s *LocalStore) DeleteBuffer(_ context.Context, learnerID, lessonID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buffers[learnerID], lessonID)
	return nil
}

func copySnapshot(snap domain.ProgressSnapshot) domain.ProgressSnapshot {
	out := domain.NewSnapshot(snap.LearnerID)
	out.SavedAt = snap.SavedAt
	for k, v := range snap.Lessons {
		out.Lessons[k] = v
	}
	for k, v := range snap.Courses {
		out.Courses[k] = v
	}
	return out
}

func copyBuffer(buf domain.QuizBuffer) domain.QuizBuffer {
	out := buf
	out.Drafts = append([]domain.Draft(nil), buf.Drafts...)
	return out
}
