package domain

import "time"

// LessonState is the explicit per-lesson state machine.
type LessonState string

const (
	StateNotStarted LessonState = "not_started"
	StateInProgress LessonState = "in_progress"
	StateCompleted  LessonState = "completed"
)

// LessonProgress is keyed by (LearnerID, CourseID, LessonID).
// CurrentQuestion never decreases while Completed is false.
type LessonProgress struct {
	LearnerID       string    `json:"learnerId"`
	CourseID        string    `json:"courseId"`
	LessonID        string    `json:"lessonId"`
	CurrentQuestion int       `json:"currentQuestion"`
	InProgress      bool      `json:"isInProgress"`
	Completed       bool      `json:"isCompleted"`
	Notes           string    `json:"notes,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// State folds the stored flags into the state machine.
func (p LessonProgress) State() LessonState {
	switch {
	case p.Completed:
		return StateCompleted
	case p.InProgress:
		return StateInProgress
	default:
		return StateNotStarted
	}
}

// Ahead reports whether p carries strictly more progress than other.
func (p LessonProgress) Ahead(other LessonProgress) bool {
	if p.Completed != other.Completed {
		return p.Completed
	}
	if p.Completed {
		return false
	}
	if p.CurrentQuestion != other.CurrentQuestion {
		return p.CurrentQuestion > other.CurrentQuestion
	}
	return p.InProgress && !other.InProgress
}

// CourseProgress is keyed by (LearnerID, CourseID).
type CourseProgress struct {
	LearnerID  string    `json:"learnerId"`
	CourseID   string    `json:"courseId"`
	InProgress bool      `json:"isInProgress"`
	Completed  bool      `json:"isCompleted"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Ahead reports whether p carries strictly more progress than other.
func (p CourseProgress) Ahead(other CourseProgress) bool {
	if p.Completed != other.Completed {
		return p.Completed
	}
	return !p.Completed && p.InProgress && !other.InProgress
}

// ProgressSnapshot is the JSON document kept in local storage per learner.
type ProgressSnapshot struct {
	LearnerID string                    `json:"learnerId"`
	Lessons   map[string]LessonProgress `json:"lessons"`
	Courses   map[string]CourseProgress `json:"courses"`
	SavedAt   time.Time                 `json:"savedAt"`
}

// NewSnapshot returns an empty snapshot for a learner.
func NewSnapshot(learnerID string) ProgressSnapshot {
	return ProgressSnapshot{
		LearnerID: learnerID,
		Lessons:   make(map[string]LessonProgress),
		Courses:   make(map[string]CourseProgress),
	}
}
