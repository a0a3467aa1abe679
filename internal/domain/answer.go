package domain

import "time"

// UserAnswer is a persisted answer keyed by (LearnerID, QuestionID, LessonID).
// IsCorrect is nil when correctness is left to an instructor.
type UserAnswer struct {
	ID                      string    `json:"id"`
	LearnerID               string    `json:"learnerId"`
	CourseID                string    `json:"courseId"`
	LessonID                string    `json:"lessonId"`
	QuestionID              string    `json:"questionId"`
	Variant                 Variant   `json:"variant"`
	Answer                  Answer    `json:"answer"`
	IsCorrect               *bool     `json:"isCorrect"`
	TeacherFeedback         string    `json:"teacherFeedback,omitempty"`
	TeacherAudioFeedbackURL string    `json:"teacherAudioFeedbackUrl,omitempty"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

// AnswerFeedback carries instructor feedback. Nil fields are left untouched.
type AnswerFeedback struct {
	Text     *string `json:"text,omitempty"`
	AudioURL *string `json:"audioUrl,omitempty"`
}

// Draft is one buffered quiz answer.
type Draft struct {
	QuestionID string    `json:"questionId"`
	Answer     Answer    `json:"answer"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// QuizBuffer holds draft answers for one quiz attempt until submission.
type QuizBuffer struct {
	LearnerID string  `json:"learnerId"`
	CourseID  string  `json:"courseId"`
	LessonID  string  `json:"lessonId"`
	Drafts    []Draft `json:"drafts"`
}

// Put replaces the draft for the question in place, or appends it.
func (b *QuizBuffer) Put(d Draft) {
	for i := range b.Drafts {
		if b.Drafts[i].QuestionID == d.QuestionID {
			b.Drafts[i] = d
			return
		}
	}
	b.Drafts = append(b.Drafts, d)
}

// Get returns the draft for a question.
func (b *QuizBuffer) Get(questionID string) (Draft, bool) {
	for _, d := range b.Drafts {
		if d.QuestionID == questionID {
			return d, true
		}
	}
	return Draft{}, false
}

// QuizSubmission records a submitted quiz. IsChecked flips once, false to true.
type QuizSubmission struct {
	ID          string     `json:"id"`
	LearnerID   string     `json:"learnerId"`
	CourseID    string     `json:"courseId"`
	LessonID    string     `json:"lessonId"`
	IsChecked   bool       `json:"isChecked"`
	Feedback    string     `json:"feedback,omitempty"`
	SubmittedAt time.Time  `json:"submittedAt"`
	CheckedAt   *time.Time `json:"checkedAt,omitempty"`
	// NotifiedAt is set once the learner was told about the check.
	NotifiedAt *time.Time `json:"notifiedAt,omitempty"`
}

// NotificationKind tells learner clients how to render a notification.
type NotificationKind string

const NotificationSubmissionChecked NotificationKind = "submission_checked"

// Notification is delivered to a learner through the notification channel.
type Notification struct {
	ID           string           `json:"id"`
	LearnerID    string           `json:"learnerId"`
	Kind         NotificationKind `json:"kind"`
	SubmissionID string           `json:"submissionId"`
	LessonID     string           `json:"lessonId"`
	CreatedAt    time.Time        `json:"createdAt"`
}
