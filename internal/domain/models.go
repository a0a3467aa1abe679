package domain

// LessonType determines how a lesson is completed.
type LessonType string

const (
	LessonInstructional LessonType = "instructional"
	LessonPractice      LessonType = "practice"
	LessonQuiz          LessonType = "quiz"
)

// Course is the root of the content tree. Chapter order is slice order.
type Course struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Active   bool      `json:"active"`
	Chapters []Chapter `json:"chapters"`
}

// Chapter groups an ordered list of lessons.
type Chapter struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Lessons []Lesson `json:"lessons"`
}

// Lesson holds ordered questions for practice and quiz lessons.
type Lesson struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Type      LessonType `json:"type"`
	Questions []Question `json:"questions,omitempty"`
}

// LessonRef locates a lesson inside a course.
type LessonRef struct {
	ChapterIndex int
	LessonIndex  int
	Chapter      *Chapter
	Lesson       *Lesson
}

// FindLesson returns the position of a lesson within the course.
func (c *Course) FindLesson(lessonID string) (LessonRef, bool) {
	for ci := range c.Chapters {
		chapter := &c.Chapters[ci]
		for li := range chapter.Lessons {
			if chapter.Lessons[li].ID == lessonID {
				return LessonRef{ChapterIndex: ci, LessonIndex: li, Chapter: chapter, Lesson: &chapter.Lessons[li]}, true
			}
		}
	}
	return LessonRef{}, false
}

// FirstLesson returns the first lesson of the first non-empty chapter.
func (c *Course) FirstLesson() (LessonRef, bool) {
	for ci := range c.Chapters {
		if len(c.Chapters[ci].Lessons) > 0 {
			return LessonRef{ChapterIndex: ci, LessonIndex: 0, Chapter: &c.Chapters[ci], Lesson: &c.Chapters[ci].Lessons[0]}, true
		}
	}
	return LessonRef{}, false
}

// PreviousLesson returns the lesson that precedes lessonID in linear course order,
// crossing chapter boundaries.
func (c *Course) PreviousLesson(lessonID string) (LessonRef, bool) {
	var prev *LessonRef
	for ci := range c.Chapters {
		chapter := &c.Chapters[ci]
		for li := range chapter.Lessons {
			if chapter.Lessons[li].ID == lessonID {
				if prev == nil {
					return LessonRef{}, false
				}
				return *prev, true
			}
			prev = &LessonRef{ChapterIndex: ci, LessonIndex: li, Chapter: chapter, Lesson: &chapter.Lessons[li]}
		}
	}
	return LessonRef{}, false
}

// QuestionIndex returns the position of a question in the lesson or -1.
func (l *Lesson) QuestionIndex(questionID string) int {
	for i := range l.Questions {
		if l.Questions[i].ID == questionID {
			return i
		}
	}
	return -1
}

// NextKind tells the caller where navigation goes after a completed lesson.
type NextKind string

const (
	NextLesson  NextKind = "lesson"
	NextChapter NextKind = "chapter"
	NextNone    NextKind = "none"
)

// NextUnit is the next navigable unit after a lesson completes.
type NextUnit struct {
	Kind      NextKind `json:"kind"`
	ChapterID string   `json:"chapterId,omitempty"`
	LessonID  string   `json:"lessonId,omitempty"`
}
