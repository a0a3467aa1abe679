package evaluator

import (
	"fmt"

	"course-progress-service/internal/domain"
)

// ValidateQuestion runs the authoring-time checks a question must pass before it
// can be served. Loaders call it so evaluation never sees a malformed question.
func ValidateQuestion(q domain.Question) error {
	if q.ID == "" {
		return fmt.Errorf("%w: missing id", domain.ErrInvalidQuestion)
	}
	switch q.Variant {
	case domain.VariantMultipleChoice:
		if q.MultipleChoice == nil {
			return missingPayload(q)
		}
		if !contains(q.MultipleChoice.Options, q.MultipleChoice.Correct) {
			return badQuestion(q, "correct option %q is not among the options", q.MultipleChoice.Correct)
		}
	case domain.VariantTrueFalse:
		if q.TrueFalse == nil {
			return missingPayload(q)
		}
	case domain.VariantOpenEnded:
	case domain.VariantMatching:
		if q.Matching == nil {
			return missingPayload(q)
		}
		completed := 0
		for _, p := range q.Matching.Pairs {
			if !p.Blank() {
				completed++
			}
		}
		if completed < minFilled {
			return badQuestion(q, "needs at least %d completed pairs, has %d", minFilled, completed)
		}
	case domain.VariantFillTyping, domain.VariantFillDragDrop:
		if q.FillBlank == nil {
			return missingPayload(q)
		}
		if len(q.FillBlank.Blanks) < minFilled {
			return badQuestion(q, "needs at least %d blanks, has %d", minFilled, len(q.FillBlank.Blanks))
		}
		seen := make(map[string]struct{}, len(q.FillBlank.Blanks))
		for _, b := range q.FillBlank.Blanks {
			if b.ID == "" || b.Value == "" {
				return badQuestion(q, "blank with empty id or value")
			}
			if _, dup := seen[b.ID]; dup {
				return badQuestion(q, "duplicate blank %q", b.ID)
			}
			seen[b.ID] = struct{}{}
		}
	case domain.VariantFlipCard:
		if q.FlipCard == nil {
			return missingPayload(q)
		}
	case domain.VariantAudioVideo:
		if q.Media == nil {
			return missingPayload(q)
		}
		if q.Media.Kind != domain.MediaAudio && q.Media.Kind != domain.MediaVideo {
			return badQuestion(q, "unknown media kind %q", q.Media.Kind)
		}
	default:
		return badQuestion(q, "unknown variant %q", q.Variant)
	}
	return nil
}

// ValidateCourse checks every question of every lesson and the lesson types.
func ValidateCourse(c domain.Course) error {
	for _, chapter := range c.Chapters {
		for _, lesson := range chapter.Lessons {
			switch lesson.Type {
			case domain.LessonInstructional:
			case domain.LessonPractice, domain.LessonQuiz:
				if len(lesson.Questions) == 0 {
					return fmt.Errorf("course %s: lesson %s has no questions", c.ID, lesson.ID)
				}
			default:
				return fmt.Errorf("course %s: lesson %s has unknown type %q", c.ID, lesson.ID, lesson.Type)
			}
			for _, q := range lesson.Questions {
				if err := ValidateQuestion(q); err != nil {
					return fmt.Errorf("course %s: lesson %s: %w", c.ID, lesson.ID, err)
				}
			}
		}
	}
	return nil
}

func badQuestion(q domain.Question, format string, args ...any) error {
	return fmt.Errorf("%w: question %s: %s", domain.ErrInvalidQuestion, q.ID, fmt.Sprintf(format, args...))
}
