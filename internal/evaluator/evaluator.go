// Package evaluator decides answer correctness for every question variant.
// Evaluation is pure: it never mutates the question or the answer.
package evaluator

import (
	"fmt"
	"strings"

	"course-progress-service/internal/domain"
)

// Result is the outcome of evaluating one answer.
//
// Determinate is false for variants graded by an instructor and for incomplete
// matching/fill-in-the-blank answers, in which case Correct is always false.
type Result struct {
	Determinate bool `json:"determinate"`
	Correct     bool `json:"correct"`
	Incomplete  bool `json:"incomplete,omitempty"`
}

// IsCorrect returns nil when the result is indeterminate.
func (r Result) IsCorrect() *bool {
	if !r.Determinate {
		return nil
	}
	c := r.Correct
	return &c
}

// Passes reports whether the answer lets a practice lesson move on: it is correct,
// or it is a complete answer left to an instructor.
func (r Result) Passes() bool {
	return r.Correct || (!r.Determinate && !r.Incomplete)
}

// minFilled is the smallest number of non-blank pairs or blanks a matching or
// fill-in-the-blank answer needs before it is judged at all.
const minFilled = 2

var (
	pending    = Result{}
	incomplete = Result{Incomplete: true}
)

func determinate(correct bool) Result {
	return Result{Determinate: true, Correct: correct}
}

// Evaluate validates the answer structurally and judges it. A validation error
// means the answer must be rejected and not persisted.
func Evaluate(q domain.Question, a domain.Answer) (Result, error) {
	switch q.Variant {
	case domain.VariantMultipleChoice:
		return evalMultipleChoice(q, a)
	case domain.VariantTrueFalse:
		return evalTrueFalse(q, a)
	case domain.VariantOpenEnded:
		if strings.TrimSpace(a.Text) == "" {
			return incomplete, nil
		}
		return pending, nil
	case domain.VariantAudioVideo:
		if strings.TrimSpace(a.MediaURL) == "" {
			return incomplete, nil
		}
		return pending, nil
	case domain.VariantMatching:
		return evalMatching(q, a)
	case domain.VariantFillTyping:
		return evalFillBlank(q, a, false)
	case domain.VariantFillDragDrop:
		return evalFillBlank(q, a, true)
	case domain.VariantFlipCard:
		if a.Flips < 0 {
			return Result{}, invalid(q, "negative flip count")
		}
		return determinate(a.Flips >= 1), nil
	default:
		return Result{}, fmt.Errorf("%w: question %s has unknown variant %q", domain.ErrInvalidQuestion, q.ID, q.Variant)
	}
}

// Validate only runs the structural checks of Evaluate.
func Validate(q domain.Question, a domain.Answer) error {
	_, err := Evaluate(q, a)
	return err
}

// StoredCorrectness is the correctness persisted with a quiz answer. Self-graded
// and instructor-graded variants are always stored as indeterminate.
func StoredCorrectness(q domain.Question, r Result) *bool {
	switch q.Variant {
	case domain.VariantOpenEnded, domain.VariantFlipCard, domain.VariantAudioVideo:
		return nil
	}
	return r.IsCorrect()
}

func evalMultipleChoice(q domain.Question, a domain.Answer) (Result, error) {
	mc := q.MultipleChoice
	if mc == nil {
		return Result{}, missingPayload(q)
	}
	if a.Choice == "" {
		return determinate(false), nil
	}
	if !contains(mc.Options, a.Choice) {
		return Result{}, invalid(q, "unknown option %q", a.Choice)
	}
	return determinate(a.Choice == mc.Correct), nil
}

func evalTrueFalse(q domain.Question, a domain.Answer) (Result, error) {
	tf := q.TrueFalse
	if tf == nil {
		return Result{}, missingPayload(q)
	}
	switch a.Choice {
	case "":
		return determinate(false), nil
	case "true":
		return determinate(tf.Correct), nil
	case "false":
		return determinate(!tf.Correct), nil
	default:
		return Result{}, invalid(q, "choice must be true or false, got %q", a.Choice)
	}
}

func evalMatching(q domain.Question, a domain.Answer) (Result, error) {
	m := q.Matching
	if m == nil {
		return Result{}, missingPayload(q)
	}
	authored := make(map[string]string, len(m.Pairs))
	for _, p := range m.Pairs {
		if !p.Blank() {
			authored[p.PromptID] = p.Value
		}
	}
	filled := 0
	for promptID, value := range a.Pairs {
		if _, ok := authored[promptID]; !ok {
			return Result{}, invalid(q, "unknown prompt %q", promptID)
		}
		if strings.TrimSpace(value) != "" {
			filled++
		}
	}
	if filled < minFilled {
		return incomplete, nil
	}
	for promptID, want := range authored {
		if a.Pairs[promptID] != want {
			return determinate(false), nil
		}
	}
	return determinate(true), nil
}

func evalFillBlank(q domain.Question, a domain.Answer, dragDrop bool) (Result, error) {
	fb := q.FillBlank
	if fb == nil {
		return Result{}, missingPayload(q)
	}
	authored := make(map[string]string, len(fb.Blanks))
	for _, b := range fb.Blanks {
		authored[b.ID] = b.Value
	}
	var tokens []string
	if dragDrop {
		tokens = fb.Tokens()
	}
	filled := 0
	for blankID, value := range a.Blanks {
		if _, ok := authored[blankID]; !ok {
			return Result{}, invalid(q, "unknown blank %q", blankID)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if dragDrop && !contains(tokens, value) {
			return Result{}, invalid(q, "token %q is not draggable", value)
		}
		filled++
	}
	if filled < minFilled {
		return incomplete, nil
	}
	for blankID, want := range authored {
		if strings.TrimSpace(a.Blanks[blankID]) != want {
			return determinate(false), nil
		}
	}
	return determinate(true), nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func invalid(q domain.Question, format string, args ...any) error {
	return fmt.Errorf("%w: question %s: %s", domain.ErrInvalidAnswer, q.ID, fmt.Sprintf(format, args...))
}

func missingPayload(q domain.Question) error {
	return fmt.Errorf("%w: question %s has no %s payload", domain.ErrInvalidQuestion, q.ID, q.Variant)
}
