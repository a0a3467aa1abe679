package domain

// Variant is the closed set of question types.
type Variant string

const (
	VariantMultipleChoice Variant = "multiple_choice"
	VariantTrueFalse      Variant = "true_false"
	VariantOpenEnded      Variant = "open_ended"
	VariantMatching       Variant = "matching"
	VariantFillTyping     Variant = "fill_blank_typing"
	VariantFillDragDrop   Variant = "fill_blank_drag_drop"
	VariantFlipCard       Variant = "flip_card"
	VariantAudioVideo     Variant = "audio_video"
)

// Question is a tagged union: Variant selects which payload field is meaningful.
type Question struct {
	ID      string  `json:"id"`
	Variant Variant `json:"variant"`
	Prompt  string  `json:"prompt"`

	MultipleChoice *MultipleChoice `json:"multipleChoice,omitempty"`
	TrueFalse      *TrueFalse      `json:"trueFalse,omitempty"`
	Matching       *Matching       `json:"matching,omitempty"`
	FillBlank      *FillBlank      `json:"fillBlank,omitempty"`
	FlipCard       *FlipCard       `json:"flipCard,omitempty"`
	Media          *Media          `json:"media,omitempty"`
}

// MultipleChoice is a single-answer choice; Correct must be one of Options.
type MultipleChoice struct {
	Options []string `json:"options"`
	Correct string   `json:"correct"`
}

// TrueFalse holds the expected verdict.
type TrueFalse struct {
	Correct bool `json:"correct"`
}

// MatchPair is one authored prompt/value pair. Blank pairs are left over from the editor and ignored.
type MatchPair struct {
	PromptID string `json:"promptId"`
	Prompt   string `json:"prompt"`
	Value    string `json:"value"`
}

// Blank returns true when the pair was left unfilled by the author.
func (p MatchPair) Blank() bool {
	return p.PromptID == "" || p.Value == ""
}

// Matching asks the learner to pair every prompt with its value.
type Matching struct {
	Pairs []MatchPair `json:"pairs"`
}

// Blank is one gap in a FillBlank text, referenced as {ID}.
type Blank struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// FillBlank backs both the typing and drag-drop variants. Distractors are only used by drag-drop.
type FillBlank struct {
	Text        string   `json:"text"`
	Blanks      []Blank  `json:"blanks"`
	Distractors []string `json:"distractors,omitempty"`
}

// Tokens returns the draggable tokens: every authored value plus the distractors.
func (f *FillBlank) Tokens() []string {
	tokens := make([]string, 0, len(f.Blanks)+len(f.Distractors))
	for _, b := range f.Blanks {
		tokens = append(tokens, b.Value)
	}
	return append(tokens, f.Distractors...)
}

// FlipCard is self-assessed; it only records how often the card was flipped.
type FlipCard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// MediaKind is the recording an audio/video question expects.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// Media describes the prompt recording of an audio/video question.
type Media struct {
	Kind MediaKind `json:"kind"`
	URL  string    `json:"url,omitempty"`
}

// Answer is the raw candidate answer. Its shape depends on the question variant:
// Choice for multiple-choice and true/false, Text for open-ended, Pairs for matching,
// Blanks for fill-in-the-blank, Flips for flip-card and MediaURL for audio/video.
type Answer struct {
	Choice   string            `json:"choice,omitempty"`
	Text     string            `json:"text,omitempty"`
	Pairs    map[string]string `json:"pairs,omitempty"`
	Blanks   map[string]string `json:"blanks,omitempty"`
	Flips    int               `json:"flips,omitempty"`
	MediaURL string            `json:"mediaUrl,omitempty"`
}
