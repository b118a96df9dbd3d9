package models

import (
	"github.com/google/uuid"
)

// OptionLabel identifies one of a question's four answer options.
type OptionLabel string

const (
	OptionA OptionLabel = "A"
	OptionB OptionLabel = "B"
	OptionC OptionLabel = "C"
	OptionD OptionLabel = "D"
)

// OptionLabels lists the labels in display order.
var OptionLabels = []OptionLabel{OptionA, OptionB, OptionC, OptionD}

// Valid reports whether the label is one of the four known options.
func (l OptionLabel) Valid() bool {
	switch l {
	case OptionA, OptionB, OptionC, OptionD:
		return true
	}
	return false
}

// QuestionOption is one labeled answer choice.
type QuestionOption struct {
	Label OptionLabel `json:"label"`
	Text  string      `json:"text"`
}

// Question is immutable quiz content. Loaded once per session from a
// question set and never mutated during a run.
type Question struct {
	ID            uuid.UUID        `json:"id"`
	QuestionSetID uuid.UUID        `json:"question_set_id"`
	Prompt        string           `json:"prompt"`
	Options       []QuestionOption `json:"options"`
	CorrectOption OptionLabel      `json:"correct_option"`
	DisplayOrder  int              `json:"display_order"`
	ImageURL      *string          `json:"image_url,omitempty"`
}

// OptionText returns the text of the option carrying the given label.
func (q *Question) OptionText(label OptionLabel) (string, bool) {
	for _, opt := range q.Options {
		if opt.Label == label {
			return opt.Text, true
		}
	}
	return "", false
}
