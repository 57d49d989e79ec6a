package domain

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Question is a single multiple-choice item as produced by the question source.
// It is never modified after a batch is accepted.
type Question struct {
	ID            string   `json:"id"`
	Category      string   `json:"category"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

// HasOption reports whether idx addresses one of the question's options.
func (q Question) HasOption(idx int) bool {
	return idx >= 0 && idx < len(q.Options)
}

// QuestionView is what a participant sees while answering: no correct answer, no explanation.
type QuestionView struct {
	ID       string   `json:"id"`
	Category string   `json:"category"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// View strips the answer key from q.
func (q Question) View() QuestionView {
	options := make([]string, len(q.Options))
	copy(options, q.Options)
	return QuestionView{
		ID:       q.ID,
		Category: q.Category,
		Question: q.Question,
		Options:  options,
	}
}

// ValidateBatch checks a freshly generated batch and reports every problem it finds.
func ValidateBatch(batch []Question) error {
	if len(batch) == 0 {
		return ErrEmptyBatch
	}

	var result *multierror.Error
	seen := make(map[string]int, len(batch))
	for i, q := range batch {
		if q.ID == "" {
			result = multierror.Append(result, fmt.Errorf("%w: question %d has no id", ErrQuestionInvalid, i))
		} else if prev, ok := seen[q.ID]; ok {
			result = multierror.Append(result, fmt.Errorf("%w: question %d repeats id %q of question %d", ErrQuestionInvalid, i, q.ID, prev))
		} else {
			seen[q.ID] = i
		}
		if len(q.Options) < 2 {
			result = multierror.Append(result, fmt.Errorf("%w: question %q has %d options", ErrQuestionInvalid, q.ID, len(q.Options)))
		}
		if !q.HasOption(q.CorrectAnswer) {
			result = multierror.Append(result, fmt.Errorf("%w: question %q correct answer %d out of range", ErrQuestionInvalid, q.ID, q.CorrectAnswer))
		}
	}
	return result.ErrorOrNil()
}
