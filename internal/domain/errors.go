package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when no controller exists for a device.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrIdentityRequired is returned when a gated start is attempted without a participant label.
	ErrIdentityRequired = errors.New("identity is required to start a quiz")
	// ErrLoadInProgress is returned when a start is requested while questions are still loading.
	ErrLoadInProgress = errors.New("quiz questions are already loading")
	// ErrEmptyBatch indicates the question source produced no questions.
	ErrEmptyBatch = errors.New("question batch is empty")
	// ErrQuestionInvalid indicates a malformed question record in a batch.
	ErrQuestionInvalid = errors.New("invalid question")
	// ErrDeviceRequired is returned when a request does not name its device.
	ErrDeviceRequired = errors.New("device id is required")
)

// GenerationError reports that the question source could not produce a batch.
// The cause is kept for logs; users only ever see Message.
type GenerationError struct {
	Err error
}

// GenerationFailedMessage is the retryable text shown when a batch cannot be generated.
const GenerationFailedMessage = "Failed to connect to the quiz engine. Check your internet and try again."

func (e *GenerationError) Error() string {
	return fmt.Sprintf("could not generate quiz questions: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Message is the user-facing description of the failure.
func (e *GenerationError) Message() string {
	return GenerationFailedMessage
}

// IsGenerationError reports whether err carries a GenerationError.
func IsGenerationError(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}
