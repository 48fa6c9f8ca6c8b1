package wizard

import "errors"

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")

	ErrBusy          = errors.New("operation already in progress")
	ErrSceneBusy     = errors.New("scene is busy")
	ErrSceneNotFound = errors.New("scene not found")
	ErrNoStagedFile  = errors.New("no file staged")
	ErrNoBackground  = errors.New("no background image available for this scene")
	ErrNoScenes      = errors.New("storyboard is empty")
	ErrNoCompositor  = errors.New("image composition is not configured")

	// ErrSuperseded is returned when a reset happened while the operation was
	// in flight; its result was discarded.
	ErrSuperseded = errors.New("superseded by reset")
)

// ValidationError is a user input problem caught before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
