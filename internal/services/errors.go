package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrQueueFull     = errors.New("queue full")
	ErrStageFailure  = errors.New("stage failure")
	ErrSpeakerInput  = errors.New("speaker input error")
	ErrPersistence   = errors.New("persistence error")
	ErrNotFound      = errors.New("not found")
	ErrConfiguration = errors.New("configuration error")
)

// ErrorDetails carries the structured parts of a wrapped service error.
type ErrorDetails struct {
	Stage     string
	Operation string
	Message   string
}

type serviceError struct {
	marker  error
	details ErrorDetails
	cause   error
}

func (e *serviceError) Error() string {
	detail := buildDetail(e.details.Stage, e.details.Operation, e.details.Message)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.marker.Error(), detail, e.cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.marker.Error(), detail)
}

func (e *serviceError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.marker, e.cause}
	}
	return []error{e.marker}
}

// Wrap builds an error that includes stage context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above. The message is preserved verbatim and can
// be recovered through Details.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrStageFailure
	}
	return &serviceError{
		marker: marker,
		details: ErrorDetails{
			Stage:     strings.TrimSpace(stage),
			Operation: strings.TrimSpace(operation),
			Message:   message,
		},
		cause: err,
	}
}

// Details extracts the structured parts of a wrapped error. For errors built
// elsewhere it falls back to the plain error text as the message.
func Details(err error) ErrorDetails {
	var svcErr *serviceError
	if errors.As(err, &svcErr) {
		return svcErr.details
	}
	if err != nil {
		return ErrorDetails{Message: err.Error()}
	}
	return ErrorDetails{}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage != "" {
		parts = append(parts, stage)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if msg := strings.TrimSpace(message); msg != "" {
		parts = append(parts, msg)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
