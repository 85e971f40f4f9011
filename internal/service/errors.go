package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrExtractionEmpty is returned when an upload has no usable text.
	ErrExtractionEmpty = errors.New("this document contains no readable text or is too short to analyze")
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrQueryGenerationMalformed is returned when deep dive search queries cannot be parsed.
	ErrQueryGenerationMalformed = errors.New("AI failed to generate search queries")
	// ErrSearchUnavailable is returned when web search is not configured.
	ErrSearchUnavailable = errors.New("web search API key not configured")
	// ErrExternalService is returned when an external service call fails.
	ErrExternalService = errors.New("external service error")
	// ErrStorage is returned when persistence fails.
	ErrStorage = errors.New("storage error")
)

// ValidationError represents a validation error with a field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// WrapError wraps an error with additional context.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Category is the client-facing class of an error.
type Category int

const (
	CategoryInternal Category = iota
	CategoryBadRequest
	CategoryNotFound
)

func (c Category) String() string {
	switch c {
	case CategoryBadRequest:
		return "bad_request"
	case CategoryNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Classify maps err to exactly one category. Unknown errors are internal.
func Classify(err error) Category {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrExtractionEmpty):
		return CategoryBadRequest
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	default:
		return CategoryInternal
	}
}

func storageErr(err error, msg string) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, msg, err)
}

func externalErr(err error, msg string) error {
	return fmt.Errorf("%w: %s: %w", ErrExternalService, msg, err)
}
