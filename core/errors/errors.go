// Package errors provides standardized error types and helpers for the Folium codebase.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoMatch indicates a folio has no corresponding manifest canvas
	ErrNoMatch = errors.New("no matching canvas")
	// ErrViewerNotReady indicates a viewer command was issued before readiness
	ErrViewerNotReady = errors.New("viewer not ready")
	// ErrNetwork indicates a manifest or annotation fetch failed
	ErrNetwork = errors.New("network failure")
)

// FormatError represents a malformed line code or identifier.
// The input is rejected at parse time, never coerced.
type FormatError struct {
	Input   string // Raw input that failed to parse
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *FormatError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("invalid format %q: %s", e.Input, e.Message)
	}
	return fmt.Sprintf("invalid format: %s", e.Message)
}

// Unwrap exposes both the underlying parse error and the ErrInvalidInput
// sentinel, so errors.Is finds the sentinel even when a cause is attached.
func (e *FormatError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Err, ErrInvalidInput}
	}
	return []error{ErrInvalidInput}
}

// RangeError represents annotation offsets outside the bounds of the text
// they address. Composition rejects these rather than silently clamping.
type RangeError struct {
	From   int // Start offset of the offending range
	To     int // End offset of the offending range
	Length int // Length of the text being addressed
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("annotation range [%d,%d) outside text of length %d", e.From, e.To, e.Length)
}

func (e *RangeError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "stanza", "annotation", "manuscript")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Err, ErrNotFound}
	}
	return []error{ErrNotFound}
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Err, ErrInvalidInput}
	}
	return []error{ErrInvalidInput}
}

// FetchError represents a failed network fetch (manifest or annotation detail).
// Fetch failures degrade the reading view, they never crash it.
type FetchError struct {
	Resource string // What was being fetched (e.g., "manifest", "annotation detail")
	URL      string // URL involved, if applicable
	Status   int    // HTTP status code, if a response was received
	Err      error  // Underlying error
}

func (e *FetchError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("failed to fetch %s from %s: status %d", e.Resource, e.URL, e.Status)
	case e.URL != "":
		return fmt.Sprintf("failed to fetch %s from %s: %v", e.Resource, e.URL, e.Err)
	default:
		return fmt.Sprintf("failed to fetch %s: %v", e.Resource, e.Err)
	}
}

func (e *FetchError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Err, ErrNetwork}
	}
	return []error{ErrNetwork}
}

// Helper functions for creating common errors

// NewFormat creates a FormatError
func NewFormat(input, message string) *FormatError {
	return &FormatError{
		Input:   input,
		Message: message,
	}
}

// NewRange creates a RangeError
func NewRange(from, to, length int) *RangeError {
	return &RangeError{
		From:   from,
		To:     to,
		Length: length,
	}
}

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewFetch creates a FetchError
func NewFetch(resource, url string, err error) *FetchError {
	return &FetchError{
		Resource: resource,
		URL:      url,
		Err:      err,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
