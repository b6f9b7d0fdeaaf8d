package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError represents an error occurring during data validation.
type ValidationError struct {
	Message string
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError with a specific message.
func NewValidationError(message string) error {
	return &ValidationError{
		Message: message,
	}
}

// NewValidationErrorf creates a new ValidationError with a formatted message.
func NewValidationErrorf(format string, args ...interface{}) error {
	return &ValidationError{
		Message: fmt.Sprintf(format, args...),
	}
}

// FetchError is returned by an exchange adapter when it cannot produce a quote
// for a venue and symbol. The cause distinguishes rate limiting (RateLimitError),
// malformed responses (ParseError), HTTP status failures and transport errors.
type FetchError struct {
	Venue      string
	Symbol     string
	StatusCode int
	Cause      error
}

// Error returns the error message string.
func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s %s failed (%d): %v", e.Venue, e.Symbol, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("fetch %s %s failed: %v", e.Venue, e.Symbol, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// IsRateLimited reports whether the venue rejected the request with a rate limit.
func (e *FetchError) IsRateLimited() bool {
	var rl *RateLimitError
	return errors.As(e.Cause, &rl)
}

// NewFetchError wraps cause for a venue and symbol.
func NewFetchError(venue, symbol string, statusCode int, cause error) *FetchError {
	return &FetchError{
		Venue:      venue,
		Symbol:     symbol,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// RateLimitError marks an HTTP 429 (or venue equivalent) response.
// RetryAfter is zero when the venue did not say how long to wait.
type RateLimitError struct {
	Venue      string
	RetryAfter time.Duration
}

// Error returns the error message string.
func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("rate limited by %s API, please wait a moment before refreshing", e.Venue)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

// ParseError marks a response body that does not have the expected shape.
type ParseError struct {
	Venue string
	Field string
	Cause error
}

// Error returns the error message string.
func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("malformed %s response (%s): %v", e.Venue, e.Field, e.Cause)
	}
	return fmt.Sprintf("malformed %s response: %v", e.Venue, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// AggregationError is returned when every attempted target failed.
type AggregationError struct {
	Attempted []string
	Failures  []error
}

// Error returns the error message string.
func (e *AggregationError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("all %d targets failed: %s", len(e.Attempted), strings.Join(msgs, "; "))
}

// Unwrap exposes every individual failure to errors.Is and errors.As.
func (e *AggregationError) Unwrap() []error {
	return e.Failures
}
