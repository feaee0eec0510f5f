package ttypes

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrMissingCredential indicates no API key is configured
	ErrMissingCredential = errors.New("API key is missing, set GEMINI_API_KEY or api_key in the config file")

	// ErrEmptyText indicates there is nothing to synthesize
	ErrEmptyText = errors.New("text is empty")

	// ErrNotFound indicates a document does not exist
	ErrNotFound = errors.New("file not found")

	// ErrBusy indicates a request of the same kind is already in flight
	ErrBusy = errors.New("operation already in progress")

	// ErrNoAudio indicates a document has no generated audio
	ErrNoAudio = errors.New("no audio loaded")
)

// ErrorCode identifies the error kind surfaced to the presentation layer.
type ErrorCode string

const (
	// ErrorCodeDecode is a malformed PCM stream or an unreadable container
	ErrorCodeDecode ErrorCode = "DECODE"

	// ErrorCodeCredential is a missing or rejected credential
	ErrorCodeCredential ErrorCode = "CREDENTIAL"

	// ErrorCodeService is a generic remote failure
	ErrorCodeService ErrorCode = "SERVICE"

	// ErrorCodePlayback is an audio output construction or start failure
	ErrorCodePlayback ErrorCode = "PLAYBACK"

	// ErrorCodePersistence is a failure reported by a store
	ErrorCodePersistence ErrorCode = "PERSISTENCE"

	// ErrorCodeValidation is a request refused before any work was done, such
	// as empty text or a duplicate in-flight request
	ErrorCodeValidation ErrorCode = "VALIDATION"
)

// Error is a classified error with optional context.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewError creates a classified error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewDecodeError creates a DECODE error.
func NewDecodeError(message string, cause error) *Error {
	return NewError(ErrorCodeDecode, message, cause)
}

// NewCredentialError creates a CREDENTIAL error.
func NewCredentialError(message string, cause error) *Error {
	return NewError(ErrorCodeCredential, message, cause)
}

// NewServiceError creates a SERVICE error.
func NewServiceError(message string, cause error) *Error {
	return NewError(ErrorCodeService, message, cause)
}

// NewPlaybackError creates a PLAYBACK error.
func NewPlaybackError(message string, cause error) *Error {
	return NewError(ErrorCodePlayback, message, cause)
}

// NewPersistenceError creates a PERSISTENCE error.
func NewPersistenceError(message string, cause error) *Error {
	return NewError(ErrorCodePersistence, message, cause)
}

// NewValidationError creates a VALIDATION error.
func NewValidationError(message string, cause error) *Error {
	return NewError(ErrorCodeValidation, message, cause)
}

// CodeOf returns the code of the first classified error in the chain, or ""
// if err is not classified.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsDecode reports whether err is a DECODE error.
func IsDecode(err error) bool { return CodeOf(err) == ErrorCodeDecode }

// IsCredential reports whether err is a CREDENTIAL error.
func IsCredential(err error) bool { return CodeOf(err) == ErrorCodeCredential }

// IsService reports whether err is a SERVICE error.
func IsService(err error) bool { return CodeOf(err) == ErrorCodeService }

// IsPlayback reports whether err is a PLAYBACK error.
func IsPlayback(err error) bool { return CodeOf(err) == ErrorCodePlayback }

// IsPersistence reports whether err is a PERSISTENCE error.
func IsPersistence(err error) bool { return CodeOf(err) == ErrorCodePersistence }

// IsValidation reports whether err is a VALIDATION error.
func IsValidation(err error) bool { return CodeOf(err) == ErrorCodeValidation }
