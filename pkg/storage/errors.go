package storage

import "fmt"

// ErrorCode classifies a StoreError for callers that need to branch on the
// kind of failure without string matching.
type ErrorCode int

const (
	ErrUnknown ErrorCode = iota
	ErrNotFound
	ErrConflict
	ErrIOError
	ErrInvalidArgument
	ErrObjectTooLarge
	ErrNotPrimary
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "NotFound"
	case ErrConflict:
		return "Conflict"
	case ErrIOError:
		return "IOError"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrObjectTooLarge:
		return "ObjectTooLarge"
	case ErrNotPrimary:
		return "NotPrimary"
	default:
		return "Unknown"
	}
}

// StoreError is the error type returned by the storage engine contract.
type StoreError struct {
	Code    ErrorCode
	Message string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("storage: %s: %s", e.Code, e.Message)
}

func NewNotFoundError(msg string) *StoreError {
	return &StoreError{Code: ErrNotFound, Message: msg}
}

func NewConflictError(msg string) *StoreError {
	return &StoreError{Code: ErrConflict, Message: msg}
}

func NewInvalidArgumentError(msg string) *StoreError {
	return &StoreError{Code: ErrInvalidArgument, Message: msg}
}

func NewObjectTooLargeError(msg string) *StoreError {
	return &StoreError{Code: ErrObjectTooLarge, Message: msg}
}

func NewIOError(msg string) *StoreError {
	return &StoreError{Code: ErrIOError, Message: msg}
}

// IsNotFoundError reports whether err is a StoreError with code ErrNotFound.
func IsNotFoundError(err error) bool {
	se, ok := err.(*StoreError)
	return ok && se.Code == ErrNotFound
}
