package remote

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes remote failures.
type ErrorCode string

const (
	// CodeUnavailable covers transport and storage failures.
	CodeUnavailable ErrorCode = "UNAVAILABLE"

	// CodeNotFound means the target document does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeInvalid means the request was malformed.
	CodeInvalid ErrorCode = "INVALID"

	// CodeConflict means a constraint rejected the write.
	CodeConflict ErrorCode = "CONFLICT"
)

// Error is the failure type returned by every Store implementation.
type Error struct {
	Code ErrorCode
	Op   Op
	ID   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Code)
	if e.ID != "" {
		msg += fmt.Sprintf(" (id=%s)", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error.
func NewError(code ErrorCode, op Op, id string, err error) *Error {
	return &Error{Code: code, Op: op, ID: id, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsNotFound reports whether err is a NOT_FOUND remote error.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// IsUnavailable reports whether err is an UNAVAILABLE remote error.
func IsUnavailable(err error) bool {
	return CodeOf(err) == CodeUnavailable
}

// IsConflict reports whether err is a CONFLICT remote error.
func IsConflict(err error) bool {
	return CodeOf(err) == CodeConflict
}

var (
	errInvalidPosition  = errors.New("position must be a non-negative integer")
	errInvalidItemCount = errors.New("item_count must be a non-negative integer")
	errInvalidThumbnail = errors.New("thumbnail must be a string or null")
	errInvalidTitle     = errors.New("title must be a string")
)

type unknownFieldError struct {
	field string
}

func (e *unknownFieldError) Error() string {
	return fmt.Sprintf("unknown collection field %q", e.field)
}
