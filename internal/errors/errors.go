package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeNotFound       ErrorType = "NOT_FOUND"
	ErrorTypeAmbiguousInput ErrorType = "AMBIGUOUS_INPUT"
	ErrorTypeLookupFailed   ErrorType = "LOOKUP_FAILED"
	ErrorTypeListFailed     ErrorType = "LIST_FAILED"
	ErrorTypeNoTags         ErrorType = "NO_TAGS"
	ErrorTypeOnlyOneTag     ErrorType = "ONLY_ONE_TAG"
	ErrorTypeDiffFailed     ErrorType = "DIFF_FAILED"
	ErrorTypeValidation     ErrorType = "VALIDATION"
	ErrorTypeInternal       ErrorType = "INTERNAL"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(t ErrorType, code int, message string, cause error) *Error {
	return &Error{
		Type:    t,
		Message: message,
		Code:    code,
		Err:     cause,
	}
}

func NotFound(message string, cause error) *Error {
	return newError(ErrorTypeNotFound, http.StatusNotFound, message, cause)
}

func AmbiguousInput(message string) *Error {
	return newError(ErrorTypeAmbiguousInput, http.StatusBadRequest, message, nil)
}

func LookupFailed(message string, cause error) *Error {
	return newError(ErrorTypeLookupFailed, http.StatusUnprocessableEntity, message, cause)
}

func ListFailed(message string, cause error) *Error {
	return newError(ErrorTypeListFailed, http.StatusInternalServerError, message, cause)
}

func NoTags(message string) *Error {
	return newError(ErrorTypeNoTags, http.StatusUnprocessableEntity, message, nil)
}

func OnlyOneTag(message string) *Error {
	return newError(ErrorTypeOnlyOneTag, http.StatusUnprocessableEntity, message, nil)
}

func DiffFailed(message string, cause error) *Error {
	return newError(ErrorTypeDiffFailed, http.StatusInternalServerError, message, cause)
}

func ValidationError(message string, details any) *Error {
	e := newError(ErrorTypeValidation, http.StatusBadRequest, message, nil)
	e.Details = details
	return e
}

func Internal(message string, cause error) *Error {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message, cause)
}

// TypeOf returns the type of the outermost *Error in err's chain, or
// ErrorTypeInternal when there is none.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// Is reports whether any *Error in err's chain has type t.
func Is(err error, t ErrorType) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Type == t {
			return true
		}
		err = e.Err
	}
	return false
}

// As converts err into an *Error, wrapping unknown errors as internal.
func As(err error) *Error {
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return Internal("internal error", err)
}

// Write answers an HTTP request with err as JSON, using its Code as the
// status.
func Write(w http.ResponseWriter, err error) {
	e := As(err)
	code := e.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(e)
}
