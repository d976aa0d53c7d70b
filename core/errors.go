package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// shutdown reports a failure after which the process can no longer trust its own state.
// The API stops gracefully when a request hits one.
type shutdown struct {
	msg   string
	cause error
}

func NewShutdownError(cause error, msg string) error {
	return &shutdown{msg: msg, cause: cause}
}

func (s *shutdown) Error() string {
	if s.cause == nil {
		return s.msg
	}
	return s.msg + ": " + s.cause.Error()
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
