package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sort"
	"strings"
)

// PlatformError is implemented by every structured error in rlsr.
type PlatformError interface {
	error

	// Code returns the error classification.
	Code() ErrorCode

	// Message returns the human readable message without the cause.
	Message() string

	// Context returns a copy of the key/value pairs attached to the error.
	Context() map[string]interface{}

	// Unwrap returns the underlying cause, if any.
	Unwrap() error
}

type platformError struct {
	code    ErrorCode
	message string
	context map[string]interface{}
	cause   error
}

// New creates a PlatformError with the given code and message.
//
//nolint:ireturn // callers inspect the code through the interface.
func New(code ErrorCode, message string) PlatformError {
	return &platformError{code: code, message: message}
}

// Newf creates a PlatformError with a formatted message.
//
//nolint:ireturn // callers inspect the code through the interface.
func Newf(code ErrorCode, format string, args ...interface{}) PlatformError {
	return &platformError{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err. It returns nil when err is nil.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &platformError{code: code, message: message, cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &platformError{code: code, message: fmt.Sprintf(format, args...), cause: err}
}

// WrapWithContext is Wrap with additional key/value context.
func WrapWithContext(err error, code ErrorCode, message string, ctx map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &platformError{code: code, message: message, cause: err, context: maps.Clone(ctx)}
}

// WithContext returns a copy of err carrying the extra key/value pairs.
// Non-platform errors are wrapped with CodeUnknown.
func WithContext(err error, ctx map[string]interface{}) error {
	if err == nil {
		return nil
	}
	var pe *platformError
	if !stderrors.As(err, &pe) {
		return &platformError{code: CodeUnknown, message: err.Error(), context: maps.Clone(ctx)}
	}
	cp := *pe
	cp.context = maps.Clone(pe.context)
	if cp.context == nil {
		cp.context = make(map[string]interface{}, len(ctx))
	}
	maps.Copy(cp.context, ctx)
	return &cp
}

func (e *platformError) Error() string {
	var b strings.Builder
	b.WriteString(e.message)
	if len(e.context) > 0 {
		keys := make([]string, 0, len(e.context))
		for k := range e.context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.context[k])
		}
		b.WriteString("]")
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *platformError) Code() ErrorCode { return e.code }

func (e *platformError) Message() string { return e.message }

func (e *platformError) Context() map[string]interface{} { return maps.Clone(e.context) }

func (e *platformError) Unwrap() error { return e.cause }

// CodeOf returns the code of the outermost PlatformError in err's chain,
// or CodeUnknown if there is none.
func CodeOf(err error) ErrorCode {
	var pe PlatformError
	if stderrors.As(err, &pe) {
		return pe.Code()
	}
	return CodeUnknown
}

// HasCode reports whether any PlatformError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if pe, ok := err.(PlatformError); ok && pe.Code() == code {
			return true
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				if HasCode(e, code) {
					return true
				}
			}
			return false
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// Is is errors.Is from the standard library.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As is errors.As from the standard library.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// Join is errors.Join from the standard library.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// Unwrap is errors.Unwrap from the standard library.
func Unwrap(err error) error { return stderrors.Unwrap(err) }
