package logger

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
)

// WrappedError carries the file:line where it was wrapped.
type WrappedError struct {
	msg    string
	cause  error
	caller string
}

// Error implements the error interface.
func (e *WrappedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Unwrap returns the underlying error.
func (e *WrappedError) Unwrap() error {
	return e.cause
}

// Caller returns the file:line that wrapped the error.
func (e *WrappedError) Caller() string {
	return e.caller
}

// WrapError wraps an error with a message and the caller's file:line.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	caller := "unknown"
	if _, file, line, ok := runtime.Caller(1); ok {
		caller = fmt.Sprintf("%s/%s:%d", filepath.Base(filepath.Dir(file)), filepath.Base(file), line)
	}

	return &WrappedError{
		msg:    msg,
		cause:  err,
		caller: caller,
	}
}

// WithError creates an slog.Attr describing err.
func WithError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}

	attrs := []any{
		slog.String("message", err.Error()),
		slog.String("type", fmt.Sprintf("%T", err)),
	}

	if cause := errors.Unwrap(err); cause != nil {
		attrs = append(attrs, slog.String("cause", cause.Error()))
	}

	var we *WrappedError
	if errors.As(err, &we) {
		attrs = append(attrs, slog.String("caller", we.Caller()))
	}

	return slog.Group("error", attrs...)
}

// ErrorChain is like WithError but lists every error in the Unwrap chain.
func ErrorChain(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}

	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T: %s", e, e.Error()))
	}

	return slog.Group("error",
		slog.String("message", err.Error()),
		slog.Any("chain", chain),
	)
}
