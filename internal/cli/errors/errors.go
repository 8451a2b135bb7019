// Package errors turns qhist errors into user facing messages with a
// code and suggestions.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"qhist/internal/cli/style"
	"qhist/internal/domain"
	"qhist/internal/storage"
)

// Code represents an error code for categorization.
type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeConfigInvalid    Code = "CONFIG_INVALID"
	CodeConnectionFailed Code = "CONNECTION_FAILED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeValidation       Code = "VALIDATION"
	CodeInvalidInput     Code = "INVALID_INPUT"
	CodeMigration        Code = "MIGRATION"
	CodeInternal         Code = "INTERNAL"
)

// Rich is an error with additional context for display.
type Rich struct {
	Code        Code
	Message     string
	Details     []string
	Suggestions []string
	Cause       error
}

// Error implements the error interface.
func (e *Rich) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Rich) Unwrap() error {
	return e.Cause
}

// New creates a new Rich error.
func New(code Code, message string) *Rich {
	return &Rich{Code: code, Message: message}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *Rich {
	return &Rich{Code: code, Message: message, Cause: err}
}

// WithDetails adds detail lines.
func (e *Rich) WithDetails(details ...string) *Rich {
	e.Details = append(e.Details, details...)
	return e
}

// WithSuggestions adds actionable suggestions.
func (e *Rich) WithSuggestions(suggestions ...string) *Rich {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRich converts an error to a Rich error if possible.
func AsRich(err error) *Rich {
	var rich *Rich
	if errors.As(err, &rich) {
		return rich
	}
	return nil
}

// Classify maps err to a Rich error using the domain and storage sentinels.
func Classify(err error) *Rich {
	if rich := AsRich(err); rich != nil {
		return rich
	}

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		r := New(CodeValidation, "The record is not a valid query history entry")
		for _, v := range verr.Violations {
			r.WithDetails(fmt.Sprintf("%s: %s", v.Field, v.Message))
		}
		return r.WithSuggestions("Required fields: userId, userEmail, connectionId, connectionName, queryText")
	case storage.IsNotFound(err):
		return Wrap(err, CodeNotFound, "Record not found").
			WithSuggestions("Use 'qhist list' to see stored records")
	case storage.IsAlreadyExists(err):
		return Wrap(err, CodeConflict, "A record with this _id already exists").
			WithSuggestions("Omit _id to have one generated")
	case storage.IsInvalidInput(err):
		return Wrap(err, CodeInvalidInput, "Invalid filter or argument").
			WithSuggestions(
				"Filter keys are record fields such as userId or startTime",
				"Operators: $eq $ne $lt $lte $gt $gte $in $nin $exists $regex",
			)
	case errors.Is(err, storage.ErrConnectionFailed):
		return Wrap(err, CodeConnectionFailed, "Could not connect to the database").
			WithSuggestions("Check database settings with 'qhist config show'")
	case errors.Is(err, storage.ErrMigrationFailed):
		return Wrap(err, CodeMigration, "Schema migration failed").
			WithSuggestions("Inspect the schema with 'qhist migrate status'")
	}
	return Wrap(err, CodeUnknown, "Command failed")
}

// Display renders err in a bordered box using s.
func Display(err error, s *style.Styles) string {
	rich := Classify(err)

	var b strings.Builder
	b.WriteString(s.Error.Render("✗ Error"))
	b.WriteString(" ")
	b.WriteString(s.Muted.Italic(true).Render(fmt.Sprintf("[%s]", rich.Code)))
	b.WriteString("\n\n")
	b.WriteString(s.Text.Render(rich.Message))
	b.WriteString("\n")

	if len(rich.Details) > 0 {
		b.WriteString("\n")
		for _, d := range rich.Details {
			b.WriteString(s.Muted.Render("  " + d))
			b.WriteString("\n")
		}
	}

	if rich.Cause != nil {
		b.WriteString("\n")
		b.WriteString(s.Muted.Render("Caused by: " + rich.Cause.Error()))
		b.WriteString("\n")
	}

	if len(rich.Suggestions) > 0 {
		b.WriteString("\n")
		b.WriteString(s.Info.Render("Suggestions:"))
		b.WriteString("\n")
		for _, sug := range rich.Suggestions {
			b.WriteString("   • ")
			b.WriteString(sug)
			b.WriteString("\n")
		}
	}

	return s.Box.Render(strings.TrimRight(b.String(), "\n"))
}

// DisplaySimple formats err as plain text.
func DisplaySimple(err error) string {
	rich := Classify(err)

	var b strings.Builder
	fmt.Fprintf(&b, "Error [%s]: %s\n", rich.Code, rich.Message)

	for _, d := range rich.Details {
		fmt.Fprintf(&b, "  %s\n", d)
	}

	if rich.Cause != nil {
		fmt.Fprintf(&b, "  Caused by: %v\n", rich.Cause)
	}

	if len(rich.Suggestions) > 0 {
		b.WriteString("  Suggestions:\n")
		for _, s := range rich.Suggestions {
			fmt.Fprintf(&b, "    - %s\n", s)
		}
	}

	return b.String()
}
