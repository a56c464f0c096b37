package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConnection means the store could not be reached
	ErrConnection = errors.New("connection error")

	// ErrConstraint means the store rejected a write: duplicate identifier or incompatible data
	ErrConstraint = errors.New("constraint violation")

	// ErrNotFound means the target row no longer exists
	ErrNotFound = errors.New("not found")

	// ErrUnsupported means the dialect cannot perform the operation
	ErrUnsupported = errors.New("unsupported operation")

	// ErrIdentifier means a table or column name was not drawn from the catalog
	ErrIdentifier = errors.New("invalid identifier")

	// ErrConfirmation means a destructive command was not confirmed
	ErrConfirmation = errors.New("confirmation required")

	// ErrProtectedColumn means the operation targets the reference number column
	ErrProtectedColumn = errors.New("protected column")
)

// OpError carries the failing operation, its error kind and the underlying driver error
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// FieldError is one failed field rule
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every failed rule of a submission
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Error())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Add records a failed rule
func (e *ValidationError) Add(field, format string, args ...interface{}) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// For returns the messages recorded for a field
func (e *ValidationError) For(field string) []string {
	var msgs []string
	for _, f := range e.Fields {
		if f.Field == field {
			msgs = append(msgs, f.Message)
		}
	}
	return msgs
}

// ErrOrNil returns nil when no rule failed
func (e *ValidationError) ErrOrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// IsValidation reports whether err is a validation failure
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
