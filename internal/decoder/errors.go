package decoder

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a decode failure
type ErrorKind int

const (
	MissingField ErrorKind = iota + 1
	InvalidValue
)

func (k ErrorKind) String() string {
	switch k {
	case MissingField:
		return "missing field"
	case InvalidValue:
		return "invalid value"
	}
	return "unknown"
}

var (
	ErrMissingField = errors.New("missing field")
	ErrInvalidValue = errors.New("invalid value")
)

// DecodeError names the offending field of a rejected message
type DecodeError struct {
	Kind   ErrorKind
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("decode %s: %s", e.Field, e.Kind)
	}
	return fmt.Sprintf("decode %s: %s: %s", e.Field, e.Kind, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrMissingField)
func (e *DecodeError) Unwrap() error {
	if e.Kind == MissingField {
		return ErrMissingField
	}
	return ErrInvalidValue
}

func missing(field string) *DecodeError {
	return &DecodeError{Kind: MissingField, Field: field}
}

func invalid(field, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: InvalidValue, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// FieldOf returns the field named by a decode error, or "" for other errors
func FieldOf(err error) string {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Field
	}
	return ""
}
