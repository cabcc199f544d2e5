package dloid

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed matches every *MalformedError via errors.Is.
	ErrMalformed = errors.New("malformed dloid record")
	// ErrRange matches every *RangeError via errors.Is.
	ErrRange = errors.New("dloid field out of range")
)

// Reason is a stable category for why a record was rejected.
type Reason string

const (
	ReasonLength Reason = "length"
	ReasonDigits Reason = "digits"
	ReasonFlag   Reason = "flag"
	ReasonSyntax Reason = "syntax"
)

// MalformedError reports a record that fails structural validation.
type MalformedError struct {
	Reason Reason
	Field  string
	Length int
	Raw    string
}

func (e *MalformedError) Error() string {
	switch e.Reason {
	case ReasonLength:
		return fmt.Sprintf("malformed dloid record: length %d, want %d", e.Length, RecordLength)
	case ReasonDigits:
		return fmt.Sprintf("malformed dloid record: %s is not numeric", e.Field)
	case ReasonFlag:
		return fmt.Sprintf("malformed dloid record: %s must be a single character", e.Field)
	default:
		return fmt.Sprintf("malformed dloid record: %s", e.Field)
	}
}

func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

// RangeError reports a value that does not fit its fixed-width field.
type RangeError struct {
	Field string
	Value string
	Limit uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("dloid %s %s out of range [0, %d]", e.Field, e.Value, e.Limit)
}

func (e *RangeError) Is(target error) bool {
	return target == ErrRange
}
