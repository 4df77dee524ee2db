package query

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes query errors.
type ErrorCode string

const (
	// CodeUnsupportedShape indicates a condition or query the filter
	// language cannot express (compound operands, duplicate keys).
	CodeUnsupportedShape ErrorCode = "UNSUPPORTED_QUERY_SHAPE"

	// CodeUnorderable indicates an ordering comparison between values with
	// no mutual order.
	CodeUnorderable ErrorCode = "UNORDERABLE_OPERANDS"

	// CodeTypeMismatch indicates an operator applied to a value of the
	// wrong type.
	CodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// CodeUnknownOperator indicates a wire key with an operator suffix
	// that is not part of the filter language.
	CodeUnknownOperator ErrorCode = "UNKNOWN_OPERATOR"
)

// Error is returned for malformed queries and for evaluation failures.
type Error struct {
	Code    ErrorCode
	Field   string
	Op      Op
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s, op=%s)", e.Code, e.Message, e.Field, e.Op)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, field string, op Op, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Field:   field,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

func hasCode(err error, code ErrorCode) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code == code
	}
	return false
}

// IsUnsupportedShape reports whether err is an UNSUPPORTED_QUERY_SHAPE error.
func IsUnsupportedShape(err error) bool {
	return hasCode(err, CodeUnsupportedShape)
}

// IsUnorderable reports whether err is an UNORDERABLE_OPERANDS error.
func IsUnorderable(err error) bool {
	return hasCode(err, CodeUnorderable)
}

// IsTypeMismatch reports whether err is a TYPE_MISMATCH error.
func IsTypeMismatch(err error) bool {
	return hasCode(err, CodeTypeMismatch)
}

// IsUnknownOperator reports whether err is an UNKNOWN_OPERATOR error.
func IsUnknownOperator(err error) bool {
	return hasCode(err, CodeUnknownOperator)
}
