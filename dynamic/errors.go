package dynamic

import (
	"fmt"

	"github.com/pkg/errors"
)

// A DecodeError reports malformed binary or JSON input. Type names the
// message type being decoded and Field the field involved, when known.
type DecodeError struct {
	Type  string
	Field string
	err   error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("failed to decode %s.%s: %s", e.Type, e.Field, e.err)
	}
	return fmt.Sprintf("failed to decode %s: %s", e.Type, e.err)
}

func (e *DecodeError) Unwrap() error { return e.err }

func decodeErrorf(typ, field, format string, a ...interface{}) *DecodeError {
	return &DecodeError{Type: typ, Field: field, err: errors.Errorf(format, a...)}
}

// wrapDecodeError attaches type and field context to err unless it is
// already a DecodeError, so the innermost location wins.
func wrapDecodeError(typ, field string, err error) error {
	if err == nil {
		return nil
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Type: typ, Field: field, err: err}
}

// An EncodeError reports a value that cannot be serialized, such as an
// unset required field or a well-known type outside its valid range.
type EncodeError struct {
	Type  string
	Field string
	err   error
}

func (e *EncodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("failed to encode %s.%s: %s", e.Type, e.Field, e.err)
	}
	return fmt.Sprintf("failed to encode %s: %s", e.Type, e.err)
}

func (e *EncodeError) Unwrap() error { return e.err }

func encodeErrorf(typ, field, format string, a ...interface{}) *EncodeError {
	return &EncodeError{Type: typ, Field: field, err: errors.Errorf(format, a...)}
}

func wrapEncodeError(typ, field string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EncodeError
	if errors.As(err, &ee) {
		return err
	}
	return &EncodeError{Type: typ, Field: field, err: err}
}
