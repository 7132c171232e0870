package codec

import (
	"errors"
	"fmt"
)

// UnsupportedError is raised by code generated for a member that packgen
// could not derive a codec for. The same problem is reported when the code
// is generated; the error surfaces it again at the point of use.
type UnsupportedError struct {
	Type    string // e.g. "Order"
	Member  string // e.g. "Payment"
	Code    string // e.g. "PG0001"
	Message string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("codec: %s.%s: %s: %s", e.Type, e.Member, e.Code, e.Message)
}

// Fail panics with an *UnsupportedError. Generated code calls it in place of
// a member it could not serialize.
func Fail(typ, member, code, message string) {
	panic(&UnsupportedError{Type: typ, Member: member, Code: code, Message: message})
}

// CatchPanics converts a recovered encoder, decoder or unsupported-member
// panic into an error. Any other panic is re-raised.
func CatchPanics(r any) error {
	if r == nil {
		return nil
	}

	err, ok := r.(error)
	if !ok {
		panic(r)
	}

	var unsupported *UnsupportedError
	if errors.As(err, &encoderError{}) || errors.As(err, &decoderError{}) || errors.As(err, &unsupported) {
		return err
	}

	panic(r)
}
