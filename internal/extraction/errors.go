package extraction

import (
	"errors"
	"fmt"
)

// ErrExtraction matches every *Error.
var ErrExtraction = errors.New("extraction failed")

// Kind classifies why an extraction failed.
type Kind string

const (
	KindDecode          Kind = "decode"
	KindEmptyDocument   Kind = "empty_document"
	KindBackend         Kind = "backend"
	KindTimeout         Kind = "timeout"
	KindMalformedOutput Kind = "malformed_output"
	KindLowConfidence   Kind = "low_confidence"
)

// Error is a clean extraction failure. The engine never lets a backend error escape in any other form.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extraction %s", e.Kind)
	}
	return fmt.Sprintf("extraction %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrExtraction }

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the failure kind of err, or "" when err is not an extraction failure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
