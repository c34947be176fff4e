package api

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by the client matches exactly one of
// these through errors.Is.
var (
	ErrTransport   = errors.New("transport error")
	ErrStatus      = errors.New("unacceptable status code")
	ErrContentType = errors.New("unacceptable content type")
	ErrDecode      = errors.New("response decoding failed")
	ErrDefault     = errors.New("request failed")
)

// Error describes a failed request
type Error struct {
	Kind        error
	Method      string
	URL         string
	StatusCode  int
	ContentType string
	Err         error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Kind)
	switch {
	case errors.Is(e.Kind, ErrStatus):
		msg += fmt.Sprintf(" %d", e.StatusCode)
	case errors.Is(e.Kind, ErrContentType):
		msg += fmt.Sprintf(" %q", e.ContentType)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the failure kind
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}
