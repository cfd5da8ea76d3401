// Package apperr defines the caller-visible error kinds of the service.
// Constructors wrap a kind with a message; callers match with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error 携带类别与面向调用方的消息
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func InvalidInput(format string, args ...any) error { return newf(ErrInvalidInput, format, args...) }
func Conflict(format string, args ...any) error     { return newf(ErrConflict, format, args...) }
func Forbidden(format string, args ...any) error    { return newf(ErrForbidden, format, args...) }
func NotFound(format string, args ...any) error     { return newf(ErrNotFound, format, args...) }
func Unauthorized(format string, args ...any) error { return newf(ErrUnauthorized, format, args...) }

// KindOf 返回 err 所属类别，未知错误返回 nil
func KindOf(err error) error {
	for _, k := range []error{ErrInvalidInput, ErrConflict, ErrForbidden, ErrNotFound, ErrUnauthorized} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
