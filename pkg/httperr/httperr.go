// Package httperr carries the structured failure triple the core hands back
// to controllers: a status kind, a machine-stable title used for client-side
// branching, and a human-readable detail message.
package httperr

import "errors"

type Kind int

const (
	KindNotFound Kind = iota
	KindConflict
	KindUnauthorized
	KindInternal
)

type Error struct {
	kind   Kind
	title  string
	detail string
}

func (e *Error) Error() string { return e.title + ": " + e.detail }

func (e *Error) Kind() Kind     { return e.kind }
func (e *Error) Title() string  { return e.title }
func (e *Error) Detail() string { return e.detail }

func NewNotFound(title string, detail string) error {
	return &Error{kind: KindNotFound, title: title, detail: detail}
}

func NewConflict(title string, detail string) error {
	return &Error{kind: KindConflict, title: title, detail: detail}
}

func NewUnauthorized(title string, detail string) error {
	return &Error{kind: KindUnauthorized, title: title, detail: detail}
}

func NewInternal(title string, detail string) error {
	return &Error{kind: KindInternal, title: title, detail: detail}
}

// AsError returns the structured failure wrapped in err, if any.
func AsError(err error) (*Error, bool) {
	return errors.AsType[*Error](err)
}

func IsNotFound(err error) bool     { return isKind(err, KindNotFound) }
func IsConflict(err error) bool     { return isKind(err, KindConflict) }
func IsUnauthorized(err error) bool { return isKind(err, KindUnauthorized) }
func IsInternal(err error) bool     { return isKind(err, KindInternal) }

func isKind(err error, k Kind) bool {
	e, ok := errors.AsType[*Error](err)
	return ok && e.kind == k
}

type BadRequestError struct {
	msg string
}

func (e *BadRequestError) Error() string { return e.msg }

func NewBadRequest(msg string) error { return &BadRequestError{msg: msg} }

func IsBadRequest(err error) bool {
	_, ok := errors.AsType[*BadRequestError](err)
	return ok
}
