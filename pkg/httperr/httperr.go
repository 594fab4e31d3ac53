package httperr

import (
	"errors"
	"fmt"
)

type BadRequestError struct {
	msg string
}

func (e *BadRequestError) Error() string { return e.msg }

func NewBadRequest(msg string) error { return &BadRequestError{msg: msg} }

func IsBadRequest(err error) bool {
	var target *BadRequestError
	return errors.As(err, &target)
}

type NotFoundError struct {
	msg string
}

func (e *NotFoundError) Error() string { return e.msg }

func NewNotFound(msg string) error { return &NotFoundError{msg: msg} }

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// CompilationError is fatal at schema-load time: the table stays unusable
// until its declaration is fixed. It is never surfaced per-request.
type CompilationError struct {
	Table string
	Field string
	msg   string
}

func (e *CompilationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("permission: table %q field %q: %s", e.Table, e.Field, e.msg)
	}
	return fmt.Sprintf("permission: table %q: %s", e.Table, e.msg)
}

func NewCompilation(table string, field string, msg string) error {
	return &CompilationError{Table: table, Field: field, msg: msg}
}

func IsCompilation(err error) bool {
	var target *CompilationError
	return errors.As(err, &target)
}
