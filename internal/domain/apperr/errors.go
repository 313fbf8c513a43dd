package apperr

import (
	"errors"
	"fmt"
)

// Kind — различимый класс ошибки ядра. UI-слой сам решает, как его показать.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindInvalidTransition  Kind = "invalid_transition"
	KindForbidden          Kind = "forbidden"
	KindInsufficientInputs Kind = "insufficient_inputs"
	KindAlreadyExists      Kind = "already_exists"
	KindInvalidAmount      Kind = "invalid_amount"
	KindConflict           Kind = "conflict"
	KindStore              Kind = "store_error"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func E(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap оборачивает ошибку стора, не теряя исходную причину.
func Wrap(kind Kind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf возвращает класс ошибки; для чужих ошибок — KindStore.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindStore
}

func Is(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}
