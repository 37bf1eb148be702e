package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures returned by the marketplace workflow.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindNotFound        ErrorKind = "not_found"
	KindAlreadySold     ErrorKind = "already_sold"
	KindSelfPurchase    ErrorKind = "self_purchase"
	KindQuery           ErrorKind = "query"
	KindPersistence     ErrorKind = "persistence"
	KindUnauthenticated ErrorKind = "unauthenticated"
)

// Error is a typed workflow error. Two Errors match under errors.Is when their kinds match.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation      = &Error{Kind: KindValidation, Message: "Invalid input"}
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "Listing not found"}
	ErrAlreadySold     = &Error{Kind: KindAlreadySold, Message: "This listing is no longer available"}
	ErrSelfPurchase    = &Error{Kind: KindSelfPurchase, Message: "You cannot purchase your own listing"}
	ErrQuery           = &Error{Kind: KindQuery, Message: "Query failed"}
	ErrPersistence     = &Error{Kind: KindPersistence, Message: "Write failed"}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated, Message: "Not authenticated"}
)

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func QueryFailed(msg string, err error) error {
	return &Error{Kind: KindQuery, Message: msg, Err: err}
}

func PersistenceFailed(msg string, err error) error {
	return &Error{Kind: KindPersistence, Message: msg, Err: err}
}

// KindOf reports the kind of err, or "" when err is not a workflow error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
