package domain

import (
	"errors"
	"fmt"
)

// ErrorKind groups failures by how a caller should react to them.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation" // malformed input, never retried
	KindNotFound   ErrorKind = "not_found"
	KindPolicy     ErrorKind = "policy" // definitive rejection
	KindConflict   ErrorKind = "conflict"
	KindStorage    ErrorKind = "storage"
	KindTransport  ErrorKind = "transport"
)

// Reason is a stable code callers can map to an exact message.
type Reason string

const (
	ReasonInvalidArgument         Reason = "INVALID_ARGUMENT"
	ReasonActivityNotFound        Reason = "ACTIVITY_NOT_FOUND"
	ReasonActivityTerminal        Reason = "ACTIVITY_TERMINAL"
	ReasonAlreadyJoined           Reason = "ALREADY_JOINED"
	ReasonActivityStarted         Reason = "ACTIVITY_STARTED"
	ReasonLeaveWindowClosed       Reason = "LEAVE_WINDOW_CLOSED"
	ReasonNotAJoinedParticipant   Reason = "NOT_A_JOINED_PARTICIPANT"
	ReasonWithinLockWindow        Reason = "WITHIN_LOCK_WINDOW"
	ReasonDeleteWindowClosed      Reason = "DELETE_WINDOW_CLOSED"
	ReasonNotActivityCreator      Reason = "NOT_ACTIVITY_CREATOR"
	ReasonNotConfirmedParticipant Reason = "NOT_CONFIRMED_PARTICIPANT"
	ReasonVersionConflict         Reason = "VERSION_CONFLICT"
	ReasonActivityBusy            Reason = "ACTIVITY_BUSY"
	ReasonStorageFailure          Reason = "STORAGE_FAILURE"
	ReasonSubscriptionClosed      Reason = "SUBSCRIPTION_CLOSED"
)

// Error is the typed failure returned by every coordinator operation.
type Error struct {
	Kind    ErrorKind
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind and reason, so wrapped copies of
// the sentinels below compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

// Expected reports whether the error is an ordinary rejection rather than a
// fault. Loggers use it to pick a level.
func (e *Error) Expected() bool {
	switch e.Kind {
	case KindValidation, KindNotFound, KindPolicy:
		return true
	}
	return false
}

var (
	ErrActivityNotFound        = &Error{Kind: KindNotFound, Reason: ReasonActivityNotFound, Message: "activity does not exist"}
	ErrActivityTerminal        = &Error{Kind: KindPolicy, Reason: ReasonActivityTerminal, Message: "this activity has finished or was cancelled"}
	ErrAlreadyJoined           = &Error{Kind: KindPolicy, Reason: ReasonAlreadyJoined, Message: "you have already joined this activity"}
	ErrActivityStarted         = &Error{Kind: KindPolicy, Reason: ReasonActivityStarted, Message: "this activity has already started"}
	ErrLeaveWindowClosed       = &Error{Kind: KindPolicy, Reason: ReasonLeaveWindowClosed, Message: "this activity starts in under 2 hours and confirmed players can no longer leave"}
	ErrNotAJoinedParticipant   = &Error{Kind: KindPolicy, Reason: ReasonNotAJoinedParticipant, Message: "you are not part of this activity"}
	ErrWithinLockWindow        = &Error{Kind: KindPolicy, Reason: ReasonWithinLockWindow, Message: "this activity starts in under 2 hours and can no longer be modified"}
	ErrDeleteWindowClosed      = &Error{Kind: KindPolicy, Reason: ReasonDeleteWindowClosed, Message: "this activity starts in under 4 hours and can no longer be deleted"}
	ErrNotActivityCreator      = &Error{Kind: KindPolicy, Reason: ReasonNotActivityCreator, Message: "only the organizer can do this"}
	ErrNotConfirmedParticipant = &Error{Kind: KindPolicy, Reason: ReasonNotConfirmedParticipant, Message: "participant does not hold a confirmed slot"}
	ErrVersionConflict         = &Error{Kind: KindConflict, Reason: ReasonVersionConflict, Message: "activity was modified concurrently"}
	ErrActivityBusy            = &Error{Kind: KindConflict, Reason: ReasonActivityBusy, Message: "activity is busy, try again"}
	ErrSubscriptionClosed      = &Error{Kind: KindTransport, Reason: ReasonSubscriptionClosed, Message: "subscription closed, re-fetch state and subscribe again"}
)

// Invalid builds a validation error for a malformed argument.
func Invalid(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Reason: ReasonInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// StorageFailure wraps an error from the persistence layer.
func StorageFailure(op string, err error) *Error {
	return &Error{Kind: KindStorage, Reason: ReasonStorageFailure, Message: op, Err: err}
}

// Conflict wraps a lost optimistic write or a serialization failure.
func Conflict(op string, err error) *Error {
	return &Error{Kind: KindConflict, Reason: ReasonVersionConflict, Message: op, Err: err}
}

// KindOf returns the kind of err, or "" when err is not a domain error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// ReasonOf returns the reason code of err, or "" when err is not a domain error.
func ReasonOf(err error) Reason {
	var de *Error
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}

// IsRetryable reports whether the caller may retry the request unchanged.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindStorage, KindTransport:
		return true
	}
	return false
}
