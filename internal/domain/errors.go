package domain

import (
	"github.com/pkg/errors"
)

// ErrorKind is the coarse error taxonomy surfaced to callers.
type ErrorKind string

const (
	KindInvalidInput     ErrorKind = "invalid_input"
	KindNotFound         ErrorKind = "not_found"
	KindConflict         ErrorKind = "conflict"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindUpstream         ErrorKind = "upstream_failure"
	KindInternal         ErrorKind = "internal_error"
)

// Error carries a taxonomy kind and a stable code. Two errors are equal
// under errors.Is when their codes match.
type Error struct {
	Kind ErrorKind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// With returns a copy of e wrapping cause.
func (e *Error) With(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Err: cause}
}

var (
	ErrInvalidPhoneNumber = &Error{Kind: KindInvalidInput, Code: "invalid_phone_number"}
	ErrInvalidParameters  = &Error{Kind: KindInvalidInput, Code: "invalid_parameters"}
	ErrInvalidSessionID   = &Error{Kind: KindInvalidInput, Code: "invalid_session_id"}
	ErrUnknownAction      = &Error{Kind: KindInvalidInput, Code: "unknown_action"}

	ErrSessionNotFound = &Error{Kind: KindNotFound, Code: "session_not_found"}
	ErrGroupNotFound   = &Error{Kind: KindNotFound, Code: "group_not_found"}
	ErrMessageNotFound = &Error{Kind: KindNotFound, Code: "message_not_found"}

	ErrSessionExists       = &Error{Kind: KindConflict, Code: "session_already_exists"}
	ErrSessionPaused       = &Error{Kind: KindConflict, Code: "session_already_paused"}
	ErrSessionActive       = &Error{Kind: KindConflict, Code: "session_already_active"}
	ErrSessionNotConnected = &Error{Kind: KindConflict, Code: "session_not_connected"}
	ErrAlreadyInState      = &Error{Kind: KindConflict, Code: "already_in_requested_state"}

	ErrPermissionDenied = &Error{Kind: KindPermissionDenied, Code: "permission_denied"}

	ErrActionFailed = &Error{Kind: KindUpstream, Code: "action_failed"}

	ErrInternal = &Error{Kind: KindInternal, Code: "internal_error"}
)

// KindOf maps any error onto the taxonomy. Unknown errors are internal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf returns the taxonomy code of err, or "internal_error".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrInternal.Code
}

// Upstream wraps a protocol-layer failure unless it is already classified.
func Upstream(err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return ErrActionFailed.With(err)
}
