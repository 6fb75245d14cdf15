package chat

import "errors"

// ErrSessionInconsistency reports that stashed session context (selected peer,
// message being replied to) is missing or stale. Handlers fail soft on it: the
// user gets a recoverable notice and the session resets to idle.
var ErrSessionInconsistency = errors.New("session context missing or stale")

// ValidationError rejects malformed input without touching the session.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validation(msg string) error { return &ValidationError{msg: msg} }
