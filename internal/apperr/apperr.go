// Package apperr defines the error kinds surfaced by arena operations.
package apperr

import (
	"errors"

	"github.com/rotisserie/eris"
)

type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindInvalidState      Kind = "invalid_state"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindAlreadyClaimed    Kind = "already_claimed"
	KindInternal          Kind = "internal_error"
)

// Error is a classified failure. Code is stable and snake_case; Reason is for humans.
type Error struct {
	Kind   Kind
	Code   string
	Reason string
	Err    error
}

func New(kind Kind, code, reason string) *Error {
	return &Error{Kind: kind, Code: code, Reason: reason}
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Code
	}
	return e.Code + ": " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so copies made by WithReason
// still satisfy errors.Is against the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithReason returns a copy carrying a more specific reason.
func (e *Error) WithReason(reason string) *Error {
	cp := *e
	cp.Reason = reason
	return &cp
}

// Internal wraps an infrastructure failure with a stack trace.
func Internal(err error, msg string) *Error {
	return &Error{
		Kind:   KindInternal,
		Code:   "internal_error",
		Reason: msg,
		Err:    eris.Wrap(err, msg),
	}
}

func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}

// ReasonOf hides the text of unclassified errors from callers.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "internal error"
}

// Format renders the wrapped chain with stack frames for logs.
func Format(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Code + ": " + eris.ToString(e.Err, true)
	}
	return eris.ToString(err, true)
}

var (
	ErrInvalidGameType = New(KindValidation, "invalid_game_type", "unknown game type")
	ErrInvalidLevel    = New(KindValidation, "invalid_level", "unknown level for game type")
	ErrInvalidAmount   = New(KindValidation, "invalid_amount", "amount must be positive")
	ErrInvalidAction   = New(KindValidation, "invalid_action", "action is not legal")
	ErrInvalidRequest  = New(KindValidation, "invalid_request", "malformed request")

	ErrInsufficientFunds = New(KindInsufficientFunds, "insufficient_funds", "balance is below the required amount")

	ErrAlreadyQueued = New(KindConflict, "already_queued", "agent already waiting in a queue")
	ErrAlreadyInRoom = New(KindConflict, "already_in_room", "agent already bound to a room")

	ErrNotInRoom       = New(KindInvalidState, "not_in_room", "agent is not a player in this room")
	ErrAlreadyReady    = New(KindInvalidState, "already_ready", "agent already marked ready")
	ErrRoomNotWaiting  = New(KindInvalidState, "room_not_waiting", "room is no longer accepting ready signals")
	ErrGameNotPlaying  = New(KindInvalidState, "game_not_playing", "game is not in progress")
	ErrAlreadyStarted  = New(KindInvalidState, "already_started", "game already started")
	ErrRoomNotPlayable = New(KindInvalidState, "room_not_playing", "room is not playing")

	ErrAgentNotFound = New(KindNotFound, "agent_not_found", "agent does not exist")
	ErrRoomNotFound  = New(KindNotFound, "room_not_found", "room does not exist")
	ErrMatchNotFound = New(KindNotFound, "match_not_found", "match does not exist")
	ErrNoActiveRoom  = New(KindNotFound, "no_active_room", "agent is not in a room")

	ErrAlreadyClaimed = New(KindAlreadyClaimed, "already_claimed", "daily reward already claimed today")
)
