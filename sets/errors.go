package sets

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota

	// Broker errors (STOMP ERROR frames)
	ErrorServer

	// Connectivity errors
	ErrorConnection
	ErrorDisconnected
	ErrorTimeout
	ErrorNotConnected

	// Client-side errors
	ErrorInvalidConfig
	ErrorSerialization
	ErrorInvalidRoomCode
	ErrorInvalidMaxPlayers
	ErrorRoomNotFound

	// Move errors, raised before anything is published
	ErrorNotHost
	ErrorNotEnoughPlayers
	ErrorWrongPhase
	ErrorPassInFlight
	ErrorCannotAct
	ErrorNotInRoom
	ErrorNoSet
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorServer:
		return "server_error"
	case ErrorConnection:
		return "connection_error"
	case ErrorDisconnected:
		return "disconnected"
	case ErrorTimeout:
		return "timeout"
	case ErrorNotConnected:
		return "not_connected"
	case ErrorInvalidConfig:
		return "invalid_config"
	case ErrorSerialization:
		return "serialization_error"
	case ErrorInvalidRoomCode:
		return "invalid_room_code"
	case ErrorInvalidMaxPlayers:
		return "invalid_max_players"
	case ErrorRoomNotFound:
		return "room_not_found"
	case ErrorNotHost:
		return "not_host"
	case ErrorNotEnoughPlayers:
		return "not_enough_players"
	case ErrorWrongPhase:
		return "wrong_phase"
	case ErrorPassInFlight:
		return "pass_in_flight"
	case ErrorCannotAct:
		return "cannot_act"
	case ErrorNotInRoom:
		return "not_in_room"
	case ErrorNoSet:
		return "no_set"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// SetsError is a structured error with code and context.
type SetsError struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *SetsError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *SetsError) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is a SetsError with the same code.
func (e *SetsError) Is(target error) bool {
	t, ok := target.(*SetsError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new SetsError with the given code and message.
func NewError(code ErrorCode, message string) *SetsError {
	return &SetsError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with a SetsError.
func WrapError(code ErrorCode, message string, err error) *SetsError {
	return &SetsError{
		Code:    code,
		Message: message,
		Wrapped: err,
	}
}

// Sentinels for errors.Is checks. Comparison is by code only.
var (
	ErrNotConnected      = NewError(ErrorNotConnected, "not connected")
	ErrInvalidRoomCode   = NewError(ErrorInvalidRoomCode, "room code must be 4 letters or digits")
	ErrInvalidMaxPlayers = NewError(ErrorInvalidMaxPlayers, "max players must be between 3 and 8")
	ErrRoomNotFound      = NewError(ErrorRoomNotFound, "room not found")
	ErrNotHost           = NewError(ErrorNotHost, "only the host can do that")
	ErrNotEnoughPlayers  = NewError(ErrorNotEnoughPlayers, "not enough players to start")
	ErrWrongPhase        = NewError(ErrorWrongPhase, "move not allowed in this phase")
	ErrPassInFlight      = NewError(ErrorPassInFlight, "a pass is already in flight")
	ErrCannotAct         = NewError(ErrorCannotAct, "waiting for a card to be passed to you")
	ErrNotInRoom         = NewError(ErrorNotInRoom, "current user is not in the room")
	ErrNoSet             = NewError(ErrorNoSet, "hand is not a set")
)

// CodeOf extracts the ErrorCode from err, or ErrorUnknown.
func CodeOf(err error) ErrorCode {
	var se *SetsError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrorUnknown
}

// IsConnectionError checks if an error is a connectivity fault.
func IsConnectionError(err error) bool {
	switch CodeOf(err) {
	case ErrorConnection, ErrorDisconnected, ErrorTimeout, ErrorNotConnected:
		return true
	default:
		return false
	}
}

// IsMoveError checks if an error is a locally rejected move.
func IsMoveError(err error) bool {
	c := CodeOf(err)
	return c >= ErrorNotHost && c <= ErrorNoSet
}
