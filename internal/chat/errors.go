package chat

import "errors"

var (
	// ErrValidation marks malformed or incomplete input. Live events
	// failing validation are dropped; REST callers get a 400.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence marks an unreachable store or a rejected write.
	ErrPersistence = errors.New("persistence failed")
	// ErrDispatch marks a push notification that could not be delivered.
	ErrDispatch = errors.New("dispatch failed")

	ErrUnknownEvent = errors.New("unknown event")
)
