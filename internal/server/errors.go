package server

import "errors"

// Server-specific errors
var (
	ErrServerClosed         = errors.New("server is closed")
	ErrServerNotRunning     = errors.New("server is not running")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrInvalidMessage       = errors.New("invalid message")
	ErrUnknownMessageType   = errors.New("unknown message type")
	ErrBatchTooLarge        = errors.New("batch too large")
	ErrMessageTooLarge      = errors.New("message too large")
	ErrListenerFailed       = errors.New("failed to create listener")
)
