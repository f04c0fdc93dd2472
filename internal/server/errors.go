package server

import "errors"

var (
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrServerNotRunning     = errors.New("server is not running")
	ErrInvalidRequest       = errors.New("invalid request")
)
