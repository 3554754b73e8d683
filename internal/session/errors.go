package session

import "errors"

var (
	ErrNotAuthenticated     = errors.New("session not authenticated")
	ErrAlreadyAuthenticated = errors.New("session already authenticated")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAuthRateLimited      = errors.New("too many failed login attempts")
	ErrSessionClosed        = errors.New("session closed")
	ErrOutboundFull         = errors.New("outbound queue full")
)
