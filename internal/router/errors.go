package router

import (
	"errors"
	"fmt"

	"github.com/energizer-project/blazer/internal/game"
	"github.com/energizer-project/blazer/internal/protocol"
	"github.com/energizer-project/blazer/internal/session"
	"github.com/energizer-project/blazer/internal/tdf"
)

// Error carries an explicit wire code out of a handler.
type Error struct {
	Code  protocol.ErrorCode
	Fatal bool
	Err   error
}

// NewError wraps err with code.
func NewError(code protocol.ErrorCode, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Errorf builds an Error from a format string.
func Errorf(code protocol.ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var sentinels = []struct {
	err   error
	code  protocol.ErrorCode
	fatal bool
}{
	{session.ErrNotAuthenticated, protocol.ErrNotAuthenticated, false},
	{session.ErrAlreadyAuthenticated, protocol.ErrAlreadyAuthenticated, false},
	{session.ErrInvalidCredentials, protocol.ErrInvalidCredentials, false},
	{session.ErrAuthRateLimited, protocol.ErrAuthRateLimited, true},
	{session.ErrSessionClosed, protocol.ErrNotAuthenticated, true},
	{game.ErrGameFull, protocol.ErrGameFull, false},
	{game.ErrInvalidState, protocol.ErrInvalidState, false},
	{game.ErrAlreadyInGame, protocol.ErrAlreadyInGame, false},
	{game.ErrGameNotFound, protocol.ErrGameNotFound, false},
	{game.ErrNotInGame, protocol.ErrNotInGame, false},
	{game.ErrNotHost, protocol.ErrNotHost, false},
	{game.ErrAlreadyQueued, protocol.ErrAlreadyQueued, false},
	{tdf.ErrMalformed, protocol.ErrMalformedPayload, false},
}

// Classify maps a handler error to its wire code.
func Classify(err error) (code protocol.ErrorCode, fatal bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Code, re.Fatal
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.code, s.fatal
		}
	}
	return protocol.ErrInternal, false
}
