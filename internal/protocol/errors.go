package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode is the value carried in the header error field.
type ErrorCode uint16

const (
	ErrOK                   ErrorCode = 0x0000
	ErrNotAuthenticated     ErrorCode = 0x0001
	ErrAlreadyAuthenticated ErrorCode = 0x0002
	ErrInvalidCredentials   ErrorCode = 0x0003
	ErrAuthRateLimited      ErrorCode = 0x0004
	ErrUnsupportedCommand   ErrorCode = 0x0010
	ErrMalformedPayload     ErrorCode = 0x0011
	ErrGameFull             ErrorCode = 0x0020
	ErrInvalidState         ErrorCode = 0x0021
	ErrAlreadyInGame        ErrorCode = 0x0022
	ErrGameNotFound         ErrorCode = 0x0023
	ErrNotInGame            ErrorCode = 0x0024
	ErrNotHost              ErrorCode = 0x0025
	ErrAlreadyQueued        ErrorCode = 0x0026
	ErrInternal             ErrorCode = 0x00FF
)

var errorCodeNames = map[ErrorCode]string{
	ErrOK:                   "OK",
	ErrNotAuthenticated:     "NOT_AUTHENTICATED",
	ErrAlreadyAuthenticated: "ALREADY_AUTHENTICATED",
	ErrInvalidCredentials:   "INVALID_CREDENTIALS",
	ErrAuthRateLimited:      "AUTH_RATE_LIMITED",
	ErrUnsupportedCommand:   "UNSUPPORTED_COMMAND",
	ErrMalformedPayload:     "MALFORMED_PAYLOAD",
	ErrGameFull:             "GAME_FULL",
	ErrInvalidState:         "INVALID_STATE",
	ErrAlreadyInGame:        "ALREADY_IN_GAME",
	ErrGameNotFound:         "GAME_NOT_FOUND",
	ErrNotInGame:            "NOT_IN_GAME",
	ErrNotHost:              "NOT_HOST",
	ErrAlreadyQueued:        "ALREADY_QUEUED",
	ErrInternal:             "INTERNAL",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ERROR(0x%04x)", uint16(c))
}

// Framing errors. Both are fatal to the connection.
var (
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds maximum size")
	ErrMalformedHeader = errors.New("protocol: malformed header")
)
