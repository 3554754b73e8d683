package game

import "errors"

var (
	ErrGameFull      = errors.New("game is full")
	ErrInvalidState  = errors.New("invalid game state")
	ErrAlreadyInGame = errors.New("session already in a game")
	ErrGameNotFound  = errors.New("game not found")
	ErrNotInGame     = errors.New("session not in game")
	ErrNotHost       = errors.New("only the host may do that")
	ErrAlreadyQueued = errors.New("session already queued for matchmaking")
)
