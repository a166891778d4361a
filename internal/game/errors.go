package game

import "ipg-server/internal/shared/errors"

var (
	ErrGameFull            = errors.Conflict("game is full")
	ErrAlreadyStarted      = errors.Conflict("game has already started")
	ErrInsufficientPlayers = errors.Validation("not enough players to start the game")
	ErrNotStarted          = errors.Conflict("game has not started")
	ErrNotOwner            = errors.Forbidden("player does not own the source planet")
	ErrSelfMove            = errors.Validation("a planet cannot send ships to itself")
)
