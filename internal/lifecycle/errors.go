package lifecycle

import (
	"errors"

	"github.com/park285/turnkeeper/internal/engine"
	"github.com/park285/turnkeeper/pkg/gamedto"
)

var (
	ErrBusy           = errors.New("game is busy, try again")
	ErrNotFound       = errors.New("game not found")
	ErrInvalidState   = errors.New("operation not allowed in the current game state")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrNotPlayer      = errors.New("not a player of this game")
	ErrAlreadyJoined  = errors.New("already joined")
	ErrFull           = errors.New("game is full")
	ErrNotHost        = errors.New("only the host can do this")
	ErrInvalidOptions = errors.New("invalid game options")
	ErrStillHasTime   = errors.New("player still has time left")
)

// ToDomainError maps an operation error to its caller-facing code.
func ToDomainError(err error) gamedto.DomainError {
	code := "internal"
	switch {
	case errors.Is(err, ErrBusy):
		return gamedto.DomainError{Code: "busy", Message: err.Error(), Retryable: true}
	case errors.Is(err, ErrNotFound):
		code = "not_found"
	case errors.Is(err, ErrInvalidState):
		code = "invalid_state"
	case errors.Is(err, ErrNotYourTurn):
		code = "not_your_turn"
	case errors.Is(err, ErrNotPlayer):
		code = "not_player"
	case errors.Is(err, ErrAlreadyJoined):
		code = "already_joined"
	case errors.Is(err, ErrFull):
		code = "full"
	case errors.Is(err, ErrNotHost):
		code = "not_host"
	case errors.Is(err, ErrInvalidOptions):
		code = "invalid_options"
	case errors.Is(err, ErrStillHasTime):
		code = "still_has_time"
	case errors.Is(err, engine.ErrUnknown):
		code = "unknown_boardgame"
	case errors.Is(err, engine.ErrEngine):
		code = "engine"
	}
	return gamedto.DomainError{Code: code, Message: err.Error()}
}
