// Package engine defines the boundary between the game core and the
// per-boardgame rule engines. Engines own an opaque JSON state; the core
// never inspects it.
package engine

import (
	"encoding/json"
	"errors"
)

var (
	// ErrEngine wraps every failure raised by an engine, panics included.
	ErrEngine = errors.New("engine failure")
	// ErrUnknown is returned for a boardgame with no registered engine.
	ErrUnknown = errors.New("unknown boardgame")
)

// State is the engine-owned game data.
type State = json.RawMessage

// InitParams is what an engine receives when a game starts.
type InitParams struct {
	Players    int
	Expansions []string
	Options    json.RawMessage
	Seed       string
}

// Engine is the required capability set.
type Engine interface {
	Name() string
	Version() int
	Init(p InitParams) (State, error)
	Move(s State, move string, player int) (State, error)
	DropPlayer(s State, player int) (State, error)
	// CurrentPlayers returns the indexes expected to act. Empty when nobody is.
	CurrentPlayers(s State) ([]int, error)
	Scores(s State) ([]float64, error)
	Ended(s State) (bool, error)
}

// Optional capabilities, discovered by type assertion.

type Ranker interface {
	Rankings(s State) ([]int, error)
}

type Canceller interface {
	Cancelled(s State) (bool, error)
}

type Factioner interface {
	Factions(s State) ([]string, error)
}

type Rounder interface {
	Round(s State) (int, error)
}

// SecretStripper hides what viewer may not see. viewer is -1 for spectators.
type SecretStripper interface {
	StripSecret(s State, viewer int) (State, error)
}

// Saver compacts the state before it is persisted.
type Saver interface {
	ToSave(s State) (State, error)
}

// Messenger returns plain-text system messages produced by the last change.
type Messenger interface {
	Messages(s State) ([]string, error)
}
