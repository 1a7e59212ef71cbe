package domain

import (
	"encoding/json"
	"time"
)

// Status represents a game lifecycle state.
type Status string

const (
	StatusOpen   Status = "open"
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// ActiveWindow is the daily UTC interval, in seconds since midnight, during
// which move clocks run. Start > End wraps around midnight.
type ActiveWindow struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Timing holds the clock settings of a game. Durations are in seconds.
type Timing struct {
	TimePerGame    int64         `json:"time_per_game"`
	TimePerMove    int64         `json:"time_per_move"`
	ActiveWindow   *ActiveWindow `json:"active_window,omitempty"`
	ScheduledStart *time.Time    `json:"scheduled_start,omitempty"`
}

// Setup is handed to the engine when the game starts.
type Setup struct {
	Seed          string          `json:"seed,omitempty"`
	Expansions    []string        `json:"expansions,omitempty"`
	EngineOptions json.RawMessage `json:"engine_options,omitempty"`
}

type Options struct {
	Seats        int    `json:"seats"`
	Timing       Timing `json:"timing"`
	Setup        Setup  `json:"setup"`
	HostFinalize bool   `json:"host_finalize,omitempty"`
	RandomOrder  bool   `json:"random_order,omitempty"`
	Unrated      bool   `json:"unrated,omitempty"`
}

// PlayerElo is the point-in-time rating snapshot stored on a finished game.
type PlayerElo struct {
	Initial int `json:"initial"`
	Delta   int `json:"delta"`
}

type Player struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	RemainingTime int64      `json:"remaining_time"`
	Score         float64    `json:"score"`
	Dropped       bool       `json:"dropped,omitempty"`
	Quit          bool       `json:"quit,omitempty"`
	VotedCancel   bool       `json:"voted_cancel,omitempty"`
	Ranking       int        `json:"ranking,omitempty"`
	Faction       string     `json:"faction,omitempty"`
	Elo           *PlayerElo `json:"elo,omitempty"`
}

// Gone reports whether the player no longer takes part in the game.
func (p Player) Gone() bool { return p.Dropped || p.Quit }

type CurrentPlayer struct {
	ID         string    `json:"id"`
	TimerStart time.Time `json:"timer_start"`
	Deadline   time.Time `json:"deadline"`
}

// Settled records which game-end side effects were already committed.
type Settled struct {
	Karma bool `json:"karma,omitempty"`
	Elo   bool `json:"elo,omitempty"`
}

// Game is the persisted document of one match.
type Game struct {
	ID             string          `json:"id"`
	Boardgame      string          `json:"boardgame"`
	EngineVersion  int             `json:"engine_version,omitempty"`
	Creator        string          `json:"creator"`
	Players        []Player        `json:"players"`
	CurrentPlayers []CurrentPlayer `json:"current_players,omitempty"`
	Status         Status          `json:"status"`
	Cancelled      bool            `json:"cancelled,omitempty"`
	Ready          bool            `json:"ready,omitempty"`
	Options        Options         `json:"options"`
	Data           json.RawMessage `json:"data,omitempty"`
	Round          int             `json:"round,omitempty"`
	Settled        Settled         `json:"settled"`
	LastMove       time.Time       `json:"last_move"`
	StartedAt      time.Time       `json:"started_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (g *Game) PlayerIndex(userID string) int {
	for i := range g.Players {
		if g.Players[i].ID == userID {
			return i
		}
	}
	return -1
}

func (g *Game) Player(userID string) *Player {
	if i := g.PlayerIndex(userID); i >= 0 {
		return &g.Players[i]
	}
	return nil
}

func (g *Game) Current(userID string) *CurrentPlayer {
	for i := range g.CurrentPlayers {
		if g.CurrentPlayers[i].ID == userID {
			return &g.CurrentPlayers[i]
		}
	}
	return nil
}

// NextDeadline returns the earliest deadline among current players.
func (g *Game) NextDeadline() (time.Time, bool) {
	var out time.Time
	for _, cp := range g.CurrentPlayers {
		if out.IsZero() || cp.Deadline.Before(out) {
			out = cp.Deadline
		}
	}
	return out, !out.IsZero()
}

// AnyDropped reports whether at least one player dropped out.
func (g *Game) AnyDropped() bool {
	for _, p := range g.Players {
		if p.Dropped {
			return true
		}
	}
	return false
}
