// Package gamedto holds the per-viewer projection of a game.
package gamedto

import (
	"encoding/json"
	"time"
)

type PlayerView struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	RemainingTime int64   `json:"remaining_time"`
	Score         float64 `json:"score"`
	Ranking       int     `json:"ranking,omitempty"`
	Faction       string  `json:"faction,omitempty"`
	Dropped       bool    `json:"dropped,omitempty"`
	Quit          bool    `json:"quit,omitempty"`
	EloInitial    *int    `json:"elo_initial,omitempty"`
	EloDelta      *int    `json:"elo_delta,omitempty"`
}

type CurrentPlayerView struct {
	ID       string    `json:"id"`
	Deadline time.Time `json:"deadline"`
	// Paused is true when the active window currently stops the clock.
	Paused bool `json:"paused"`
}

type GameView struct {
	ID             string              `json:"id"`
	Boardgame      string              `json:"boardgame"`
	Creator        string              `json:"creator"`
	Status         string              `json:"status"`
	Cancelled      bool                `json:"cancelled,omitempty"`
	Ready          bool                `json:"ready,omitempty"`
	Seats          int                 `json:"seats"`
	Round          int                 `json:"round,omitempty"`
	Players        []PlayerView        `json:"players"`
	CurrentPlayers []CurrentPlayerView `json:"current_players,omitempty"`
	// Viewer is the index of the requesting player, -1 for spectators.
	Viewer         int             `json:"viewer"`
	Data           json.RawMessage `json:"data,omitempty"`
	ScheduledStart *time.Time      `json:"scheduled_start,omitempty"`
	LastMove       time.Time       `json:"last_move,omitempty"`
	StartedAt      time.Time       `json:"started_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
