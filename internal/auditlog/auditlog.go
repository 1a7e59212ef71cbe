// Package auditlog records one row per settled game for later inspection.
// Writes are keyed by the notification that settled the game, so replays
// never duplicate an entry.
package auditlog

import (
	"context"
	"time"

	"github.com/park285/turnkeeper/internal/domain"
)

type Writer interface {
	Write(ctx context.Context, e Entry) error
}

type PlayerResult struct {
	ID       string  `json:"id"`
	Score    float64 `json:"score"`
	Ranking  int     `json:"ranking,omitempty"`
	Dropped  bool    `json:"dropped,omitempty"`
	Quit     bool    `json:"quit,omitempty"`
	EloDelta *int    `json:"elo_delta,omitempty"`
}

type Entry struct {
	NotificationID string
	GameID         string
	Boardgame      string
	Cancelled      bool
	Players        []PlayerResult
	StartedAt      time.Time
	EndedAt        time.Time
}

// FromGame builds the entry for a finished game.
func FromGame(notificationID string, g *domain.Game, endedAt time.Time) Entry {
	e := Entry{
		NotificationID: notificationID,
		GameID:         g.ID,
		Boardgame:      g.Boardgame,
		Cancelled:      g.Cancelled,
		StartedAt:      g.StartedAt,
		EndedAt:        endedAt,
	}
	for _, p := range g.Players {
		r := PlayerResult{ID: p.ID, Score: p.Score, Ranking: p.Ranking, Dropped: p.Dropped, Quit: p.Quit}
		if p.Elo != nil {
			d := p.Elo.Delta
			r.EloDelta = &d
		}
		e.Players = append(e.Players, r)
	}
	return e
}

// Nop discards entries.
type Nop struct{}

func (Nop) Write(context.Context, Entry) error { return nil }
