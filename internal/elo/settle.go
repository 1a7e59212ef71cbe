package elo

import (
	"github.com/park285/turnkeeper/internal/domain"
)

// Writer receives the rating updates. store.Tx implements it.
type Writer interface {
	AddElo(boardgame, user string, delta int)
	SetElo(boardgame, user string, value int)
}

// Settle computes the deltas of a finished game, queues the writes on w and
// records the Initial/Delta snapshot on every player. It returns false when
// the game is not rated.
func Settle(w Writer, g *domain.Game, records map[string]domain.EloRecord) bool {
	if !ShouldRate(g) {
		return false
	}
	ps := make([]Participant, len(g.Players))
	for i, p := range g.Players {
		ps[i] = Participant{
			ID:      p.ID,
			Score:   p.Score,
			Ranking: p.Ranking,
			Dropped: p.Dropped,
			Elo:     records[p.ID],
		}
	}
	deltas := Compute(ps, g.Cancelled && g.AnyDropped())
	for i := range g.Players {
		rec := ps[i].Elo
		d := deltas[i]
		if d > 0 {
			w.AddElo(g.Boardgame, ps[i].ID, d)
		} else {
			w.SetElo(g.Boardgame, ps[i].ID, NewValue(rec, d))
		}
		g.Players[i].Elo = &domain.PlayerElo{Initial: rec.Value, Delta: d}
	}
	return true
}
