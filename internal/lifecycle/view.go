package lifecycle

import (
	"context"

	"github.com/park285/turnkeeper/internal/domain"
	"github.com/park285/turnkeeper/internal/timewindow"
	"github.com/park285/turnkeeper/pkg/gamedto"
)

// Get reads a game without taking its lease.
func (s *Service) Get(ctx context.Context, gameID string) (*domain.Game, error) {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrNotFound
	}
	return g, nil
}

// View projects a game for viewerID, hiding what the engine marks secret.
func (s *Service) View(ctx context.Context, gameID, viewerID string) (*gamedto.GameView, error) {
	g, err := s.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}
	viewer := g.PlayerIndex(viewerID)
	v := &gamedto.GameView{
		ID:             g.ID,
		Boardgame:      g.Boardgame,
		Creator:        g.Creator,
		Status:         string(g.Status),
		Cancelled:      g.Cancelled,
		Ready:          g.Ready,
		Seats:          g.Options.Seats,
		Round:          g.Round,
		Viewer:         viewer,
		ScheduledStart: g.Options.Timing.ScheduledStart,
		LastMove:       g.LastMove,
		StartedAt:      g.StartedAt,
		CreatedAt:      g.CreatedAt,
	}
	if len(g.Data) > 0 {
		eng, err := s.engines.Get(g.Boardgame)
		if err != nil {
			return nil, err
		}
		data, err := eng.StripSecret(g.Data, viewer)
		if err != nil {
			return nil, err
		}
		v.Data = data
	}
	for _, p := range g.Players {
		pv := gamedto.PlayerView{
			ID:            p.ID,
			Name:          p.Name,
			RemainingTime: p.RemainingTime,
			Score:         p.Score,
			Ranking:       p.Ranking,
			Faction:       p.Faction,
			Dropped:       p.Dropped,
			Quit:          p.Quit,
		}
		if p.Elo != nil {
			initial, delta := p.Elo.Initial, p.Elo.Delta
			pv.EloInitial, pv.EloDelta = &initial, &delta
		}
		v.Players = append(v.Players, pv)
	}
	now := s.now()
	for _, cp := range g.CurrentPlayers {
		v.CurrentPlayers = append(v.CurrentPlayers, gamedto.CurrentPlayerView{
			ID:       cp.ID,
			Deadline: cp.Deadline,
			Paused:   timewindow.IsPaused(now, g.Options.Timing.ActiveWindow),
		})
	}
	return v, nil
}
