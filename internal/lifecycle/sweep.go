package lifecycle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/turnkeeper/internal/domain"
	"github.com/park285/turnkeeper/internal/engine"
	"github.com/park285/turnkeeper/internal/lease"
	"github.com/park285/turnkeeper/internal/msgcat"
)

// errSkipSweep marks a game that turned out to have nothing due.
var errSkipSweep = errors.New("nothing due")

// SweepDeadlines drops every current player whose deadline passed. It
// returns the number of games changed. A failing game is logged and left
// for the next sweep.
func (s *Service) SweepDeadlines(ctx context.Context) (int, error) {
	ids, err := s.store.DueGames(ctx, s.now(), s.sweepBatch)
	if err != nil {
		return 0, err
	}
	changed := 0
	for i, id := range ids {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		if i > 0 {
			if err := lease.Refresh(ctx); err != nil {
				return changed, err
			}
		}
		g, acquired, err := s.update(ctx, id, s.sweepGame)
		switch {
		case errors.Is(err, ErrNotFound):
			_ = s.store.DeleteGame(ctx, id)
		case errors.Is(err, errSkipSweep):
		case err != nil:
			s.logger.Error("deadline_sweep_error", zap.String("game_id", id), zap.Error(err))
		case !acquired:
			s.logger.Debug("deadline_sweep_busy", zap.String("game_id", id))
		case g != nil:
			changed++
		}
	}
	return changed, nil
}

func (s *Service) sweepGame(g *domain.Game, eng engine.Safe, fx *effects, now time.Time) error {
	if g.Status != domain.StatusActive {
		return errSkipSweep
	}
	var expired []string
	for _, cp := range g.CurrentPlayers {
		if !cp.Deadline.After(now) {
			expired = append(expired, cp.ID)
		}
	}
	if len(expired) == 0 {
		return errSkipSweep
	}
	for _, id := range expired {
		if g.Status != domain.StatusActive || g.Current(id) == nil {
			continue
		}
		if err := s.drop(g, eng, fx, g.PlayerIndex(id), "timeout"); err != nil {
			return err
		}
		if err := s.advance(g, eng, fx, now); err != nil {
			return err
		}
	}
	return nil
}

// SweepScheduled handles open games whose scheduled start passed: ready
// games start, the others end cancelled.
func (s *Service) SweepScheduled(ctx context.Context) (int, error) {
	ids, err := s.store.ScheduledDue(ctx, s.now(), s.sweepBatch)
	if err != nil {
		return 0, err
	}
	changed := 0
	for i, id := range ids {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		if i > 0 {
			if err := lease.Refresh(ctx); err != nil {
				return changed, err
			}
		}
		g, acquired, err := s.update(ctx, id, s.scheduledGame)
		switch {
		case errors.Is(err, ErrNotFound):
			_ = s.store.DeleteGame(ctx, id)
		case errors.Is(err, errSkipSweep):
		case err != nil:
			s.logger.Error("scheduled_sweep_error", zap.String("game_id", id), zap.Error(err))
		case !acquired:
			s.logger.Debug("scheduled_sweep_busy", zap.String("game_id", id))
		case g != nil:
			changed++
		}
	}
	return changed, nil
}

func (s *Service) scheduledGame(g *domain.Game, eng engine.Safe, fx *effects, now time.Time) error {
	ss := g.Options.Timing.ScheduledStart
	if g.Status != domain.StatusOpen || ss == nil || ss.After(now) {
		return errSkipSweep
	}
	if g.Ready {
		return s.start(g, eng, fx, now)
	}
	// nothing was played, so there is nothing to settle
	g.Status = domain.StatusEnded
	g.Cancelled = true
	fx.say(s.text(msgcat.GameCancelledUnready, nil))
	fx.event("cancelled")
	return nil
}
