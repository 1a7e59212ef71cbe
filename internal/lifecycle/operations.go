package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/park285/turnkeeper/internal/domain"
	"github.com/park285/turnkeeper/internal/engine"
	"github.com/park285/turnkeeper/internal/msgcat"
)

type CreateRequest struct {
	Name        string
	Boardgame   string
	Creator     string
	CreatorName string
	Options     domain.Options
}

// Create validates the request and stores an open game with the creator
// seated. A one-seat game may start right away.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Game, error) {
	if strings.TrimSpace(req.Creator) == "" {
		return nil, fmt.Errorf("%w: creator is required", ErrInvalidOptions)
	}
	eng, err := s.engines.Get(req.Boardgame)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := validateOptions(req.Options, now); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = eng.Name()
	}
	base := slug.Make(name)
	if base == "" {
		base = slug.Make(eng.Name())
	}
	g := &domain.Game{
		ID:            base + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Boardgame:     eng.Name(),
		EngineVersion: eng.Version(),
		Creator:       req.Creator,
		Status:        domain.StatusOpen,
		Options:       req.Options,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	g.Players = []domain.Player{newPlayer(req.Creator, req.CreatorName, req.Options.Timing)}
	g.Ready = len(g.Players) >= g.Options.Seats

	fx := &effects{}
	if err := s.maybeStart(g, eng, fx, now); err != nil {
		return nil, err
	}
	if err := s.store.CreateGame(ctx, g); err != nil {
		return nil, err
	}
	// the game was just inserted, so nobody else can hold its lease yet
	if len(fx.notes) > 0 || len(fx.chat) > 0 {
		if err := s.commit(ctx, g, eng, fx); err != nil {
			return nil, err
		}
	}
	s.metrics.Transition("created")
	s.logger.Info("game_created",
		zap.String("game_id", g.ID),
		zap.String("boardgame", g.Boardgame),
		zap.String("creator", g.Creator),
		zap.Int("seats", g.Options.Seats),
	)
	return g, nil
}

func validateOptions(o domain.Options, now time.Time) error {
	t := o.Timing
	switch {
	case o.Seats < 1:
		return fmt.Errorf("%w: seats must be positive", ErrInvalidOptions)
	case t.TimePerGame <= 0:
		return fmt.Errorf("%w: time per game must be positive", ErrInvalidOptions)
	case t.TimePerMove < 0 || t.TimePerMove > t.TimePerGame:
		return fmt.Errorf("%w: time per move must be within [0, time per game]", ErrInvalidOptions)
	case t.ScheduledStart != nil && !t.ScheduledStart.After(now):
		return fmt.Errorf("%w: scheduled start is in the past", ErrInvalidOptions)
	}
	if w := t.ActiveWindow; w != nil {
		const day = 24 * 60 * 60
		if w.Start < 0 || w.Start >= day || w.End < 0 || w.End >= day {
			return fmt.Errorf("%w: active window out of range", ErrInvalidOptions)
		}
	}
	return nil
}

func newPlayer(id, name string, t domain.Timing) domain.Player {
	if strings.TrimSpace(name) == "" {
		name = id
	}
	return domain.Player{ID: id, Name: name, RemainingTime: t.TimePerGame}
}

// Join seats userID in an open game.
func (s *Service) Join(ctx context.Context, gameID, userID, name string) (*domain.Game, error) {
	return s.mutate(ctx, gameID, func(g *domain.Game, eng engine.Safe, fx *effects, now time.Time) error {
		if g.Status != domain.StatusOpen {
			return fmt.Errorf("%w: game is %s", ErrInvalidState, g.Status)
		}
		if g.Player(userID) != nil {
			return ErrAlreadyJoined
		}
		if len(g.Players) >= g.Options.Seats {
			return ErrFull
		}
		p := newPlayer(userID, name, g.Options.Timing)
		g.Players = append(g.Players, p)
		g.Ready = len(g.Players) >= g.Options.Seats
		fx.say(s.text(msgcat.PlayerJoined, map[string]string{"Player": p.Name}))
		fx.event("joined")
		return s.maybeStart(g, eng, fx, now)
	})
}

// Leave removes a non-host player from an open game.
func (s *Service) Leave(ctx context.Context, gameID, userID string) (*domain.Game, error) {
	return s.mutate(ctx, gameID, func(g *domain.Game, _ engine.Safe, fx *effects, _ time.Time) error {
		if g.Status != domain.StatusOpen {
			return fmt.Errorf("%w: game is %s", ErrInvalidState, g.Status)
		}
		i := g.PlayerIndex(userID)
		if i < 0 {
			return ErrNotPlayer
		}
		if userID == g.Creator {
			return fmt.Errorf("%w: the host cannot leave", ErrInvalidState)
		}
		name := g.Players[i].Name
		g.Players = append(g.Players[:i], g.Players[i+1:]...)
		g.Ready = false
		fx.say(s.text(msgcat.PlayerLeft, map[string]string{"Player": name}))
		return nil
	})
}

// Start is the host finalizing a ready game.
func (s *Service) Start(ctx context.Context, gameID, requester string) (*domain.Game, error) {
	return s.mutate(ctx, gameID, func(g *domain.Game, eng engine.Safe, fx *effects, now time.Time) error {
		if requester != g.Creator {
			return ErrNotHost
		}
		if g.Status != domain.StatusOpen || !g.Ready {
			return fmt.Errorf("%w: game is not ready", ErrInvalidState)
		}
		return s.start(g, eng, fx, now)
	})
}

// Move applies a move for a current player.
func (s *Service) Move(ctx context.Context, gameID, userID, move string) (*domain.Game, error) {
	return s.mutate(ctx, gameID, func(g *domain.Game, eng engine.Safe, fx *effects, now time.Time) error {
		if g.Status != domain.StatusActive {
			return fmt.Errorf("%w: game is %s", ErrInvalidState, g.Status)
		}
		i := g.PlayerIndex(userID)
		if i < 0 {
			return ErrNotPlayer
		}
		if g.Current(userID) == nil {
			return ErrNotYourTurn
		}
		data, err := eng.Move(g.Data, move, i)
		if err != nil {
			return err
		}
		g.Data = data
		g.LastMove = now
		if err := messages(g, eng, fx); err != nil {
			return err
		}
		fx.event("moved")
		return s.advance(g, eng, fx, now)
	})
}

// Quit lets a player leave an active game for good.
func (s *Service) Quit(ctx context.Context, gameID, userID string) (*domain.Game, error) {
	return s.mutate(ctx, gameID, func(g *domain.Game, eng engine.Safe, fx *effects, now time.Time) error {
		if g.Status != domain.StatusActive {
			return fmt.Errorf("%w: game is %s", ErrInvalidState, g.Status)
		}
		i := g.PlayerIndex(userID)
		if i < 0 {
			return ErrNotPlayer
		}
		if g.Players[i].Gone() {
			return fmt.Errorf("%w: player already left", ErrInvalidState)
		}
		data, err := eng.DropPlayer(g.Data, i)
		if err != nil {
			return err
		}
		g.Data = data
		// a quit settles like a drop; Quit only records the reason
		g.Players[i].Quit = true
		g.Players[i].Dropped = true
		fx.notify(domain.KindPlayerQuit, g.ID, userID, nil)
		fx.notify(domain.KindPlayerDrop, g.ID, userID, map[string]string{domain.MetaReason: "quit"})
		fx.event("quit")
		if err := messages(g, eng, fx); err != nil {
			return err
		}
		return s.advance(g, eng, fx, now)
	})
}

// VoteCancel records a cancel vote; the game ends cancelled once every
// player still in it voted.
func (s *Service) VoteCancel(ctx context.Context, gameID, userID string) (*domain.Game, error) {
	return s.mutate(ctx, gameID, func(g *domain.Game, eng engine.Safe, fx *effects, now time.Time) error {
		if g.Status != domain.StatusActive {
			return fmt.Errorf("%w: game is %s", ErrInvalidState, g.Status)
		}
		p := g.Player(userID)
		if p == nil {
			return ErrNotPlayer
		}
		if p.Gone() {
			return fmt.Errorf("%w: player already left", ErrInvalidState)
		}
		if p.VotedCancel {
			return errSkip
		}
		p.VotedCancel = true
		fx.say(s.text(msgcat.GameVoteCancel, map[string]string{"Player": p.Name}))
		return s.advance(g, eng, fx, now)
	})
}

// RequestDrop queues the removal of a current player whose time ran out.
// The deadline seen now travels with the request so a later handler can
// tell whether it went stale.
func (s *Service) RequestDrop(ctx context.Context, gameID, userID string) (*domain.Notification, error) {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrNotFound
	}
	if g.Status != domain.StatusActive {
		return nil, fmt.Errorf("%w: game is %s", ErrInvalidState, g.Status)
	}
	cp := g.Current(userID)
	if cp == nil {
		return nil, ErrNotYourTurn
	}
	if cp.Deadline.After(s.now()) {
		return nil, ErrStillHasTime
	}
	n := &domain.Notification{
		Kind: domain.KindDropPlayer,
		Game: gameID,
		User: userID,
		Meta: map[string]string{
			domain.MetaDeadline: cp.Deadline.UTC().Format(time.RFC3339Nano),
			domain.MetaReason:   "timeout",
		},
	}
	if err := s.store.Enqueue(ctx, n); err != nil {
		return nil, err
	}
	s.logger.Info("drop_requested", zap.String("game_id", gameID), zap.String("user_id", userID))
	return n, nil
}

// DropPlayer removes userID for running out of time. A request that no
// longer matches the game (ended, not current, deadline moved or not yet
// reached) is treated as resolved and reports dropped=false. Contention
// returns ErrBusy.
func (s *Service) DropPlayer(ctx context.Context, gameID, userID string, expectedDeadline time.Time) (dropped bool, err error) {
	_, err = s.mutate(ctx, gameID, func(g *domain.Game, eng engine.Safe, fx *effects, now time.Time) error {
		if g.Status != domain.StatusActive {
			return errSkip
		}
		cp := g.Current(userID)
		if cp == nil {
			return errSkip
		}
		if !expectedDeadline.IsZero() && !cp.Deadline.Equal(expectedDeadline) {
			return errSkip
		}
		if cp.Deadline.After(now) {
			return errSkip
		}
		if err := s.drop(g, eng, fx, g.PlayerIndex(userID), "timeout"); err != nil {
			return err
		}
		dropped = true
		return s.advance(g, eng, fx, now)
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return dropped, err
}

// drop marks player i as dropped and queues the karma penalty.
func (s *Service) drop(g *domain.Game, eng engine.Safe, fx *effects, i int, reason string) error {
	data, err := eng.DropPlayer(g.Data, i)
	if err != nil {
		return err
	}
	g.Data = data
	p := &g.Players[i]
	p.Dropped = true
	fx.notify(domain.KindPlayerDrop, g.ID, p.ID, map[string]string{domain.MetaReason: reason})
	fx.say(s.text(msgcat.PlayerDropped, map[string]string{"Player": p.Name}))
	fx.event("dropped")
	return messages(g, eng, fx)
}

// Finalize refreshes scores and rankings of an ended game from its engine
// state. The caller holds the game lease.
func (s *Service) Finalize(g *domain.Game) error {
	if g.Status != domain.StatusEnded {
		return fmt.Errorf("%w: game is %s", ErrInvalidState, g.Status)
	}
	if len(g.Data) == 0 {
		return nil
	}
	eng, err := s.engines.Get(g.Boardgame)
	if err != nil {
		return err
	}
	return refreshScores(g, eng)
}
