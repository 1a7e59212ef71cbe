// Package lifecycle owns game state transitions: seating, starting, moves,
// drops, cancellation and the deadline and scheduled-start sweeps. Every
// mutation runs under the game's lease and re-reads the document first.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/turnkeeper/internal/chat"
	"github.com/park285/turnkeeper/internal/domain"
	"github.com/park285/turnkeeper/internal/engine"
	"github.com/park285/turnkeeper/internal/lease"
	"github.com/park285/turnkeeper/internal/metrics"
	"github.com/park285/turnkeeper/internal/msgcat"
	"github.com/park285/turnkeeper/internal/store"
)

const defaultSweepBatch = 200

type Deps struct {
	Store    *store.Store
	Leases   *lease.Manager
	Engines  *engine.Registry
	Chat     chat.Sink
	Messages *msgcat.Catalog
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

type Service struct {
	store   *store.Store
	leases  *lease.Manager
	engines *engine.Registry
	chat    chat.Sink
	msgs    *msgcat.Catalog
	metrics *metrics.Metrics
	logger  *zap.Logger

	now        func() time.Time
	sweepBatch int64
}

type Option func(*Service)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithSweepBatch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sweepBatch = int64(n)
		}
	}
}

func New(d Deps, opts ...Option) *Service {
	s := &Service{
		store:      d.Store,
		leases:     d.Leases,
		engines:    d.Engines,
		chat:       d.Chat,
		msgs:       d.Messages,
		metrics:    d.Metrics,
		logger:     d.Logger,
		now:        time.Now,
		sweepBatch: defaultSweepBatch,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.chat == nil {
		s.chat = chat.NewLogSink(s.logger)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// effects collects what a transition produces. Notifications are committed
// with the game; chat messages are posted after the commit.
type effects struct {
	notes  []*domain.Notification
	chat   []string
	events []string
}

func (fx *effects) notify(kind domain.NotificationKind, gameID, user string, meta map[string]string) {
	fx.notes = append(fx.notes, &domain.Notification{Kind: kind, Game: gameID, User: user, Meta: meta})
}

func (fx *effects) say(text string) {
	if text != "" {
		fx.chat = append(fx.chat, text)
	}
}

func (fx *effects) event(name string) { fx.events = append(fx.events, name) }

type mutation func(g *domain.Game, eng engine.Safe, fx *effects, now time.Time) error

// errSkip aborts a mutation without committing and without reporting an error.
var errSkip = errors.New("skip")

// update runs fn on a fresh read of the game while holding its lease and
// commits the result. acquired is false on contention.
// 동시성: 락 획득 후 반드시 다시 읽음 (락 이전 스냅샷은 신뢰하지 않음)
func (s *Service) update(ctx context.Context, gameID string, fn mutation) (g *domain.Game, acquired bool, err error) {
	var boardgame string
	acquired, err = s.leases.Do(ctx, []string{"game", gameID}, func(ctx context.Context) error {
		cur, err := s.store.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrNotFound
		}
		boardgame = cur.Boardgame
		eng, err := s.engines.Get(cur.Boardgame)
		if err != nil {
			return err
		}
		fx := &effects{}
		now := s.now()
		if err := fn(cur, eng, fx, now); err != nil {
			if errors.Is(err, errSkip) {
				g = cur
			}
			return err
		}
		if err := s.commit(ctx, cur, eng, fx); err != nil {
			return err
		}
		g = cur
		return nil
	})
	if errors.Is(err, errSkip) {
		return g, acquired, nil
	}
	if err != nil && errors.Is(err, engine.ErrEngine) {
		s.metrics.EngineError(boardgame)
	}
	return g, acquired, err
}

// mutate is update for user-facing calls: contention becomes ErrBusy.
func (s *Service) mutate(ctx context.Context, gameID string, fn mutation) (*domain.Game, error) {
	g, acquired, err := s.update(ctx, gameID, fn)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrBusy
	}
	return g, nil
}

func (s *Service) commit(ctx context.Context, g *domain.Game, eng engine.Safe, fx *effects) error {
	if len(g.Data) > 0 {
		data, err := eng.ToSave(g.Data)
		if err != nil {
			return err
		}
		g.Data = data
	}
	err := s.store.Atomically(ctx, func(tx *store.Tx) error {
		if err := tx.SaveGame(g); err != nil {
			return err
		}
		for _, n := range fx.notes {
			if err := tx.Enqueue(n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit game %s: %w", g.ID, err)
	}
	for _, ev := range fx.events {
		s.metrics.Transition(ev)
		s.logger.Info("game_"+ev, zap.String("game_id", g.ID), zap.String("status", string(g.Status)))
	}
	for _, text := range fx.chat {
		// delivery is best effort; the sink logs its own failures
		_ = s.chat.Post(ctx, g.ID, text)
	}
	return nil
}

func (s *Service) text(key string, data map[string]string) string {
	return s.msgs.Text(key, data)
}
