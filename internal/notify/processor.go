// Package notify drains the notification queue. Each kind is drained by at
// most one worker at a time; every handler marks a notification processed
// in the same batch as the side effects it authorizes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/turnkeeper/internal/auditlog"
	"github.com/park285/turnkeeper/internal/chat"
	"github.com/park285/turnkeeper/internal/domain"
	"github.com/park285/turnkeeper/internal/lease"
	"github.com/park285/turnkeeper/internal/lifecycle"
	"github.com/park285/turnkeeper/internal/metrics"
	"github.com/park285/turnkeeper/internal/msgcat"
	"github.com/park285/turnkeeper/internal/store"
)

var ErrUnknownKind = errors.New("unknown notification kind")

// errPending leaves a notification in the queue for the next drain.
var errPending = errors.New("left pending")

type Config struct {
	Batch         int64
	KarmaBonus    int
	DropPenalty   int
	ReminderDelay time.Duration
}

func DefaultConfig() Config {
	return Config{Batch: 100, KarmaBonus: 1, DropPenalty: 10, ReminderDelay: 15 * time.Minute}
}

type Deps struct {
	Store     *store.Store
	Leases    *lease.Manager
	Lifecycle *lifecycle.Service
	Chat      chat.Sink
	Messages  *msgcat.Catalog
	Audit     auditlog.Writer
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

type Processor struct {
	store   *store.Store
	leases  *lease.Manager
	games   *lifecycle.Service
	chat    chat.Sink
	msgs    *msgcat.Catalog
	audit   auditlog.Writer
	metrics *metrics.Metrics
	logger  *zap.Logger
	cfg     Config
	now     func() time.Time
}

type Option func(*Processor)

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func New(d Deps, cfg Config, opts ...Option) *Processor {
	def := DefaultConfig()
	if cfg.Batch <= 0 {
		cfg.Batch = def.Batch
	}
	if cfg.ReminderDelay <= 0 {
		cfg.ReminderDelay = def.ReminderDelay
	}
	p := &Processor{
		store:   d.Store,
		leases:  d.Leases,
		games:   d.Lifecycle,
		chat:    d.Chat,
		msgs:    d.Messages,
		audit:   d.Audit,
		metrics: d.Metrics,
		logger:  d.Logger,
		cfg:     cfg,
		now:     time.Now,
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.chat == nil {
		p.chat = chat.NewLogSink(p.logger)
	}
	if p.audit == nil {
		p.audit = auditlog.Nop{}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Drain processes one batch of pending notifications of kind and returns
// how many were marked processed. It returns 0, nil when another worker
// is draining the same kind.
func (p *Processor) Drain(ctx context.Context, kind domain.NotificationKind) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	var done int
	acquired, err := p.leases.Do(ctx, []string{"game-notification", string(kind)}, func(ctx context.Context) error {
		ns, err := p.store.Pending(ctx, kind, p.cfg.Batch)
		if err != nil {
			return fmt.Errorf("load pending %s: %w", kind, err)
		}
		if len(ns) == 0 {
			return nil
		}
		done = p.dispatch(ctx, kind, ns)
		return nil
	})
	if err != nil {
		return done, err
	}
	if !acquired {
		p.logger.Debug("notification_drain_busy", zap.String("kind", string(kind)))
		return 0, nil
	}
	if done > 0 {
		p.metrics.Processed(string(kind), done)
		p.logger.Info("notification_drain", zap.String("kind", string(kind)), zap.Int("processed", done))
	}
	return done, nil
}

// DrainAll drains one batch of every kind.
func (p *Processor) DrainAll(ctx context.Context) (int, error) {
	total := 0
	for _, kind := range domain.Kinds {
		n, err := p.Drain(ctx, kind)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Reap drops pending index entries whose documents outlived their TTL.
func (p *Processor) Reap(ctx context.Context) (int64, error) {
	n, err := p.store.Reap(ctx)
	if err != nil {
		return n, err
	}
	if n > 0 {
		p.logger.Info("notification_reap", zap.Int64("removed", n))
	}
	return n, nil
}

func (p *Processor) dispatch(ctx context.Context, kind domain.NotificationKind, ns []*domain.Notification) int {
	switch kind {
	case domain.KindCurrentMove:
		return p.batch(ctx, kind, ns, p.currentMove)
	case domain.KindPlayerDrop:
		return p.batch(ctx, kind, ns, p.playerDrop)
	case domain.KindGameStarted:
		return p.each(ctx, ns, p.gameStarted)
	case domain.KindGameEnded:
		return p.each(ctx, ns, p.gameEnded)
	case domain.KindPlayerQuit:
		return p.each(ctx, ns, p.playerQuit)
	case domain.KindDropPlayer:
		return p.each(ctx, ns, p.dropPlayer)
	}
	return 0
}

func (p *Processor) batch(ctx context.Context, kind domain.NotificationKind, ns []*domain.Notification, fn func(context.Context, []*domain.Notification) (int, error)) int {
	done, err := fn(ctx, ns)
	if err != nil {
		p.metrics.Failed(string(kind))
		p.logger.Error("notification_batch_error", zap.String("kind", string(kind)), zap.Int("size", len(ns)), zap.Int("processed", done), zap.Error(err))
	}
	return done
}

// each runs fn per notification; one failure never blocks the others.
func (p *Processor) each(ctx context.Context, ns []*domain.Notification, fn func(context.Context, *domain.Notification) error) int {
	done := 0
	for i, n := range ns {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			if err := lease.Refresh(ctx); err != nil {
				p.logger.Warn("notification_lease_lost", zap.String("kind", string(n.Kind)), zap.Error(err))
				break
			}
		}
		err := fn(ctx, n)
		switch {
		case err == nil:
			done++
		case errors.Is(err, errPending):
			p.logger.Debug("notification_pending", p.fields(n)...)
		default:
			p.metrics.Failed(string(n.Kind))
			p.logger.Error("notification_error", append(p.fields(n), zap.Error(err))...)
		}
	}
	return done
}

func (p *Processor) fields(n *domain.Notification) []zap.Field {
	return []zap.Field{
		zap.String("notification_id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.String("game_id", n.Game),
		zap.String("user_id", n.User),
	}
}
