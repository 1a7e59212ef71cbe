// Package builder wires a worker process from its configuration.
package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/turnkeeper/internal/auditlog"
	"github.com/park285/turnkeeper/internal/chat"
	"github.com/park285/turnkeeper/internal/config"
	"github.com/park285/turnkeeper/internal/domain"
	"github.com/park285/turnkeeper/internal/engine"
	"github.com/park285/turnkeeper/internal/engine/chessengine"
	"github.com/park285/turnkeeper/internal/lease"
	"github.com/park285/turnkeeper/internal/lifecycle"
	"github.com/park285/turnkeeper/internal/metrics"
	"github.com/park285/turnkeeper/internal/msgcat"
	"github.com/park285/turnkeeper/internal/notify"
	"github.com/park285/turnkeeper/internal/scheduler"
	"github.com/park285/turnkeeper/internal/store"
)

const reapInterval = time.Hour

type Deps struct {
	Config    *config.AppConfig
	Logger    *zap.Logger
	Redis     *redis.Client
	Store     *store.Store
	Leases    *lease.Manager
	Engines   *engine.Registry
	Chat      chat.Sink
	Messages  *msgcat.Catalog
	Metrics   *metrics.Metrics
	Audit     auditlog.Writer
	Games     *lifecycle.Service
	Notify    *notify.Processor
	Scheduler *scheduler.Scheduler

	closers []func() error
}

// Option adjusts the wiring, mostly for tests.
type Option func(*options)

type options struct {
	engines []engine.Engine
	chat    chat.Sink
	now     func() time.Time
}

// WithEngines registers extra engines next to the built-in ones.
func WithEngines(es ...engine.Engine) Option {
	return func(o *options) { o.engines = append(o.engines, es...) }
}

func WithChat(s chat.Sink) Option {
	return func(o *options) { o.chat = s }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, opts ...Option) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	d := &Deps{Config: cfg, Logger: logger}

	rdb, err := store.Open(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	d.Redis = rdb
	d.closers = append(d.closers, rdb.Close)

	d.Metrics = metrics.New()
	d.Store = store.New(rdb,
		store.WithNotificationTTL(cfg.NotificationTTL),
		store.WithKarma(cfg.KarmaDefault, cfg.KarmaMax),
		store.WithClock(o.now),
	)
	d.Leases = lease.NewManager(lease.NewRedisStore(rdb),
		lease.WithTTL(cfg.LeaseTTL),
		lease.WithLogger(logger),
		lease.WithObserver(d.Metrics),
	)

	d.Engines = engine.NewRegistry(chessengine.New())
	for _, e := range o.engines {
		d.Engines.Register(e)
	}

	d.Messages, err = msgcat.New(cfg.MessagesDir)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("load messages: %w", err)
	}

	d.Chat = o.chat
	if d.Chat == nil {
		d.Chat = chat.NewSink(cfg.ChatBaseURL, logger,
			chat.WithBearerToken(cfg.ChatToken),
			chat.WithRateLimit(cfg.ChatRatePerSec, int(cfg.ChatRatePerSec)+1),
		)
	}

	// Postgres is optional; without it audit rows stay in process
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pg, err := auditlog.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("init audit log: %w", err)
		}
		d.Audit = pg
		d.closers = append(d.closers, pg.Close)
	} else {
		logger.Warn("audit_log_memory", zap.String("reason", "DATABASE_URL not set"))
		d.Audit = auditlog.NewMemory()
	}

	d.Games = lifecycle.New(lifecycle.Deps{
		Store:    d.Store,
		Leases:   d.Leases,
		Engines:  d.Engines,
		Chat:     d.Chat,
		Messages: d.Messages,
		Metrics:  d.Metrics,
		Logger:   logger.Named("lifecycle"),
	}, lifecycle.WithClock(o.now))

	d.Notify = notify.New(notify.Deps{
		Store:     d.Store,
		Leases:    d.Leases,
		Lifecycle: d.Games,
		Chat:      d.Chat,
		Messages:  d.Messages,
		Audit:     d.Audit,
		Metrics:   d.Metrics,
		Logger:    logger.Named("notify"),
	}, notify.Config{
		Batch:         int64(cfg.DrainBatch),
		KarmaBonus:    cfg.KarmaGameBonus,
		DropPenalty:   cfg.KarmaDropPenalty,
		ReminderDelay: cfg.ReminderDelay,
	}, notify.WithClock(o.now))

	d.Scheduler, err = scheduler.New(d.Leases, d.Metrics, logger.Named("scheduler"))
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	for _, t := range d.Tasks() {
		if err := d.Scheduler.Add(t); err != nil {
			_ = d.Close()
			return nil, err
		}
	}

	logger.Info("builder_ready",
		zap.String("worker_id", cfg.WorkerID),
		zap.Strings("engines", d.Engines.Names()),
	)
	return d, nil
}

// Tasks lists the periodic work of a worker.
func (d *Deps) Tasks() []scheduler.Task {
	cfg := d.Config
	tasks := []scheduler.Task{
		{Name: "sweep-deadlines", Every: cfg.SweepInterval, Run: func(ctx context.Context) error {
			_, err := d.Games.SweepDeadlines(ctx)
			return err
		}},
		{Name: "sweep-scheduled", Every: cfg.SweepInterval, Run: func(ctx context.Context) error {
			_, err := d.Games.SweepScheduled(ctx)
			return err
		}},
	}
	for _, kind := range domain.Kinds {
		tasks = append(tasks, scheduler.Task{Name: "drain-" + string(kind), Every: cfg.DrainInterval, Run: func(ctx context.Context) error {
			_, err := d.Notify.Drain(ctx, kind)
			return err
		}})
	}
	tasks = append(tasks, scheduler.Task{Name: "reap-notifications", Every: reapInterval, Run: func(ctx context.Context) error {
		_, err := d.Notify.Reap(ctx)
		return err
	}})
	return tasks
}

// Close releases connections in reverse order of creation.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	if d.Scheduler != nil {
		if err := d.Scheduler.Shutdown(); err != nil {
			errs = append(errs, err)
		}
		d.Scheduler = nil
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
