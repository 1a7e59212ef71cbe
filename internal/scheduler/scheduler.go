// Package scheduler runs the periodic maintenance tasks of a worker on
// gocron. A task never overlaps itself in process, and its lease keeps
// other workers from running it at the same time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/park285/turnkeeper/internal/lease"
	"github.com/park285/turnkeeper/internal/metrics"
)

var ErrUnknownTask = errors.New("unknown task")

type Task struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

type Scheduler struct {
	cron    gocron.Scheduler
	leases  *lease.Manager
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu    sync.RWMutex
	ctx   context.Context
	tasks map[string]Task
}

func New(leases *lease.Manager, m *metrics.Metrics, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cron, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	return &Scheduler{
		cron:    cron,
		leases:  leases,
		metrics: m,
		logger:  logger,
		ctx:     context.Background(),
		tasks:   make(map[string]Task),
	}, nil
}

// Add registers t. It first runs right after Start, then every t.Every.
func (s *Scheduler) Add(t Task) error {
	if t.Name == "" || t.Run == nil || t.Every <= 0 {
		return fmt.Errorf("invalid task %q", t.Name)
	}
	s.mu.Lock()
	if _, dup := s.tasks[t.Name]; dup {
		s.mu.Unlock()
		return fmt.Errorf("task %q already registered", t.Name)
	}
	s.tasks[t.Name] = t
	s.mu.Unlock()

	_, err := s.cron.NewJob(
		gocron.DurationJob(t.Every),
		gocron.NewTask(func() { _ = s.run(s.context(), t) }),
		gocron.WithName(t.Name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", t.Name, err)
	}
	return nil
}

// Start runs the registered tasks until ctx is done or Shutdown is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler_started", zap.Int("tasks", len(s.Names())))
}

func (s *Scheduler) Shutdown() error {
	err := s.cron.Shutdown()
	s.logger.Info("scheduler_stopped", zap.Error(err))
	return err
}

// RunOnce runs a registered task immediately, under the same lease.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	s.mu.RLock()
	t, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return s.run(ctx, t)
}

func (s *Scheduler) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		out = append(out, name)
	}
	return out
}

func (s *Scheduler) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

func (s *Scheduler) run(ctx context.Context, t Task) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	start := time.Now()
	acquired, err := s.leases.Do(ctx, []string{"task", t.Name}, t.Run)
	s.metrics.ObserveTask(t.Name, time.Since(start))
	switch {
	case err != nil:
		s.logger.Error("task_error", zap.String("task", t.Name), zap.Error(err))
	case !acquired:
		s.logger.Debug("task_skipped", zap.String("task", t.Name), zap.String("reason", "lease_held"))
	}
	return err
}
