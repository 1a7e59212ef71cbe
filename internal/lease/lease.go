// Package lease provides non-blocking distributed leases on top of Redis.
//
// A lease is identified by a list of parts (for example ["game", id]); the
// parts are escaped and joined so keys for different concerns never collide.
// Acquisition either succeeds immediately or reports contention with a nil
// lease, it never waits.
package lease

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const keyPrefix = "lease"

// DefaultTTL bounds how long a crashed holder can block others.
const DefaultTTL = 30 * time.Second

// ErrLost is reported when a lease expired or was taken over while its
// holder was still working.
var ErrLost = errors.New("lease lost")

// Store is the atomic primitive behind leases.
type Store interface {
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
	Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
}

// Observer is notified about lease outcomes. Implemented by metrics.
type Observer interface {
	LeaseAcquired(scope string)
	LeaseContended(scope string)
}

type Manager struct {
	store    Store
	ttl      time.Duration
	logger   *zap.Logger
	observer Observer
}

type Option func(*Manager)

func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{store: store, ttl: DefaultTTL, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Key returns the canonical storage key for parts.
func Key(parts ...string) string {
	esc := make([]string, 0, len(parts)+1)
	esc = append(esc, keyPrefix)
	for _, p := range parts {
		// PathEscape keeps ':' as is, and ':' is the separator
		esc = append(esc, strings.ReplaceAll(url.PathEscape(p), ":", "%3A"))
	}
	return strings.Join(esc, ":")
}

// Lock tries to take the lease named by parts. On contention it returns a
// nil lease and a nil error.
func (m *Manager) Lock(ctx context.Context, parts ...string) (*Lease, error) {
	key := Key(parts...)
	token := uuid.NewString()
	ok, err := m.store.Acquire(ctx, key, token, m.ttl)
	if err != nil {
		return nil, err
	}
	scope := ""
	if len(parts) > 0 {
		scope = parts[0]
	}
	if !ok {
		m.logger.Debug("lease_contended", zap.String("key", key))
		if m.observer != nil {
			m.observer.LeaseContended(scope)
		}
		return nil, nil
	}
	if m.observer != nil {
		m.observer.LeaseAcquired(scope)
	}
	return &Lease{key: key, token: token, ttl: m.ttl, store: m.store, logger: m.logger}, nil
}

// Do runs fn while holding the lease named by parts. acquired is false when
// the lease was held by someone else; fn is not called in that case.
func (m *Manager) Do(ctx context.Context, parts []string, fn func(ctx context.Context) error) (acquired bool, err error) {
	l, err := m.Lock(ctx, parts...)
	if err != nil {
		return false, err
	}
	if l == nil {
		return false, nil
	}
	defer l.Release(context.WithoutCancel(ctx))
	return true, fn(context.WithValue(ctx, leaseKey{}, l))
}

type leaseKey struct{}

// FromContext returns the lease of the innermost Do running ctx, or nil.
func FromContext(ctx context.Context) *Lease {
	l, _ := ctx.Value(leaseKey{}).(*Lease)
	return l
}

// Refresh extends the lease ctx runs under, if any. Long loops call it
// between items and stop on ErrLost.
func Refresh(ctx context.Context) error {
	l := FromContext(ctx)
	if l == nil {
		return nil
	}
	ok, err := l.Extend(ctx)
	if err != nil {
		return fmt.Errorf("extend %s: %w", l.key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLost, l.key)
	}
	return nil
}

// Lease is a held lock. Release is idempotent and safe on a nil receiver.
type Lease struct {
	key    string
	token  string
	ttl    time.Duration
	store  Store
	logger *zap.Logger

	mu       sync.Mutex
	released bool
}

func (l *Lease) Key() string {
	if l == nil {
		return ""
	}
	return l.key
}

func (l *Lease) Release(ctx context.Context) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	l.released = true
	if err := l.store.Release(ctx, l.key, l.token); err != nil {
		l.logger.Warn("lease_release_error", zap.String("key", l.key), zap.Error(err))
	}
}

// Extend pushes the expiry out by the manager TTL. It reports false when the
// lease was lost in the meantime.
func (l *Lease) Extend(ctx context.Context) (bool, error) {
	if l == nil {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return false, nil
	}
	return l.store.Extend(ctx, l.key, l.token, l.ttl)
}
