// Package store keeps game, notification, preference and user documents in
// Redis. Multi-document writes go through Atomically so they land in one
// MULTI/EXEC.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/park285/turnkeeper/internal/domain"
)

var ErrDuplicate = errors.New("document already exists")

const (
	DefaultNotificationTTL = 30 * 24 * time.Hour
	DefaultKarma           = 75
	DefaultKarmaMax        = 100
)

const (
	fieldKarma        = "karma"
	fieldNextReminder = "next_reminder_at"
	fieldEloValue     = "elo_value"
	fieldEloGames     = "elo_games"
	fieldAccess       = "access"
	fieldOwned        = "owned"
)

type Store struct {
	rdb          redis.UniversalClient
	notifTTL     time.Duration
	karmaDefault int
	karmaMax     int
	now          func() time.Time
}

type Option func(*Store)

func WithNotificationTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.notifTTL = d
		}
	}
}

func WithKarma(def, max int) Option {
	return func(s *Store) {
		if def > 0 {
			s.karmaDefault = def
		}
		if max > 0 {
			s.karmaMax = max
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		rdb:          rdb,
		notifTTL:     DefaultNotificationTTL,
		karmaDefault: DefaultKarma,
		karmaMax:     DefaultKarmaMax,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Client() redis.UniversalClient { return s.rdb }

func (s *Store) NotificationTTL() time.Duration { return s.notifTTL }

func keyGame(id string) string { return "tk:game:" + strings.TrimSpace(id) }
func keyDeadlines() string { return "tk:games:deadlines" }
func keyScheduled() string { return "tk:games:scheduled" }
func keyNotification(id string) string { return "tk:notif:" + id }
func keyPending(kind domain.NotificationKind) string { return "tk:notif:pending:" + string(kind) }
func keyPrefs(boardgame, user string) string { return "tk:prefs:" + boardgame + ":" + user }
func keyUser(id string) string { return "tk:user:" + id }

// --- games ---

// CreateGame stores a new game and fails with ErrDuplicate if the id is taken.
func (s *Store) CreateGame(ctx context.Context, g *domain.Game) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, keyGame(g.ID), raw, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: game %s", ErrDuplicate, g.ID)
	}
	return s.Atomically(ctx, func(tx *Tx) error { return tx.indexGame(g) })
}

// GetGame returns nil, nil when the game does not exist.
func (s *Store) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	raw, err := s.rdb.Get(ctx, keyGame(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g domain.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode game %s: %w", id, err)
	}
	return &g, nil
}

func (s *Store) SaveGame(ctx context.Context, g *domain.Game) error {
	return s.Atomically(ctx, func(tx *Tx) error { return tx.SaveGame(g) })
}

func (s *Store) DeleteGame(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, keyGame(id))
	pipe.ZRem(ctx, keyDeadlines(), id)
	pipe.ZRem(ctx, keyScheduled(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// DueGames returns ids of active games whose earliest deadline is at or before now.
func (s *Store) DueGames(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	return s.dueIn(ctx, keyDeadlines(), now, limit)
}

// ScheduledDue returns ids of open games whose scheduled start has passed.
func (s *Store) ScheduledDue(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	return s.dueIn(ctx, keyScheduled(), now, limit)
}

func (s *Store) dueIn(ctx context.Context, key string, now time.Time, limit int64) ([]string, error) {
	return s.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
}

// --- notifications ---

// Enqueue stores a single notification outside of any batch.
func (s *Store) Enqueue(ctx context.Context, n *domain.Notification) error {
	return s.Atomically(ctx, func(tx *Tx) error { return tx.Enqueue(n) })
}

// GetNotification returns nil, nil when the document expired or never existed.
func (s *Store) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	m, err := s.rdb.HGetAll(ctx, keyNotification(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return decodeNotification(id, m)
}

// Pending returns up to limit unprocessed notifications of kind in creation
// order. Index entries whose document is gone or already processed are pruned.
func (s *Store) Pending(ctx context.Context, kind domain.NotificationKind, limit int64) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.rdb.ZRange(ctx, keyPending(kind), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, keyNotification(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.Notification, 0, len(ids))
	var stale []any
	for i, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		n, err := decodeNotification(ids[i], m)
		if err != nil || n.Processed {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, n)
	}
	if len(stale) > 0 {
		if err := s.rdb.ZRem(ctx, keyPending(kind), stale...).Err(); err != nil {
			return out, err
		}
	}
	return out, nil
}

// MarkProcessed flips the processed flag outside of any batch.
func (s *Store) MarkProcessed(ctx context.Context, ns ...*domain.Notification) error {
	return s.Atomically(ctx, func(tx *Tx) error {
		for _, n := range ns {
			tx.MarkProcessed(n)
		}
		return nil
	})
}

// Reap prunes pending index entries older than the notification TTL.
func (s *Store) Reap(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.notifTTL).UnixMilli()
	var total int64
	for _, kind := range domain.Kinds {
		n, err := s.rdb.ZRemRangeByScore(ctx, keyPending(kind), "-inf", "("+strconv.FormatInt(cutoff, 10)).Result()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *Store) PendingCount(ctx context.Context, kind domain.NotificationKind) (int64, error) {
	return s.rdb.ZCard(ctx, keyPending(kind)).Result()
}

func encodeNotification(n *domain.Notification) (map[string]any, error) {
	meta := ""
	if len(n.Meta) > 0 {
		raw, err := json.Marshal(n.Meta)
		if err != nil {
			return nil, err
		}
		meta = string(raw)
	}
	return map[string]any{
		"kind":       string(n.Kind),
		"game":       n.Game,
		"user":       n.User,
		"meta":       meta,
		"processed":  boolField(n.Processed),
		"created_at": n.CreatedAt.UnixMilli(),
		"updated_at": n.UpdatedAt.UnixMilli(),
	}, nil
}

func decodeNotification(id string, m map[string]string) (*domain.Notification, error) {
	n := &domain.Notification{
		ID:        id,
		Kind:      domain.NotificationKind(m["kind"]),
		Game:      m["game"],
		User:      m["user"],
		Processed: m["processed"] == "1",
		CreatedAt: parseMillis(m["created_at"]),
		UpdatedAt: parseMillis(m["updated_at"]),
	}
	if raw := m["meta"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &n.Meta); err != nil {
			return nil, fmt.Errorf("decode notification %s meta: %w", id, err)
		}
	}
	return n, nil
}

// --- preferences & users ---

// Preferences returns the record for user; a missing record has a zero Elo.
func (s *Store) Preferences(ctx context.Context, boardgame, user string) (*domain.GamePreferences, error) {
	m, err := s.rdb.HGetAll(ctx, keyPrefs(boardgame, user)).Result()
	if err != nil {
		return nil, err
	}
	return &domain.GamePreferences{
		UserID:    user,
		Boardgame: boardgame,
		Elo: domain.EloRecord{
			Value: atoi(m[fieldEloValue]),
			Games: atoi(m[fieldEloGames]),
		},
		Access: m[fieldAccess] == "1",
		Owned:  m[fieldOwned] == "1",
	}, nil
}

// EloRecords loads the ELO accumulators of several users in one round trip.
func (s *Store) EloRecords(ctx context.Context, boardgame string, users []string) (map[string]domain.EloRecord, error) {
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.SliceCmd, len(users))
	for i, u := range users {
		cmds[i] = pipe.HMGet(ctx, keyPrefs(boardgame, u), fieldEloValue, fieldEloGames)
	}
	if len(users) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
	}
	out := make(map[string]domain.EloRecord, len(users))
	for i, u := range users {
		vals := cmds[i].Val()
		rec := domain.EloRecord{}
		if len(vals) == 2 {
			rec.Value = anyInt(vals[0])
			rec.Games = anyInt(vals[1])
		}
		out[u] = rec
	}
	return out, nil
}

func (s *Store) SetAccess(ctx context.Context, boardgame, user string, access, owned bool) error {
	return s.rdb.HSet(ctx, keyPrefs(boardgame, user), fieldAccess, boolField(access), fieldOwned, boolField(owned)).Err()
}

// Karma returns the user's karma, or the default when never touched.
func (s *Store) Karma(ctx context.Context, user string) (int, error) {
	v, err := s.rdb.HGet(ctx, keyUser(user), fieldKarma).Result()
	if err == redis.Nil {
		return s.karmaDefault, nil
	}
	if err != nil {
		return 0, err
	}
	return atoi(v), nil
}

// NextReminderAt returns the zero time when no reminder is armed.
func (s *Store) NextReminderAt(ctx context.Context, user string) (time.Time, error) {
	v, err := s.rdb.HGet(ctx, keyUser(user), fieldNextReminder).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return parseMillis(v), nil
}

// --- helpers ---

func newNotificationID() string { return uuid.NewString() }

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func anyInt(v any) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	return atoi(s)
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
