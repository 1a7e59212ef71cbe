package store

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/turnkeeper/internal/domain"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, opts...), mr
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:secret@localhost:6380/3")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB)

	_, err = parseRedisURL("http://localhost")
	assert.Error(t, err)
	_, err = parseRedisURL("redis://localhost/abc")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := Open(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	_ = rdb.Close()

	_, err = Open(context.Background(), " ")
	assert.Error(t, err)
}

func TestGameRoundTripAndIndexes(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	start := now.Add(time.Hour)

	g := &domain.Game{
		ID:        "g1",
		Boardgame: "chess",
		Status:    domain.StatusOpen,
		Players:   []domain.Player{{ID: "u1"}},
		Options:   domain.Options{Seats: 2, Timing: domain.Timing{ScheduledStart: &start}},
	}
	require.NoError(t, s.CreateGame(ctx, g))
	assert.ErrorIs(t, s.CreateGame(ctx, g), ErrDuplicate)

	ids, err := s.ScheduledDue(ctx, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, ids)
	ids, err = s.ScheduledDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	g.Status = domain.StatusActive
	g.CurrentPlayers = []domain.CurrentPlayer{{ID: "u1", TimerStart: now, Deadline: now.Add(time.Minute)}}
	require.NoError(t, s.SaveGame(ctx, g))

	ids, err = s.ScheduledDue(ctx, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, ids, "active games leave the scheduled index")

	ids, err = s.DueGames(ctx, now.Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, ids)

	got, err := s.GetGame(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.True(t, got.CurrentPlayers[0].Deadline.Equal(now.Add(time.Minute)))

	g.Status = domain.StatusEnded
	g.CurrentPlayers = nil
	require.NoError(t, s.SaveGame(ctx, g))
	ids, err = s.DueGames(ctx, now.Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, s.DeleteGame(ctx, "g1"))
	got, err = s.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNotificationQueue(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	first := &domain.Notification{Kind: domain.KindPlayerDrop, Game: "g1", User: "u1", Meta: map[string]string{"reason": "timeout"}}
	require.NoError(t, s.Enqueue(ctx, first))
	require.NotEmpty(t, first.ID)
	second := &domain.Notification{Kind: domain.KindPlayerDrop, Game: "g2", User: "u1", CreatedAt: first.CreatedAt.Add(time.Millisecond)}
	require.NoError(t, s.Enqueue(ctx, second))
	other := &domain.Notification{Kind: domain.KindGameEnded, Game: "g1"}
	require.NoError(t, s.Enqueue(ctx, other))

	assert.Equal(t, s.NotificationTTL(), mr.TTL(keyNotification(first.ID)))

	pending, err := s.Pending(ctx, domain.KindPlayerDrop, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, "timeout", pending[0].Meta[domain.MetaReason])
	assert.Equal(t, second.ID, pending[1].ID)

	require.NoError(t, s.MarkProcessed(ctx, pending[0]))
	pending, err = s.Pending(ctx, domain.KindPlayerDrop, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	got, err := s.GetNotification(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)

	// an expired document is pruned from the index
	mr.Del(keyNotification(second.ID))
	pending, err = s.Pending(ctx, domain.KindPlayerDrop, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	n, err := s.PendingCount(ctx, domain.KindPlayerDrop)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReap(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, WithClock(func() time.Time { return now }), WithNotificationTTL(24*time.Hour))
	ctx := context.Background()

	old := &domain.Notification{Kind: domain.KindCurrentMove, Game: "g", User: "u", CreatedAt: now.Add(-48 * time.Hour)}
	fresh := &domain.Notification{Kind: domain.KindCurrentMove, Game: "g", User: "u", CreatedAt: now.Add(-time.Hour)}
	require.NoError(t, s.Enqueue(ctx, old))
	require.NoError(t, s.Enqueue(ctx, fresh))

	n, err := s.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	count, err := s.PendingCount(ctx, domain.KindCurrentMove)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestKarma(t *testing.T) {
	s, _ := newTestStore(t, WithKarma(75, 100))
	ctx := context.Background()

	k, err := s.Karma(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 75, k)

	require.NoError(t, s.Atomically(ctx, func(tx *Tx) error {
		tx.IncrKarma("u1", 20)
		tx.IncrKarma("u1", 20)
		return nil
	}))
	k, err = s.Karma(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 100, k, "capped at the maximum")

	a := &domain.Notification{Kind: domain.KindPlayerDrop, Game: "g1", User: "u2"}
	b := &domain.Notification{Kind: domain.KindPlayerDrop, Game: "g2", User: "u2"}
	require.NoError(t, s.Enqueue(ctx, a))
	require.NoError(t, s.Enqueue(ctx, b))
	var ca, cb Charge
	require.NoError(t, s.Atomically(ctx, func(tx *Tx) error {
		ca = tx.ChargeDrop(a, 10)
		cb = tx.ChargeDrop(b, 10)
		return nil
	}))
	assert.True(t, ca.Applied())
	assert.True(t, cb.Applied())
	k, err = s.Karma(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 55, k)
}

func TestChargeDropAppliesOnce(t *testing.T) {
	s, mr := newTestStore(t, WithKarma(75, 100))
	ctx := context.Background()
	n := &domain.Notification{Kind: domain.KindPlayerDrop, Game: "g1", User: "u1"}
	require.NoError(t, s.Enqueue(ctx, n))
	stale := *n

	var c Charge
	require.NoError(t, s.Atomically(ctx, func(tx *Tx) error {
		c = tx.ChargeDrop(n, 10)
		return nil
	}))
	assert.True(t, c.Applied())
	require.NoError(t, s.Atomically(ctx, func(tx *Tx) error {
		c = tx.ChargeDrop(&stale, 10)
		return nil
	}))
	assert.False(t, c.Applied())

	k, err := s.Karma(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 65, k)
	count, err := s.PendingCount(ctx, domain.KindPlayerDrop)
	require.NoError(t, err)
	assert.Zero(t, count)

	// an expired document is never charged
	gone := &domain.Notification{Kind: domain.KindPlayerDrop, Game: "g2", User: "u1"}
	require.NoError(t, s.Enqueue(ctx, gone))
	mr.Del("tk:notif:" + gone.ID)
	require.NoError(t, s.Atomically(ctx, func(tx *Tx) error {
		c = tx.ChargeDrop(gone, 10)
		return nil
	}))
	assert.False(t, c.Applied())
	k, err = s.Karma(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 65, k)
}

func TestAtomicallyDiscardsOnError(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	err := s.Atomically(ctx, func(tx *Tx) error {
		tx.IncrKarma("u1", -10)
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	k, err := s.Karma(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, DefaultKarma, k)
}

func TestEloAndReminders(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	recs, err := s.EloRecords(ctx, "chess", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, domain.EloRecord{}, recs["a"])

	at := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	require.NoError(t, s.Atomically(ctx, func(tx *Tx) error {
		tx.AddElo("chess", "a", 12)
		tx.SetElo("chess", "b", 1)
		tx.SetNextReminder("a", at)
		return nil
	}))

	recs, err = s.EloRecords(ctx, "chess", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, domain.EloRecord{Value: 12, Games: 1}, recs["a"])
	assert.Equal(t, domain.EloRecord{Value: 1, Games: 1}, recs["b"])

	require.NoError(t, s.SetAccess(ctx, "chess", "a", true, false))
	prefs, err := s.Preferences(ctx, "chess", "a")
	require.NoError(t, err)
	assert.True(t, prefs.Access)
	assert.False(t, prefs.Owned)
	assert.Equal(t, 12, prefs.Elo.Value)

	got, err := s.NextReminderAt(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.Equal(at))
	got, err = s.NextReminderAt(ctx, "nobody")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}
