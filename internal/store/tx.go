package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/turnkeeper/internal/domain"
)

// karmaIncrScript adds ARGV[1] to the karma field, clamped to [0, ARGV[2]].
// ARGV[3] is the starting karma of a user without a record.
var karmaIncrScript = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "karma")
if not cur then cur = ARGV[3] end
local v = tonumber(cur) + tonumber(ARGV[1])
local max = tonumber(ARGV[2])
if v > max then v = max end
if v < 0 then v = 0 end
redis.call("HSET", KEYS[1], "karma", v)
return v
`)

// chargeDropScript 동시성: 같은 알림을 두 워커가 읽어도 패널티는 한 번만 적용.
// KEYS: notification, user, pending index. ARGV: penalty, default karma,
// updated_at millis, ttl millis, notification id.
// Returns 1 when the penalty was applied, 0 when the notification was
// already processed or expired.
var chargeDropScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 or redis.call("HGET", KEYS[1], "processed") == "1" then
	redis.call("ZREM", KEYS[3], ARGV[5])
	return 0
end
local penalty = tonumber(ARGV[1])
if penalty > 0 and KEYS[2] ~= "" then
	redis.call("HSETNX", KEYS[2], "karma", ARGV[2])
	redis.call("HINCRBY", KEYS[2], "karma", -penalty)
end
redis.call("HSET", KEYS[1], "processed", "1", "updated_at", ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
redis.call("ZREM", KEYS[3], ARGV[5])
return 1
`)

// Tx collects writes that must become visible together. Nothing reaches
// Redis until Atomically returns.
type Tx struct {
	ctx  context.Context
	s    *Store
	pipe redis.Pipeliner
	now  time.Time
}

// Atomically runs fn and commits everything it queued in one MULTI/EXEC.
// If fn returns an error nothing is written.
func (s *Store) Atomically(ctx context.Context, fn func(tx *Tx) error) error {
	pipe := s.rdb.TxPipeline()
	tx := &Tx{ctx: ctx, s: s, pipe: pipe, now: s.now()}
	if err := fn(tx); err != nil {
		pipe.Discard()
		return err
	}
	if pipe.Len() == 0 {
		return nil
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (tx *Tx) SaveGame(g *domain.Game) error {
	g.UpdatedAt = tx.now
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	tx.pipe.Set(tx.ctx, keyGame(g.ID), raw, 0)
	return tx.indexGame(g)
}

// indexGame keeps the sweep indexes in line with the document.
func (tx *Tx) indexGame(g *domain.Game) error {
	if d, ok := g.NextDeadline(); ok && g.Status == domain.StatusActive {
		tx.pipe.ZAdd(tx.ctx, keyDeadlines(), redis.Z{Score: float64(d.UnixMilli()), Member: g.ID})
	} else {
		tx.pipe.ZRem(tx.ctx, keyDeadlines(), g.ID)
	}
	if ss := g.Options.Timing.ScheduledStart; ss != nil && g.Status == domain.StatusOpen {
		tx.pipe.ZAdd(tx.ctx, keyScheduled(), redis.Z{Score: float64(ss.UnixMilli()), Member: g.ID})
	} else {
		tx.pipe.ZRem(tx.ctx, keyScheduled(), g.ID)
	}
	return nil
}

// Enqueue assigns an id and timestamps when missing and queues the
// notification document and its pending index entry.
func (tx *Tx) Enqueue(n *domain.Notification) error {
	if n.ID == "" {
		n.ID = newNotificationID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = tx.now
	}
	n.UpdatedAt = tx.now
	fields, err := encodeNotification(n)
	if err != nil {
		return err
	}
	key := keyNotification(n.ID)
	tx.pipe.HSet(tx.ctx, key, fields)
	tx.pipe.Expire(tx.ctx, key, tx.s.notifTTL)
	if !n.Processed {
		tx.pipe.ZAdd(tx.ctx, keyPending(n.Kind), redis.Z{Score: float64(n.CreatedAt.UnixMilli()), Member: n.ID})
	}
	return nil
}

func (tx *Tx) MarkProcessed(n *domain.Notification) {
	n.Processed = true
	n.UpdatedAt = tx.now
	key := keyNotification(n.ID)
	tx.pipe.HSet(tx.ctx, key, "processed", "1", "updated_at", tx.now.UnixMilli())
	tx.pipe.Expire(tx.ctx, key, tx.s.notifTTL)
	tx.pipe.ZRem(tx.ctx, keyPending(n.Kind), n.ID)
}

// Charge is the outcome of ChargeDrop, readable once Atomically returned.
type Charge struct{ cmd *redis.Cmd }

// Applied reports whether this commit charged the penalty.
func (c Charge) Applied() bool {
	if c.cmd == nil {
		return false
	}
	n, err := c.cmd.Int()
	return err == nil && n == 1
}

// ChargeDrop subtracts penalty from the karma of n.User and marks n
// processed, unless Redis already has n processed. The check and the writes
// run as one script, so a notification seen by two workers is charged once.
func (tx *Tx) ChargeDrop(n *domain.Notification, penalty int) Charge {
	user := ""
	if n.User != "" {
		user = keyUser(n.User)
	}
	n.Processed = true
	n.UpdatedAt = tx.now
	cmd := chargeDropScript.Eval(tx.ctx, tx.pipe,
		[]string{keyNotification(n.ID), user, keyPending(n.Kind)},
		penalty, tx.s.karmaDefault, tx.now.UnixMilli(), tx.s.notifTTL.Milliseconds(), n.ID)
	return Charge{cmd: cmd}
}

// IncrKarma adds delta, capped at the configured maximum and never below 0.
func (tx *Tx) IncrKarma(user string, delta int) {
	karmaIncrScript.Eval(tx.ctx, tx.pipe, []string{keyUser(user)}, delta, tx.s.karmaMax, tx.s.karmaDefault)
}

func (tx *Tx) SetNextReminder(user string, at time.Time) {
	tx.pipe.HSet(tx.ctx, keyUser(user), fieldNextReminder, at.UnixMilli())
}

// AddElo increments the rating by delta and counts one more game.
func (tx *Tx) AddElo(boardgame, user string, delta int) {
	key := keyPrefs(boardgame, user)
	tx.pipe.HIncrBy(tx.ctx, key, fieldEloValue, int64(delta))
	tx.pipe.HIncrBy(tx.ctx, key, fieldEloGames, 1)
}

// SetElo overwrites the rating and counts one more game.
func (tx *Tx) SetElo(boardgame, user string, value int) {
	key := keyPrefs(boardgame, user)
	tx.pipe.HSet(tx.ctx, key, fieldEloValue, value)
	tx.pipe.HIncrBy(tx.ctx, key, fieldEloGames, 1)
}
